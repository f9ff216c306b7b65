package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	promodomain "github.com/hostlify/hostlify/internal/promo/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() promodomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, code *promodomain.PromoCode) error {
	return db.WithContext(ctx).Create(code).Error
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*promodomain.PromoCode, error) {
	var promo promodomain.PromoCode
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, discount_type, discount_value, plan_id, max_uses,
			used_count, single_use_per_user, expires_at, active, created_at
		 FROM promo_codes WHERE code = ?`,
		strings.ToUpper(strings.TrimSpace(code)),
	).Scan(&promo).Error
	if err != nil {
		return nil, err
	}
	if promo.ID == 0 {
		return nil, nil
	}
	return &promo, nil
}

func (r *repo) IncrementUsedCount(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE promo_codes SET used_count = used_count + 1
		 WHERE id = ? AND (max_uses = 0 OR used_count < max_uses)`,
		id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) InsertRedemption(ctx context.Context, db *gorm.DB, redemption *promodomain.Redemption) error {
	return db.WithContext(ctx).Create(redemption).Error
}

func (r *repo) HasRedemption(ctx context.Context, db *gorm.DB, promoCodeID, userID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM promo_code_redemptions WHERE promo_code_id = ? AND user_id = ?`,
		promoCodeID, userID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
