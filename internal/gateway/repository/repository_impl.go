package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	gatewaydomain "github.com/hostlify/hostlify/internal/gateway/domain"
	"gorm.io/gorm"
)

const sessionColumns = `id, user_id, purpose, amount, currency, provider,
	status, attempts, service_id, plan_id, period, domain, promo_code,
	is_autoscaling_enabled, return_url, external_id, payment_url,
	created_at, updated_at`

type repo struct{}

func Provide() gatewaydomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, session *gatewaydomain.PaymentSession) error {
	return db.WithContext(ctx).Create(session).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*gatewaydomain.PaymentSession, error) {
	var session gatewaydomain.PaymentSession
	err := db.WithContext(ctx).Raw(
		`SELECT `+sessionColumns+` FROM payment_sessions WHERE id = ?`, id,
	).Scan(&session).Error
	if err != nil {
		return nil, err
	}
	if session.ID == 0 {
		return nil, nil
	}
	return &session, nil
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, provider, externalID string) (*gatewaydomain.PaymentSession, error) {
	var session gatewaydomain.PaymentSession
	err := db.WithContext(ctx).Raw(
		`SELECT `+sessionColumns+` FROM payment_sessions WHERE provider = ? AND external_id = ?`,
		provider, externalID,
	).Scan(&session).Error
	if err != nil {
		return nil, err
	}
	if session.ID == 0 {
		return nil, nil
	}
	return &session, nil
}

func (r *repo) UpdateCheckout(ctx context.Context, db *gorm.DB, id snowflake.ID, externalID, paymentURL string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_sessions SET external_id = ?, payment_url = ?, updated_at = ? WHERE id = ?`,
		externalID, paymentURL, time.Now().UTC(), id,
	).Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to gatewaydomain.SessionStatus) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE payment_sessions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, time.Now().UTC(), id, from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) UpdateServiceID(ctx context.Context, db *gorm.DB, id, serviceID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_sessions SET service_id = ?, updated_at = ? WHERE id = ?`,
		serviceID, time.Now().UTC(), id,
	).Error
}

func (r *repo) IncrementAttempts(ctx context.Context, db *gorm.DB, id snowflake.ID) (int, error) {
	if err := db.WithContext(ctx).Exec(
		`UPDATE payment_sessions SET attempts = attempts + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	).Error; err != nil {
		return 0, err
	}
	var attempts int
	err := db.WithContext(ctx).Raw(
		`SELECT attempts FROM payment_sessions WHERE id = ?`, id,
	).Scan(&attempts).Error
	return attempts, err
}

func (r *repo) ListByStatus(ctx context.Context, db *gorm.DB, status gatewaydomain.SessionStatus, limit int) ([]gatewaydomain.PaymentSession, error) {
	var sessions []gatewaydomain.PaymentSession
	err := db.WithContext(ctx).Raw(
		`SELECT `+sessionColumns+` FROM payment_sessions
		 WHERE status = ? ORDER BY id ASC LIMIT ?`,
		status, limit,
	).Scan(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}
