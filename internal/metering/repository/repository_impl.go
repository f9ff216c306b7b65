package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	meteringdomain "github.com/hostlify/hostlify/internal/metering/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() meteringdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sample *meteringdomain.UsageSample) error {
	return db.WithContext(ctx).Create(sample).Error
}

func (r *repo) FindLatest(ctx context.Context, db *gorm.DB, serviceID snowflake.ID) (*meteringdomain.UsageSample, error) {
	var sample meteringdomain.UsageSample
	err := db.WithContext(ctx).Raw(
		`SELECT id, service_id, ram_usage, cpu_usage, storage_usage, bandwidth_usage, sampled_at
		 FROM usage_samples
		 WHERE service_id = ?
		 ORDER BY sampled_at DESC
		 LIMIT 1`,
		serviceID,
	).Scan(&sample).Error
	if err != nil {
		return nil, err
	}
	if sample.ID == 0 {
		return nil, nil
	}
	return &sample, nil
}

func (r *repo) DeleteOlderThan(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM usage_samples WHERE sampled_at < ?`,
		cutoff,
	)
	return result.RowsAffected, result.Error
}
