package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	statisticsdomain "github.com/hostlify/hostlify/internal/statistics/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() statisticsdomain.Repository {
	return &repo{}
}

func (r *repo) ListDebitsSince(ctx context.Context, db *gorm.DB, walletID snowflake.ID, since time.Time) ([]statisticsdomain.DebitRow, error) {
	var rows []statisticsdomain.DebitRow
	err := db.WithContext(ctx).Raw(
		`SELECT amount, source, created_at
		 FROM wallet_transactions
		 WHERE wallet_id = ? AND amount < 0 AND created_at >= ?
		 ORDER BY created_at ASC`,
		walletID, since,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) CPUStatsSince(ctx context.Context, db *gorm.DB, serviceIDs []snowflake.ID, since time.Time) (statisticsdomain.CPUUsageStats, error) {
	var stats statisticsdomain.CPUUsageStats
	if len(serviceIDs) == 0 {
		return stats, nil
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) AS samples, COALESCE(AVG(cpu_usage), 0) AS avg_cpu
		 FROM usage_samples
		 WHERE service_id IN ? AND sampled_at >= ?`,
		serviceIDs, since,
	).Scan(&stats).Error
	return stats, err
}
