package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	autoscalingdomain "github.com/hostlify/hostlify/internal/autoscaling/domain"
	"gorm.io/gorm"
)

const logColumns = `id, service_id, previous_ram, new_ram, scaled_ram,
	previous_cpu, new_cpu, scaled_cpu, cost, payment_status, reference,
	applied_at, created_at`

type repo struct{}

func Provide() autoscalingdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, log *autoscalingdomain.ScalingLog) error {
	return db.WithContext(ctx).Create(log).Error
}

func (r *repo) FindByReference(ctx context.Context, db *gorm.DB, reference string) (*autoscalingdomain.ScalingLog, error) {
	var log autoscalingdomain.ScalingLog
	err := db.WithContext(ctx).Raw(
		`SELECT `+logColumns+` FROM scaling_logs WHERE reference = ?`,
		reference,
	).Scan(&log).Error
	if err != nil {
		return nil, err
	}
	if log.ID == 0 {
		return nil, nil
	}
	return &log, nil
}

func (r *repo) ListByService(ctx context.Context, db *gorm.DB, serviceID snowflake.ID, afterID snowflake.ID, limit int) ([]autoscalingdomain.ScalingLog, error) {
	query := `SELECT ` + logColumns + ` FROM scaling_logs WHERE service_id = ?`
	args := []any{serviceID}
	if afterID > 0 {
		query += ` AND id < ?`
		args = append(args, afterID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	var logs []autoscalingdomain.ScalingLog
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

func (r *repo) ListPaidUnapplied(ctx context.Context, db *gorm.DB, limit int) ([]autoscalingdomain.ScalingLog, error) {
	var logs []autoscalingdomain.ScalingLog
	err := db.WithContext(ctx).Raw(
		`SELECT `+logColumns+` FROM scaling_logs
		 WHERE payment_status = ? AND applied_at IS NULL
		 ORDER BY id ASC LIMIT ?`,
		autoscalingdomain.PaymentPaid, limit,
	).Scan(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func (r *repo) MarkApplied(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE scaling_logs SET applied_at = ? WHERE id = ? AND applied_at IS NULL`,
		at, id,
	).Error
}
