package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	hostingdomain "github.com/hostlify/hostlify/internal/hosting/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() hostingdomain.Repository {
	return &repo{}
}

const serviceColumns = `id, user_id, plan_id, domain, status, start_date, end_date,
	is_autoscaling_enabled, is_auto_renew, payment_method, created_at, updated_at`

const accountColumns = `id, service_id, current_ram, current_cpu, current_storage,
	current_bandwidth, last_scaled_up_at, last_scaled_down_at, updated_at`

func (r *repo) InsertService(ctx context.Context, db *gorm.DB, svc *hostingdomain.HostingService) error {
	return db.WithContext(ctx).Create(svc).Error
}

func (r *repo) InsertAccount(ctx context.Context, db *gorm.DB, account *hostingdomain.HostingAccount) error {
	return db.WithContext(ctx).Create(account).Error
}

func (r *repo) FindServiceByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*hostingdomain.HostingService, error) {
	var svc hostingdomain.HostingService
	err := db.WithContext(ctx).Raw(
		`SELECT `+serviceColumns+` FROM hosting_services WHERE id = ?`, id,
	).Scan(&svc).Error
	if err != nil {
		return nil, err
	}
	if svc.ID == 0 {
		return nil, nil
	}
	return &svc, nil
}

func (r *repo) FindAccountByServiceID(ctx context.Context, db *gorm.DB, serviceID snowflake.ID) (*hostingdomain.HostingAccount, error) {
	var account hostingdomain.HostingAccount
	err := db.WithContext(ctx).Raw(
		`SELECT `+accountColumns+` FROM hosting_accounts WHERE service_id = ?`, serviceID,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) ListServicesByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]hostingdomain.HostingService, error) {
	var services []hostingdomain.HostingService
	err := db.WithContext(ctx).Raw(
		`SELECT `+serviceColumns+` FROM hosting_services WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	).Scan(&services).Error
	if err != nil {
		return nil, err
	}
	return services, nil
}

func (r *repo) ListServiceIDsByStatus(ctx context.Context, db *gorm.DB, status hostingdomain.ServiceStatus, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM hosting_services WHERE status = ? ORDER BY id LIMIT ?`,
		status,
		limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) ListDueServices(ctx context.Context, db *gorm.DB, status hostingdomain.ServiceStatus, dueBefore time.Time, limit int) ([]hostingdomain.HostingService, error) {
	var services []hostingdomain.HostingService
	err := db.WithContext(ctx).Raw(
		`SELECT `+serviceColumns+` FROM hosting_services
		 WHERE status = ? AND end_date IS NOT NULL AND end_date <= ?
		 ORDER BY end_date ASC
		 LIMIT ?`,
		status,
		dueBefore,
		limit,
	).Scan(&services).Error
	if err != nil {
		return nil, err
	}
	return services, nil
}

// UpdateServiceStatus is guarded by the expected current status so two
// workers racing the same transition cannot both apply it.
func (r *repo) UpdateServiceStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to hostingdomain.ServiceStatus) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE hosting_services
		 SET status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		to,
		id,
		from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) UpdateServicePeriod(ctx context.Context, db *gorm.DB, id snowflake.ID, startDate, endDate time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE hosting_services
		 SET start_date = ?, end_date = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		startDate,
		endDate,
		id,
	).Error
}

func (r *repo) UpdateAutoscalingEnabled(ctx context.Context, db *gorm.DB, id snowflake.ID, enabled bool) error {
	return db.WithContext(ctx).Exec(
		`UPDATE hosting_services
		 SET is_autoscaling_enabled = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		enabled,
		id,
	).Error
}

func (r *repo) UpdateAccountAllocation(ctx context.Context, db *gorm.DB, serviceID snowflake.ID, ram, cpu int64, scaledUp bool, at time.Time) error {
	column := "last_scaled_down_at"
	if scaledUp {
		column = "last_scaled_up_at"
	}
	return db.WithContext(ctx).Exec(
		`UPDATE hosting_accounts
		 SET current_ram = ?, current_cpu = ?, `+column+` = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE service_id = ?`,
		ram,
		cpu,
		at,
		serviceID,
	).Error
}
