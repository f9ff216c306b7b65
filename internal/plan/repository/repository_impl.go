package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/hostlify/hostlify/internal/plan/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() plandomain.Repository {
	return &repo{}
}

const planColumns = `id, code, name, ram, cpu, storage, bandwidth, max_ram, max_cpu,
	price_monthly, price_yearly, active, created_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *plandomain.HostingPlan) error {
	return db.WithContext(ctx).Create(p).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*plandomain.HostingPlan, error) {
	var plan plandomain.HostingPlan
	err := db.WithContext(ctx).Raw(
		`SELECT `+planColumns+` FROM hosting_plans WHERE id = ?`, id,
	).Scan(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == 0 {
		return nil, nil
	}
	return &plan, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*plandomain.HostingPlan, error) {
	var plan plandomain.HostingPlan
	err := db.WithContext(ctx).Raw(
		`SELECT `+planColumns+` FROM hosting_plans WHERE code = ?`, code,
	).Scan(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == 0 {
		return nil, nil
	}
	return &plan, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]plandomain.HostingPlan, error) {
	var plans []plandomain.HostingPlan
	err := db.WithContext(ctx).Raw(
		`SELECT ` + planColumns + ` FROM hosting_plans WHERE active ORDER BY price_monthly ASC`,
	).Scan(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}
