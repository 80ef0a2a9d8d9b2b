package repository

import (
	"context"
	"errors"

	tierdomain "github.com/rankhive/creditd/internal/tier/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() tierdomain.Repository {
	return &repo{}
}

func (r *repo) FindByPlan(ctx context.Context, db *gorm.DB, plan string) (*tierdomain.PlanCredit, error) {
	var pc tierdomain.PlanCredit
	err := db.WithContext(ctx).Where("plan = ?", plan).First(&pc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, tierdomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pc, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, pc *tierdomain.PlanCredit) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE plan_credits SET monthly_credits = ?, updated_at = ? WHERE plan = ?`,
		pc.MonthlyCredits, pc.UpdatedAt, pc.Plan,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	return db.WithContext(ctx).Create(pc).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]tierdomain.PlanCredit, error) {
	var plans []tierdomain.PlanCredit
	err := db.WithContext(ctx).Order("plan ASC").Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}
