package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// PlanCredit maps a subscription plan name to its monthly included
// credit amount. Plans absent from the table (including free/no-plan
// accounts) are worth zero credits.
type PlanCredit struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	Plan           string       `json:"plan" gorm:"type:text;not null;uniqueIndex:ux_plan_credits_plan"`
	MonthlyCredits int64        `json:"monthly_credits" gorm:"not null"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PlanCredit) TableName() string { return "plan_credits" }

type Repository interface {
	FindByPlan(ctx context.Context, db *gorm.DB, plan string) (*PlanCredit, error)
	Upsert(ctx context.Context, db *gorm.DB, pc *PlanCredit) error
	List(ctx context.Context, db *gorm.DB) ([]PlanCredit, error)
}

type Service interface {
	// CreditsForPlan returns the monthly included credits for plan.
	// Unknown or empty plans return 0, never an error.
	CreditsForPlan(ctx context.Context, plan string) (int64, error)
	Upsert(ctx context.Context, plan string, monthlyCredits int64) (*PlanCredit, error)
	List(ctx context.Context) ([]PlanCredit, error)
}

var (
	ErrNotFound       = errors.New("plan_not_found")
	ErrInvalidPlan    = errors.New("invalid_plan")
	ErrInvalidCredits = errors.New("invalid_monthly_credits")
)
