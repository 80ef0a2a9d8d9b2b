package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	packdomain "github.com/rankhive/creditd/internal/pack/domain"
	tierdomain "github.com/rankhive/creditd/internal/tier/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var defaultPlans = []struct {
	Plan           string
	MonthlyCredits int64
}{
	{"free", 0},
	{"starter", 50},
	{"builder", 100},
	{"agency", 500},
}

var defaultPacks = []struct {
	Name       string
	Credits    int64
	PriceCents int64
	Order      int
}{
	{"Booster 50", 50, 900, 1},
	{"Pro 200", 200, 2900, 2},
	{"Max 1000", 1000, 9900, 3},
}

// EnsureDefaults seeds the plan tier table and the credit pack
// catalog so a fresh install is usable without an admin pass.
// Existing rows are left untouched.
func EnsureDefaults(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	now := time.Now().UTC()

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, plan := range defaultPlans {
			var count int64
			if err := tx.Model(&tierdomain.PlanCredit{}).
				Where("plan = ?", plan.Plan).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			row := tierdomain.PlanCredit{
				ID:             node.Generate(),
				Plan:           plan.Plan,
				MonthlyCredits: plan.MonthlyCredits,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
				return err
			}
		}

		var packCount int64
		if err := tx.Model(&packdomain.CreditPack{}).Count(&packCount).Error; err != nil {
			return err
		}
		if packCount > 0 {
			return nil
		}
		for _, pack := range defaultPacks {
			row := packdomain.CreditPack{
				ID:           node.Generate(),
				Name:         pack.Name,
				Credits:      pack.Credits,
				PriceCents:   pack.PriceCents,
				Currency:     "usd",
				DisplayOrder: pack.Order,
				Active:       true,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
