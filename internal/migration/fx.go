package migration

import (
	"github.com/rankhive/creditd/internal/config"
	ledgerdomain "github.com/rankhive/creditd/internal/ledger/domain"
	packdomain "github.com/rankhive/creditd/internal/pack/domain"
	"github.com/rankhive/creditd/internal/seed"
	subscriptiondomain "github.com/rankhive/creditd/internal/subscription/domain"
	tierdomain "github.com/rankhive/creditd/internal/tier/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// mysql and sqlite (local/dev) rely on gorm's schema sync
			if err := conn.AutoMigrate(
				&ledgerdomain.CreditBalance{},
				&ledgerdomain.LedgerEntry{},
				&packdomain.CreditPack{},
				&tierdomain.PlanCredit{},
				&subscriptiondomain.AccountSubscription{},
			); err != nil {
				return err
			}
		}

		if cfg.SeedDefaults {
			return seed.EnsureDefaults(conn)
		}
		return nil
	}),
)
