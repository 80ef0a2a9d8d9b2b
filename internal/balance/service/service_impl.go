package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	balancedomain "github.com/rankhive/creditd/internal/balance/domain"
	"github.com/rankhive/creditd/internal/clock"
	ledgerdomain "github.com/rankhive/creditd/internal/ledger/domain"
	obsmetrics "github.com/rankhive/creditd/internal/observability/metrics"
	tierdomain "github.com/rankhive/creditd/internal/tier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultEntryLimit = 100

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Repo       ledgerdomain.Repository
	TierSvc    tierdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	repo       ledgerdomain.Repository
	tierSvc    tierdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) balancedomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("balance.service"),
		clock:      p.Clock,
		repo:       p.Repo,
		tierSvc:    p.TierSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) EnsureBalanceExists(ctx context.Context, accountID snowflake.ID) error {
	if accountID == 0 {
		return ledgerdomain.ErrInvalidAccount
	}
	return s.repo.EnsureBalance(ctx, s.db, accountID, s.clock.Now())
}

func (s *Service) GetBalance(ctx context.Context, accountID snowflake.ID) (*balancedomain.Balance, error) {
	if accountID == 0 {
		return nil, ledgerdomain.ErrInvalidAccount
	}

	record, err := s.repo.FindBalance(ctx, s.db, accountID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	included := record.SpendableIncluded(now)
	return &balancedomain.Balance{
		AccountID:         record.AccountID,
		IncludedCredits:   included,
		PurchasedCredits:  record.PurchasedCredits,
		TotalCredits:      included + record.PurchasedCredits,
		IncludedExpiresAt: record.IncludedExpiresAt,
		LastGrantAt:       record.LastGrantAt,
		Frozen:            record.Frozen,
	}, nil
}

func (s *Service) GetTierCredits(ctx context.Context, plan string) (int64, error) {
	return s.tierSvc.CreditsForPlan(ctx, plan)
}

func (s *Service) Verify(ctx context.Context, accountID snowflake.ID) error {
	if accountID == 0 {
		return ledgerdomain.ErrInvalidAccount
	}

	var diverged bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.repo.FindBalanceForUpdate(ctx, tx, accountID)
		if err != nil {
			return err
		}

		sums, err := s.repo.SumEntries(ctx, tx, accountID)
		if err != nil {
			return err
		}

		if sums.Included == record.IncludedCredits && sums.Purchased == record.PurchasedCredits {
			return nil
		}

		diverged = true
		s.log.Error("ledger diverged from balance record",
			zap.String("account_id", accountID.String()),
			zap.Int64("balance_included", record.IncludedCredits),
			zap.Int64("ledger_included", sums.Included),
			zap.Int64("balance_purchased", record.PurchasedCredits),
			zap.Int64("ledger_purchased", sums.Purchased),
		)

		if record.Frozen {
			return nil
		}
		record.Frozen = true
		return s.repo.UpdateBalance(ctx, tx, record, s.clock.Now())
	})
	if err != nil {
		return err
	}
	if diverged {
		s.obsMetrics.IncFrozenAccount(ctx)
		return fmt.Errorf("account %s: %w", accountID, ledgerdomain.ErrLedgerInvariant)
	}
	return nil
}

func (s *Service) Unfreeze(ctx context.Context, accountID snowflake.ID) error {
	if accountID == 0 {
		return ledgerdomain.ErrInvalidAccount
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.repo.FindBalanceForUpdate(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if !record.Frozen {
			return nil
		}
		record.Frozen = false
		if err := s.repo.UpdateBalance(ctx, tx, record, s.clock.Now()); err != nil {
			return err
		}
		s.log.Warn("account unfrozen", zap.String("account_id", accountID.String()))
		return nil
	})
}

func (s *Service) ListEntries(ctx context.Context, accountID snowflake.ID, limit int) ([]ledgerdomain.LedgerEntry, error) {
	if accountID == 0 {
		return nil, ledgerdomain.ErrInvalidAccount
	}
	if limit <= 0 || limit > defaultEntryLimit {
		limit = defaultEntryLimit
	}
	return s.repo.ListEntries(ctx, s.db, accountID, limit)
}
