package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/rankhive/creditd/internal/clock"
	grantdomain "github.com/rankhive/creditd/internal/grant/domain"
	ledgerdomain "github.com/rankhive/creditd/internal/ledger/domain"
	obsmetrics "github.com/rankhive/creditd/internal/observability/metrics"
	subscriptiondomain "github.com/rankhive/creditd/internal/subscription/domain"
	tierdomain "github.com/rankhive/creditd/internal/tier/domain"
	"github.com/rankhive/creditd/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const grantKeyPrefix = "grant:"

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          ledgerdomain.Repository
	TierSvc       tierdomain.Service
	Subscriptions subscriptiondomain.Reader
	ObsMetrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          ledgerdomain.Repository
	tierSvc       tierdomain.Service
	subscriptions subscriptiondomain.Reader
	obsMetrics    *obsmetrics.Metrics
}

func New(p Params) grantdomain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("grant.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		tierSvc:       p.TierSvc,
		subscriptions: p.Subscriptions,
		obsMetrics:    p.ObsMetrics,
	}
}

func (s *Service) RunForAccount(ctx context.Context, accountID snowflake.ID) (*grantdomain.Result, error) {
	if accountID == 0 {
		return nil, ledgerdomain.ErrInvalidAccount
	}

	sub, err := s.subscriptions.Find(ctx, accountID)
	if err != nil {
		return nil, err
	}
	credits, err := s.tierSvc.CreditsForPlan(ctx, sub.Plan)
	if err != nil {
		return nil, err
	}

	var result *grantdomain.Result
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		if err := s.repo.EnsureBalance(ctx, tx, accountID, now); err != nil {
			return err
		}
		balance, err := s.repo.FindBalanceForUpdate(ctx, tx, accountID)
		if err != nil {
			return err
		}

		// Period bounds are computed inside the locked transaction so
		// a grant racing a debit at the boundary observes one
		// consistent state.
		now = s.clock.Now()
		periodStart, periodEnd := grantdomain.PeriodBounds(now, sub.BillingAnchorAt)

		result = &grantdomain.Result{
			AccountID:   accountID,
			Plan:        sub.Plan,
			PeriodStart: periodStart,
			PeriodEnd:   periodEnd,
		}

		if balance.Frozen {
			result.Skipped = true
			s.log.Warn("grant skipped for frozen account", zap.String("account_id", accountID.String()))
			return nil
		}
		if balance.LastGrantAt != nil && !balance.LastGrantAt.Before(periodStart) {
			result.Skipped = true
			return nil
		}

		// Included credits reset rather than accumulate, so the entry
		// records the net change to the pool: granted amount minus
		// whatever unused credits the reset forfeits. That keeps the
		// ledger sum equal to the balance fields at all times.
		forfeited := balance.IncludedCredits
		delta := credits - forfeited

		entry := &ledgerdomain.LedgerEntry{
			ID:             s.genID.Generate(),
			AccountID:      accountID,
			Type:           ledgerdomain.EntryTypeGrant,
			Pool:           ledgerdomain.PoolIncluded,
			Amount:         delta,
			Feature:        "subscription",
			IdempotencyKey: grantKeyPrefix + periodStart.Format("2006-01-02T15:04:05Z"),
			CreatedAt:      now,
		}
		if err := s.repo.AppendEntry(ctx, tx, entry); err != nil {
			return err
		}

		balance.IncludedCredits = credits
		balance.IncludedExpiresAt = &periodEnd
		balance.LastGrantAt = &now
		if err := s.repo.UpdateBalance(ctx, tx, balance, now); err != nil {
			return err
		}

		result.Granted = credits
		result.Forfeited = forfeited
		return nil
	})

	if db.IsDuplicateKeyErr(err) {
		// Another scheduler instance won this period's grant.
		result.Skipped = true
		result.Granted = 0
		result.Forfeited = 0
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	if !result.Skipped {
		s.obsMetrics.IncGrant(ctx, sub.Plan)
		if result.Forfeited > 0 {
			s.obsMetrics.AddForfeited(ctx, result.Forfeited)
		}
		s.log.Info("monthly credits granted",
			zap.String("account_id", accountID.String()),
			zap.String("plan", sub.Plan),
			zap.Int64("granted", result.Granted),
			zap.Int64("forfeited", result.Forfeited),
			zap.Time("period_start", result.PeriodStart),
		)
	}
	return result, nil
}

func (s *Service) RunDue(ctx context.Context, batchSize int) (grantdomain.SweepStats, error) {
	if batchSize <= 0 {
		batchSize = 100
	}

	var stats grantdomain.SweepStats
	var sweepErr error
	var cursor snowflake.ID

	for {
		if ctx.Err() != nil {
			return stats, errors.Join(sweepErr, ctx.Err())
		}

		subs, err := s.subscriptions.ListAccounts(ctx, cursor, batchSize)
		if err != nil {
			return stats, errors.Join(sweepErr, err)
		}
		if len(subs) == 0 {
			break
		}

		for _, sub := range subs {
			cursor = sub.AccountID
			result, err := s.RunForAccount(ctx, sub.AccountID)
			if err != nil {
				// One account's grant failure must not block the
				// rest; idempotency makes the next sweep retry safe.
				s.log.Warn("grant failed",
					zap.String("account_id", sub.AccountID.String()),
					zap.Error(err),
				)
				sweepErr = errors.Join(sweepErr, err)
				continue
			}
			stats.Processed++
			if !result.Skipped {
				stats.Granted++
			}
		}
	}

	return stats, sweepErr
}
