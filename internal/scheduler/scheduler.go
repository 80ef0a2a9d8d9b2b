package scheduler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	balancedomain "github.com/rankhive/creditd/internal/balance/domain"
	"github.com/rankhive/creditd/internal/clock"
	grantdomain "github.com/rankhive/creditd/internal/grant/domain"
	ledgerdomain "github.com/rankhive/creditd/internal/ledger/domain"
	obsmetrics "github.com/rankhive/creditd/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Repo       ledgerdomain.Repository
	GrantSvc   grantdomain.Service
	BalanceSvc balancedomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
	Config     Config              `optional:"true"`
}

type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	clock      clock.Clock
	repo       ledgerdomain.Repository
	grantSvc   grantdomain.Service
	balanceSvc balancedomain.Service
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Repo == nil || p.GrantSvc == nil || p.BalanceSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:         p.DB,
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		clock:      p.Clock,
		repo:       p.Repo,
		grantSvc:   p.GrantSvc,
		balanceSvc: p.BalanceSvc,
		obsMetrics: p.ObsMetrics,
	}, nil
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	if s.isJobEnabled("monthly_grants") {
		err = errors.Join(err, s.runJob(parent, "monthly_grants", s.MonthlyGrantsJob))
	}
	if s.isJobEnabled("ledger_verify") {
		err = errors.Join(err, s.runJob(parent, "ledger_verify", s.LedgerVerifyJob))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	log := s.log.With(zap.String("job", name))
	err := fn(ctx)
	elapsed := time.Since(start)

	if err == nil {
		log.Debug("job finished", zap.Duration("elapsed", elapsed))
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out",
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Duration("elapsed", elapsed),
		)
		return err
	}
	log.Warn("job failed", zap.Duration("elapsed", elapsed), zap.Error(err))
	return err
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// empty EnabledJobs enables everything (monolith mode)
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// MonthlyGrantsJob tops up included credits for every subscribed
// account that has not been granted in its current billing period.
func (s *Scheduler) MonthlyGrantsJob(ctx context.Context) error {
	stats, err := s.grantSvc.RunDue(ctx, s.cfg.BatchSize)
	s.log.Info("grant sweep finished",
		zap.Int("processed", stats.Processed),
		zap.Int("granted", stats.Granted),
	)
	return err
}

// LedgerVerifyJob recomputes every balance from its ledger entries,
// freezing diverged accounts, and reports included credits that sit
// expired but unspent (lazy expiration means no row mutation here,
// only observability).
func (s *Scheduler) LedgerVerifyJob(ctx context.Context) error {
	var jobErr error
	var cursor snowflake.ID
	now := s.clock.Now()

	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		balances, err := s.repo.ListBalances(ctx, s.db, cursor, s.cfg.BatchSize)
		if err != nil {
			return errors.Join(jobErr, err)
		}
		if len(balances) == 0 {
			return jobErr
		}

		for _, balance := range balances {
			cursor = balance.AccountID

			if err := s.balanceSvc.Verify(ctx, balance.AccountID); err != nil {
				if errors.Is(err, ledgerdomain.ErrLedgerInvariant) {
					s.log.Error("account frozen by verify sweep",
						zap.String("account_id", balance.AccountID.String()),
					)
				}
				jobErr = errors.Join(jobErr, err)
				continue
			}

			if balance.IncludedCredits > 0 && balance.SpendableIncluded(now) == 0 {
				s.log.Info("included credits expired unspent",
					zap.String("account_id", balance.AccountID.String()),
					zap.Int64("forfeited", balance.IncludedCredits),
					zap.Timep("expired_at", balance.IncludedExpiresAt),
				)
			}
		}
	}
}
