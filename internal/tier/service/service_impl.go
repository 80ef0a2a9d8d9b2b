package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rankhive/creditd/internal/cache"
	tierdomain "github.com/rankhive/creditd/internal/tier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const planCacheTTL = 5 * time.Minute

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  tierdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  tierdomain.Repository
	cache cache.Cache[string, int64]
}

func New(p Params) tierdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("tier.service"),
		genID: p.GenID,
		repo:  p.Repo,
		cache: cache.NewTTLCache[string, int64](),
	}
}

func (s *Service) CreditsForPlan(ctx context.Context, plan string) (int64, error) {
	plan = strings.ToLower(strings.TrimSpace(plan))
	if plan == "" {
		return 0, nil
	}

	if credits, ok := s.cache.Get(plan); ok {
		return credits, nil
	}

	pc, err := s.repo.FindByPlan(ctx, s.db, plan)
	switch {
	case err == nil:
		s.cache.Set(plan, pc.MonthlyCredits, planCacheTTL)
		return pc.MonthlyCredits, nil
	case err == tierdomain.ErrNotFound:
		// unknown plans grant nothing; cache the zero to keep the
		// grant sweep off the database
		s.cache.Set(plan, 0, planCacheTTL)
		return 0, nil
	default:
		return 0, err
	}
}

func (s *Service) Upsert(ctx context.Context, plan string, monthlyCredits int64) (*tierdomain.PlanCredit, error) {
	plan = strings.ToLower(strings.TrimSpace(plan))
	if plan == "" {
		return nil, tierdomain.ErrInvalidPlan
	}
	if monthlyCredits < 0 {
		return nil, tierdomain.ErrInvalidCredits
	}

	now := time.Now().UTC()
	pc := &tierdomain.PlanCredit{
		ID:             s.genID.Generate(),
		Plan:           plan,
		MonthlyCredits: monthlyCredits,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Upsert(ctx, s.db, pc); err != nil {
		return nil, err
	}
	s.cache.Delete(plan)

	s.log.Info("plan credits upserted",
		zap.String("plan", plan),
		zap.Int64("monthly_credits", monthlyCredits),
	)
	return pc, nil
}

func (s *Service) List(ctx context.Context) ([]tierdomain.PlanCredit, error) {
	return s.repo.List(ctx, s.db)
}
