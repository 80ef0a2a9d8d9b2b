package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	balancedomain "github.com/rankhive/creditd/internal/balance/domain"
	"github.com/rankhive/creditd/internal/config"
	debitdomain "github.com/rankhive/creditd/internal/debit/domain"
	grantdomain "github.com/rankhive/creditd/internal/grant/domain"
	packdomain "github.com/rankhive/creditd/internal/pack/domain"
	subscriptiondomain "github.com/rankhive/creditd/internal/subscription/domain"
	tierdomain "github.com/rankhive/creditd/internal/tier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Server struct {
	log           *zap.Logger
	balanceSvc    balancedomain.Service
	debitSvc      debitdomain.Service
	grantSvc      grantdomain.Service
	packSvc       packdomain.Service
	tierSvc       tierdomain.Service
	subscriptions subscriptiondomain.Reader
}

type Params struct {
	fx.In

	Log           *zap.Logger
	BalanceSvc    balancedomain.Service
	DebitSvc      debitdomain.Service
	GrantSvc      grantdomain.Service
	PackSvc       packdomain.Service
	TierSvc       tierdomain.Service
	Subscriptions subscriptiondomain.Reader
}

func NewServer(p Params) *Server {
	return &Server{
		log:           p.Log.Named("server"),
		balanceSvc:    p.BalanceSvc,
		debitSvc:      p.DebitSvc,
		grantSvc:      p.GrantSvc,
		packSvc:       p.PackSvc,
		tierSvc:       p.TierSvc,
		subscriptions: p.Subscriptions,
	}
}

func NewEngine(cfg config.Config) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/v1")
	{
		v1.GET("/accounts/:account_id/credits", s.GetCreditSummary)
		v1.GET("/accounts/:account_id/credits/entries", s.ListCreditEntries)
		v1.GET("/credit-packs", s.ListCreditPacks)
	}

	// The internal surface trusts its callers (webhook handlers and
	// operator tooling behind the platform's own auth layer).
	internal := r.Group("/internal/v1")
	{
		internal.POST("/debits", s.ApplyDebit)
		internal.POST("/debits/:entry_id/refund", s.RefundDebit)
		internal.POST("/purchases", s.ApplyPurchase)
		internal.POST("/grants/run", s.RunGrant)
		internal.POST("/credit-packs", s.CreateCreditPack)
		internal.PATCH("/credit-packs/:id", s.UpdateCreditPack)
		internal.PUT("/plan-credits", s.UpsertPlanCredits)
		internal.PUT("/subscriptions", s.SyncSubscription)
		internal.POST("/accounts/:account_id/unfreeze", s.UnfreezeAccount)
	}
}

func registerRoutes(r *gin.Engine, s *Server) {
	s.RegisterRoutes(r)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

// Module wires the gin engine, handlers and http lifecycle.
var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)
