package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/rankhive/creditd/internal/clock"
	ledgerdomain "github.com/rankhive/creditd/internal/ledger/domain"
	obsmetrics "github.com/rankhive/creditd/internal/observability/metrics"
	packdomain "github.com/rankhive/creditd/internal/pack/domain"
	"github.com/rankhive/creditd/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       packdomain.Repository
	Ledger     ledgerdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       packdomain.Repository
	ledger     ledgerdomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) packdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("pack.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		ledger:     p.Ledger,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) List(ctx context.Context) ([]packdomain.CreditPack, error) {
	return s.repo.ListActive(ctx, s.db)
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*packdomain.CreditPack, error) {
	if id == 0 {
		return nil, packdomain.ErrInvalidID
	}
	return s.repo.FindByID(ctx, s.db, id)
}

func (s *Service) Create(ctx context.Context, req packdomain.CreatePackRequest) (*packdomain.CreditPack, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, packdomain.ErrInvalidName
	}
	if req.Credits <= 0 {
		return nil, packdomain.ErrInvalidCredits
	}
	if req.PriceCents <= 0 {
		return nil, packdomain.ErrInvalidPrice
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "usd"
	}

	now := s.clock.Now()
	pack := &packdomain.CreditPack{
		ID:                       s.genID.Generate(),
		Name:                     req.Name,
		Credits:                  req.Credits,
		PriceCents:               req.PriceCents,
		Currency:                 currency,
		ExternalPriceIDOneTime:   req.ExternalPriceIDOneTime,
		ExternalPriceIDRecurring: req.ExternalPriceIDRecurring,
		DisplayOrder:             req.DisplayOrder,
		Active:                   true,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	if err := s.repo.Insert(ctx, s.db, pack); err != nil {
		return nil, err
	}

	s.log.Info("credit pack created",
		zap.String("pack_id", pack.ID.String()),
		zap.String("name", pack.Name),
		zap.Int64("credits", pack.Credits),
	)
	return pack, nil
}

func (s *Service) Update(ctx context.Context, req packdomain.UpdatePackRequest) (*packdomain.CreditPack, error) {
	id, err := packdomain.ParseID(strings.TrimSpace(req.ID))
	if err != nil {
		return nil, packdomain.ErrInvalidID
	}

	pack, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, packdomain.ErrInvalidName
		}
		pack.Name = name
	}
	if req.Credits != nil {
		if *req.Credits <= 0 {
			return nil, packdomain.ErrInvalidCredits
		}
		pack.Credits = *req.Credits
	}
	if req.PriceCents != nil {
		if *req.PriceCents <= 0 {
			return nil, packdomain.ErrInvalidPrice
		}
		pack.PriceCents = *req.PriceCents
	}
	if req.DisplayOrder != nil {
		pack.DisplayOrder = *req.DisplayOrder
	}
	if req.Active != nil {
		pack.Active = *req.Active
	}
	pack.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, pack); err != nil {
		return nil, err
	}
	return pack, nil
}

func (s *Service) ApplyPurchase(ctx context.Context, accountID, packID snowflake.ID, gatewayTxnID string) (*packdomain.PurchaseResult, error) {
	if accountID == 0 {
		return nil, ledgerdomain.ErrInvalidAccount
	}
	if packID == 0 {
		return nil, packdomain.ErrInvalidID
	}
	// The gateway's own transaction id is the idempotency key, so a
	// redelivered webhook can never credit twice.
	gatewayTxnID = strings.TrimSpace(gatewayTxnID)
	if gatewayTxnID == "" {
		return nil, ledgerdomain.ErrInvalidIdempotencyKey
	}

	pack, err := s.repo.FindByID(ctx, s.db, packID)
	if err != nil {
		return nil, err
	}

	var result *packdomain.PurchaseResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		if err := s.ledger.EnsureBalance(ctx, tx, accountID, now); err != nil {
			return err
		}

		prior, err := s.ledger.FindEntriesByKey(ctx, tx, accountID, gatewayTxnID)
		if err != nil {
			return err
		}
		if len(prior) > 0 {
			result = s.replayResult(accountID, pack, prior)
			return nil
		}

		balance, err := s.ledger.FindBalanceForUpdate(ctx, tx, accountID)
		if err != nil {
			return err
		}

		entry := &ledgerdomain.LedgerEntry{
			ID:             s.genID.Generate(),
			AccountID:      accountID,
			Type:           ledgerdomain.EntryTypePurchase,
			Pool:           ledgerdomain.PoolPurchased,
			Amount:         pack.Credits,
			Feature:        "credit-pack",
			IdempotencyKey: gatewayTxnID,
			CreatedAt:      now,
		}
		if err := s.ledger.AppendEntry(ctx, tx, entry); err != nil {
			return err
		}

		balance.PurchasedCredits += pack.Credits
		if err := s.ledger.UpdateBalance(ctx, tx, balance, now); err != nil {
			return err
		}

		result = &packdomain.PurchaseResult{
			AccountID:        accountID,
			PackID:           pack.ID,
			Credits:          pack.Credits,
			PurchasedBalance: balance.PurchasedCredits,
		}
		return nil
	})

	if db.IsDuplicateKeyErr(err) {
		// Concurrent delivery of the same webhook; the other copy won.
		prior, ferr := s.ledger.FindEntriesByKey(ctx, s.db, accountID, gatewayTxnID)
		if ferr != nil {
			return nil, ferr
		}
		return s.replayResult(accountID, pack, prior), nil
	}
	if err != nil {
		return nil, err
	}

	if !result.Replayed {
		s.obsMetrics.IncPurchase(ctx, pack.Name)
		s.log.Info("credit pack purchase applied",
			zap.String("account_id", accountID.String()),
			zap.String("pack_id", pack.ID.String()),
			zap.Int64("credits", pack.Credits),
			zap.String("gateway_txn_id", gatewayTxnID),
		)
	}
	return result, nil
}

func (s *Service) replayResult(accountID snowflake.ID, pack *packdomain.CreditPack, entries []ledgerdomain.LedgerEntry) *packdomain.PurchaseResult {
	result := &packdomain.PurchaseResult{
		AccountID: accountID,
		PackID:    pack.ID,
		Replayed:  true,
	}
	for _, row := range entries {
		result.Credits += row.Amount
	}
	return result
}
