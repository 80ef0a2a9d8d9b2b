package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/rankhive/creditd/internal/clock"
	debitdomain "github.com/rankhive/creditd/internal/debit/domain"
	ledgerdomain "github.com/rankhive/creditd/internal/ledger/domain"
	obsmetrics "github.com/rankhive/creditd/internal/observability/metrics"
	"github.com/rankhive/creditd/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const refundKeyPrefix = "refund:"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       ledgerdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       ledgerdomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) debitdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("debit.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Debit(ctx context.Context, req debitdomain.DebitRequest) (*debitdomain.Result, error) {
	if req.AccountID == 0 {
		return nil, ledgerdomain.ErrInvalidAccount
	}
	if req.Amount <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	req.Feature = strings.TrimSpace(req.Feature)
	if req.Feature == "" {
		return nil, ledgerdomain.ErrInvalidFeature
	}
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if req.IdempotencyKey == "" {
		return nil, ledgerdomain.ErrInvalidIdempotencyKey
	}

	var result *debitdomain.Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Idempotent replay: the prior entries are immutable, so this
		// read needs no lock. A concurrent first attempt is caught
		// below by the unique-key violation instead.
		prior, err := s.repo.FindEntriesByKey(ctx, tx, req.AccountID, req.IdempotencyKey)
		if err != nil {
			return err
		}
		if len(prior) > 0 {
			result, err = s.replayResult(ctx, tx, req.AccountID, prior)
			return err
		}

		// Balance must be re-read under the row lock; a value cached
		// from before the transaction could allow overspending.
		balance, err := s.repo.FindBalanceForUpdate(ctx, tx, req.AccountID)
		if err != nil {
			return err
		}
		if balance.Frozen {
			return ledgerdomain.ErrAccountFrozen
		}

		now := s.clock.Now()
		includedSpendable := balance.SpendableIncluded(now)
		available := includedSpendable + balance.PurchasedCredits
		if available < req.Amount {
			return &ledgerdomain.InsufficientCreditsError{
				AccountID: req.AccountID,
				Requested: req.Amount,
				Available: available,
			}
		}

		// Included credits expire, purchased ones do not: spend the
		// perishable pool first.
		fromIncluded := min(includedSpendable, req.Amount)
		fromPurchased := req.Amount - fromIncluded

		result = &debitdomain.Result{
			AccountID:     req.AccountID,
			Feature:       req.Feature,
			Amount:        req.Amount,
			FromIncluded:  fromIncluded,
			FromPurchased: fromPurchased,
		}

		if fromIncluded > 0 {
			entry := &ledgerdomain.LedgerEntry{
				ID:             s.genID.Generate(),
				AccountID:      req.AccountID,
				Type:           ledgerdomain.EntryTypeDebit,
				Pool:           ledgerdomain.PoolIncluded,
				Amount:         -fromIncluded,
				Feature:        req.Feature,
				IdempotencyKey: req.IdempotencyKey,
				CreatedAt:      now,
			}
			if err := s.repo.AppendEntry(ctx, tx, entry); err != nil {
				return err
			}
			balance.IncludedCredits -= fromIncluded
			result.EntryIDs = append(result.EntryIDs, entry.ID)
		}
		if fromPurchased > 0 {
			entry := &ledgerdomain.LedgerEntry{
				ID:             s.genID.Generate(),
				AccountID:      req.AccountID,
				Type:           ledgerdomain.EntryTypeDebit,
				Pool:           ledgerdomain.PoolPurchased,
				Amount:         -fromPurchased,
				Feature:        req.Feature,
				IdempotencyKey: req.IdempotencyKey,
				CreatedAt:      now,
			}
			if err := s.repo.AppendEntry(ctx, tx, entry); err != nil {
				return err
			}
			balance.PurchasedCredits -= fromPurchased
			result.EntryIDs = append(result.EntryIDs, entry.ID)
		}

		if err := s.repo.UpdateBalance(ctx, tx, balance, now); err != nil {
			return err
		}

		result.IncludedRemaining = balance.IncludedCredits
		result.PurchasedRemaining = balance.PurchasedCredits
		return nil
	})

	if db.IsDuplicateKeyErr(err) {
		// Lost a race against a concurrent request carrying the same
		// key; the transaction rolled back without debiting. Surface
		// the winner's outcome.
		return s.replayFromStore(ctx, req.AccountID, req.IdempotencyKey)
	}
	if err != nil {
		if errors.Is(err, ledgerdomain.ErrInsufficientCredits) {
			s.obsMetrics.IncInsufficient(ctx, req.Feature)
		}
		return nil, err
	}

	if !result.Replayed {
		s.obsMetrics.IncDebit(ctx, req.Feature, req.Amount)
		s.log.Debug("debit applied",
			zap.String("account_id", req.AccountID.String()),
			zap.String("feature", req.Feature),
			zap.Int64("amount", req.Amount),
			zap.Int64("from_included", result.FromIncluded),
			zap.Int64("from_purchased", result.FromPurchased),
		)
	}
	return result, nil
}

func (s *Service) Refund(ctx context.Context, entryID snowflake.ID) (*debitdomain.Result, error) {
	if entryID == 0 {
		return nil, ledgerdomain.ErrEntryNotFound
	}

	var result *debitdomain.Result
	var refundKey string
	var accountID snowflake.ID

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		target, err := s.repo.FindEntryByID(ctx, tx, entryID)
		if err != nil {
			return err
		}
		if target.Type != ledgerdomain.EntryTypeDebit {
			return ledgerdomain.ErrNotDebitEntry
		}
		accountID = target.AccountID
		refundKey = refundKeyPrefix + target.IdempotencyKey

		prior, err := s.repo.FindEntriesByKey(ctx, tx, target.AccountID, refundKey)
		if err != nil {
			return err
		}
		if len(prior) > 0 {
			result, err = s.replayResult(ctx, tx, target.AccountID, prior)
			return err
		}

		balance, err := s.repo.FindBalanceForUpdate(ctx, tx, target.AccountID)
		if err != nil {
			return err
		}

		// Reverse every row of the logical debit, not just the one
		// the caller pointed at: a debit that spanned both pools must
		// be refunded to both.
		debited, err := s.repo.FindEntriesByKey(ctx, tx, target.AccountID, target.IdempotencyKey)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		result = &debitdomain.Result{
			AccountID: target.AccountID,
			Feature:   target.Feature,
		}
		for _, row := range debited {
			if row.Type != ledgerdomain.EntryTypeDebit {
				continue
			}
			restored := -row.Amount
			entry := &ledgerdomain.LedgerEntry{
				ID:             s.genID.Generate(),
				AccountID:      row.AccountID,
				Type:           ledgerdomain.EntryTypeRefund,
				Pool:           row.Pool,
				Amount:         restored,
				Feature:        row.Feature,
				IdempotencyKey: refundKey,
				CreatedAt:      now,
			}
			if err := s.repo.AppendEntry(ctx, tx, entry); err != nil {
				return err
			}
			switch row.Pool {
			case ledgerdomain.PoolIncluded:
				balance.IncludedCredits += restored
				result.FromIncluded += restored
			case ledgerdomain.PoolPurchased:
				balance.PurchasedCredits += restored
				result.FromPurchased += restored
			}
			result.Amount += restored
			result.EntryIDs = append(result.EntryIDs, entry.ID)
		}

		if err := s.repo.UpdateBalance(ctx, tx, balance, now); err != nil {
			return err
		}
		result.IncludedRemaining = balance.IncludedCredits
		result.PurchasedRemaining = balance.PurchasedCredits
		return nil
	})

	if db.IsDuplicateKeyErr(err) {
		return s.replayFromStore(ctx, accountID, refundKey)
	}
	if err != nil {
		return nil, err
	}

	if !result.Replayed {
		s.obsMetrics.IncRefund(ctx, result.Feature)
		s.log.Info("debit refunded",
			zap.String("account_id", result.AccountID.String()),
			zap.String("feature", result.Feature),
			zap.Int64("amount", result.Amount),
		)
	}
	return result, nil
}

// replayResult rebuilds the outcome of a previously committed
// operation from its ledger rows.
func (s *Service) replayResult(ctx context.Context, tx *gorm.DB, accountID snowflake.ID, entries []ledgerdomain.LedgerEntry) (*debitdomain.Result, error) {
	result := &debitdomain.Result{
		AccountID: accountID,
		Replayed:  true,
	}
	for _, row := range entries {
		magnitude := row.Amount
		if magnitude < 0 {
			magnitude = -magnitude
		}
		switch row.Pool {
		case ledgerdomain.PoolIncluded:
			result.FromIncluded += magnitude
		case ledgerdomain.PoolPurchased:
			result.FromPurchased += magnitude
		}
		result.Amount += magnitude
		result.Feature = row.Feature
		result.EntryIDs = append(result.EntryIDs, row.ID)
	}

	balance, err := s.repo.FindBalance(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	result.IncludedRemaining = balance.IncludedCredits
	result.PurchasedRemaining = balance.PurchasedCredits
	return result, nil
}

func (s *Service) replayFromStore(ctx context.Context, accountID snowflake.ID, key string) (*debitdomain.Result, error) {
	entries, err := s.repo.FindEntriesByKey(ctx, s.db, accountID, key)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ledgerdomain.WrapStorage("replay", gorm.ErrRecordNotFound)
	}
	return s.replayResult(ctx, s.db, accountID, entries)
}
