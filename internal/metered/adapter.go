package metered

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	balancedomain "github.com/rankhive/creditd/internal/balance/domain"
	debitdomain "github.com/rankhive/creditd/internal/debit/domain"
	ledgerdomain "github.com/rankhive/creditd/internal/ledger/domain"
	"go.uber.org/zap"
)

const (
	defaultMaxAttempts = 3
	retryBaseDelay     = 50 * time.Millisecond
)

// Op is the feature's paid operation. It runs only when the account
// can afford it (ChargeAfter) or has already been charged
// (ChargeBefore).
type Op func(ctx context.Context) error

// Adapter charges one feature's operations against the ledger. Each
// metered feature constructs its own adapter with its cost function
// and attribution tag; the ledger core stays feature-agnostic.
type Adapter struct {
	feature     string
	coster      Coster
	balances    balancedomain.Service
	debits      debitdomain.Service
	log         *zap.Logger
	maxAttempts int
}

func NewAdapter(feature string, coster Coster, balances balancedomain.Service, debits debitdomain.Service, log *zap.Logger) *Adapter {
	return &Adapter{
		feature:     feature,
		coster:      coster,
		balances:    balances,
		debits:      debits,
		log:         log.Named("metered." + feature),
		maxAttempts: defaultMaxAttempts,
	}
}

// Cost exposes the adapter's dry-run cost calculation.
func (a *Adapter) Cost(units int64) int64 { return a.coster.Cost(units) }

// ChargeAfter is the default policy: pre-check affordability, run the
// operation, then debit. The account is never charged for a failed
// operation; the authoritative sufficiency check still happens inside
// the debit transaction, so a concurrent spender can only turn the
// final debit into an InsufficientCreditsError, never into overspend.
func (a *Adapter) ChargeAfter(ctx context.Context, accountID snowflake.ID, idempotencyKey string, units int64, op Op) (*debitdomain.Result, error) {
	cost := a.coster.Cost(units)
	if cost <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}

	if err := a.balances.EnsureBalanceExists(ctx, accountID); err != nil {
		return nil, err
	}
	balance, err := a.balances.GetBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if balance.TotalCredits < cost {
		return nil, &ledgerdomain.InsufficientCreditsError{
			AccountID: accountID,
			Requested: cost,
			Available: balance.TotalCredits,
		}
	}

	if err := op(ctx); err != nil {
		return nil, err
	}

	return a.debit(ctx, accountID, cost, idempotencyKey)
}

// ChargeBefore debits first and refunds if the operation fails.
// Features whose operations have external side effects that cannot be
// attempted unpaid use this policy.
func (a *Adapter) ChargeBefore(ctx context.Context, accountID snowflake.ID, idempotencyKey string, units int64, op Op) (*debitdomain.Result, error) {
	cost := a.coster.Cost(units)
	if cost <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}

	if err := a.balances.EnsureBalanceExists(ctx, accountID); err != nil {
		return nil, err
	}

	result, err := a.debit(ctx, accountID, cost, idempotencyKey)
	if err != nil {
		return nil, err
	}

	if opErr := op(ctx); opErr != nil {
		if len(result.EntryIDs) > 0 {
			if _, refundErr := a.debits.Refund(ctx, result.EntryIDs[0]); refundErr != nil {
				a.log.Error("refund after failed operation did not apply",
					zap.String("account_id", accountID.String()),
					zap.Error(refundErr),
				)
				return nil, errors.Join(opErr, refundErr)
			}
		}
		return nil, opErr
	}
	return result, nil
}

// debit retries transient storage failures with the same idempotency
// key; the key makes the retry safe even when the first attempt's
// outcome is unknown.
func (a *Adapter) debit(ctx context.Context, accountID snowflake.ID, cost int64, idempotencyKey string) (*debitdomain.Result, error) {
	req := debitdomain.DebitRequest{
		AccountID:      accountID,
		Amount:         cost,
		Feature:        a.feature,
		IdempotencyKey: idempotencyKey,
	}

	var lastErr error
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		result, err := a.debits.Debit(ctx, req)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ledgerdomain.ErrStorage) {
			return nil, err
		}
		lastErr = err
		a.log.Warn("debit attempt failed",
			zap.String("account_id", accountID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil, errors.Join(lastErr, ctx.Err())
		case <-time.After(retryBaseDelay * time.Duration(attempt)):
		}
	}
	return nil, lastErr
}
