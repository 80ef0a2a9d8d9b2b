package metered

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	balancedomain "github.com/rankhive/creditd/internal/balance/domain"
	debitdomain "github.com/rankhive/creditd/internal/debit/domain"
	ledgerdomain "github.com/rankhive/creditd/internal/ledger/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type balanceStub struct {
	included  int64
	purchased int64
}

func (s *balanceStub) EnsureBalanceExists(ctx context.Context, accountID snowflake.ID) error {
	return nil
}

func (s *balanceStub) GetBalance(ctx context.Context, accountID snowflake.ID) (*balancedomain.Balance, error) {
	return &balancedomain.Balance{
		AccountID:        accountID,
		IncludedCredits:  s.included,
		PurchasedCredits: s.purchased,
		TotalCredits:     s.included + s.purchased,
	}, nil
}

func (s *balanceStub) GetTierCredits(ctx context.Context, plan string) (int64, error) {
	return 0, nil
}

func (s *balanceStub) Verify(ctx context.Context, accountID snowflake.ID) error   { return nil }
func (s *balanceStub) Unfreeze(ctx context.Context, accountID snowflake.ID) error { return nil }

func (s *balanceStub) ListEntries(ctx context.Context, accountID snowflake.ID, limit int) ([]ledgerdomain.LedgerEntry, error) {
	return nil, nil
}

type debitStub struct {
	debits       []debitdomain.DebitRequest
	refunds      []snowflake.ID
	failuresLeft int
	failWith     error
}

func (s *debitStub) Debit(ctx context.Context, req debitdomain.DebitRequest) (*debitdomain.Result, error) {
	if s.failuresLeft > 0 {
		s.failuresLeft--
		return nil, s.failWith
	}
	s.debits = append(s.debits, req)
	return &debitdomain.Result{
		AccountID: req.AccountID,
		Feature:   req.Feature,
		Amount:    req.Amount,
		EntryIDs:  []snowflake.ID{snowflake.ID(int64(len(s.debits)))},
	}, nil
}

func (s *debitStub) Refund(ctx context.Context, entryID snowflake.ID) (*debitdomain.Result, error) {
	s.refunds = append(s.refunds, entryID)
	return &debitdomain.Result{}, nil
}

func TestCosters(t *testing.T) {
	assert.Equal(t, int64(5), Flat(5).Cost(0))
	assert.Equal(t, int64(5), Flat(5).Cost(400))

	assert.Equal(t, int64(0), PerUnit(2).Cost(0))
	assert.Equal(t, int64(14), PerUnit(2).Cost(7))

	tiered := Tiered{
		{UpTo: 100, PerUnit: 2},
		{UpTo: 1000, PerUnit: 1},
		{UpTo: 0, PerUnit: 1},
	}
	assert.Equal(t, int64(0), tiered.Cost(0))
	assert.Equal(t, int64(100), tiered.Cost(50))
	assert.Equal(t, int64(200), tiered.Cost(100))
	assert.Equal(t, int64(101), tiered.Cost(101))
	assert.Equal(t, int64(5000), tiered.Cost(5000))
}

func TestChargeAfterRefusesBeforeRunningOp(t *testing.T) {
	balances := &balanceStub{included: 3}
	debits := &debitStub{}
	adapter := NewAdapter(FeatureRankCheck, PerUnit(1), balances, debits, zap.NewNop())

	opRan := false
	_, err := adapter.ChargeAfter(context.Background(), 42, "op-1", 10, func(ctx context.Context) error {
		opRan = true
		return nil
	})

	var insufficient *ledgerdomain.InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(7), insufficient.Shortfall())
	assert.False(t, opRan, "operation must not run when the account cannot afford it")
	assert.Empty(t, debits.debits)
}

func TestChargeAfterDebitsOnSuccess(t *testing.T) {
	balances := &balanceStub{included: 100}
	debits := &debitStub{}
	adapter := NewAdapter(FeatureRankCheck, PerUnit(1), balances, debits, zap.NewNop())

	result, err := adapter.ChargeAfter(context.Background(), 42, "op-1", 10, func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), result.Amount)

	require.Len(t, debits.debits, 1)
	assert.Equal(t, FeatureRankCheck, debits.debits[0].Feature)
	assert.Equal(t, "op-1", debits.debits[0].IdempotencyKey)
}

func TestChargeAfterFailedOpIsFree(t *testing.T) {
	balances := &balanceStub{included: 100}
	debits := &debitStub{}
	adapter := NewAdapter(FeatureBacklinkLookup, Flat(2), balances, debits, zap.NewNop())

	opErr := errors.New("upstream timeout")
	_, err := adapter.ChargeAfter(context.Background(), 42, "op-1", 1, func(ctx context.Context) error {
		return opErr
	})
	require.ErrorIs(t, err, opErr)
	assert.Empty(t, debits.debits)
}

func TestChargeBeforeRefundsFailedOp(t *testing.T) {
	balances := &balanceStub{included: 100}
	debits := &debitStub{}
	adapter := NewAdapter(FeatureContentGeneration, Flat(5), balances, debits, zap.NewNop())

	opErr := errors.New("generation failed")
	_, err := adapter.ChargeBefore(context.Background(), 42, "op-1", 1, func(ctx context.Context) error {
		return opErr
	})
	require.ErrorIs(t, err, opErr)
	require.Len(t, debits.debits, 1)
	require.Len(t, debits.refunds, 1)
}

func TestChargeRetriesTransientStorageFailures(t *testing.T) {
	balances := &balanceStub{included: 100}
	debits := &debitStub{
		failuresLeft: 1,
		failWith:     ledgerdomain.WrapStorage("append entry", errors.New("connection reset")),
	}
	adapter := NewAdapter(FeatureRankCheck, PerUnit(1), balances, debits, zap.NewNop())

	result, err := adapter.ChargeAfter(context.Background(), 42, "op-1", 10, func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), result.Amount)
	assert.Len(t, debits.debits, 1)
}

func TestChargeDoesNotRetryDomainErrors(t *testing.T) {
	balances := &balanceStub{included: 100}
	debits := &debitStub{
		failuresLeft: 3,
		failWith:     ledgerdomain.ErrAccountFrozen,
	}
	adapter := NewAdapter(FeatureRankCheck, PerUnit(1), balances, debits, zap.NewNop())

	_, err := adapter.ChargeAfter(context.Background(), 42, "op-1", 10, func(ctx context.Context) error {
		return nil
	})
	require.ErrorIs(t, err, ledgerdomain.ErrAccountFrozen)
	assert.Empty(t, debits.debits)
	assert.Equal(t, 2, debits.failuresLeft, "frozen account must fail fast, not retry")
}

func TestZeroCostIsRejected(t *testing.T) {
	adapter := NewAdapter(FeatureRankCheck, PerUnit(1), &balanceStub{}, &debitStub{}, zap.NewNop())

	_, err := adapter.ChargeAfter(context.Background(), 42, "op-1", 0, func(ctx context.Context) error {
		return nil
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidAmount)

	_, err = adapter.ChargeBefore(context.Background(), 42, "op-1", 0, func(ctx context.Context) error {
		return nil
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidAmount)
}
