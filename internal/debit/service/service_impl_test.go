package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/rankhive/creditd/internal/clock"
	debitdomain "github.com/rankhive/creditd/internal/debit/domain"
	ledgerdomain "github.com/rankhive/creditd/internal/ledger/domain"
	ledgerrepo "github.com/rankhive/creditd/internal/ledger/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupDebitService(t *testing.T) (debitdomain.Service, ledgerdomain.Repository, *gorm.DB, *clock.FakeClock, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error

	require.NoError(t, db.AutoMigrate(
		&ledgerdomain.CreditBalance{},
		&ledgerdomain.LedgerEntry{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	repo := ledgerrepo.Provide()

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fakeClock,
		Repo:  repo,
	})
	return svc, repo, db, fakeClock, node
}

func seedBalance(t *testing.T, db *gorm.DB, accountID snowflake.ID, included, purchased int64, expiresAt *time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&ledgerdomain.CreditBalance{
		AccountID:         accountID,
		IncludedCredits:   included,
		IncludedExpiresAt: expiresAt,
		PurchasedCredits:  purchased,
		CreatedAt:         now,
		UpdatedAt:         now,
	}).Error)
}

func TestDebitConsumesIncludedBeforePurchased(t *testing.T) {
	svc, repo, db, _, node := setupDebitService(t)
	accountID := node.Generate()
	expiry := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	seedBalance(t, db, accountID, 100, 50, &expiry)

	result, err := svc.Debit(context.Background(), debitdomain.DebitRequest{
		AccountID:      accountID,
		Amount:         120,
		Feature:        "rank-check",
		IdempotencyKey: "op-1",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(120), result.Amount)
	assert.Equal(t, int64(100), result.FromIncluded)
	assert.Equal(t, int64(20), result.FromPurchased)
	assert.Equal(t, int64(0), result.IncludedRemaining)
	assert.Equal(t, int64(30), result.PurchasedRemaining)
	assert.Len(t, result.EntryIDs, 2)
	assert.False(t, result.Replayed)

	sums, err := repo.SumEntries(context.Background(), db, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(-100), sums.Included)
	assert.Equal(t, int64(-20), sums.Purchased)
}

func TestDebitSinglePoolWritesOneEntry(t *testing.T) {
	svc, repo, db, _, node := setupDebitService(t)
	accountID := node.Generate()
	expiry := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	seedBalance(t, db, accountID, 100, 50, &expiry)

	result, err := svc.Debit(context.Background(), debitdomain.DebitRequest{
		AccountID:      accountID,
		Amount:         40,
		Feature:        "backlink-lookup",
		IdempotencyKey: "op-1",
	})
	require.NoError(t, err)
	assert.Len(t, result.EntryIDs, 1)
	assert.Equal(t, int64(40), result.FromIncluded)
	assert.Equal(t, int64(0), result.FromPurchased)

	entries, err := repo.ListEntries(context.Background(), db, accountID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledgerdomain.EntryTypeDebit, entries[0].Type)
	assert.Equal(t, ledgerdomain.PoolIncluded, entries[0].Pool)
	assert.Equal(t, int64(-40), entries[0].Amount)
	assert.Equal(t, "backlink-lookup", entries[0].Feature)
}

func TestDebitExpiredIncludedIsNotSpendable(t *testing.T) {
	svc, _, db, fakeClock, node := setupDebitService(t)
	accountID := node.Generate()
	expiry := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedBalance(t, db, accountID, 100, 30, &expiry)

	fakeClock.Set(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))

	_, err := svc.Debit(context.Background(), debitdomain.DebitRequest{
		AccountID:      accountID,
		Amount:         40,
		Feature:        "rank-check",
		IdempotencyKey: "op-1",
	})
	require.Error(t, err)

	var insufficient *ledgerdomain.InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(30), insufficient.Available)
	assert.Equal(t, int64(10), insufficient.Shortfall())

	// Purchased credits are still spendable.
	result, err := svc.Debit(context.Background(), debitdomain.DebitRequest{
		AccountID:      accountID,
		Amount:         20,
		Feature:        "rank-check",
		IdempotencyKey: "op-2",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.FromIncluded)
	assert.Equal(t, int64(20), result.FromPurchased)
}

func TestDebitAtExactExpiryInstant(t *testing.T) {
	svc, _, db, fakeClock, node := setupDebitService(t)
	accountID := node.Generate()
	expiry := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	seedBalance(t, db, accountID, 100, 30, &expiry)

	// The expiry instant itself is past the period: now == expiry
	// already forfeits the included pool.
	fakeClock.Set(expiry)

	_, err := svc.Debit(context.Background(), debitdomain.DebitRequest{
		AccountID:      accountID,
		Amount:         40,
		Feature:        "rank-check",
		IdempotencyKey: "op-1",
	})
	var insufficient *ledgerdomain.InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(30), insufficient.Available)

	// One second earlier the included pool is still live.
	fakeClock.Set(expiry.Add(-time.Second))
	result, err := svc.Debit(context.Background(), debitdomain.DebitRequest{
		AccountID:      accountID,
		Amount:         40,
		Feature:        "rank-check",
		IdempotencyKey: "op-2",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(40), result.FromIncluded)
	assert.Equal(t, int64(0), result.FromPurchased)
	assert.Equal(t, int64(10), result.PurchasedRemaining)
}

func TestDebitInsufficientLeavesNoPartialState(t *testing.T) {
	svc, repo, db, _, node := setupDebitService(t)
	accountID := node.Generate()
	expiry := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	seedBalance(t, db, accountID, 10, 5, &expiry)

	_, err := svc.Debit(context.Background(), debitdomain.DebitRequest{
		AccountID:      accountID,
		Amount:         16,
		Feature:        "rank-check",
		IdempotencyKey: "op-1",
	})
	require.ErrorIs(t, err, ledgerdomain.ErrInsufficientCredits)

	entries, err := repo.ListEntries(context.Background(), db, accountID, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	balance, err := repo.FindBalance(context.Background(), db, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance.IncludedCredits)
	assert.Equal(t, int64(5), balance.PurchasedCredits)
}

func TestDebitIdempotentReplay(t *testing.T) {
	svc, _, db, _, node := setupDebitService(t)
	accountID := node.Generate()
	expiry := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	seedBalance(t, db, accountID, 100, 0, &expiry)

	req := debitdomain.DebitRequest{
		AccountID:      accountID,
		Amount:         25,
		Feature:        "difficulty-analysis",
		IdempotencyKey: "op-retry",
	}

	first, err := svc.Debit(context.Background(), req)
	require.NoError(t, err)
	require.False(t, first.Replayed)

	second, err := svc.Debit(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Amount, second.Amount)
	assert.Equal(t, first.EntryIDs, second.EntryIDs)
	assert.Equal(t, int64(75), second.IncludedRemaining)
}

func TestDebitConcurrentSameKeyChargesOnce(t *testing.T) {
	svc, repo, db, _, node := setupDebitService(t)
	accountID := node.Generate()
	expiry := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	seedBalance(t, db, accountID, 100, 0, &expiry)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]*debitdomain.Result, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Debit(context.Background(), debitdomain.DebitRequest{
				AccountID:      accountID,
				Amount:         30,
				Feature:        "rank-check",
				IdempotencyKey: "shared-key",
			})
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, int64(30), results[i].Amount)
	}

	balance, err := repo.FindBalance(context.Background(), db, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(70), balance.IncludedCredits)

	entries, err := repo.ListEntries(context.Background(), db, accountID, 50)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDebitConcurrentDistinctKeysNeverOverspend(t *testing.T) {
	svc, repo, db, _, node := setupDebitService(t)
	accountID := node.Generate()
	expiry := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	seedBalance(t, db, accountID, 100, 0, &expiry)

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	applied, refused := 0, 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Debit(context.Background(), debitdomain.DebitRequest{
				AccountID:      accountID,
				Amount:         10,
				Feature:        "rank-check",
				IdempotencyKey: fmt.Sprintf("op-%d", i),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				applied++
			case errors.Is(err, ledgerdomain.ErrInsufficientCredits):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, applied)
	assert.Equal(t, 10, refused)

	balance, err := repo.FindBalance(context.Background(), db, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.IncludedCredits)

	sums, err := repo.SumEntries(context.Background(), db, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(-100), sums.Included)
}

func TestDebitFrozenAccountRefused(t *testing.T) {
	svc, _, db, _, node := setupDebitService(t)
	accountID := node.Generate()
	expiry := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	seedBalance(t, db, accountID, 100, 0, &expiry)
	require.NoError(t, db.Model(&ledgerdomain.CreditBalance{}).
		Where("account_id = ?", accountID).
		Update("frozen", true).Error)

	_, err := svc.Debit(context.Background(), debitdomain.DebitRequest{
		AccountID:      accountID,
		Amount:         10,
		Feature:        "rank-check",
		IdempotencyKey: "op-1",
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrAccountFrozen)
}

func TestDebitValidation(t *testing.T) {
	svc, _, _, _, node := setupDebitService(t)
	accountID := node.Generate()

	cases := []struct {
		name string
		req  debitdomain.DebitRequest
		want error
	}{
		{"zero account", debitdomain.DebitRequest{Amount: 1, Feature: "f", IdempotencyKey: "k"}, ledgerdomain.ErrInvalidAccount},
		{"zero amount", debitdomain.DebitRequest{AccountID: accountID, Feature: "f", IdempotencyKey: "k"}, ledgerdomain.ErrInvalidAmount},
		{"negative amount", debitdomain.DebitRequest{AccountID: accountID, Amount: -5, Feature: "f", IdempotencyKey: "k"}, ledgerdomain.ErrInvalidAmount},
		{"blank feature", debitdomain.DebitRequest{AccountID: accountID, Amount: 1, Feature: "  ", IdempotencyKey: "k"}, ledgerdomain.ErrInvalidFeature},
		{"blank key", debitdomain.DebitRequest{AccountID: accountID, Amount: 1, Feature: "f", IdempotencyKey: " "}, ledgerdomain.ErrInvalidIdempotencyKey},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Debit(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRefundRestoresBothPools(t *testing.T) {
	svc, repo, db, _, node := setupDebitService(t)
	accountID := node.Generate()
	expiry := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	seedBalance(t, db, accountID, 100, 50, &expiry)

	debited, err := svc.Debit(context.Background(), debitdomain.DebitRequest{
		AccountID:      accountID,
		Amount:         120,
		Feature:        "content-generation",
		IdempotencyKey: "op-1",
	})
	require.NoError(t, err)
	require.Len(t, debited.EntryIDs, 2)

	refunded, err := svc.Refund(context.Background(), debited.EntryIDs[0])
	require.NoError(t, err)
	assert.Equal(t, int64(120), refunded.Amount)
	assert.Equal(t, int64(100), refunded.FromIncluded)
	assert.Equal(t, int64(20), refunded.FromPurchased)
	assert.Equal(t, int64(100), refunded.IncludedRemaining)
	assert.Equal(t, int64(50), refunded.PurchasedRemaining)
	assert.False(t, refunded.Replayed)

	sums, err := repo.SumEntries(context.Background(), db, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sums.Included)
	assert.Equal(t, int64(0), sums.Purchased)
}

func TestRefundIsIdempotentAcrossEntryIDs(t *testing.T) {
	svc, repo, db, _, node := setupDebitService(t)
	accountID := node.Generate()
	expiry := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	seedBalance(t, db, accountID, 100, 50, &expiry)

	debited, err := svc.Debit(context.Background(), debitdomain.DebitRequest{
		AccountID:      accountID,
		Amount:         120,
		Feature:        "content-generation",
		IdempotencyKey: "op-1",
	})
	require.NoError(t, err)

	first, err := svc.Refund(context.Background(), debited.EntryIDs[0])
	require.NoError(t, err)
	require.False(t, first.Replayed)

	// Refunding again, even via the debit's other entry, replays.
	second, err := svc.Refund(context.Background(), debited.EntryIDs[1])
	require.NoError(t, err)
	assert.True(t, second.Replayed)

	balance, err := repo.FindBalance(context.Background(), db, accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance.IncludedCredits)
	assert.Equal(t, int64(50), balance.PurchasedCredits)
}

func TestRefundRejectsNonDebitEntry(t *testing.T) {
	svc, repo, db, fakeClock, node := setupDebitService(t)
	accountID := node.Generate()
	seedBalance(t, db, accountID, 0, 0, nil)

	entry := &ledgerdomain.LedgerEntry{
		ID:             node.Generate(),
		AccountID:      accountID,
		Type:           ledgerdomain.EntryTypeGrant,
		Pool:           ledgerdomain.PoolIncluded,
		Amount:         100,
		Feature:        "subscription",
		IdempotencyKey: "grant:2026-03-01T00:00:00Z",
		CreatedAt:      fakeClock.Now(),
	}
	require.NoError(t, repo.AppendEntry(context.Background(), db, entry))

	_, err := svc.Refund(context.Background(), entry.ID)
	assert.ErrorIs(t, err, ledgerdomain.ErrNotDebitEntry)
}

func TestRefundUnknownEntry(t *testing.T) {
	svc, _, _, _, node := setupDebitService(t)

	_, err := svc.Refund(context.Background(), node.Generate())
	assert.ErrorIs(t, err, ledgerdomain.ErrEntryNotFound)
}
