package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// PoolSums is the per-pool total of committed ledger entries for one
// account. It must equal the balance row's raw pool fields at all
// times a reader observes them.
type PoolSums struct {
	Included  int64
	Purchased int64
}

// Repository is the ledger store contract. Callers own transaction
// scope: methods taking tx must run inside db.Transaction, and
// FindBalanceForUpdate serializes concurrent mutations per account.
type Repository interface {
	// EnsureBalance creates a zeroed balance row if absent. Idempotent.
	EnsureBalance(ctx context.Context, db *gorm.DB, accountID snowflake.ID, now time.Time) error

	FindBalance(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*CreditBalance, error)

	// FindBalanceForUpdate fetches the balance row with a row-level
	// lock (FOR UPDATE on postgres/mysql) so concurrent debits,
	// grants and purchases for the same account serialize.
	FindBalanceForUpdate(ctx context.Context, tx *gorm.DB, accountID snowflake.ID) (*CreditBalance, error)

	// UpdateBalance persists the pool fields, expiry, grant stamp and
	// frozen flag of a row previously fetched with FindBalanceForUpdate.
	UpdateBalance(ctx context.Context, tx *gorm.DB, balance *CreditBalance, now time.Time) error

	// AppendEntry inserts one immutable ledger row. A duplicate
	// (account_id, idempotency_key, pool) insert fails with an error
	// matched by pkg/db.IsDuplicateKeyErr.
	AppendEntry(ctx context.Context, tx *gorm.DB, entry *LedgerEntry) error

	FindEntryByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*LedgerEntry, error)
	FindEntriesByKey(ctx context.Context, db *gorm.DB, accountID snowflake.ID, key string) ([]LedgerEntry, error)
	ListEntries(ctx context.Context, db *gorm.DB, accountID snowflake.ID, limit int) ([]LedgerEntry, error)

	SumEntries(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (PoolSums, error)

	// ListBalances pages through balance rows by ascending account id,
	// for scheduler sweeps.
	ListBalances(ctx context.Context, db *gorm.DB, afterAccountID snowflake.ID, limit int) ([]CreditBalance, error)
}
