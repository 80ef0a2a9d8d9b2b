package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// EntryType classifies a ledger entry by the operation that produced it.
type EntryType string

const (
	EntryTypeGrant    EntryType = "grant"
	EntryTypePurchase EntryType = "purchase"
	EntryTypeDebit    EntryType = "debit"
	EntryTypeRefund   EntryType = "refund"
)

// CreditPool identifies which balance pool an entry affected.
type CreditPool string

const (
	PoolIncluded  CreditPool = "included"
	PoolPurchased CreditPool = "purchased"
)

// CreditBalance is the materialized per-account balance. The ledger
// entries are the source of truth; this row is a cache recomputable
// from them and is only mutated inside the same transaction that
// appends the corresponding entries.
type CreditBalance struct {
	AccountID         snowflake.ID `json:"account_id" gorm:"primaryKey;column:account_id"`
	IncludedCredits   int64        `json:"included_credits" gorm:"not null;default:0"`
	IncludedExpiresAt *time.Time   `json:"included_credits_expire_at" gorm:"column:included_expires_at"`
	PurchasedCredits  int64        `json:"purchased_credits" gorm:"not null;default:0"`
	LastGrantAt       *time.Time   `json:"last_monthly_grant_at" gorm:"column:last_grant_at"`
	Frozen            bool         `json:"frozen" gorm:"not null;default:false"`
	CreatedAt         time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CreditBalance) TableName() string { return "credit_balances" }

// SpendableIncluded returns the included credits still usable at now.
// Included credits past their expiry are forfeited lazily: the raw
// field keeps its value (so ledger sums stay exact) but spendability
// drops to zero until the next grant resets the pool.
func (b *CreditBalance) SpendableIncluded(now time.Time) int64 {
	if b.IncludedExpiresAt != nil && !now.Before(*b.IncludedExpiresAt) {
		return 0
	}
	return b.IncludedCredits
}

// Spendable returns the total credits usable at now.
func (b *CreditBalance) Spendable(now time.Time) int64 {
	return b.SpendableIncluded(now) + b.PurchasedCredits
}

// LedgerEntry is an immutable record of a balance-affecting event.
// Amount is signed: positive for credits added, negative for debits.
// A single logical operation may produce one row per pool it touched,
// all sharing the same idempotency key.
type LedgerEntry struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	AccountID      snowflake.ID `json:"account_id" gorm:"not null;index;uniqueIndex:ux_ledger_account_key_pool,priority:1"`
	Type           EntryType    `json:"type" gorm:"type:text;not null"`
	Pool           CreditPool   `json:"pool" gorm:"type:text;not null;uniqueIndex:ux_ledger_account_key_pool,priority:3"`
	Amount         int64        `json:"amount" gorm:"not null"`
	Feature        string       `json:"feature" gorm:"type:text;not null"`
	IdempotencyKey string       `json:"idempotency_key" gorm:"type:text;not null;uniqueIndex:ux_ledger_account_key_pool,priority:2"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }
