package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/rankhive/creditd/internal/ledger/domain"
)

// Balance is the spendable view of an account's credits. Included
// credits are already zeroed here when past their expiry.
type Balance struct {
	AccountID         snowflake.ID `json:"account_id"`
	IncludedCredits   int64        `json:"included_credits"`
	PurchasedCredits  int64        `json:"purchased_credits"`
	TotalCredits      int64        `json:"total_credits"`
	IncludedExpiresAt *time.Time   `json:"included_credits_expire_at"`
	LastGrantAt       *time.Time   `json:"last_monthly_grant_at"`
	Frozen            bool         `json:"frozen"`
}

type Service interface {
	// EnsureBalanceExists lazily creates the account's balance record.
	// Safe to call on every request.
	EnsureBalanceExists(ctx context.Context, accountID snowflake.ID) error

	// GetBalance returns the spendable balance. Callers must have
	// ensured the record exists; a missing record is reported as
	// ledgerdomain.ErrBalanceNotFound and is an invariant violation
	// at that point, not a user error.
	GetBalance(ctx context.Context, accountID snowflake.ID) (*Balance, error)

	// GetTierCredits returns the monthly included credits for a plan
	// name. Unknown and free plans return 0.
	GetTierCredits(ctx context.Context, plan string) (int64, error)

	// Verify recomputes the balance from the ledger entries. On
	// divergence it freezes the account (halting further debits) and
	// returns ledgerdomain.ErrLedgerInvariant.
	Verify(ctx context.Context, accountID snowflake.ID) error

	// Unfreeze clears an operator-resolved invariant freeze.
	Unfreeze(ctx context.Context, accountID snowflake.ID) error

	// ListEntries returns the newest ledger entries for audit views.
	ListEntries(ctx context.Context, accountID snowflake.ID, limit int) ([]ledgerdomain.LedgerEntry, error)
}
