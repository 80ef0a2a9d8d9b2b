package domain

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidAccount        = errors.New("invalid_account")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrInvalidFeature        = errors.New("invalid_feature")
	ErrInvalidIdempotencyKey = errors.New("invalid_idempotency_key")
	ErrBalanceNotFound       = errors.New("balance_not_found")
	ErrEntryNotFound         = errors.New("ledger_entry_not_found")
	ErrNotDebitEntry         = errors.New("not_a_debit_entry")
	ErrAccountFrozen         = errors.New("account_frozen")
	ErrLedgerInvariant       = errors.New("ledger_invariant_violation")
	ErrInsufficientCredits   = errors.New("insufficient_credits")
	ErrStorage               = errors.New("storage_error")
)

// InsufficientCreditsError is returned when a debit exceeds the
// spendable balance. It wraps ErrInsufficientCredits so callers can
// match with errors.Is while still reading the shortfall.
type InsufficientCreditsError struct {
	AccountID snowflake.ID
	Requested int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits for account %s: requested %d, available %d",
		e.AccountID, e.Requested, e.Available)
}

func (e *InsufficientCreditsError) Unwrap() error { return ErrInsufficientCredits }

// Shortfall is how many credits the account is missing.
func (e *InsufficientCreditsError) Shortfall() int64 { return e.Requested - e.Available }

// WrapStorage tags a transient data-store failure so callers can
// decide to retry with the same idempotency key.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
