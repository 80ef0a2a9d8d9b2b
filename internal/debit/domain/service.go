package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// DebitRequest charges an account for one metered operation.
type DebitRequest struct {
	AccountID      snowflake.ID
	Amount         int64
	Feature        string
	IdempotencyKey string
}

// Result describes the pools a logical debit (or refund) touched.
// Replayed is set when the idempotency key matched a prior operation
// and nothing was charged again.
type Result struct {
	AccountID          snowflake.ID   `json:"account_id"`
	Feature            string         `json:"feature"`
	Amount             int64          `json:"amount"`
	FromIncluded       int64          `json:"from_included"`
	FromPurchased      int64          `json:"from_purchased"`
	IncludedRemaining  int64          `json:"included_remaining"`
	PurchasedRemaining int64          `json:"purchased_remaining"`
	EntryIDs           []snowflake.ID `json:"entry_ids"`
	Replayed           bool           `json:"replayed"`
}

type Service interface {
	// Debit atomically checks sufficiency and deducts Amount,
	// consuming included credits before purchased ones. It returns
	// *ledgerdomain.InsufficientCreditsError (wrapped) when the
	// spendable balance cannot cover the amount; no partial debit
	// ever occurs.
	Debit(ctx context.Context, req DebitRequest) (*Result, error)

	// Refund reverses the logical debit that produced entryID,
	// restoring every pool it consumed. Idempotent per debit.
	Refund(ctx context.Context, entryID snowflake.ID) (*Result, error)
}
