package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// AccountSubscription mirrors the account system's view of an
// account's current plan. Rows arrive through the internal sync
// endpoint as the subscription lifecycle reports changes (the payment
// gateway owns upgrades and cancellations). A plan change requires
// no synchronous ledger action; the next grant cycle picks it up.
type AccountSubscription struct {
	AccountID       snowflake.ID `json:"account_id" gorm:"primaryKey;column:account_id"`
	Plan            string       `json:"plan" gorm:"type:text;not null"`
	BillingAnchorAt *time.Time   `json:"billing_anchor_at"`
	UpdatedAt       time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AccountSubscription) TableName() string { return "account_subscriptions" }

// Reader is the Grant Policy's view of the account/subscription system.
type Reader interface {
	// Find returns the subscription for accountID, or a zero-plan
	// subscription when the account has none (free tier).
	Find(ctx context.Context, accountID snowflake.ID) (AccountSubscription, error)

	// ListAccounts pages subscriptions by ascending account id for
	// the daily grant sweep.
	ListAccounts(ctx context.Context, afterAccountID snowflake.ID, limit int) ([]AccountSubscription, error)

	// Upsert records the plan synced from the account system.
	Upsert(ctx context.Context, sub AccountSubscription) error
}
