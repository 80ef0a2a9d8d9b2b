package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Result reports one grant attempt. Skipped is set when the account
// was already granted for the current period (or is frozen), which is
// the normal outcome for all but one run per period.
type Result struct {
	AccountID   snowflake.ID `json:"account_id"`
	Plan        string       `json:"plan"`
	Granted     int64        `json:"granted"`
	Forfeited   int64        `json:"forfeited"`
	PeriodStart time.Time    `json:"period_start"`
	PeriodEnd   time.Time    `json:"period_end"`
	Skipped     bool         `json:"skipped"`
}

// SweepStats summarizes one batch sweep over all subscribed accounts.
type SweepStats struct {
	Processed int
	Granted   int
}

type Service interface {
	// RunForAccount applies the current period's included-credit grant
	// if the account has not received it yet. Idempotent: safe to call
	// any number of times per period.
	RunForAccount(ctx context.Context, accountID snowflake.ID) (*Result, error)

	// RunDue sweeps every subscribed account in batches of batchSize.
	// One account's failure does not block the others; errors are
	// joined and the sweep continues.
	RunDue(ctx context.Context, batchSize int) (SweepStats, error)
}

// PeriodBounds derives the billing period containing now. Accounts
// carry their subscription's billing anchor; without one the period
// is the UTC calendar month.
func PeriodBounds(now time.Time, anchor *time.Time) (time.Time, time.Time) {
	now = now.UTC()
	if anchor == nil || anchor.IsZero() {
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	}

	a := anchor.UTC()
	months := (now.Year()-a.Year())*12 + int(now.Month()-a.Month())
	start := a.AddDate(0, months, 0)
	// AddDate normalizes day-29..31 anchors forward (Jan 31 + 1 month
	// lands on Mar 3 in a non-leap year), so a single decrement can
	// still leave start in the future. Walk back until now is covered.
	for start.After(now) {
		months--
		start = a.AddDate(0, months, 0)
	}
	return start, a.AddDate(0, months+1, 0)
}
