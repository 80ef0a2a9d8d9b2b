package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/rankhive/creditd/internal/ledger/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() ledgerdomain.Repository {
	return &repo{}
}

func (r *repo) EnsureBalance(ctx context.Context, db *gorm.DB, accountID snowflake.ID, now time.Time) error {
	balance := ledgerdomain.CreditBalance{
		AccountID: accountID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&balance).Error
	if err != nil {
		return ledgerdomain.WrapStorage("ensure balance", err)
	}
	return nil
}

func (r *repo) FindBalance(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*ledgerdomain.CreditBalance, error) {
	var balance ledgerdomain.CreditBalance
	err := db.WithContext(ctx).
		Where("account_id = ?", accountID).
		First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledgerdomain.ErrBalanceNotFound
	}
	if err != nil {
		return nil, ledgerdomain.WrapStorage("find balance", err)
	}
	return &balance, nil
}

func (r *repo) FindBalanceForUpdate(ctx context.Context, tx *gorm.DB, accountID snowflake.ID) (*ledgerdomain.CreditBalance, error) {
	q := tx.WithContext(ctx)
	// sqlite serializes writers at the database level and rejects
	// FOR UPDATE syntax.
	if tx.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var balance ledgerdomain.CreditBalance
	err := q.Where("account_id = ?", accountID).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledgerdomain.ErrBalanceNotFound
	}
	if err != nil {
		return nil, ledgerdomain.WrapStorage("lock balance", err)
	}
	return &balance, nil
}

func (r *repo) UpdateBalance(ctx context.Context, tx *gorm.DB, balance *ledgerdomain.CreditBalance, now time.Time) error {
	err := tx.WithContext(ctx).Exec(
		`UPDATE credit_balances
		 SET included_credits = ?, included_expires_at = ?, purchased_credits = ?,
		     last_grant_at = ?, frozen = ?, updated_at = ?
		 WHERE account_id = ?`,
		balance.IncludedCredits,
		balance.IncludedExpiresAt,
		balance.PurchasedCredits,
		balance.LastGrantAt,
		balance.Frozen,
		now,
		balance.AccountID,
	).Error
	if err != nil {
		return ledgerdomain.WrapStorage("update balance", err)
	}
	return nil
}

func (r *repo) AppendEntry(ctx context.Context, tx *gorm.DB, entry *ledgerdomain.LedgerEntry) error {
	// Deliberately no conflict clause: the unique index on
	// (account_id, idempotency_key, pool) is the idempotency
	// enforcement mechanism and the caller inspects the error.
	return tx.WithContext(ctx).Create(entry).Error
}

func (r *repo) FindEntryByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ledgerdomain.LedgerEntry, error) {
	var entry ledgerdomain.LedgerEntry
	err := db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledgerdomain.ErrEntryNotFound
	}
	if err != nil {
		return nil, ledgerdomain.WrapStorage("find entry", err)
	}
	return &entry, nil
}

func (r *repo) FindEntriesByKey(ctx context.Context, db *gorm.DB, accountID snowflake.ID, key string) ([]ledgerdomain.LedgerEntry, error) {
	var entries []ledgerdomain.LedgerEntry
	err := db.WithContext(ctx).
		Where("account_id = ? AND idempotency_key = ?", accountID, key).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, ledgerdomain.WrapStorage("find entries by key", err)
	}
	return entries, nil
}

func (r *repo) ListEntries(ctx context.Context, db *gorm.DB, accountID snowflake.ID, limit int) ([]ledgerdomain.LedgerEntry, error) {
	var entries []ledgerdomain.LedgerEntry
	err := db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, ledgerdomain.WrapStorage("list entries", err)
	}
	return entries, nil
}

func (r *repo) SumEntries(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (ledgerdomain.PoolSums, error) {
	var sums ledgerdomain.PoolSums
	err := db.WithContext(ctx).Raw(
		`SELECT
		   COALESCE(SUM(CASE WHEN pool = ? THEN amount ELSE 0 END), 0) AS included,
		   COALESCE(SUM(CASE WHEN pool = ? THEN amount ELSE 0 END), 0) AS purchased
		 FROM ledger_entries
		 WHERE account_id = ?`,
		ledgerdomain.PoolIncluded,
		ledgerdomain.PoolPurchased,
		accountID,
	).Scan(&sums).Error
	if err != nil {
		return ledgerdomain.PoolSums{}, ledgerdomain.WrapStorage("sum entries", err)
	}
	return sums, nil
}

func (r *repo) ListBalances(ctx context.Context, db *gorm.DB, afterAccountID snowflake.ID, limit int) ([]ledgerdomain.CreditBalance, error) {
	var balances []ledgerdomain.CreditBalance
	err := db.WithContext(ctx).
		Where("account_id > ?", afterAccountID).
		Order("account_id ASC").
		Limit(limit).
		Find(&balances).Error
	if err != nil {
		return nil, ledgerdomain.WrapStorage("list balances", err)
	}
	return balances, nil
}
