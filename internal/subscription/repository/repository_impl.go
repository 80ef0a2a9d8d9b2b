package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/rankhive/creditd/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) subscriptiondomain.Reader {
	return &repo{db: db}
}

func (r *repo) Find(ctx context.Context, accountID snowflake.ID) (subscriptiondomain.AccountSubscription, error) {
	var sub subscriptiondomain.AccountSubscription
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return subscriptiondomain.AccountSubscription{AccountID: accountID}, nil
	}
	if err != nil {
		return subscriptiondomain.AccountSubscription{}, err
	}
	return sub, nil
}

func (r *repo) ListAccounts(ctx context.Context, afterAccountID snowflake.ID, limit int) ([]subscriptiondomain.AccountSubscription, error) {
	var subs []subscriptiondomain.AccountSubscription
	err := r.db.WithContext(ctx).
		Where("account_id > ?", afterAccountID).
		Order("account_id ASC").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repo) Upsert(ctx context.Context, sub subscriptiondomain.AccountSubscription) error {
	sub.Plan = strings.ToLower(strings.TrimSpace(sub.Plan))
	if sub.UpdatedAt.IsZero() {
		sub.UpdatedAt = time.Now().UTC()
	}

	res := r.db.WithContext(ctx).Exec(
		`UPDATE account_subscriptions SET plan = ?, billing_anchor_at = ?, updated_at = ? WHERE account_id = ?`,
		sub.Plan, sub.BillingAnchorAt, sub.UpdatedAt, sub.AccountID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&sub).Error
}
