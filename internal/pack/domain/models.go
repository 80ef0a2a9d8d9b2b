package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// CreditPack is a purchasable credit bundle. Purchased credits never
// expire. The external price ids point at the payment gateway's
// catalog for one-time and recurring checkout respectively.
type CreditPack struct {
	ID                       snowflake.ID `json:"id" gorm:"primaryKey"`
	Name                     string       `json:"name" gorm:"type:text;not null"`
	Credits                  int64        `json:"credits" gorm:"not null"`
	PriceCents               int64        `json:"price_cents" gorm:"not null"`
	Currency                 string       `json:"currency" gorm:"type:text;not null;default:usd"`
	ExternalPriceIDOneTime   *string      `json:"external_price_id_one_time" gorm:"type:text"`
	ExternalPriceIDRecurring *string      `json:"external_price_id_recurring" gorm:"type:text"`
	DisplayOrder             int          `json:"display_order" gorm:"not null;default:0"`
	Active                   bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt                time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt                time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CreditPack) TableName() string { return "credit_packs" }

// FormattedPrice renders the price for the dashboard, e.g. "$29.00".
func (p *CreditPack) FormattedPrice() string {
	symbol := "$"
	switch p.Currency {
	case "eur":
		symbol = "€"
	case "gbp":
		symbol = "£"
	}
	return fmt.Sprintf("%s%d.%02d", symbol, p.PriceCents/100, p.PriceCents%100)
}

type CreatePackRequest struct {
	Name                     string  `json:"name"`
	Credits                  int64   `json:"credits"`
	PriceCents               int64   `json:"price_cents"`
	Currency                 string  `json:"currency"`
	ExternalPriceIDOneTime   *string `json:"external_price_id_one_time"`
	ExternalPriceIDRecurring *string `json:"external_price_id_recurring"`
	DisplayOrder             int     `json:"display_order"`
}

type UpdatePackRequest struct {
	ID           string `json:"id"`
	Name         *string
	Credits      *int64
	PriceCents   *int64
	DisplayOrder *int
	Active       *bool
}

// PurchaseResult reports an applied (or replayed) pack purchase.
type PurchaseResult struct {
	AccountID        snowflake.ID `json:"account_id"`
	PackID           snowflake.ID `json:"pack_id"`
	Credits          int64        `json:"credits"`
	PurchasedBalance int64        `json:"purchased_balance"`
	Replayed         bool         `json:"replayed"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, pack *CreditPack) error
	Update(ctx context.Context, db *gorm.DB, pack *CreditPack) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*CreditPack, error)
	ListActive(ctx context.Context, db *gorm.DB) ([]CreditPack, error)
}

type Service interface {
	// List returns active packs in display order.
	List(ctx context.Context) ([]CreditPack, error)

	GetByID(ctx context.Context, id snowflake.ID) (*CreditPack, error)
	Create(ctx context.Context, req CreatePackRequest) (*CreditPack, error)
	Update(ctx context.Context, req UpdatePackRequest) (*CreditPack, error)

	// ApplyPurchase credits the pack's amount into the purchased pool
	// exactly once per gateway transaction id. The caller (the
	// payment webhook handler) has already validated the payment.
	ApplyPurchase(ctx context.Context, accountID, packID snowflake.ID, gatewayTxnID string) (*PurchaseResult, error)
}

var (
	ErrNotFound       = errors.New("pack_not_found")
	ErrInvalidName    = errors.New("invalid_pack_name")
	ErrInvalidCredits = errors.New("invalid_pack_credits")
	ErrInvalidPrice   = errors.New("invalid_pack_price")
	ErrInvalidID      = errors.New("invalid_pack_id")
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
