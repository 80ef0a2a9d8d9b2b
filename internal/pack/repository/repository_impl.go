package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	packdomain "github.com/rankhive/creditd/internal/pack/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() packdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, pack *packdomain.CreditPack) error {
	return db.WithContext(ctx).Create(pack).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, pack *packdomain.CreditPack) error {
	return db.WithContext(ctx).Exec(
		`UPDATE credit_packs
		 SET name = ?, credits = ?, price_cents = ?, display_order = ?, active = ?, updated_at = ?
		 WHERE id = ?`,
		pack.Name,
		pack.Credits,
		pack.PriceCents,
		pack.DisplayOrder,
		pack.Active,
		pack.UpdatedAt,
		pack.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*packdomain.CreditPack, error) {
	var pack packdomain.CreditPack
	err := db.WithContext(ctx).Where("id = ?", id).First(&pack).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, packdomain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pack, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]packdomain.CreditPack, error) {
	var packs []packdomain.CreditPack
	err := db.WithContext(ctx).
		Where("active = ?", true).
		Order("display_order ASC, id ASC").
		Find(&packs).Error
	if err != nil {
		return nil, err
	}
	return packs, nil
}
