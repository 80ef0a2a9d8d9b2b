package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	tierdomain "github.com/rankhive/creditd/internal/tier/domain"
	tierrepo "github.com/rankhive/creditd/internal/tier/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTierService(t *testing.T) (tierdomain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tierdomain.PlanCredit{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  tierrepo.Provide(),
	})
	return svc, db
}

func TestCreditsForPlan(t *testing.T) {
	svc, _ := setupTierService(t)
	ctx := context.Background()

	_, err := svc.Upsert(ctx, "builder", 100)
	require.NoError(t, err)

	credits, err := svc.CreditsForPlan(ctx, "builder")
	require.NoError(t, err)
	assert.Equal(t, int64(100), credits)

	// Plan names are matched case-insensitively.
	credits, err = svc.CreditsForPlan(ctx, "  Builder ")
	require.NoError(t, err)
	assert.Equal(t, int64(100), credits)
}

func TestCreditsForUnknownPlanIsZero(t *testing.T) {
	svc, _ := setupTierService(t)
	ctx := context.Background()

	credits, err := svc.CreditsForPlan(ctx, "enterprise")
	require.NoError(t, err)
	assert.Equal(t, int64(0), credits)

	credits, err = svc.CreditsForPlan(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), credits)
}

func TestUpsertOverwritesAndInvalidatesCache(t *testing.T) {
	svc, _ := setupTierService(t)
	ctx := context.Background()

	_, err := svc.Upsert(ctx, "starter", 50)
	require.NoError(t, err)

	// Warm the cache, then change the amount.
	credits, err := svc.CreditsForPlan(ctx, "starter")
	require.NoError(t, err)
	require.Equal(t, int64(50), credits)

	_, err = svc.Upsert(ctx, "starter", 75)
	require.NoError(t, err)

	credits, err = svc.CreditsForPlan(ctx, "starter")
	require.NoError(t, err)
	assert.Equal(t, int64(75), credits)

	plans, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, int64(75), plans[0].MonthlyCredits)
}

func TestUpsertValidation(t *testing.T) {
	svc, _ := setupTierService(t)
	ctx := context.Background()

	_, err := svc.Upsert(ctx, "  ", 10)
	assert.ErrorIs(t, err, tierdomain.ErrInvalidPlan)

	_, err = svc.Upsert(ctx, "starter", -1)
	assert.ErrorIs(t, err, tierdomain.ErrInvalidCredits)
}
