package plans

import (
	"testing"

	"github.com/convert-iq/convertiq/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_NoSubscriptions(t *testing.T) {
	plan := Resolve(nil)
	assert.Equal(t, "free", plan.ID)
	require.NotNil(t, plan.Optimizations)
	assert.Equal(t, 1, *plan.Optimizations)
	assert.False(t, plan.CSVExport)
	assert.False(t, plan.CROAudit)
	assert.False(t, plan.AdHooks)
}

func TestResolve_HighestTierWins(t *testing.T) {
	subs := []models.Subscription{
		{StripePriceID: PriceStarterMonthly},
		{StripePriceID: PriceGrowthMonthly},
		{StripePriceID: "price_legacy_789"},
	}
	plan := Resolve(subs)
	assert.Equal(t, "growth", plan.ID)
	assert.True(t, plan.Unlimited())
}

func TestResolve_UnrecognizedOnly(t *testing.T) {
	subs := []models.Subscription{{StripePriceID: "price_legacy_789"}}
	plan := Resolve(subs)
	assert.Equal(t, "free", plan.ID)
}

func TestResolve_StarterOnly(t *testing.T) {
	subs := []models.Subscription{{StripePriceID: PriceStarterMonthly}}
	plan := Resolve(subs)
	assert.Equal(t, "starter", plan.ID)
	require.NotNil(t, plan.Optimizations)
	assert.Equal(t, 50, *plan.Optimizations)
}

func TestByPriceID_Unknown(t *testing.T) {
	plan := ByPriceID("price_never_configured")
	assert.Equal(t, "unknown", plan.ID)
	require.NotNil(t, plan.Optimizations)
	assert.Equal(t, 0, *plan.Optimizations)
}

func TestRemaining(t *testing.T) {
	starter := ByPriceID(PriceStarterMonthly)
	assert.Equal(t, 48, starter.Remaining(2))
	assert.Equal(t, 0, starter.Remaining(70))

	growth := ByPriceID(PriceGrowthMonthly)
	assert.Equal(t, -1, growth.Remaining(1000))
}

func TestFeatureGates(t *testing.T) {
	assert.ErrorIs(t, Free.RequireCSVExport(), ErrFeatureLocked)
	assert.ErrorIs(t, Free.RequireCROAudit(), ErrFeatureLocked)
	assert.NoError(t, ByPriceID(PriceStarterMonthly).RequireCSVExport())
	assert.NoError(t, ByPriceID(PriceGrowthMonthly).RequireCROAudit())
}
