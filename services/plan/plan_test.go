package plan

import (
	"testing"

	"beautyhub-controlplane/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestParseTier(t *testing.T) {
	tier, ok := ParseTier(" solo ")
	require.True(t, ok)
	require.Equal(t, Solo, tier)

	_, ok = ParseTier("ENTERPRISE")
	require.False(t, ok)
}

func TestNewCatalogAppliesConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Billing.Prices = map[string]string{"solo": "45.50"}
	cfg.Billing.PriceIDs = map[string]string{"price_solo": "SOLO", "price_team": "team"}

	c, err := NewCatalog(cfg)
	require.NoError(t, err)
	require.Equal(t, "45.5", c.PriceOf(Solo).String())
	require.Equal(t, "59", c.PriceOf(Duo).String())

	tier, ok := c.TierForPrice("price_team")
	require.True(t, ok)
	require.Equal(t, Team, tier)

	_, ok = c.TierForPrice("price_unknown")
	require.False(t, ok)
}

func TestNewCatalogRejectsUnknownPlan(t *testing.T) {
	cfg := &config.Config{}
	cfg.Billing.PriceIDs = map[string]string{"price_x": "GOLD"}

	_, err := NewCatalog(cfg)
	require.Error(t, err)
}

func TestNewCatalogRejectsBadPrice(t *testing.T) {
	cfg := &config.Config{}
	cfg.Billing.Prices = map[string]string{"SOLO": "cheap"}

	_, err := NewCatalog(cfg)
	require.Error(t, err)
}

func TestSoloFeatures(t *testing.T) {
	f := Default().FeaturesFor(Solo)
	require.True(t, f.OnlineBooking)
	require.False(t, f.MultiLocation)
	require.Equal(t, 1, f.MaxStaff)
}
