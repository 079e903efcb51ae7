package plan

import (
	"fmt"
	"strings"

	"beautyhub-controlplane/pkg/config"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
)

var Module = fx.Module("plan", fx.Provide(NewCatalog))

type Tier string

const (
	Solo    Tier = "SOLO"
	Duo     Tier = "DUO"
	Team    Tier = "TEAM"
	Premium Tier = "PREMIUM"
)

// ParseTier accepts any casing of a known tier.
func ParseTier(s string) (Tier, bool) {
	switch t := Tier(strings.ToUpper(strings.TrimSpace(s))); t {
	case Solo, Duo, Team, Premium:
		return t, true
	default:
		return "", false
	}
}

func (t Tier) String() string {
	return string(t)
}

// Features are the plan-gated switches stored on every tenant.
type Features struct {
	OnlineBooking  bool `gorm:"column:online_booking" json:"online_booking"`
	GiftCards      bool `gorm:"column:gift_cards" json:"gift_cards"`
	Shop           bool `gorm:"column:shop" json:"shop"`
	EmailCampaigns bool `gorm:"column:email_campaigns" json:"email_campaigns"`
	CustomDomain   bool `gorm:"column:custom_domain" json:"custom_domain"`
	MultiLocation  bool `gorm:"column:multi_location" json:"multi_location"`
	Analytics      bool `gorm:"column:analytics" json:"analytics"`
	MaxStaff       int  `gorm:"column:max_staff" json:"max_staff"`
}

// Catalog is the plan lookup table: monthly price per tier, processor price id
// to tier, and the feature set each tier unlocks. It is a plain value so
// callers and tests can build their own.
type Catalog struct {
	Prices     map[Tier]decimal.Decimal
	PriceTiers map[string]Tier
	Features   map[Tier]Features
}

func Default() Catalog {
	return Catalog{
		Prices: map[Tier]decimal.Decimal{
			Solo:    decimal.RequireFromString("39.00"),
			Duo:     decimal.RequireFromString("59.00"),
			Team:    decimal.RequireFromString("89.00"),
			Premium: decimal.RequireFromString("149.00"),
		},
		PriceTiers: map[string]Tier{},
		Features: map[Tier]Features{
			Solo: {
				OnlineBooking: true,
				GiftCards:     true,
				MaxStaff:      1,
			},
			Duo: {
				OnlineBooking:  true,
				GiftCards:      true,
				Shop:           true,
				EmailCampaigns: true,
				MaxStaff:       2,
			},
			Team: {
				OnlineBooking:  true,
				GiftCards:      true,
				Shop:           true,
				EmailCampaigns: true,
				CustomDomain:   true,
				Analytics:      true,
				MaxStaff:       8,
			},
			Premium: {
				OnlineBooking:  true,
				GiftCards:      true,
				Shop:           true,
				EmailCampaigns: true,
				CustomDomain:   true,
				MultiLocation:  true,
				Analytics:      true,
				MaxStaff:       50,
			},
		},
	}
}

// NewCatalog starts from Default and applies BILLING.PRICES and BILLING.PRICE_IDS.
func NewCatalog(cfg *config.Config) (Catalog, error) {
	c := Default()

	for name, amount := range cfg.Billing.Prices {
		tier, ok := ParseTier(name)
		if !ok {
			return Catalog{}, fmt.Errorf("unknown plan %q in billing prices", name)
		}
		price, err := decimal.NewFromString(amount)
		if err != nil {
			return Catalog{}, fmt.Errorf("invalid price for plan %s: %w", tier, err)
		}
		c.Prices[tier] = price
	}

	for priceID, name := range cfg.Billing.PriceIDs {
		tier, ok := ParseTier(name)
		if !ok {
			return Catalog{}, fmt.Errorf("unknown plan %q for price id %s", name, priceID)
		}
		c.PriceTiers[priceID] = tier
	}

	return c, nil
}

// TierForPrice maps a processor price id. Unmapped ids report false so callers
// keep the current plan.
func (c Catalog) TierForPrice(priceID string) (Tier, bool) {
	t, ok := c.PriceTiers[priceID]
	return t, ok
}

func (c Catalog) FeaturesFor(t Tier) Features {
	return c.Features[t]
}

func (c Catalog) PriceOf(t Tier) decimal.Decimal {
	return c.Prices[t]
}
