package billing

import (
	"strings"

	"beautyhub-controlplane/services/tenant"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v83"
)

// zeroDecimal lists the currencies the processor charges in whole units.
var zeroDecimal = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// FromMinorUnits converts a processor amount to a decimal in currency units.
func FromMinorUnits(amount int64, currency string) decimal.Decimal {
	if zeroDecimal[strings.ToLower(currency)] {
		return decimal.NewFromInt(amount)
	}
	return decimal.New(amount, -2)
}

func mapSubscriptionStatus(status stripe.SubscriptionStatus) (tenant.Status, bool) {
	switch status {
	case stripe.SubscriptionStatusActive:
		return tenant.Active, true
	case stripe.SubscriptionStatusTrialing:
		return tenant.Trial, true
	case stripe.SubscriptionStatusCanceled:
		return tenant.Cancelled, true
	default:
		return "", false
	}
}

func subscriptionPriceID(sub *stripe.Subscription) string {
	if sub.Items == nil {
		return ""
	}
	for _, item := range sub.Items.Data {
		if item != nil && item.Price != nil && item.Price.ID != "" {
			return item.Price.ID
		}
	}
	return ""
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

// isTransient reports processor-side failures, as opposed to declines.
func isTransient(e *stripe.Error) bool {
	if e == nil {
		return false
	}
	return e.Type == stripe.ErrorTypeAPI || e.Code == stripe.ErrorCodeProcessingError
}

func failureReason(e *stripe.Error) string {
	if e == nil {
		return ""
	}
	if e.Msg != "" {
		return e.Msg
	}
	return string(e.Code)
}
