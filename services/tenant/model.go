package tenant

import (
	"time"

	"beautyhub-controlplane/services/plan"

	"github.com/lib/pq"
)

type Status string

const (
	Trial     Status = "TRIAL"
	Active    Status = "ACTIVE"
	Suspended Status = "SUSPENDED"
	Cancelled Status = "CANCELLED"
)

func (s Status) String() string {
	switch s {
	case Trial, Active, Suspended, Cancelled:
		return string(s)
	default:
		return ""
	}
}

// Tenant is one institute. Rows are never deleted; CANCELLED is terminal.
type Tenant struct {
	ID           string    `gorm:"column:id;primaryKey"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
	Name         string    `gorm:"column:name;not null"`
	Slug         string    `gorm:"column:slug;uniqueIndex;not null"`
	Subdomain    string    `gorm:"column:subdomain;uniqueIndex;not null"`
	CustomDomain *string   `gorm:"column:custom_domain"`
	Plan         plan.Tier `gorm:"column:plan;not null"`
	Status       Status    `gorm:"column:status;not null;index"`

	OwnerName  string `gorm:"column:owner_name"`
	OwnerEmail string `gorm:"column:owner_email"`
	Phone      string `gorm:"column:phone"`

	AddressLine string `gorm:"column:address_line"`
	PostalCode  string `gorm:"column:postal_code"`
	City        string `gorm:"column:city"`
	Country     string `gorm:"column:country"`

	StripeCustomerID     string     `gorm:"column:stripe_customer_id;index"`
	StripeSubscriptionID string     `gorm:"column:stripe_subscription_id;index"`
	NextBillingAt        *time.Time `gorm:"column:next_billing_at"`
	LastPaymentAt        *time.Time `gorm:"column:last_payment_at"`

	// connected sub-account
	StripeAccountID  string `gorm:"column:stripe_account_id;index"`
	DetailsSubmitted bool   `gorm:"column:details_submitted"`
	ChargesEnabled   bool   `gorm:"column:charges_enabled"`
	PayoutsEnabled   bool   `gorm:"column:payouts_enabled"`

	InvoiceNumber    string `gorm:"column:invoice_number"`
	InvoiceDocument  string `gorm:"column:invoice_document"`
	ContractNumber   string `gorm:"column:contract_number"`
	ContractDocument string `gorm:"column:contract_document"`

	Features plan.Features `gorm:"embedded;embeddedPrefix:feature_"`
}

type Location struct {
	ID          string    `gorm:"column:id;primaryKey"`
	TenantID    string    `gorm:"column:tenant_id;not null;index"`
	Name        string    `gorm:"column:name;not null"`
	IsMain      bool      `gorm:"column:is_main"`
	AddressLine string    `gorm:"column:address_line"`
	PostalCode  string    `gorm:"column:postal_code"`
	City        string    `gorm:"column:city"`
	Country     string    `gorm:"column:country"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

type Role string

const (
	Owner Role = "OWNER"
	Staff Role = "STAFF"
)

type Administrator struct {
	ID           string         `gorm:"column:id;primaryKey"`
	TenantID     string         `gorm:"column:tenant_id;not null;index"`
	Email        string         `gorm:"column:email;not null;index"`
	Name         string         `gorm:"column:name"`
	Role         Role           `gorm:"column:role;not null"`
	Scopes       pq.StringArray `gorm:"column:scopes;type:text[];not null"` // e.g. {'*'}
	PasswordHash string         `gorm:"column:password_hash;not null"`      // bcrypt, never plaintext
	// MustRotatePassword is set for the generated first credential; the login
	// surface is expected to force a change.
	MustRotatePassword bool      `gorm:"column:must_rotate_password"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// FeatureColumns lists the embedded feature columns for map updates, which
// unlike struct updates also write false values.
func FeatureColumns(f plan.Features) map[string]any {
	return map[string]any{
		"feature_online_booking":  f.OnlineBooking,
		"feature_gift_cards":      f.GiftCards,
		"feature_shop":            f.Shop,
		"feature_email_campaigns": f.EmailCampaigns,
		"feature_custom_domain":   f.CustomDomain,
		"feature_multi_location":  f.MultiLocation,
		"feature_analytics":       f.Analytics,
		"feature_max_staff":       f.MaxStaff,
	}
}
