package connect

import "time"

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
)

type GiftCardStatus string

const (
	GiftCardPending GiftCardStatus = "PENDING"
	GiftCardActive  GiftCardStatus = "ACTIVE"
)

// Reservation is created by the booking flow; this service only settles it.
type Reservation struct {
	ID              string        `gorm:"column:id;primaryKey"`
	TenantID        string        `gorm:"column:tenant_id;not null;index"`
	CustomerName    string        `gorm:"column:customer_name"`
	CustomerEmail   string        `gorm:"column:customer_email"`
	OfferingID      string        `gorm:"column:offering_id"`
	StartsAt        time.Time     `gorm:"column:starts_at"`
	Amount          string        `gorm:"column:amount"`
	Currency        string        `gorm:"column:currency"`
	PaymentStatus   PaymentStatus `gorm:"column:payment_status;not null"`
	PaymentIntentID string        `gorm:"column:payment_intent_id;index"`
	PaidAt          *time.Time    `gorm:"column:paid_at"`
	CreatedAt       time.Time     `gorm:"column:created_at"`
	UpdatedAt       time.Time     `gorm:"column:updated_at"`
}

// GiftCard is a stored-value card sold through the tenant's sub-account.
type GiftCard struct {
	ID              string         `gorm:"column:id;primaryKey"`
	TenantID        string         `gorm:"column:tenant_id;not null;index"`
	Code            string         `gorm:"column:code;uniqueIndex"`
	Amount          string         `gorm:"column:amount"`
	Balance         string         `gorm:"column:balance"`
	Currency        string         `gorm:"column:currency"`
	PurchaserEmail  string         `gorm:"column:purchaser_email"`
	RecipientName   string         `gorm:"column:recipient_name"`
	Status          GiftCardStatus `gorm:"column:status;not null"`
	PaymentStatus   PaymentStatus  `gorm:"column:payment_status;not null"`
	PaymentIntentID string         `gorm:"column:payment_intent_id;index"`
	PaidAt          *time.Time     `gorm:"column:paid_at"`
	ExpiresAt       *time.Time     `gorm:"column:expires_at"`
	CreatedAt       time.Time      `gorm:"column:created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at"`
}
