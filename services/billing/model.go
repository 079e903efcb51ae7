package billing

import (
	"time"

	"beautyhub-controlplane/services/plan"
)

type InvoiceStatus string

const (
	Paid   InvoiceStatus = "PAID"
	Failed InvoiceStatus = "FAILED"
)

// Invoice is one billing cycle of a tenant, keyed by the processor's id
// (invoice id, or payment intent id for direct payments).
type Invoice struct {
	ID         string        `gorm:"column:id;primaryKey"`
	TenantID   string        `gorm:"column:tenant_id;not null;index"`
	ExternalID string        `gorm:"column:external_id;not null;uniqueIndex"`
	Number     string        `gorm:"column:number"`
	Status     InvoiceStatus `gorm:"column:status;not null"`
	Plan       plan.Tier     `gorm:"column:plan"`
	Amount     string        `gorm:"column:amount"` // decimal string, major units
	Currency   string        `gorm:"column:currency"`
	Document   string        `gorm:"column:document"`
	PaidAt     *time.Time    `gorm:"column:paid_at"`
	CreatedAt  time.Time     `gorm:"column:created_at"`
	UpdatedAt  time.Time     `gorm:"column:updated_at"`
}
