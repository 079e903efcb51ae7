package provisioning

import "time"

// Record reserves a checkout session. It is inserted in the same transaction
// as the tenant, so a redelivered checkout finds it and does nothing.
type Record struct {
	CheckoutSessionID string    `gorm:"column:checkout_session_id;primaryKey"`
	TenantID          string    `gorm:"column:tenant_id;not null;index"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Record) TableName() string {
	return "provisioning_records"
}

// Contract is issued once per tenant and never updated.
type Contract struct {
	ID           string    `gorm:"column:id;primaryKey"`
	TenantID     string    `gorm:"column:tenant_id;not null;uniqueIndex"`
	Number       string    `gorm:"column:number;not null"`
	Plan         string    `gorm:"column:plan;not null"`
	MonthlyPrice string    `gorm:"column:monthly_price"`
	Currency     string    `gorm:"column:currency"`
	Document     string    `gorm:"column:document"`
	StartsAt     time.Time `gorm:"column:starts_at"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}
