package content

import (
	"time"

	"gorm.io/datatypes"
)

// Site holds the look of a tenant's public website.
type Site struct {
	TenantID   string         `gorm:"column:tenant_id;primaryKey"`
	TemplateID string         `gorm:"column:template_id;not null"`
	Design     datatypes.JSON `gorm:"column:design"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

type Page struct {
	ID        string         `gorm:"column:id;primaryKey"`
	TenantID  string         `gorm:"column:tenant_id;not null;uniqueIndex:idx_page_tenant_slug"`
	Slug      string         `gorm:"column:slug;not null;uniqueIndex:idx_page_tenant_slug"`
	Title     string         `gorm:"column:title;not null"`
	Position  int            `gorm:"column:position"`
	Sections  datatypes.JSON `gorm:"column:sections"`
	Published bool           `gorm:"column:published"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
}

// Offering is a bookable service of the institute.
type Offering struct {
	ID              string    `gorm:"column:id;primaryKey"`
	TenantID        string    `gorm:"column:tenant_id;not null;index"`
	Name            string    `gorm:"column:name;not null"`
	DurationMinutes int       `gorm:"column:duration_minutes"`
	Price           string    `gorm:"column:price"` // decimal string
	Currency        string    `gorm:"column:currency"`
	Active          bool      `gorm:"column:active"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
}
