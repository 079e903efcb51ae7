package content

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"beautyhub-controlplane/services/plan"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var Module = fx.Module("content",
	fx.Provide(NewRegistry, NewSeeder),
)

func NewRegistry(catalog plan.Catalog) Registry {
	return DefaultRegistry(catalog)
}

// Design holds the visual choices made during checkout.
type Design struct {
	PrimaryColor string `json:"primary_color,omitempty"`
	AccentColor  string `json:"accent_color,omitempty"`
	Font         string `json:"font,omitempty"`
	LogoURL      string `json:"logo_url,omitempty"`
}

type InitialService struct {
	Name            string
	DurationMinutes int
	Price           decimal.Decimal
	Currency        string
}

type SeedInput struct {
	TenantID      string
	InstituteName string
	Plan          plan.Tier
	TemplateID    string
	Design        Design
}

type Seeder interface {
	SeedInitialContent(ctx context.Context, in SeedInput) error
	CreateInitialService(ctx context.Context, tenantID string, svc InitialService) error
}

type seeder struct {
	db       *gorm.DB
	node     *snowflake.Node
	registry Registry
}

type Params struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Registry Registry
}

func NewSeeder(p Params) Seeder {
	return &seeder{db: p.DB, node: p.Node, registry: p.Registry}
}

// SeedInitialContent writes the site and its pages in one transaction.
func (s *seeder) SeedInitialContent(ctx context.Context, in SeedInput) error {
	tmpl, err := s.registry.Lookup(in.Plan, in.TemplateID)
	if err != nil {
		return err
	}

	design, err := json.Marshal(in.Design)
	if err != nil {
		return fmt.Errorf("failed to encode design: %w", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		site := &Site{
			TenantID:   in.TenantID,
			TemplateID: tmpl.ID,
			Design:     datatypes.JSON(design),
		}
		if err := tx.Create(site).Error; err != nil {
			return fmt.Errorf("failed to create site: %w", err)
		}

		for i, def := range tmpl.Pages {
			sections := make([]Section, len(def.Sections))
			for j, sec := range def.Sections {
				sec.Heading = strings.ReplaceAll(sec.Heading, "{{institute}}", in.InstituteName)
				sec.Body = strings.ReplaceAll(sec.Body, "{{institute}}", in.InstituteName)
				sections[j] = sec
			}
			raw, err := json.Marshal(sections)
			if err != nil {
				return fmt.Errorf("failed to encode page %s: %w", def.Slug, err)
			}

			page := &Page{
				ID:        s.node.Generate().String(),
				TenantID:  in.TenantID,
				Slug:      def.Slug,
				Title:     def.Title,
				Position:  i,
				Sections:  datatypes.JSON(raw),
				Published: true,
			}
			if err := tx.Create(page).Error; err != nil {
				return fmt.Errorf("failed to create page %s: %w", def.Slug, err)
			}
		}
		return nil
	})
}

func (s *seeder) CreateInitialService(ctx context.Context, tenantID string, svc InitialService) error {
	if strings.TrimSpace(svc.Name) == "" {
		return fmt.Errorf("initial service has no name")
	}

	offering := &Offering{
		ID:              s.node.Generate().String(),
		TenantID:        tenantID,
		Name:            svc.Name,
		DurationMinutes: svc.DurationMinutes,
		Price:           svc.Price.StringFixed(2),
		Currency:        svc.Currency,
		Active:          true,
	}
	return s.db.WithContext(ctx).Create(offering).Error
}
