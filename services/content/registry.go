package content

import (
	"errors"
	"fmt"

	"beautyhub-controlplane/services/plan"
)

var ErrUnknownTemplate = errors.New("unknown site template")

const DefaultTemplate = "classic"

type Section struct {
	Type    string `json:"type"`
	Heading string `json:"heading"`
	Body    string `json:"body,omitempty"`
}

type PageSpec struct {
	Slug     string
	Title    string
	Sections []Section
}

type Template struct {
	ID    string
	Name  string
	Pages []PageSpec
}

type key struct {
	tier plan.Tier
	id   string
}

// Registry resolves a site template for a plan. Higher tiers get extra pages
// for the features they unlock.
type Registry struct {
	templates map[key]Template
}

func (r Registry) Lookup(tier plan.Tier, templateID string) (Template, error) {
	if templateID == "" {
		templateID = DefaultTemplate
	}
	t, ok := r.templates[key{tier, templateID}]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s for plan %s", ErrUnknownTemplate, templateID, tier)
	}
	return t, nil
}

func DefaultRegistry(catalog plan.Catalog) Registry {
	styles := map[string]string{
		"classic": "Classic",
		"zen":     "Zen",
		"glow":    "Glow",
	}

	r := Registry{templates: map[key]Template{}}
	for tier, features := range catalog.Features {
		for id, name := range styles {
			r.templates[key{tier, id}] = Template{
				ID:    id,
				Name:  name,
				Pages: pagesFor(features),
			}
		}
	}
	return r
}

func pagesFor(f plan.Features) []PageSpec {
	pages := []PageSpec{
		{
			Slug:  "home",
			Title: "Home",
			Sections: []Section{
				{Type: "hero", Heading: "{{institute}}", Body: "Welcome to {{institute}}."},
				{Type: "services", Heading: "Our treatments"},
			},
		},
		{
			Slug:     "services",
			Title:    "Services",
			Sections: []Section{{Type: "service_list", Heading: "Treatments & prices"}},
		},
	}

	if f.OnlineBooking {
		pages = append(pages, PageSpec{
			Slug:     "booking",
			Title:    "Book",
			Sections: []Section{{Type: "booking", Heading: "Book an appointment"}},
		})
	}
	if f.GiftCards {
		pages = append(pages, PageSpec{
			Slug:     "gift-cards",
			Title:    "Gift cards",
			Sections: []Section{{Type: "gift_cards", Heading: "Offer a moment of care"}},
		})
	}
	if f.Shop {
		pages = append(pages, PageSpec{
			Slug:     "shop",
			Title:    "Shop",
			Sections: []Section{{Type: "product_grid", Heading: "Our products"}},
		})
	}
	if f.MaxStaff > 1 {
		pages = append(pages, PageSpec{
			Slug:     "team",
			Title:    "Team",
			Sections: []Section{{Type: "team", Heading: "Meet the team"}},
		})
	}

	return append(pages, PageSpec{
		Slug:     "contact",
		Title:    "Contact",
		Sections: []Section{{Type: "contact", Heading: "Visit us"}},
	})
}
