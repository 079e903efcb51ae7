package provisioning

import (
	"beautyhub-controlplane/services/content"
)

type Address struct {
	Line       string
	PostalCode string
	City       string
	Country    string
}

// Onboarding is everything a completed onboarding checkout carries.
type Onboarding struct {
	CheckoutSessionID string
	CustomerID        string
	SubscriptionID    string
	// PaymentReference identifies the first payment: the processor invoice,
	// payment intent or, failing both, the session itself.
	PaymentReference string
	AmountTotal      int64 // minor units
	Currency         string

	OwnerName     string
	OwnerEmail    string
	Phone         string
	InstituteName string
	Slug          string
	Subdomain     string
	Address       Address

	// Plan is the raw plan metadata; empty when the checkout did not carry one.
	Plan           string
	TemplateID     string
	Design         content.Design
	InitialService *content.InitialService
}
