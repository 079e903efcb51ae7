package webhook

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"beautyhub-controlplane/services/connect"
	"beautyhub-controlplane/services/content"
	"beautyhub-controlplane/services/provisioning"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v83"
)

// Metadata keys written by the checkout pages.
const (
	MetaIntent = "intent"

	MetaKind     = "kind"
	MetaEntityID = "entity_id"
	MetaTenantID = "tenant_id"

	MetaPlan          = "plan"
	MetaTemplateID    = "template_id"
	MetaInstituteName = "institute_name"
	MetaSlug          = "slug"
	MetaSubdomain     = "subdomain"
	MetaOwnerName     = "owner_name"
	MetaOwnerEmail    = "owner_email"
	MetaPhone         = "phone"
	MetaAddressLine   = "address_line"
	MetaPostalCode    = "postal_code"
	MetaCity          = "city"
	MetaCountry       = "country"

	MetaPrimaryColor = "design_primary_color"
	MetaAccentColor  = "design_accent_color"
	MetaFont         = "design_font"
	MetaLogoURL      = "design_logo_url"

	MetaServiceName     = "service_name"
	MetaServiceDuration = "service_duration"
	MetaServicePrice    = "service_price"
)

const (
	IntentOnboarding        = "onboarding"
	IntentSubAccountPayment = "sub_account_payment"
)

// ErrNoIntent marks a checkout session that is not ours to act on.
var ErrNoIntent = errors.New("checkout session carries no known intent")

// Intent is the decoded purpose of a completed checkout session. It is one of
// OnboardingIntent or SubAccountPayment.
type Intent interface {
	intent() string
}

type OnboardingIntent struct {
	Onboarding provisioning.Onboarding
}

func (OnboardingIntent) intent() string { return IntentOnboarding }

type SubAccountPayment struct {
	Payment connect.Payment
}

func (SubAccountPayment) intent() string { return IntentSubAccountPayment }

// DecodeCheckout reads the intent discriminator of sess and builds the typed
// payload for it.
func DecodeCheckout(sess *stripe.CheckoutSession) (Intent, error) {
	md := sess.Metadata
	switch md[MetaIntent] {
	case IntentOnboarding:
		return decodeOnboarding(sess)
	case IntentSubAccountPayment:
		return decodePayment(sess)
	case "":
		return nil, ErrNoIntent
	default:
		return nil, fmt.Errorf("%w: %q", ErrNoIntent, md[MetaIntent])
	}
}

func decodeOnboarding(sess *stripe.CheckoutSession) (Intent, error) {
	md := sess.Metadata
	in := provisioning.Onboarding{
		CheckoutSessionID: sess.ID,
		AmountTotal:       sess.AmountTotal,
		Currency:          string(sess.Currency),
		OwnerName:         md[MetaOwnerName],
		OwnerEmail:        md[MetaOwnerEmail],
		Phone:             md[MetaPhone],
		InstituteName:     md[MetaInstituteName],
		Slug:              md[MetaSlug],
		Subdomain:         md[MetaSubdomain],
		Plan:              md[MetaPlan],
		TemplateID:        md[MetaTemplateID],
		Address: provisioning.Address{
			Line:       md[MetaAddressLine],
			PostalCode: md[MetaPostalCode],
			City:       md[MetaCity],
			Country:    md[MetaCountry],
		},
		Design: content.Design{
			PrimaryColor: md[MetaPrimaryColor],
			AccentColor:  md[MetaAccentColor],
			Font:         md[MetaFont],
			LogoURL:      md[MetaLogoURL],
		},
	}

	if sess.Customer != nil {
		in.CustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		in.SubscriptionID = sess.Subscription.ID
	}

	switch {
	case sess.Invoice != nil && sess.Invoice.ID != "":
		in.PaymentReference = sess.Invoice.ID
	case sess.PaymentIntent != nil && sess.PaymentIntent.ID != "":
		in.PaymentReference = sess.PaymentIntent.ID
	default:
		in.PaymentReference = sess.ID
	}

	if d := sess.CustomerDetails; d != nil {
		in.OwnerEmail = firstOf(in.OwnerEmail, d.Email)
		in.OwnerName = firstOf(in.OwnerName, d.Name)
		in.Phone = firstOf(in.Phone, d.Phone)
		if a := d.Address; a != nil {
			line := strings.TrimSpace(strings.Join([]string{a.Line1, a.Line2}, " "))
			in.Address.Line = firstOf(in.Address.Line, line)
			in.Address.PostalCode = firstOf(in.Address.PostalCode, a.PostalCode)
			in.Address.City = firstOf(in.Address.City, a.City)
			in.Address.Country = firstOf(in.Address.Country, a.Country)
		}
	}

	if name := md[MetaServiceName]; name != "" {
		svc := &content.InitialService{
			Name:     name,
			Currency: in.Currency,
		}
		// malformed values are left at zero; the owner edits the service later
		if minutes, err := strconv.Atoi(md[MetaServiceDuration]); err == nil && minutes > 0 {
			svc.DurationMinutes = minutes
		}
		if price, err := decimal.NewFromString(md[MetaServicePrice]); err == nil && !price.IsNegative() {
			svc.Price = price
		}
		in.InitialService = svc
	}

	return OnboardingIntent{Onboarding: in}, nil
}

func decodePayment(sess *stripe.CheckoutSession) (Intent, error) {
	md := sess.Metadata
	kind := connect.Kind(md[MetaKind])
	switch kind {
	case connect.GiftCardPayment, connect.ReservationPayment:
	default:
		return nil, fmt.Errorf("%w: sub-account payment kind %q", ErrNoIntent, kind)
	}

	p := connect.Payment{
		Kind:     kind,
		EntityID: md[MetaEntityID],
		TenantID: md[MetaTenantID],
	}
	if sess.PaymentIntent != nil {
		p.PaymentIntentID = sess.PaymentIntent.ID
	}
	if p.EntityID == "" {
		return nil, fmt.Errorf("%w: %s without %s", ErrNoIntent, kind, MetaEntityID)
	}

	return SubAccountPayment{Payment: p}, nil
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
