package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"beautyhub-controlplane/pkg/config"
	"beautyhub-controlplane/pkg/errutil"
	"beautyhub-controlplane/pkg/featureflags"
	"beautyhub-controlplane/pkg/logger"
	"beautyhub-controlplane/pkg/repository"
	"beautyhub-controlplane/services/activity"
	"beautyhub-controlplane/services/document"
	"beautyhub-controlplane/services/notification"
	"beautyhub-controlplane/services/plan"
	"beautyhub-controlplane/services/tenant"

	"github.com/bwmarrin/snowflake"
	"github.com/stripe/stripe-go/v83"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("billing",
	fx.Provide(NewService),
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	config   *config.Config
	catalog  plan.Catalog
	tenants  *tenant.Store
	invoices repository.Repository[Invoice]
	docs     document.Generator
	mailer   notification.Mailer
	activity activity.Recorder
	flags    featureflags.FeatureFlag
	now      func() time.Time
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Config   *config.Config
	Catalog  plan.Catalog
	Tenants  *tenant.Store
	Docs     document.Generator
	Mailer   notification.Mailer
	Activity activity.Recorder
	Flags    featureflags.FeatureFlag
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		config:   p.Config,
		catalog:  p.Catalog,
		tenants:  p.Tenants,
		invoices: repository.ProvideStore[Invoice](p.DB),
		docs:     p.Docs,
		mailer:   p.Mailer,
		activity: p.Activity,
		flags:    p.Flags,
		now:      time.Now,
	}
}

// PaymentSucceeded activates the tenant named in the payment metadata, then
// issues an invoice document and a confirmation email. Unknown tenants are
// treated as stale events.
func (s *Service) PaymentSucceeded(ctx context.Context, pi *stripe.PaymentIntent) error {
	zapLog := logger.FromContext(ctx).With(zap.String("payment_intent", pi.ID))
	if pi.ID == "" {
		return errutil.BadRequest("payment intent without id", ErrMissingExternalID)
	}

	t, err := s.tenants.Get(ctx, pi.Metadata["tenant_id"])
	if err != nil {
		return err
	}
	if t == nil {
		zapLog.Warn("payment succeeded for unknown tenant, ignoring", zap.String("tenant_id", pi.Metadata["tenant_id"]))
		return nil
	}

	now := s.now().UTC()
	next := now.AddDate(0, 1, 0)
	applied, err := s.transition(ctx, t, tenant.Active, map[string]any{
		"last_payment_at": now,
		"next_billing_at": next,
	})
	if err != nil || !applied {
		return err
	}

	amount := FromMinorUnits(pi.Amount, string(pi.Currency))
	currency := s.currency(string(pi.Currency))

	var inv *Invoice
	s.bestEffort(ctx, t, "invoice_document", func() error {
		doc, err := s.docs.GenerateInvoice(ctx, document.InvoiceInput{
			TenantID:         t.ID,
			Customer:         partyOf(t),
			Plan:             string(t.Plan),
			Amount:           amount,
			Currency:         currency,
			PaymentReference: pi.ID,
			PeriodStart:      now,
			PeriodEnd:        next,
		})
		if err != nil {
			return err
		}
		inv, err = s.UpsertInvoice(ctx, &Invoice{
			TenantID:   t.ID,
			ExternalID: pi.ID,
			Number:     doc.Number,
			Status:     Paid,
			Plan:       t.Plan,
			Amount:     amount.StringFixed(2),
			Currency:   currency,
			Document:   doc.Location,
			PaidAt:     &now,
		})
		return err
	})

	s.bestEffort(ctx, t, "payment_confirmed_email", func() error {
		data := s.mailData(t)
		data.Amount = amount.StringFixed(2)
		data.Currency = currency
		data.NextBillingAt = next.Format("2006-01-02")
		if inv != nil {
			data.InvoiceNumber = inv.Number
		}
		return s.send(ctx, notification.PaymentConfirmed, t.OwnerEmail, data)
	})

	return nil
}

// PaymentFailed suspends the tenant. When the grace-period flag is on for the
// tenant, transient processor errors leave the status untouched.
func (s *Service) PaymentFailed(ctx context.Context, pi *stripe.PaymentIntent) error {
	zapLog := logger.FromContext(ctx).With(zap.String("payment_intent", pi.ID))

	t, err := s.tenants.Get(ctx, pi.Metadata["tenant_id"])
	if err != nil {
		return err
	}
	if t == nil {
		zapLog.Warn("payment failed for unknown tenant, ignoring", zap.String("tenant_id", pi.Metadata["tenant_id"]))
		return nil
	}

	if isTransient(pi.LastPaymentError) {
		grace, err := s.flags.Enabled(ctx, t.ID, featureflags.BillingFailureGracePeriod)
		if err != nil {
			zapLog.Warn("failed to evaluate grace period flag, suspending", zap.Error(err))
		}
		if grace {
			zapLog.Info("transient payment failure within grace period, not suspending", zap.String("tenant_id", t.ID))
			_ = s.activity.Record(ctx, t.ID, activity.PaymentGracePeriod, map[string]any{
				"payment_intent": pi.ID,
				"reason":         failureReason(pi.LastPaymentError),
			})
			return nil
		}
	}

	applied, err := s.transition(ctx, t, tenant.Suspended, nil)
	if err != nil || !applied {
		return err
	}

	s.bestEffort(ctx, t, "payment_failed_email", func() error {
		data := s.mailData(t)
		data.Reason = failureReason(pi.LastPaymentError)
		return s.send(ctx, notification.PaymentFailed, t.OwnerEmail, data)
	})

	return nil
}

// SubscriptionUpdated mirrors the subscription's plan and status. Unmapped
// price ids keep the current plan; unmapped statuses keep the current status.
func (s *Service) SubscriptionUpdated(ctx context.Context, sub *stripe.Subscription) error {
	zapLog := logger.FromContext(ctx).With(zap.String("subscription", sub.ID))

	t, err := s.resolveSubscription(ctx, sub)
	if err != nil {
		return err
	}
	if t == nil {
		zapLog.Warn("subscription updated for unknown tenant, ignoring")
		return nil
	}
	// a new live subscription for the customer replaces the recorded one
	live := sub.Status == stripe.SubscriptionStatusActive || sub.Status == stripe.SubscriptionStatusTrialing
	if !live && s.stale(ctx, t, sub, "customer.subscription.updated") {
		return nil
	}

	fields := map[string]any{"stripe_subscription_id": sub.ID}

	priceID := subscriptionPriceID(sub)
	tier, mapped := s.catalog.TierForPrice(priceID)
	switch {
	case !mapped:
		zapLog.Info("price not mapped to a plan, keeping current plan", zap.String("price_id", priceID), zap.String("plan", string(t.Plan)))
	case tier != t.Plan:
		fields["plan"] = tier
		for k, v := range tenant.FeatureColumns(s.catalog.FeaturesFor(tier)) {
			fields[k] = v
		}
	}

	next, ok := mapSubscriptionStatus(sub.Status)
	if ok && next != t.Status {
		previous := t.Plan
		applied, err := s.transition(ctx, t, next, fields)
		if err != nil {
			return err
		}
		if applied {
			s.recordPlanChange(ctx, t.ID, previous, fields)
			return nil
		}
		// status refused; the plan still follows the subscription
	}

	if err := s.tenants.Update(ctx, t.ID, fields); err != nil {
		return err
	}
	s.recordPlanChange(ctx, t.ID, t.Plan, fields)
	return nil
}

func (s *Service) SubscriptionDeleted(ctx context.Context, sub *stripe.Subscription) error {
	zapLog := logger.FromContext(ctx).With(zap.String("subscription", sub.ID))

	t, err := s.resolveSubscription(ctx, sub)
	if err != nil {
		return err
	}
	if t == nil {
		zapLog.Warn("subscription deleted for unknown tenant, ignoring")
		return nil
	}
	if s.stale(ctx, t, sub, "customer.subscription.deleted") {
		return nil
	}

	wasCancelled := t.Status == tenant.Cancelled
	applied, err := s.transition(ctx, t, tenant.Cancelled, nil)
	if err != nil || !applied || wasCancelled {
		return err
	}

	s.bestEffort(ctx, t, "subscription_cancelled_email", func() error {
		return s.send(ctx, notification.SubscriptionCancelled, t.OwnerEmail, s.mailData(t))
	})

	return nil
}

// InvoicePaid records the invoice as PAID and reactivates the tenant if needed.
func (s *Service) InvoicePaid(ctx context.Context, in *stripe.Invoice) error {
	zapLog := logger.FromContext(ctx).With(zap.String("invoice", in.ID))
	if in.ID == "" {
		return errutil.BadRequest("invoice without id", ErrMissingExternalID)
	}

	t, err := s.resolve(ctx, customerID(in.Customer), "", in.Metadata)
	if err != nil {
		return err
	}
	if t == nil {
		zapLog.Warn("invoice paid for unknown tenant, ignoring")
		return nil
	}

	now := s.now().UTC()
	amount := FromMinorUnits(in.AmountPaid, string(in.Currency))
	inv, err := s.UpsertInvoice(ctx, &Invoice{
		TenantID:   t.ID,
		ExternalID: in.ID,
		Number:     in.Number,
		Status:     Paid,
		Plan:       t.Plan,
		Amount:     amount.StringFixed(2),
		Currency:   s.currency(string(in.Currency)),
		Document:   in.HostedInvoiceURL,
		PaidAt:     &now,
	})
	if err != nil {
		return err
	}
	_ = s.activity.Record(ctx, t.ID, activity.InvoiceRecorded, map[string]any{
		"external_id": in.ID,
		"status":      inv.Status,
	})

	if t.Status != tenant.Active {
		if _, err := s.transition(ctx, t, tenant.Active, map[string]any{
			"last_payment_at": now,
			"next_billing_at": now.AddDate(0, 1, 0),
		}); err != nil {
			return err
		}
	}

	s.bestEffort(ctx, t, "invoice_paid_email", func() error {
		data := s.mailData(t)
		data.Amount = inv.Amount
		data.Currency = inv.Currency
		data.InvoiceNumber = inv.Number
		return s.send(ctx, notification.PaymentConfirmed, t.OwnerEmail, data)
	})

	return nil
}

// InvoicePaymentFailed records the invoice as FAILED and asks the owner to
// update their payment details.
func (s *Service) InvoicePaymentFailed(ctx context.Context, in *stripe.Invoice) error {
	zapLog := logger.FromContext(ctx).With(zap.String("invoice", in.ID))
	if in.ID == "" {
		return errutil.BadRequest("invoice without id", ErrMissingExternalID)
	}

	t, err := s.resolve(ctx, customerID(in.Customer), "", in.Metadata)
	if err != nil {
		return err
	}
	if t == nil {
		zapLog.Warn("invoice payment failed for unknown tenant, ignoring")
		return nil
	}

	amount := FromMinorUnits(in.AmountDue, string(in.Currency))
	inv, err := s.UpsertInvoice(ctx, &Invoice{
		TenantID:   t.ID,
		ExternalID: in.ID,
		Number:     in.Number,
		Status:     Failed,
		Plan:       t.Plan,
		Amount:     amount.StringFixed(2),
		Currency:   s.currency(string(in.Currency)),
		Document:   in.HostedInvoiceURL,
	})
	if err != nil {
		return err
	}
	_ = s.activity.Record(ctx, t.ID, activity.InvoiceRecorded, map[string]any{
		"external_id": in.ID,
		"status":      inv.Status,
	})

	s.bestEffort(ctx, t, "invoice_failed_email", func() error {
		data := s.mailData(t)
		data.Amount = inv.Amount
		data.Currency = inv.Currency
		data.InvoiceNumber = inv.Number
		return s.send(ctx, notification.InvoicePaymentFailed, t.OwnerEmail, data)
	})

	return nil
}

// transition applies a status change. Refused transitions are logged, audited
// and acknowledged: applied is false and err is nil.
func (s *Service) transition(ctx context.Context, t *tenant.Tenant, to tenant.Status, fields map[string]any) (bool, error) {
	from := t.Status
	err := s.tenants.Transition(ctx, t, to, fields)
	if errors.Is(err, tenant.ErrIllegalTransition) {
		_ = s.activity.Record(ctx, t.ID, activity.TenantTransitionRefused, map[string]any{
			"from": from,
			"to":   to,
		})
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if from != to {
		_ = s.activity.Record(ctx, t.ID, activity.TenantStatusChanged, map[string]any{
			"from": from,
			"to":   to,
		})
	}
	return true, nil
}

func (s *Service) recordPlanChange(ctx context.Context, tenantID string, from plan.Tier, fields map[string]any) {
	to, ok := fields["plan"]
	if !ok {
		return
	}
	_ = s.activity.Record(ctx, tenantID, activity.TenantPlanChanged, map[string]any{
		"from": from,
		"to":   to,
	})
}

// bestEffort runs a side effect whose failure must not fail the event.
func (s *Service) bestEffort(ctx context.Context, t *tenant.Tenant, step string, fn func() error) {
	if err := fn(); err != nil {
		logger.FromContext(ctx).Warn("billing side effect failed",
			zap.String("tenant_id", t.ID),
			zap.String("step", step),
			zap.Error(err),
		)
		_ = s.activity.Record(ctx, t.ID, activity.BillingSideEffectFailed, map[string]any{
			"step":  step,
			"error": err.Error(),
		})
	}
}

func (s *Service) resolve(ctx context.Context, customer, subscription string, metadata map[string]string) (*tenant.Tenant, error) {
	return s.tenants.Resolve(ctx, tenant.Ref{
		CustomerID:     customer,
		SubscriptionID: subscription,
		TenantID:       metadata["tenant_id"],
	})
}

// resolveSubscription prefers the tenant that currently holds the
// subscription; customer and metadata lookups are the fallback for a tenant
// whose subscription id is not recorded yet.
func (s *Service) resolveSubscription(ctx context.Context, sub *stripe.Subscription) (*tenant.Tenant, error) {
	if sub.ID != "" {
		t, err := s.tenants.Resolve(ctx, tenant.Ref{SubscriptionID: sub.ID})
		if err != nil || t != nil {
			return t, err
		}
	}
	return s.resolve(ctx, customerID(sub.Customer), "", sub.Metadata)
}

// stale reports an event about a subscription the tenant no longer holds.
// Such events are audited and acknowledged without touching the tenant.
func (s *Service) stale(ctx context.Context, t *tenant.Tenant, sub *stripe.Subscription, event string) bool {
	if t.StripeSubscriptionID == "" || t.StripeSubscriptionID == sub.ID {
		return false
	}
	logger.FromContext(ctx).Warn("event for a superseded subscription, ignoring",
		zap.String("tenant_id", t.ID),
		zap.String("subscription", sub.ID),
		zap.String("current_subscription", t.StripeSubscriptionID),
	)
	_ = s.activity.Record(ctx, t.ID, activity.SubscriptionEventStale, map[string]any{
		"event":                event,
		"subscription":         sub.ID,
		"current_subscription": t.StripeSubscriptionID,
	})
	return true
}

func (s *Service) send(ctx context.Context, kind notification.Kind, to string, data notification.Data) error {
	msg, err := notification.Compose(kind, to, data)
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, msg)
}

func (s *Service) mailData(t *tenant.Tenant) notification.Data {
	return notification.Data{
		TenantID:      t.ID,
		InstituteName: t.Name,
		OwnerName:     t.OwnerName,
		OwnerEmail:    t.OwnerEmail,
		Plan:          string(t.Plan),
		Subdomain:     t.Subdomain,
		PortalURL:     s.config.Billing.PortalURL,
	}
}

func (s *Service) currency(c string) string {
	if c == "" {
		return s.config.Billing.Currency
	}
	return strings.ToLower(c)
}

func partyOf(t *tenant.Tenant) document.Party {
	return document.Party{
		Name:        t.Name,
		Email:       t.OwnerEmail,
		AddressLine: t.AddressLine,
		PostalCode:  t.PostalCode,
		City:        t.City,
		Country:     t.Country,
	}
}
