package billing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"beautyhub-controlplane/pkg/config"
	"beautyhub-controlplane/pkg/errutil"
	"beautyhub-controlplane/pkg/featureflags"
	"beautyhub-controlplane/services/activity"
	"beautyhub-controlplane/services/document"
	"beautyhub-controlplane/services/notification"
	"beautyhub-controlplane/services/plan"
	"beautyhub-controlplane/services/tenant"
	"beautyhub-controlplane/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeMailer struct {
	sent []notification.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg notification.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeDocs struct {
	n   int
	err error
}

func (f *fakeDocs) GenerateInvoice(_ context.Context, in document.InvoiceInput) (*document.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.n++
	number := fmt.Sprintf("INV-2601-%04d", f.n)
	return &document.Document{Number: number, Location: "docs/" + number}, nil
}

func (f *fakeDocs) GenerateContract(context.Context, document.ContractInput) (*document.Document, error) {
	return nil, errors.New("not used")
}

type harness struct {
	svc    *Service
	db     *gorm.DB
	mailer *fakeMailer
	docs   *fakeDocs
	flags  featureflags.Static
	now    time.Time
}

func newHarness(t *testing.T) *harness {
	db := testutil.NewTestDB(t, &tenant.Tenant{}, &Invoice{}, &activity.Entry{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	catalog := plan.Default()
	catalog.PriceTiers["price_solo"] = plan.Solo
	catalog.PriceTiers["price_team"] = plan.Team

	cfg := &config.Config{}
	cfg.Billing.Currency = "eur"
	cfg.Billing.PortalURL = "https://billing.example.com/portal"

	h := &harness{
		db:     db,
		mailer: &fakeMailer{},
		docs:   &fakeDocs{},
		flags:  featureflags.Static{},
		now:    time.Date(2026, 1, 31, 9, 0, 0, 0, time.UTC),
	}
	h.svc = NewService(ServiceParams{
		DB:       db,
		Node:     node,
		Config:   cfg,
		Catalog:  catalog,
		Tenants:  tenant.NewStore(tenant.StoreParams{DB: db}),
		Docs:     h.docs,
		Mailer:   h.mailer,
		Activity: activity.NewRecorder(activity.Params{DB: db, Node: node}),
		Flags:    h.flags,
	})
	h.svc.now = func() time.Time { return h.now }
	return h
}

func (h *harness) seed(t *testing.T, id string, status tenant.Status) *tenant.Tenant {
	tn := &tenant.Tenant{
		ID:                   id,
		Name:                 "Institute " + id,
		Slug:                 id,
		Subdomain:            id + ".beautyhub.test",
		Plan:                 plan.Solo,
		Status:               status,
		OwnerEmail:           id + "@example.com",
		StripeCustomerID:     "cus_" + id,
		StripeSubscriptionID: "sub_" + id,
		Features:             plan.Default().FeaturesFor(plan.Solo),
	}
	require.NoError(t, h.db.Create(tn).Error)
	return tn
}

func (h *harness) tenant(t *testing.T, id string) *tenant.Tenant {
	var tn tenant.Tenant
	require.NoError(t, h.db.First(&tn, "id = ?", id).Error)
	return &tn
}

func (h *harness) count(t *testing.T, model any, query ...any) int64 {
	var n int64
	q := h.db.Model(model)
	if len(query) > 0 {
		q = q.Where(query[0], query[1:]...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func paymentIntent(tenantID string) *stripe.PaymentIntent {
	return &stripe.PaymentIntent{
		ID:       "pi_" + tenantID,
		Amount:   3900,
		Currency: "eur",
		Metadata: map[string]string{"tenant_id": tenantID},
	}
}

func subscription(id, customer, priceID string, status stripe.SubscriptionStatus) *stripe.Subscription {
	return &stripe.Subscription{
		ID:       id,
		Customer: &stripe.Customer{ID: customer},
		Status:   status,
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{{Price: &stripe.Price{ID: priceID}}},
		},
	}
}

func TestPaymentSucceededUnknownTenant(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.svc.PaymentSucceeded(context.Background(), paymentIntent("ghost")))
	require.Zero(t, h.count(t, &Invoice{}))
	require.Zero(t, h.count(t, &activity.Entry{}))
	require.Empty(t, h.mailer.sent)
}

func TestPaymentSucceededActivatesTrial(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "t1", tenant.Trial)

	require.NoError(t, h.svc.PaymentSucceeded(context.Background(), paymentIntent("t1")))

	got := h.tenant(t, "t1")
	require.Equal(t, tenant.Active, got.Status)
	require.NotNil(t, got.LastPaymentAt)
	require.True(t, got.NextBillingAt.Equal(time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)))

	var inv Invoice
	require.NoError(t, h.db.First(&inv, "external_id = ?", "pi_t1").Error)
	require.Equal(t, Paid, inv.Status)
	require.Equal(t, "39.00", inv.Amount)
	require.Equal(t, "INV-2601-0001", inv.Number)

	require.Len(t, h.mailer.sent, 1)
	require.Equal(t, "t1@example.com", h.mailer.sent[0].To)
	require.Equal(t, int64(1), h.count(t, &activity.Entry{}, "action = ?", activity.TenantStatusChanged))
}

func TestPaymentSucceededSideEffectsAreBestEffort(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "t1", tenant.Suspended)
	h.docs.err = errors.New("renderer down")
	h.mailer.err = errors.New("smtp down")

	require.NoError(t, h.svc.PaymentSucceeded(context.Background(), paymentIntent("t1")))

	require.Equal(t, tenant.Active, h.tenant(t, "t1").Status)
	require.Zero(t, h.count(t, &Invoice{}))
	require.Equal(t, int64(2), h.count(t, &activity.Entry{}, "action = ?", activity.BillingSideEffectFailed))
}

func TestPaymentSucceededDoesNotReviveCancelled(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "t1", tenant.Cancelled)

	require.NoError(t, h.svc.PaymentSucceeded(context.Background(), paymentIntent("t1")))

	require.Equal(t, tenant.Cancelled, h.tenant(t, "t1").Status)
	require.Equal(t, int64(1), h.count(t, &activity.Entry{}, "action = ?", activity.TenantTransitionRefused))
	require.Empty(t, h.mailer.sent)
}

func TestPaymentFailedSuspends(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "t1", tenant.Active)

	pi := paymentIntent("t1")
	pi.LastPaymentError = &stripe.Error{Code: stripe.ErrorCodeCardDeclined, Msg: "Your card was declined."}
	require.NoError(t, h.svc.PaymentFailed(context.Background(), pi))

	require.Equal(t, tenant.Suspended, h.tenant(t, "t1").Status)
	require.Len(t, h.mailer.sent, 1)
	require.Contains(t, h.mailer.sent[0].HTML, "Your card was declined.")
	require.Contains(t, h.mailer.sent[0].HTML, "https://billing.example.com/portal")
}

func TestPaymentFailedGracePeriod(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "t1", tenant.Active)
	h.seed(t, "t2", tenant.Active)

	transient := &stripe.Error{Type: stripe.ErrorTypeAPI}

	// flag off: reference behaviour
	pi := paymentIntent("t1")
	pi.LastPaymentError = transient
	require.NoError(t, h.svc.PaymentFailed(context.Background(), pi))
	require.Equal(t, tenant.Suspended, h.tenant(t, "t1").Status)

	h.flags[featureflags.BillingFailureGracePeriod] = true
	pi = paymentIntent("t2")
	pi.LastPaymentError = transient
	require.NoError(t, h.svc.PaymentFailed(context.Background(), pi))
	require.Equal(t, tenant.Active, h.tenant(t, "t2").Status)
	require.Equal(t, int64(1), h.count(t, &activity.Entry{}, "action = ?", activity.PaymentGracePeriod))

	// hard declines are never deferred
	pi = paymentIntent("t2")
	pi.LastPaymentError = &stripe.Error{Code: stripe.ErrorCodeCardDeclined}
	require.NoError(t, h.svc.PaymentFailed(context.Background(), pi))
	require.Equal(t, tenant.Suspended, h.tenant(t, "t2").Status)
}

func TestSubscriptionUpdatedMapsPlan(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "t1", tenant.Active)

	require.NoError(t, h.svc.SubscriptionUpdated(context.Background(),
		subscription("sub_new", "cus_t1", "price_team", stripe.SubscriptionStatusActive)))

	got := h.tenant(t, "t1")
	require.Equal(t, plan.Team, got.Plan)
	require.Equal(t, "sub_new", got.StripeSubscriptionID)
	require.Equal(t, plan.Default().FeaturesFor(plan.Team), got.Features)
	require.Equal(t, int64(1), h.count(t, &activity.Entry{}, "action = ?", activity.TenantPlanChanged))
}

func TestSubscriptionUpdatedUnmappedPriceKeepsPlan(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "t1", tenant.Active)

	require.NoError(t, h.svc.SubscriptionUpdated(context.Background(),
		subscription("sub_t1", "cus_t1", "price_legacy", stripe.SubscriptionStatusActive)))

	got := h.tenant(t, "t1")
	require.Equal(t, plan.Solo, got.Plan)
	require.Equal(t, tenant.Active, got.Status)
}

func TestSubscriptionUpdatedStatusMapping(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "t1", tenant.Trial)
	h.seed(t, "t2", tenant.Active)
	h.seed(t, "t3", tenant.Suspended)

	require.NoError(t, h.svc.SubscriptionUpdated(context.Background(),
		subscription("sub_t1", "cus_t1", "price_solo", stripe.SubscriptionStatusActive)))
	require.Equal(t, tenant.Active, h.tenant(t, "t1").Status)

	// ACTIVE -> TRIAL is not an edge; the plan still follows
	require.NoError(t, h.svc.SubscriptionUpdated(context.Background(),
		subscription("sub_t2", "cus_t2", "price_team", stripe.SubscriptionStatusTrialing)))
	got := h.tenant(t, "t2")
	require.Equal(t, tenant.Active, got.Status)
	require.Equal(t, plan.Team, got.Plan)

	// past_due is not mapped
	require.NoError(t, h.svc.SubscriptionUpdated(context.Background(),
		subscription("sub_t3", "cus_t3", "price_solo", stripe.SubscriptionStatusPastDue)))
	require.Equal(t, tenant.Suspended, h.tenant(t, "t3").Status)

	require.NoError(t, h.svc.SubscriptionUpdated(context.Background(),
		subscription("sub_t3", "cus_t3", "price_solo", stripe.SubscriptionStatusCanceled)))
	require.Equal(t, tenant.Cancelled, h.tenant(t, "t3").Status)
}

func TestSubscriptionUpdatedFallsBackToSubscriptionID(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "t1", tenant.Trial)

	require.NoError(t, h.svc.SubscriptionUpdated(context.Background(),
		subscription("sub_t1", "cus_unknown", "price_solo", stripe.SubscriptionStatusActive)))
	require.Equal(t, tenant.Active, h.tenant(t, "t1").Status)
}

func TestSubscriptionDeleted(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "t1", tenant.Active)

	sub := subscription("sub_t1", "cus_t1", "price_solo", stripe.SubscriptionStatusCanceled)
	require.NoError(t, h.svc.SubscriptionDeleted(context.Background(), sub))
	require.Equal(t, tenant.Cancelled, h.tenant(t, "t1").Status)
	require.Len(t, h.mailer.sent, 1)

	// redelivery does not mail again
	require.NoError(t, h.svc.SubscriptionDeleted(context.Background(), sub))
	require.Len(t, h.mailer.sent, 1)
}

func TestSubscriptionEventsForSupersededSubscription(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "t1", tenant.Active)
	ctx := context.Background()

	require.NoError(t, h.svc.SubscriptionDeleted(ctx,
		subscription("sub_old", "cus_t1", "price_solo", stripe.SubscriptionStatusCanceled)))
	require.NoError(t, h.svc.SubscriptionUpdated(ctx,
		subscription("sub_old", "cus_t1", "price_team", stripe.SubscriptionStatusPastDue)))
	require.NoError(t, h.svc.SubscriptionUpdated(ctx,
		subscription("sub_old", "cus_t1", "price_team", stripe.SubscriptionStatusCanceled)))

	got := h.tenant(t, "t1")
	require.Equal(t, tenant.Active, got.Status)
	require.Equal(t, plan.Solo, got.Plan)
	require.Equal(t, "sub_t1", got.StripeSubscriptionID)
	require.Empty(t, h.mailer.sent)
	require.Equal(t, int64(3), h.count(t, &activity.Entry{}, "action = ?", activity.SubscriptionEventStale))
	require.Zero(t, h.count(t, &activity.Entry{}, "action = ?", activity.TenantStatusChanged))
}

func TestSubscriptionEventsAdoptFirstSubscription(t *testing.T) {
	h := newHarness(t)
	tn := h.seed(t, "t1", tenant.Active)
	require.NoError(t, h.db.Model(tn).Update("stripe_subscription_id", "").Error)

	require.NoError(t, h.svc.SubscriptionDeleted(context.Background(),
		subscription("sub_first", "cus_t1", "price_solo", stripe.SubscriptionStatusCanceled)))

	require.Equal(t, tenant.Cancelled, h.tenant(t, "t1").Status)
	require.Zero(t, h.count(t, &activity.Entry{}, "action = ?", activity.SubscriptionEventStale))
}

func TestInvoicePaidIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "t1", tenant.Suspended)

	in := &stripe.Invoice{
		ID:         "in_1",
		Customer:   &stripe.Customer{ID: "cus_t1"},
		AmountPaid: 5900,
		Currency:   "eur",
		Number:     "ABC-0001",
	}
	require.NoError(t, h.svc.InvoicePaid(context.Background(), in))
	require.NoError(t, h.svc.InvoicePaid(context.Background(), in))

	var invoices []Invoice
	require.NoError(t, h.db.Find(&invoices, "external_id = ?", "in_1").Error)
	require.Len(t, invoices, 1)
	require.Equal(t, Paid, invoices[0].Status)
	require.Equal(t, "59.00", invoices[0].Amount)
	require.Equal(t, tenant.Active, h.tenant(t, "t1").Status)
}

func TestInvoicePaymentFailedNeverDowngradesPaid(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "t1", tenant.Active)

	in := &stripe.Invoice{ID: "in_2", Customer: &stripe.Customer{ID: "cus_t1"}, AmountDue: 3900, AmountPaid: 3900}

	require.NoError(t, h.svc.InvoicePaymentFailed(context.Background(), in))
	var inv Invoice
	require.NoError(t, h.db.First(&inv, "external_id = ?", "in_2").Error)
	require.Equal(t, Failed, inv.Status)
	require.Len(t, h.mailer.sent, 1)
	require.Contains(t, h.mailer.sent[0].HTML, "https://billing.example.com/portal")

	require.NoError(t, h.svc.InvoicePaid(context.Background(), in))
	require.NoError(t, h.svc.InvoicePaymentFailed(context.Background(), in))
	require.NoError(t, h.db.First(&inv, "external_id = ?", "in_2").Error)
	require.Equal(t, Paid, inv.Status)
	require.Equal(t, int64(1), h.count(t, &Invoice{}))
}

func TestEventsWithoutIDAreRejected(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "t1", tenant.Active)
	h.seed(t, "t2", tenant.Suspended)
	ctx := context.Background()

	failed := &stripe.Invoice{ID: "in_t1", Customer: &stripe.Customer{ID: "cus_t1"}, AmountDue: 3900}
	require.NoError(t, h.svc.InvoicePaymentFailed(ctx, failed))

	cases := map[string]func() error{
		"invoice paid": func() error {
			return h.svc.InvoicePaid(ctx, &stripe.Invoice{Customer: &stripe.Customer{ID: "cus_t2"}, AmountPaid: 100})
		},
		"invoice failed": func() error {
			return h.svc.InvoicePaymentFailed(ctx, &stripe.Invoice{Customer: &stripe.Customer{ID: "cus_t2"}, AmountDue: 100})
		},
		"payment succeeded": func() error {
			pi := paymentIntent("t2")
			pi.ID = ""
			return h.svc.PaymentSucceeded(ctx, pi)
		},
		"upsert": func() error {
			_, err := h.svc.UpsertInvoice(ctx, &Invoice{TenantID: "t2", Status: Paid})
			return err
		},
	}

	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			err := fn()
			require.ErrorIs(t, err, ErrMissingExternalID)
			require.Equal(t, errutil.StatusBadRequest, errutil.StatusOf(err))
		})
	}

	var inv Invoice
	require.NoError(t, h.db.First(&inv, "external_id = ?", "in_t1").Error)
	require.Equal(t, Failed, inv.Status)
	require.Equal(t, "t1", inv.TenantID)
	require.Equal(t, int64(1), h.count(t, &Invoice{}))
	require.Equal(t, tenant.Suspended, h.tenant(t, "t2").Status)
}

func TestFromMinorUnits(t *testing.T) {
	require.Equal(t, "39.00", FromMinorUnits(3900, "eur").StringFixed(2))
	require.Equal(t, "500", FromMinorUnits(500, "JPY").String())
	require.Equal(t, "1250", FromMinorUnits(1250, "krw").String())
	require.Equal(t, "0.05", FromMinorUnits(5, "usd").StringFixed(2))
}

func TestInvoiceUnknownTenant(t *testing.T) {
	h := newHarness(t)

	in := &stripe.Invoice{ID: "in_3", Customer: &stripe.Customer{ID: "cus_ghost"}}
	require.NoError(t, h.svc.InvoicePaid(context.Background(), in))
	require.NoError(t, h.svc.InvoicePaymentFailed(context.Background(), in))
	require.Zero(t, h.count(t, &Invoice{}))
}

// Every handler, from every starting status, either keeps the status or
// moves it along a documented edge.
func TestHandlersOnlyFollowDocumentedEdges(t *testing.T) {
	handlers := map[string]func(s *Service, id string) error{
		"payment_succeeded": func(s *Service, id string) error {
			return s.PaymentSucceeded(context.Background(), paymentIntent(id))
		},
		"payment_failed": func(s *Service, id string) error {
			return s.PaymentFailed(context.Background(), paymentIntent(id))
		},
		"subscription_active": func(s *Service, id string) error {
			return s.SubscriptionUpdated(context.Background(), subscription("sub_"+id, "cus_"+id, "price_solo", stripe.SubscriptionStatusActive))
		},
		"subscription_trialing": func(s *Service, id string) error {
			return s.SubscriptionUpdated(context.Background(), subscription("sub_"+id, "cus_"+id, "price_solo", stripe.SubscriptionStatusTrialing))
		},
		"subscription_deleted": func(s *Service, id string) error {
			return s.SubscriptionDeleted(context.Background(), subscription("sub_"+id, "cus_"+id, "price_solo", stripe.SubscriptionStatusCanceled))
		},
		"invoice_paid": func(s *Service, id string) error {
			return s.InvoicePaid(context.Background(), &stripe.Invoice{ID: "in_" + id, Customer: &stripe.Customer{ID: "cus_" + id}})
		},
		"invoice_failed": func(s *Service, id string) error {
			return s.InvoicePaymentFailed(context.Background(), &stripe.Invoice{ID: "in_" + id, Customer: &stripe.Customer{ID: "cus_" + id}})
		},
	}

	for name, handle := range handlers {
		for _, from := range []tenant.Status{tenant.Trial, tenant.Active, tenant.Suspended, tenant.Cancelled} {
			t.Run(name+"_"+string(from), func(t *testing.T) {
				h := newHarness(t)
				h.seed(t, "t1", from)

				require.NoError(t, handle(h.svc, "t1"))
				to := h.tenant(t, "t1").Status
				require.True(t, tenant.CanTransition(from, to), "%s produced %s -> %s", name, from, to)
			})
		}
	}
}
