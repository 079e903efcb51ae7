package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"beautyhub-controlplane/services/connect"
	"beautyhub-controlplane/services/provisioning"
	"beautyhub-controlplane/services/testutil"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/trace/noop"
)

type recorder struct {
	calls      []string
	onboarding []provisioning.Onboarding
	payments   []connect.Payment
	err        error
}

func (r *recorder) hit(name string) error {
	r.calls = append(r.calls, name)
	return r.err
}

func (r *recorder) PaymentSucceeded(context.Context, *stripe.PaymentIntent) error {
	return r.hit("PaymentSucceeded")
}

func (r *recorder) PaymentFailed(context.Context, *stripe.PaymentIntent) error {
	return r.hit("PaymentFailed")
}

func (r *recorder) SubscriptionUpdated(context.Context, *stripe.Subscription) error {
	return r.hit("SubscriptionUpdated")
}

func (r *recorder) SubscriptionDeleted(context.Context, *stripe.Subscription) error {
	return r.hit("SubscriptionDeleted")
}

func (r *recorder) InvoicePaid(context.Context, *stripe.Invoice) error {
	return r.hit("InvoicePaid")
}

func (r *recorder) InvoicePaymentFailed(context.Context, *stripe.Invoice) error {
	return r.hit("InvoicePaymentFailed")
}

func (r *recorder) Provision(_ context.Context, in provisioning.Onboarding) (*provisioning.Report, error) {
	r.onboarding = append(r.onboarding, in)
	if err := r.hit("Provision"); err != nil {
		return nil, err
	}
	return &provisioning.Report{TenantID: "t-1"}, nil
}

func (r *recorder) AccountUpdated(context.Context, *stripe.Account) error {
	return r.hit("AccountUpdated")
}

func (r *recorder) PaymentCompleted(_ context.Context, p connect.Payment) error {
	r.payments = append(r.payments, p)
	return r.hit("PaymentCompleted")
}

type brokenDeduper struct{}

func (brokenDeduper) Seen(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

func (brokenDeduper) Remember(context.Context, string) error {
	return errors.New("connection refused")
}

func newRouter(t *testing.T, rec *recorder, dedup Deduper) (*Router, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	r, err := New(rec, rec, rec, dedup, noop.NewTracerProvider(), mp)
	require.NoError(t, err)
	return r, reader
}

func event(id string, typ stripe.EventType, object any) stripe.Event {
	raw, _ := json.Marshal(object)
	return stripe.Event{ID: id, Type: typ, Data: &stripe.EventData{Raw: raw}}
}

// counts returns the webhook.events data points keyed by "type/outcome".
func counts(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "webhook.events" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				typ, _ := dp.Attributes.Value(attribute.Key("type"))
				outcome, _ := dp.Attributes.Value(attribute.Key("outcome"))
				out[typ.AsString()+"/"+outcome.AsString()] += dp.Value
			}
		}
	}
	return out
}

func TestDispatchRoutesEachTypeToOneHandler(t *testing.T) {
	cases := []struct {
		typ    stripe.EventType
		object any
		want   string
	}{
		{"payment_intent.succeeded", map[string]any{"id": "pi_1"}, "PaymentSucceeded"},
		{"payment_intent.payment_failed", map[string]any{"id": "pi_1"}, "PaymentFailed"},
		{"customer.subscription.updated", map[string]any{"id": "sub_1"}, "SubscriptionUpdated"},
		{"customer.subscription.deleted", map[string]any{"id": "sub_1"}, "SubscriptionDeleted"},
		{"invoice.payment_succeeded", map[string]any{"id": "in_1"}, "InvoicePaid"},
		{"invoice.payment_failed", map[string]any{"id": "in_1"}, "InvoicePaymentFailed"},
		{"account.updated", map[string]any{"id": "acct_1"}, "AccountUpdated"},
		{"checkout.session.completed", map[string]any{
			"id":       "cs_1",
			"metadata": map[string]string{"intent": "onboarding", "plan": "SOLO"},
		}, "Provision"},
		{"checkout.session.completed", map[string]any{
			"id":       "cs_2",
			"metadata": map[string]string{"intent": "sub_account_payment", "kind": "gift_card", "entity_id": "gc_1"},
		}, "PaymentCompleted"},
	}

	for _, tc := range cases {
		t.Run(string(tc.typ)+"_"+tc.want, func(t *testing.T) {
			rec := &recorder{}
			r, _ := newRouter(t, rec, nil)

			outcome, err := r.Dispatch(context.Background(), event("evt_1", tc.typ, tc.object))
			require.NoError(t, err)
			require.Equal(t, Handled, outcome)
			require.Equal(t, []string{tc.want}, rec.calls)
		})
	}
}

func TestDispatchIgnoresUnknownTypesAndIntents(t *testing.T) {
	rec := &recorder{}
	r, reader := newRouter(t, rec, nil)
	ctx := context.Background()

	outcome, err := r.Dispatch(ctx, event("evt_1", "customer.created", map[string]any{"id": "cus_1"}))
	require.NoError(t, err)
	require.Equal(t, Ignored, outcome)

	outcome, err = r.Dispatch(ctx, event("evt_2", "invoice.paid", map[string]any{"id": "in_1"}))
	require.NoError(t, err)
	require.Equal(t, Ignored, outcome)

	outcome, err = r.Dispatch(ctx, event("evt_3", "checkout.session.completed", map[string]any{
		"id":       "cs_1",
		"metadata": map[string]string{"plan": "SOLO"},
	}))
	require.NoError(t, err)
	require.Equal(t, Ignored, outcome)

	outcome, err = r.Dispatch(ctx, event("evt_4", "checkout.session.completed", map[string]any{
		"id":       "cs_2",
		"metadata": map[string]string{"intent": "sub_account_payment", "kind": "voucher", "entity_id": "v_1"},
	}))
	require.NoError(t, err)
	require.Equal(t, Ignored, outcome)

	require.Empty(t, rec.calls)
	require.Equal(t, int64(1), counts(t, reader)["customer.created/ignored"])
	require.Equal(t, int64(2), counts(t, reader)["checkout.session.completed/ignored"])
}

func TestDispatchHandlerErrorRequestsRedelivery(t *testing.T) {
	rec := &recorder{err: errors.New("database is down")}
	client, _ := testutil.NewTestRedis(t)
	r, reader := newRouter(t, rec, NewRedisDeduper(client, time.Hour))
	ctx := context.Background()

	ev := event("evt_fail", "invoice.payment_succeeded", map[string]any{"id": "in_1"})
	outcome, err := r.Dispatch(ctx, ev)
	require.Error(t, err)
	require.Equal(t, Failed, outcome)
	require.Equal(t, int64(1), counts(t, reader)["invoice.payment_succeeded/failed"])

	// a failed event is not remembered, so the redelivery is processed
	rec.err = nil
	outcome, err = r.Dispatch(ctx, ev)
	require.NoError(t, err)
	require.Equal(t, Handled, outcome)
	require.Len(t, rec.calls, 2)
}

func TestDispatchSkipsRedeliveredEvents(t *testing.T) {
	rec := &recorder{}
	client, mr := testutil.NewTestRedis(t)
	r, reader := newRouter(t, rec, NewRedisDeduper(client, time.Hour))
	ctx := context.Background()

	ev := event("evt_dup", "checkout.session.completed", map[string]any{
		"id":       "cs_1",
		"metadata": map[string]string{"intent": "onboarding", "plan": "DUO"},
	})

	outcome, err := r.Dispatch(ctx, ev)
	require.NoError(t, err)
	require.Equal(t, Handled, outcome)

	outcome, err = r.Dispatch(ctx, ev)
	require.NoError(t, err)
	require.Equal(t, Duplicate, outcome)

	require.Len(t, rec.onboarding, 1)
	require.True(t, mr.Exists("webhook:event:evt_dup"))
	require.Equal(t, time.Hour, mr.TTL("webhook:event:evt_dup"))
	require.Equal(t, int64(1), counts(t, reader)["checkout.session.completed/duplicate"])

	// the key expiring lets handlers see the event again
	mr.FastForward(2 * time.Hour)
	outcome, err = r.Dispatch(ctx, ev)
	require.NoError(t, err)
	require.Equal(t, Handled, outcome)
	require.Len(t, rec.onboarding, 2)
}

func TestDispatchSurvivesRedisOutage(t *testing.T) {
	rec := &recorder{}
	r, _ := newRouter(t, rec, brokenDeduper{})

	outcome, err := r.Dispatch(context.Background(), event("evt_1", "account.updated", map[string]any{"id": "acct_1"}))
	require.NoError(t, err)
	require.Equal(t, Handled, outcome)
	require.Equal(t, []string{"AccountUpdated"}, rec.calls)
}

func TestDispatchRejectsEventsWithoutData(t *testing.T) {
	rec := &recorder{}
	r, _ := newRouter(t, rec, nil)

	outcome, err := r.Dispatch(context.Background(), stripe.Event{ID: "evt_1", Type: "invoice.payment_failed"})
	require.Error(t, err)
	require.Equal(t, Failed, outcome)
	require.Empty(t, rec.calls)
}
