package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"beautyhub-controlplane/pkg/errutil"
	"beautyhub-controlplane/pkg/logger"
	"beautyhub-controlplane/services/billing"
	"beautyhub-controlplane/services/connect"
	"beautyhub-controlplane/services/provisioning"

	"github.com/stripe/stripe-go/v83"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const instrumentationName = "beautyhub-controlplane/services/webhook"

type Outcome string

const (
	Handled   Outcome = "handled"
	Ignored   Outcome = "ignored"
	Duplicate Outcome = "duplicate"
	Failed    Outcome = "failed"
)

// invoice.paid is deliberately absent: the same payment is announced as
// invoice.payment_succeeded.
const (
	checkoutSessionCompleted    = stripe.EventTypeCheckoutSessionCompleted
	paymentIntentSucceeded      = stripe.EventTypePaymentIntentSucceeded
	paymentIntentPaymentFailed  = stripe.EventTypePaymentIntentPaymentFailed
	customerSubscriptionUpdated = stripe.EventTypeCustomerSubscriptionUpdated
	customerSubscriptionDeleted = stripe.EventTypeCustomerSubscriptionDeleted
	invoicePaymentSucceeded     = stripe.EventTypeInvoicePaymentSucceeded
	invoicePaymentFailed        = stripe.EventTypeInvoicePaymentFailed
	accountUpdated              = stripe.EventTypeAccountUpdated
)

type BillingHandler interface {
	PaymentSucceeded(ctx context.Context, pi *stripe.PaymentIntent) error
	PaymentFailed(ctx context.Context, pi *stripe.PaymentIntent) error
	SubscriptionUpdated(ctx context.Context, sub *stripe.Subscription) error
	SubscriptionDeleted(ctx context.Context, sub *stripe.Subscription) error
	InvoicePaid(ctx context.Context, in *stripe.Invoice) error
	InvoicePaymentFailed(ctx context.Context, in *stripe.Invoice) error
}

type ProvisioningHandler interface {
	Provision(ctx context.Context, in provisioning.Onboarding) (*provisioning.Report, error)
}

type ConnectHandler interface {
	AccountUpdated(ctx context.Context, acct *stripe.Account) error
	PaymentCompleted(ctx context.Context, p connect.Payment) error
}

// Router hands each verified event to exactly one handler.
type Router struct {
	billing      BillingHandler
	provisioning ProvisioningHandler
	connect      ConnectHandler
	dedup        Deduper
	tracer       trace.Tracer
	events       metric.Int64Counter
}

type RouterParams struct {
	fx.In
	Billing        *billing.Service
	Provisioning   *provisioning.Orchestrator
	Connect        *connect.Service
	Dedup          Deduper
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

func NewRouter(p RouterParams) (*Router, error) {
	return New(p.Billing, p.Provisioning, p.Connect, p.Dedup, p.TracerProvider, p.MeterProvider)
}

func New(b BillingHandler, prov ProvisioningHandler, conn ConnectHandler, dedup Deduper, tp trace.TracerProvider, mp metric.MeterProvider) (*Router, error) {
	events, err := mp.Meter(instrumentationName).Int64Counter("webhook.events",
		metric.WithDescription("Webhook events received, by type and outcome"),
	)
	if err != nil {
		return nil, err
	}

	if dedup == nil {
		dedup = noopDeduper{}
	}

	return &Router{
		billing:      b,
		provisioning: prov,
		connect:      conn,
		dedup:        dedup,
		tracer:       tp.Tracer(instrumentationName),
		events:       events,
	}, nil
}

// Dispatch routes event to its handler. A nil error means the event may be
// acknowledged; any error asks the processor to deliver it again.
func (r *Router) Dispatch(ctx context.Context, event stripe.Event) (outcome Outcome, err error) {
	ctx, span := r.tracer.Start(ctx, "webhook.Dispatch", trace.WithAttributes(
		attribute.String("event.id", event.ID),
		attribute.String("event.type", string(event.Type)),
	))
	defer span.End()

	zapLog := logger.FromContext(ctx).With(
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
	)

	defer func() {
		if err != nil {
			outcome = Failed
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("event.outcome", string(outcome)))
		r.events.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", string(event.Type)),
			attribute.String("outcome", string(outcome)),
		))
	}()

	if event.ID != "" {
		seen, serr := r.dedup.Seen(ctx, event.ID)
		if serr != nil {
			zapLog.Warn("event de-duplication unavailable", zap.Error(serr))
		}
		if seen {
			zapLog.Info("event already handled, acknowledging")
			return Duplicate, nil
		}
	}

	outcome, err = r.route(ctx, event)
	if err != nil {
		zapLog.Error("event handling failed", zap.Error(err))
		return outcome, err
	}

	if outcome == Handled && event.ID != "" {
		if rerr := r.dedup.Remember(ctx, event.ID); rerr != nil {
			zapLog.Warn("failed to remember handled event", zap.Error(rerr))
		}
	}

	zapLog.Info("event processed", zap.String("outcome", string(outcome)))
	return outcome, nil
}

func (r *Router) route(ctx context.Context, event stripe.Event) (Outcome, error) {
	switch event.Type {
	case checkoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := decode(event, &sess); err != nil {
			return Failed, err
		}
		return r.checkoutCompleted(ctx, &sess)

	case paymentIntentSucceeded, paymentIntentPaymentFailed:
		var pi stripe.PaymentIntent
		if err := decode(event, &pi); err != nil {
			return Failed, err
		}
		if event.Type == paymentIntentSucceeded {
			return Handled, r.billing.PaymentSucceeded(ctx, &pi)
		}
		return Handled, r.billing.PaymentFailed(ctx, &pi)

	case customerSubscriptionUpdated, customerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := decode(event, &sub); err != nil {
			return Failed, err
		}
		if event.Type == customerSubscriptionUpdated {
			return Handled, r.billing.SubscriptionUpdated(ctx, &sub)
		}
		return Handled, r.billing.SubscriptionDeleted(ctx, &sub)

	case invoicePaymentSucceeded, invoicePaymentFailed:
		var in stripe.Invoice
		if err := decode(event, &in); err != nil {
			return Failed, err
		}
		if event.Type == invoicePaymentSucceeded {
			return Handled, r.billing.InvoicePaid(ctx, &in)
		}
		return Handled, r.billing.InvoicePaymentFailed(ctx, &in)

	case accountUpdated:
		var acct stripe.Account
		if err := decode(event, &acct); err != nil {
			return Failed, err
		}
		return Handled, r.connect.AccountUpdated(ctx, &acct)

	default:
		logger.FromContext(ctx).Info("unhandled event type", zap.String("event_type", string(event.Type)))
		return Ignored, nil
	}
}

func (r *Router) checkoutCompleted(ctx context.Context, sess *stripe.CheckoutSession) (Outcome, error) {
	zapLog := logger.FromContext(ctx).With(zap.String("checkout_session_id", sess.ID))

	intent, err := DecodeCheckout(sess)
	if errors.Is(err, ErrNoIntent) {
		zapLog.Info("checkout session without a known intent", zap.Error(err))
		return Ignored, nil
	}
	if err != nil {
		return Failed, err
	}

	switch in := intent.(type) {
	case OnboardingIntent:
		report, err := r.provisioning.Provision(ctx, in.Onboarding)
		if err != nil {
			return Failed, err
		}
		if report != nil && len(report.StepErrors) > 0 {
			zapLog.Warn("tenant provisioned with failed steps",
				zap.String("tenant_id", report.TenantID),
				zap.String("result", report.String()),
			)
		}
		return Handled, nil
	case SubAccountPayment:
		return Handled, r.connect.PaymentCompleted(ctx, in.Payment)
	default:
		return Ignored, nil
	}
}

func decode(event stripe.Event, v any) error {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return errutil.BadRequest("event without data", fmt.Errorf("event %s has no data object", event.ID))
	}
	if err := json.Unmarshal(event.Data.Raw, v); err != nil {
		return errutil.BadRequest("malformed event data", err)
	}
	return nil
}
