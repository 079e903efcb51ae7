package webhook

import (
	"encoding/json"
	"errors"

	"beautyhub-controlplane/pkg/config"
	"beautyhub-controlplane/pkg/errutil"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"
	"go.uber.org/zap"
)

var (
	ErrMissingSignature = errors.New("missing signature header")
	ErrMissingSecret    = errors.New("webhook signing secret is not configured")
	ErrInvalidSignature = errors.New("invalid signature")
)

// Verifier authenticates raw webhook payloads.
type Verifier struct {
	secret        string
	testSignature string
	allowTest     bool
}

func NewVerifier(cfg *config.Config) *Verifier {
	allow := cfg.Stripe.AllowTestSignature && cfg.IsDevelopment() && cfg.Stripe.TestSignature != ""
	if allow {
		zap.L().Warn("webhook test signature accepted, never enable this outside development")
	}

	return &Verifier{
		secret:        cfg.Stripe.WebhookSecret,
		testSignature: cfg.Stripe.TestSignature,
		allowTest:     allow,
	}
}

// Verify checks signature against payload and decodes the event.
func (v *Verifier) Verify(payload []byte, signature string) (stripe.Event, error) {
	if signature == "" {
		return stripe.Event{}, errutil.BadRequest("missing signature", ErrMissingSignature)
	}

	if v.allowTest && signature == v.testSignature {
		var event stripe.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return stripe.Event{}, errutil.BadRequest("malformed event", err)
		}
		return event, nil
	}

	if v.secret == "" {
		return stripe.Event{}, errutil.Configuration("webhook secret missing", ErrMissingSecret)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, errutil.BadRequest(ErrInvalidSignature.Error(), errors.Join(ErrInvalidSignature, err))
	}

	return event, nil
}
