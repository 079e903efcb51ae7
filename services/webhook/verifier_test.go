package webhook

import (
	"testing"
	"time"

	"beautyhub-controlplane/pkg/config"
	"beautyhub-controlplane/pkg/errutil"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83/webhook"
)

const testSecret = "whsec_unit_test"

const accountPayload = `{"id":"evt_acct","object":"event","type":"account.updated","data":{"object":{"id":"acct_1","object":"account","charges_enabled":true}}}`

func verifierConfig(env string, allowTest bool) *config.Config {
	cfg := &config.Config{AppEnv: env}
	cfg.Stripe.WebhookSecret = testSecret
	cfg.Stripe.TestSignature = "whsec_test_bypass"
	cfg.Stripe.AllowTestSignature = allowTest
	return cfg
}

func sign(t *testing.T, payload []byte, secret string, at time.Time) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: at,
	})
	return signed.Header
}

func TestVerifyAcceptsSignedPayload(t *testing.T) {
	v := NewVerifier(verifierConfig("production", false))
	payload := []byte(accountPayload)

	event, err := v.Verify(payload, sign(t, payload, testSecret, time.Now()))
	require.NoError(t, err)
	require.Equal(t, "evt_acct", event.ID)
	require.EqualValues(t, "account.updated", event.Type)
	require.NotEmpty(t, event.Data.Raw)
}

func TestVerifyRejections(t *testing.T) {
	payload := []byte(accountPayload)
	v := NewVerifier(verifierConfig("production", false))

	cases := map[string]struct {
		signature string
		status    errutil.CoreStatus
		sentinel  error
	}{
		"missing header":  {"", errutil.StatusBadRequest, ErrMissingSignature},
		"wrong secret":    {sign(t, payload, "whsec_other", time.Now()), errutil.StatusBadRequest, ErrInvalidSignature},
		"stale timestamp": {sign(t, payload, testSecret, time.Now().Add(-time.Hour)), errutil.StatusBadRequest, ErrInvalidSignature},
		"garbage":         {"t=1,v1=deadbeef", errutil.StatusBadRequest, ErrInvalidSignature},
		"test sentinel":   {"whsec_test_bypass", errutil.StatusBadRequest, ErrInvalidSignature},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(payload, tc.signature)
			require.ErrorIs(t, err, tc.sentinel)
			require.Equal(t, tc.status, errutil.StatusOf(err))
		})
	}
}

func TestVerifyTamperedPayload(t *testing.T) {
	v := NewVerifier(verifierConfig("production", false))
	payload := []byte(accountPayload)
	header := sign(t, payload, testSecret, time.Now())

	tampered := []byte(`{"id":"evt_acct","object":"event","type":"account.updated","data":{"object":{"id":"acct_2"}}}`)
	_, err := v.Verify(tampered, header)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyMissingSecretIsConfigurationError(t *testing.T) {
	cfg := verifierConfig("production", false)
	cfg.Stripe.WebhookSecret = ""
	v := NewVerifier(cfg)

	_, err := v.Verify([]byte(accountPayload), "t=1,v1=abc")
	require.ErrorIs(t, err, ErrMissingSecret)
	require.Equal(t, errutil.StatusConfiguration, errutil.StatusOf(err))
}

func TestVerifyTestSignature(t *testing.T) {
	t.Run("allowed outside production", func(t *testing.T) {
		v := NewVerifier(verifierConfig("development", true))
		event, err := v.Verify([]byte(accountPayload), "whsec_test_bypass")
		require.NoError(t, err)
		require.Equal(t, "evt_acct", event.ID)
	})

	t.Run("refused in production even when enabled", func(t *testing.T) {
		v := NewVerifier(verifierConfig("production", true))
		_, err := v.Verify([]byte(accountPayload), "whsec_test_bypass")
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	for _, env := range []string{"prod", "staging", "Production", ""} {
		t.Run("refused in "+env+" environment", func(t *testing.T) {
			v := NewVerifier(verifierConfig(env, true))
			_, err := v.Verify([]byte(accountPayload), "whsec_test_bypass")
			require.ErrorIs(t, err, ErrInvalidSignature)
		})
	}

	t.Run("allowed in test environment", func(t *testing.T) {
		v := NewVerifier(verifierConfig("TEST", true))
		_, err := v.Verify([]byte(accountPayload), "whsec_test_bypass")
		require.NoError(t, err)
	})

	t.Run("refused when not enabled", func(t *testing.T) {
		v := NewVerifier(verifierConfig("development", false))
		_, err := v.Verify([]byte(accountPayload), "whsec_test_bypass")
		require.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("malformed bypassed payload", func(t *testing.T) {
		v := NewVerifier(verifierConfig("development", true))
		_, err := v.Verify([]byte("{"), "whsec_test_bypass")
		require.Error(t, err)
		require.Equal(t, errutil.StatusBadRequest, errutil.StatusOf(err))
	})
}
