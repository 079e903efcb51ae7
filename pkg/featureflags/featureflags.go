package featureflags

import (
	"context"

	"beautyhub-controlplane/pkg/config"

	"github.com/Flagsmith/flagsmith-go-client/v2"
	"go.uber.org/fx"
)

var Module = fx.Module("featureflags", fx.Provide(ProvideFeatureFlag))

// Product-owned switches evaluated per tenant.
const (
	BillingFailureGracePeriod = "billing_failure_grace_period"
)

type FeatureFlag interface {
	// Enabled reports whether feature is on for identifier. An unconfigured
	// client reports every feature as disabled.
	Enabled(ctx context.Context, identifier, feature string) (bool, error)
}

type featureflag struct {
	client *flagsmith.Client
}

type FeatureParams struct {
	fx.In
	Config *config.Config
}

func ProvideFeatureFlag(p FeatureParams) FeatureFlag {
	if p.Config.Flagsmith.ApiKey == "" {
		return &featureflag{}
	}

	opts := []flagsmith.Option{
		flagsmith.WithAnalytics(),
	}
	if p.Config.Flagsmith.Addr != "" {
		opts = append(opts, flagsmith.WithBaseURL(p.Config.Flagsmith.Addr))
	}

	return &featureflag{
		client: flagsmith.NewClient(p.Config.Flagsmith.ApiKey, opts...),
	}
}

func (s *featureflag) Enabled(ctx context.Context, identifier, feature string) (bool, error) {
	if s.client == nil {
		return false, nil
	}

	flags, err := s.client.GetIdentityFlags(identifier, nil)
	if err != nil {
		return false, err
	}

	return flags.IsFeatureEnabled(feature)
}

// Static is a fixed flag set, used where no flag service is reachable and in tests.
type Static map[string]bool

func (s Static) Enabled(_ context.Context, _ string, feature string) (bool, error) {
	return s[feature], nil
}
