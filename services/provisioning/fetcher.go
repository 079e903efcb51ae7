package provisioning

import (
	"context"

	"beautyhub-controlplane/pkg/config"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/subscription"
)

// SubscriptionFetcher loads a processor subscription to read its metadata.
type SubscriptionFetcher interface {
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
}

type stripeFetcher struct{}

func NewSubscriptionFetcher(cfg *config.Config) SubscriptionFetcher {
	stripe.Key = cfg.Stripe.SecretKey
	return stripeFetcher{}
}

func (stripeFetcher) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	return subscription.Get(id, params)
}
