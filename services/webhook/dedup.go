package webhook

import (
	"context"
	"time"

	"beautyhub-controlplane/pkg/config"
	"beautyhub-controlplane/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

const defaultRetention = 72 * time.Hour

// Deduper remembers which event ids were already handled.
type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Remember(ctx context.Context, eventID string) error
}

type redisDeduper struct {
	rdb *redis.Client
	ttl time.Duration
}

type DeduperParams struct {
	fx.In
	Config *config.Config
	Redis  *redis.Client `optional:"true"`
}

func NewDeduper(p DeduperParams) Deduper {
	if p.Redis == nil {
		return noopDeduper{}
	}
	return NewRedisDeduper(p.Redis, p.Config.Stripe.EventRetention)
}

func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) Deduper {
	if ttl <= 0 {
		ttl = defaultRetention
	}
	return &redisDeduper{rdb: rdb, ttl: ttl}
}

func (d *redisDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := d.rdb.Exists(ctx, rediskey.BuildWebhookEventKey(eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *redisDeduper) Remember(ctx context.Context, eventID string) error {
	return d.rdb.Set(ctx, rediskey.BuildWebhookEventKey(eventID), time.Now().UTC().Format(time.RFC3339), d.ttl).Err()
}

type noopDeduper struct{}

func (noopDeduper) Seen(context.Context, string) (bool, error) { return false, nil }

func (noopDeduper) Remember(context.Context, string) error { return nil }
