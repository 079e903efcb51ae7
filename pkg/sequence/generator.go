package sequence

import (
	"context"
	"fmt"
	"time"

	"beautyhub-controlplane/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

// Generator hands out human readable, monotonically increasing document numbers.
type Generator interface {
	NextInvoiceNumber(ctx context.Context) (string, error)
	NextContractNumber(ctx context.Context) (string, error)
}

type RedisGenerator struct {
	rdb *redis.Client
	now func() time.Time
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return &RedisGenerator{
		rdb: p.Redis,
		now: time.Now,
	}
}

func (g *RedisGenerator) NextInvoiceNumber(ctx context.Context) (string, error) {
	return g.nextMonthlyCode(ctx, "INV")
}

func (g *RedisGenerator) NextContractNumber(ctx context.Context) (string, error) {
	return g.nextMonthlyCode(ctx, "CTR")
}

// nextMonthlyCode yields PREFIX-YYMM-NNNN, restarting the counter every month.
func (g *RedisGenerator) nextMonthlyCode(ctx context.Context, prefix string) (string, error) {
	period := g.now().UTC().Format("0601")
	key := rediskey.BuildSequenceKey(prefix, period)

	seq, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("failed to increment %s sequence: %w", prefix, err)
	}

	if seq == 1 {
		// keep the counter around a little longer than the month it numbers
		_ = g.rdb.Expire(ctx, key, 40*24*time.Hour).Err()
	}

	return fmt.Sprintf("%s-%s-%04d", prefix, period, seq), nil
}
