package sequence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newGenerator(t *testing.T, now time.Time) (*RedisGenerator, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return &RedisGenerator{rdb: rdb, now: func() time.Time { return now }}, mr
}

func TestNextInvoiceNumberIncrements(t *testing.T) {
	g, _ := newGenerator(t, time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))

	first, err := g.NextInvoiceNumber(context.Background())
	require.NoError(t, err)
	second, err := g.NextInvoiceNumber(context.Background())
	require.NoError(t, err)

	require.Equal(t, "INV-2603-0001", first)
	require.Equal(t, "INV-2603-0002", second)
}

func TestContractAndInvoiceCountersAreIndependent(t *testing.T) {
	g, mr := newGenerator(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC))

	_, err := g.NextInvoiceNumber(context.Background())
	require.NoError(t, err)
	contract, err := g.NextContractNumber(context.Background())
	require.NoError(t, err)

	require.Equal(t, "CTR-2611-0001", contract)
	require.True(t, mr.Exists("seq:INV:2611"))
	require.Greater(t, mr.TTL("seq:CTR:2611"), time.Duration(0))
}

func TestNextInvoiceNumberRedisDown(t *testing.T) {
	g, mr := newGenerator(t, time.Now())
	mr.Close()

	_, err := g.NextInvoiceNumber(context.Background())
	require.Error(t, err)
}
