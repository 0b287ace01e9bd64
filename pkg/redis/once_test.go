package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *rd.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestMarkOnce(t *testing.T) {
	mr, rdb := newClient(t)
	ctx := context.Background()

	first, err := MarkOnce(ctx, rdb, "k", time.Hour)
	require.NoError(t, err)
	second, err := MarkOnce(ctx, rdb, "k", time.Hour)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
	assert.Equal(t, time.Hour, mr.TTL("k"))
}

func TestWebhookMarks(t *testing.T) {
	mr, rdb := newClient(t)
	ctx := context.Background()
	marks := NewWebhookMarks(rdb, time.Minute)

	seen, err := marks.Seen(ctx, "pk_1", "DONE")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, marks.Mark(ctx, "pk_1", "DONE"))
	seen, err = marks.Seen(ctx, "pk_1", "DONE")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = marks.Seen(ctx, "pk_1", "CANCELED")
	require.NoError(t, err)
	assert.False(t, seen)

	mr.FastForward(2 * time.Minute)
	seen, err = marks.Seen(ctx, "pk_1", "DONE")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestFingerprintSeparatesFields(t *testing.T) {
	assert.NotEqual(t, Fingerprint("ab", "c"), Fingerprint("a", "bc"))
	assert.Len(t, Fingerprint("x"), 32)
	assert.Equal(t, "griff:webhook:seen:abc", WebhookSeenKey("abc"))
	assert.Equal(t, "griff:rate_limit:orders:user:1", RateLimitKey("orders", "user:1"))
}
