package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	base := Key("https://example.com/a.pdf", []string{"q1", "q2"}, "answer")
	assert.Len(t, base, 64)
	assert.Equal(t, base, Key("https://example.com/a.pdf", []string{"q1", "q2"}, "answer"))

	for name, other := range map[string]string{
		"order":    Key("https://example.com/a.pdf", []string{"q2", "q1"}, "answer"),
		"format":   Key("https://example.com/a.pdf", []string{"q1", "q2"}, "detailed"),
		"document": Key("https://example.com/b.pdf", []string{"q1", "q2"}, "answer"),
		"split":    Key("https://example.com/a.pdf", []string{"q1q2"}, "answer"),
	} {
		assert.NotEqual(t, base, other, name)
	}
}

func TestCaches(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	mem, err := NewMemoryCache(8, time.Hour)
	require.NoError(t, err)

	for name, c := range map[string]Cache{"redis": NewRedisCache(rdb, time.Hour), "memory": mem} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			got, err := c.Get(ctx, "missing")
			require.NoError(t, err)
			assert.Nil(t, got)

			entry := &Entry{Answers: []string{"30 days", "Yes"}, Strategy: "layout", StoredAt: time.Now().UTC().Truncate(time.Second)}
			require.NoError(t, c.Set(ctx, "k", entry))
			entry.Answers[0] = "mutated"

			got, err = c.Get(ctx, "k")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, []string{"30 days", "Yes"}, got.Answers)
			assert.Equal(t, "layout", got.Strategy)
		})
	}
	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+"k"))
}

func TestRedisCacheExpiryAndCorruption(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	c := NewRedisCache(rdb, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", &Entry{Answers: []string{"a"}}))
	mr.FastForward(2 * time.Minute)
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, mr.Set(keyPrefix+"bad", "{not json"))
	got, err = c.Get(ctx, "bad")
	require.NoError(t, err)
	assert.Nil(t, got)

	mr.Close()
	_, err = c.Get(ctx, "k")
	assert.Error(t, err)
}
