package redis

import (
	"context"
	"testing"

	"docqa/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := NewClient(context.Background(), config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer rdb.Close()
	assert.NoError(t, HealthCheck(context.Background(), rdb))

	_, err = NewClient(context.Background(), config.RedisConfig{})
	assert.Error(t, err)

	addr := mr.Addr()
	mr.Close()
	_, err = NewClient(context.Background(), config.RedisConfig{Address: addr})
	assert.Error(t, err)
	assert.Error(t, HealthCheck(context.Background(), nil))
}
