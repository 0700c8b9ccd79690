package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/casevault-api/pkg/config"
)

func TestNewRedisDisabled(t *testing.T) {
	client, err := NewRedis(context.Background(), config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestRedisOptions(t *testing.T) {
	opts := options(config.RedisConfig{Host: "cache.internal", Port: 6380, DB: 2})
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, defaultTimeout, opts.ReadTimeout)

	opts = options(config.RedisConfig{Host: "localhost", Port: 6379, Timeout: 300 * time.Millisecond})
	assert.Equal(t, 300*time.Millisecond, opts.DialTimeout)
	assert.Equal(t, 300*time.Millisecond, opts.WriteTimeout)
}
