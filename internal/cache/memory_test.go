package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrade/internal/config"
)

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "price:BTCUSDT", []byte("43250.5"), time.Second))
	v, ok, err := m.Get(ctx, "price:BTCUSDT")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "43250.5", string(v))

	now = now.Add(time.Second)
	_, ok, err = m.Get(ctx, "price:BTCUSDT")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryNoTTLAndDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "k", []byte("v"), 0))
	_, ok, _ := m.Get(ctx, "k")
	assert.True(t, ok)
	require.NoError(t, m.Delete(ctx, "k"))
	_, ok, _ = m.Get(ctx, "k")
	assert.False(t, ok)
}

func TestNewSelectsDriver(t *testing.T) {
	assert.IsType(t, &Memory{}, New(config.CacheConfig{Driver: "memory"}))
	r, ok := New(config.CacheConfig{Driver: "redis", RedisAddr: "127.0.0.1:0", KeyPrefix: "pt:"}).(*Redis)
	require.True(t, ok)
	assert.Equal(t, "pt:", r.Prefix)
	_ = r.Close()
}
