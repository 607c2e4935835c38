// Package cache is a small byte-value store with TTLs, backed by process
// memory or redis.
package cache

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"papertrade/internal/config"
)

type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// New builds the store selected by cfg.Driver ("memory" or "redis").
func New(cfg config.CacheConfig) Store {
	if strings.EqualFold(strings.TrimSpace(cfg.Driver), "redis") {
		return NewRedis(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, cfg.KeyPrefix)
	}
	return NewMemory()
}
