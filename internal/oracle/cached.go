package oracle

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"papertrade/internal/cache"
)

// Cached keeps each symbol's price in a cache.Store for ttl.
type Cached struct {
	next   Oracle
	store  cache.Store
	ttl    time.Duration
	logger *zap.Logger
}

func NewCached(next Oracle, store cache.Store, ttl time.Duration, logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{next: next, store: store, ttl: ttl, logger: logger}
}

func cacheKey(symbol string) string {
	return "price:" + symbol
}

func (c *Cached) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = NormalizeSymbol(symbol)
	key := cacheKey(symbol)
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		// cache outages fall through to the source.
		c.logger.Warn("price cache get failed", zap.String("symbol", symbol), zap.Error(err))
	}
	if ok {
		if price, perr := decimal.NewFromString(string(raw)); perr == nil {
			return price, nil
		}
	}
	price, err := c.next.CurrentPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if err := c.store.Set(ctx, key, []byte(price.String()), c.ttl); err != nil {
		c.logger.Warn("price cache set failed", zap.String("symbol", symbol), zap.Error(err))
	}
	return price, nil
}
