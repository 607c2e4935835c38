// Package oracle provides the reference price per symbol.
package oracle

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"papertrade/internal/cache"
	"papertrade/internal/config"
)

// Oracle returns the current reference price of a symbol. Unknown symbols
// fail with apperr.ErrNotFound.
type Oracle interface {
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// DefaultPrices seed the static oracle.
var DefaultPrices = map[string]decimal.Decimal{
	"BTCUSDT": decimal.RequireFromString("43250.50"),
	"ETHUSDT": decimal.RequireFromString("2280.75"),
	"BNBUSDT": decimal.RequireFromString("618.50"),
}

func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// New builds the oracle selected by cfg.Driver. A positive cache_ttl wraps it
// in a Cached oracle over store.
func New(cfg config.OracleConfig, store cache.Store, logger *zap.Logger) Oracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	var base Oracle
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "binance":
		base = NewBinance(cfg, logger)
	default:
		prices := make(map[string]decimal.Decimal, len(cfg.StaticPrices))
		for symbol, price := range cfg.StaticPrices {
			prices[NormalizeSymbol(symbol)] = decimal.NewFromFloat(price)
		}
		if len(prices) == 0 {
			prices = DefaultPrices
		}
		base = NewStatic(prices)
		// static prices never move; caching them buys nothing.
		return base
	}
	if cfg.CacheTTL > 0 && store != nil {
		return NewCached(base, store, cfg.CacheTTL, logger)
	}
	return base
}
