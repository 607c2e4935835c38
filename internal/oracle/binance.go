package oracle

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"papertrade/internal/apperr"
	"papertrade/internal/config"
)

const binanceInvalidSymbol = -1121

type binanceTicker struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type binanceError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Binance reads spot ticker prices from the Binance public REST API.
type Binance struct {
	client  *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewBinance(cfg config.OracleConfig, logger *zap.Logger) *Binance {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= 500
		}).
		SetHeader("Accept", "application/json")
	return &Binance{
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

func (b *Binance) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return decimal.Zero, errors.Wrap(apperr.ErrNotFound, "empty symbol")
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return decimal.Zero, errors.Wrap(err, "oracle rate limit")
	}
	var (
		ticker binanceTicker
		apiErr binanceError
	)
	resp, err := b.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&ticker).
		SetError(&apiErr).
		Get("/api/v3/ticker/price")
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "fetch price %s", symbol)
	}
	if resp.IsError() {
		if apiErr.Code == binanceInvalidSymbol || resp.StatusCode() == http.StatusNotFound {
			return decimal.Zero, errors.Wrapf(apperr.ErrNotFound, "symbol %s", symbol)
		}
		b.logger.Warn("oracle http error",
			zap.String("symbol", symbol),
			zap.Int("status", resp.StatusCode()),
			zap.String("msg", apiErr.Msg),
		)
		return decimal.Zero, errors.Errorf("fetch price %s: status %d", symbol, resp.StatusCode())
	}
	price, err := decimal.NewFromString(ticker.Price)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse price %s", symbol)
	}
	if !price.IsPositive() {
		return decimal.Zero, errors.Errorf("fetch price %s: non-positive price %s", symbol, price)
	}
	return price, nil
}
