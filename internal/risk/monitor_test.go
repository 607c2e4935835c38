package risk

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"papertrade/internal/apperr"
	"papertrade/internal/config"
	"papertrade/internal/ledger"
	"papertrade/internal/models"
	"papertrade/internal/oracle"
	"papertrade/internal/position"
	"papertrade/internal/repository/memory"
	"papertrade/internal/settings"
)

type countingOracle struct {
	oracle.Oracle
	calls map[string]int
}

func (c *countingOracle) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	c.calls[symbol]++
	return c.Oracle.CurrentPrice(ctx, symbol)
}

type env struct {
	repo    *memory.Store
	ledger  *ledger.Ledger
	prices  *oracle.Static
	manager *position.Manager
	monitor *Monitor
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newEnv(t *testing.T, owners ...uint64) *env {
	t.Helper()
	repo := memory.New()
	l := ledger.New(repo, ledger.ConfigFrom(config.AccountsConfig{InitialCapital: config.InitialCapitalConfig{
		Spot: 100000, Margin: 100000, Futures: 100000, Options: 100000,
	}}), nil, nil)
	prices := oracle.NewStatic(map[string]decimal.Decimal{
		"BTCUSDT": d("40000"),
		"ETHUSDT": d("2000"),
		"SOLUSDT": d("100"),
	})
	mgr := position.NewManager(position.DefaultParams(), repo, l, prices, nil)
	mon := NewMonitor(config.RiskConfig{HighRiskCutoff: 1.5, SweepWorkers: 3}, mgr, l, prices, nil)
	for _, owner := range owners {
		_, err := l.Provision(context.Background(), owner)
		require.NoError(t, err)
	}
	return &env{repo: repo, ledger: l, prices: prices, manager: mgr, monitor: mon}
}

func (e *env) open(t *testing.T, owner uint64, symbol string, product models.ProductType, side models.OrderSide, qty string, lev int) *models.Position {
	t.Helper()
	p, err := e.manager.Open(context.Background(), position.OpenRequest{
		OwnerID: owner, Symbol: symbol, Side: side, Quantity: d(qty), Leverage: decimal.NewFromInt(int64(lev)), Product: product,
	})
	require.NoError(t, err)
	return p
}

func TestSweepIsolatesPriceFailures(t *testing.T) {
	e := newEnv(t, 1)
	ctx := context.Background()
	a := e.open(t, 1, "ETHUSDT", models.ProductFutures, models.OrderSideBuy, "1", 10)
	b := e.open(t, 1, "BTCUSDT", models.ProductFutures, models.OrderSideBuy, "1", 10)

	e.prices.Fail("ETHUSDT", assert.AnError)
	e.prices.Set("BTCUSDT", d("36000"))

	res, err := e.monitor.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Checked)
	assert.Equal(t, 1, res.Liquidated)

	got, err := e.manager.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLiquidated, got.Status)

	got, err = e.manager.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, got.Status)
}

func TestSweepMarksWithoutLiquidating(t *testing.T) {
	e := newEnv(t, 1, 2)
	ctx := context.Background()
	f := e.open(t, 1, "BTCUSDT", models.ProductFutures, models.OrderSideBuy, "1", 10)
	m := e.open(t, 2, "SOLUSDT", models.ProductMargin, models.OrderSideBuy, "10", 5)
	e.open(t, 2, "BTCUSDT", models.ProductFutures, models.OrderSideSell, "0.1", 5)

	e.prices.Set("BTCUSDT", d("38000"))
	e.prices.Set("SOLUSDT", d("99"))

	counter := &countingOracle{Oracle: e.prices, calls: map[string]int{}}
	e.monitor.Oracle = counter

	res, err := e.monitor.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Checked)
	assert.Zero(t, res.Liquidated)
	assert.Zero(t, res.Failed)
	assert.Equal(t, 1, counter.calls["BTCUSDT"])
	assert.Equal(t, 1, counter.calls["SOLUSDT"])

	got, err := e.manager.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, got.MarginRatio.Equal(d("10")))
	got, err = e.manager.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.UnrealizedPnL.Equal(d("-10")))
	assert.True(t, got.MarginRatio.Equal(d("0.2375")))
}

func TestSweepLiquidatesMarginBelowMaintenance(t *testing.T) {
	e := newEnv(t, 1)
	ctx := context.Background()
	m := e.open(t, 1, "SOLUSDT", models.ProductMargin, models.OrderSideBuy, "10", 5)
	e.prices.Set("SOLUSDT", d("82"))

	res, err := e.monitor.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Liquidated)

	got, err := e.manager.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLiquidated, got.Status)
	assert.True(t, got.MarginRatio.Equal(d("0.025")))
}

func TestSweepSkippedBySwitch(t *testing.T) {
	e := newEnv(t, 1)
	ctx := context.Background()
	e.open(t, 1, "BTCUSDT", models.ProductFutures, models.OrderSideBuy, "1", 10)
	flags := settings.New(e.repo)
	require.NoError(t, flags.SetEnabled(ctx, settings.FeatureRiskMonitor, false))
	e.monitor.Flags = flags
	e.prices.Set("BTCUSDT", d("30000"))

	res, err := e.monitor.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	open, err := e.manager.ListOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestRunStopsWithContext(t *testing.T) {
	e := newEnv(t, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := e.monitor.Run(ctx, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunLiquidatesOnFirstTick(t *testing.T) {
	e := newEnv(t, 1)
	p := e.open(t, 1, "BTCUSDT", models.ProductFutures, models.OrderSideBuy, "1", 10)
	e.prices.Set("BTCUSDT", d("36000"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, e.monitor.Run(ctx, time.Hour), context.DeadlineExceeded)

	got, err := e.manager.Get(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLiquidated, got.Status)
}

func TestSummary(t *testing.T) {
	e := newEnv(t, 1, 2)
	ctx := context.Background()
	e.open(t, 1, "BTCUSDT", models.ProductFutures, models.OrderSideBuy, "1", 10)
	e.open(t, 1, "SOLUSDT", models.ProductMargin, models.OrderSideBuy, "10", 5)

	e.prices.Set("BTCUSDT", d("38000"))
	e.prices.Set("SOLUSDT", d("99"))
	_, err := e.monitor.RunOnce(ctx)
	require.NoError(t, err)

	s, err := e.monitor.Summary(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, s.OpenFuturesCount)
	assert.Equal(t, 1, s.OpenMarginCount)
	assert.True(t, s.TotalCollateral.Equal(d("4200")), "collateral=%s", s.TotalCollateral)
	assert.True(t, s.TotalUnrealizedPnL.Equal(d("-2010")), "upnl=%s", s.TotalUnrealizedPnL)
	assert.True(t, s.MaxMarginRatio.Equal(d("10")))
	assert.False(t, s.IsHighRisk)

	empty, err := e.monitor.Summary(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, empty.OpenFuturesCount+empty.OpenMarginCount)
	assert.False(t, empty.IsHighRisk)

	_, err = e.monitor.Summary(ctx, 3)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSummaryHighRisk(t *testing.T) {
	e := newEnv(t, 1)
	ctx := context.Background()
	e.open(t, 1, "SOLUSDT", models.ProductMargin, models.OrderSideBuy, "10", 5)

	s, err := e.monitor.Summary(ctx, 1)
	require.NoError(t, err)
	assert.True(t, s.MaxMarginRatio.Equal(d("0.5")))
	assert.True(t, s.IsHighRisk)
}

func TestSummaryMaxRatioStartsAtZero(t *testing.T) {
	e := newEnv(t, 1)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, e.repo.InsertPosition(ctx, &models.Position{
		ID: "neg", OwnerID: 1, Symbol: "SOLUSDT", Product: models.ProductMargin, Side: models.SideBuy,
		Status: models.StatusOpen, Quantity: d("10"), EntryPrice: d("100"), Leverage: d("5"),
		Collateral: d("200"), BorrowedAmount: d("800"), MarkPrice: d("70"), UnrealizedPnL: d("-300"),
		MarginRatio: d("-0.125"), OpenedAt: now, UpdatedAt: now,
	}))

	s, err := e.monitor.Summary(ctx, 1)
	require.NoError(t, err)
	assert.True(t, s.MaxMarginRatio.IsZero(), "max=%s", s.MaxMarginRatio)
	assert.True(t, s.IsHighRisk)
}

func TestSummaryWithoutOpenPositionsIsNotHighRisk(t *testing.T) {
	e := newEnv(t, 1)
	s, err := e.monitor.Summary(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, s.MaxMarginRatio.IsZero())
	assert.False(t, s.IsHighRisk)
}

