package position

import (
	"context"
	"sync"
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
	"papertrade/internal/repository"
	"papertrade/internal/repository/memory"
	"papertrade/internal/settings"
)

type fixture struct {
	repo    *memory.Store
	ledger  *ledger.Ledger
	oracle  *oracle.Static
	manager *Manager
	clock   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := memory.New()
	l := ledger.New(repo, ledger.ConfigFrom(config.AccountsConfig{InitialCapital: config.InitialCapitalConfig{
		Spot: 100000, Margin: 100000, Futures: 100000, Options: 100000,
	}}), nil, nil)
	o := oracle.NewStatic(map[string]decimal.Decimal{
		"BTCUSDT": d("40000"),
		"SOLUSDT": d("100"),
	})
	f := &fixture{repo: repo, ledger: l, oracle: o, clock: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	f.manager = NewManager(DefaultParams(), repo, l, o, nil)
	f.manager.Now = func() time.Time { return f.clock }
	_, err := l.Provision(context.Background(), 1)
	require.NoError(t, err)
	return f
}

func (f *fixture) wallet(t *testing.T, product models.ProductType) *models.Wallet {
	t.Helper()
	w, err := f.ledger.Get(context.Background(), 1, product)
	require.NoError(t, err)
	return w
}

func (f *fixture) openFutures(t *testing.T) *models.Position {
	t.Helper()
	p, err := f.manager.Open(context.Background(), OpenRequest{
		OwnerID: 1, Symbol: "BTCUSDT", Side: models.OrderSideBuy, Quantity: d("1"), Leverage: d("10"), Product: models.ProductFutures,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) openMargin(t *testing.T) *models.Position {
	t.Helper()
	p, err := f.manager.Open(context.Background(), OpenRequest{
		OwnerID: 1, Symbol: "SOLUSDT", Side: models.OrderSideBuy, Quantity: d("10"), Leverage: d("5"), Product: models.ProductMargin,
	})
	require.NoError(t, err)
	return p
}

func assertDec(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.True(t, got.Equal(d(want)), "%s=%s want=%s", field, got, want)
}

func TestOpenFuturesLocksCollateral(t *testing.T) {
	f := newFixture(t)
	p := f.openFutures(t)

	assert.Equal(t, models.StatusOpen, p.Status)
	assert.Equal(t, models.SideLong, p.Side)
	assertDec(t, "40000", p.EntryPrice, "entry")
	assertDec(t, "40000", p.MarkPrice, "mark")
	assertDec(t, "4000", p.Collateral, "collateral")
	assertDec(t, "0.10", p.MarginRatio, "ratio")
	assert.True(t, p.BorrowedAmount.IsZero())

	w := f.wallet(t, models.ProductFutures)
	assertDec(t, "4000", w.LockedFunds, "locked")
	assertDec(t, "96000", w.Available(), "available")

	orders, err := f.repo.ListOrders(context.Background(), repository.ListOrdersParams{PositionID: &p.ID})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, models.OrderRemarkOpen, orders[0].Remarks)
	assert.Equal(t, models.OrderSideBuy, orders[0].Side)
	assert.Equal(t, models.OrderStatusFilled, orders[0].Status)
}

func TestOpenMarginBorrows(t *testing.T) {
	f := newFixture(t)
	p := f.openMargin(t)

	assert.Equal(t, models.SideBuy, p.Side)
	assertDec(t, "200", p.Collateral, "collateral")
	assertDec(t, "800", p.BorrowedAmount, "borrowed")
	assertDec(t, "0.50", p.MarginRatio, "ratio")
	assertDec(t, "0.0005", p.InterestRate, "rate")
	assertDec(t, "200", f.wallet(t, models.ProductMargin).LockedFunds, "locked")
}

func TestOpenRejectsLeverageOutsideBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := []struct {
		product  models.ProductType
		leverage string
	}{
		{models.ProductFutures, "0"},
		{models.ProductFutures, "0.5"},
		{models.ProductFutures, "20.01"},
		{models.ProductMargin, "1.99"},
		{models.ProductMargin, "10.5"},
	}
	for _, tc := range cases {
		_, err := f.manager.Open(ctx, OpenRequest{
			OwnerID: 1, Symbol: "BTCUSDT", Side: models.OrderSideBuy, Quantity: d("1"), Leverage: d(tc.leverage), Product: tc.product,
		})
		assert.ErrorIs(t, err, apperr.ErrInvalidOrder, "%s x%s", tc.product, tc.leverage)
		assert.True(t, f.wallet(t, tc.product).LockedFunds.IsZero())
	}
}

func TestOpenMarginWithFractionalLeverage(t *testing.T) {
	f := newFixture(t)
	p, err := f.manager.Open(context.Background(), OpenRequest{
		OwnerID: 1, Symbol: "SOLUSDT", Side: models.OrderSideBuy, Quantity: d("10"), Leverage: d("2.5"), Product: models.ProductMargin,
	})
	require.NoError(t, err)
	assertDec(t, "2.5", p.Leverage, "leverage")
	assertDec(t, "400", p.Collateral, "collateral")
	assertDec(t, "600", p.BorrowedAmount, "borrowed")
	assertDec(t, "400", f.wallet(t, models.ProductMargin).LockedFunds, "locked")
}

func TestOpenFuturesAtLeverageOne(t *testing.T) {
	f := newFixture(t)
	p, err := f.manager.Open(context.Background(), OpenRequest{
		OwnerID: 1, Symbol: "BTCUSDT", Side: models.OrderSideBuy, Quantity: d("1"), Leverage: d("1"), Product: models.ProductFutures,
	})
	require.NoError(t, err)
	assertDec(t, "40000", p.Collateral, "collateral")
}

func TestOpenRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bad := []OpenRequest{
		{OwnerID: 1, Symbol: "BTCUSDT", Side: models.OrderSideBuy, Quantity: d("0"), Leverage: d("10"), Product: models.ProductFutures},
		{OwnerID: 1, Symbol: "BTCUSDT", Side: models.OrderSideBuy, Quantity: d("1"), Leverage: d("10"), Product: models.ProductSpot},
		{OwnerID: 1, Symbol: "", Side: models.OrderSideBuy, Quantity: d("1"), Leverage: d("10"), Product: models.ProductFutures},
		{OwnerID: 1, Symbol: "BTCUSDT", Side: "HOLD", Quantity: d("1"), Leverage: d("10"), Product: models.ProductFutures},
	}
	for _, req := range bad {
		_, err := f.manager.Open(ctx, req)
		assert.ErrorIs(t, err, apperr.ErrInvalidOrder)
	}
}

func TestOpenFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.Open(ctx, OpenRequest{
		OwnerID: 1, Symbol: "BTCUSDT", Side: models.OrderSideBuy, Quantity: d("30"), Leverage: d("10"), Product: models.ProductFutures,
	})
	assert.ErrorIs(t, err, apperr.ErrInsufficientBalance)
	assert.True(t, f.wallet(t, models.ProductFutures).LockedFunds.IsZero())

	_, err = f.manager.Open(ctx, OpenRequest{
		OwnerID: 2, Symbol: "BTCUSDT", Side: models.OrderSideBuy, Quantity: d("1"), Leverage: d("10"), Product: models.ProductFutures,
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.manager.Open(ctx, OpenRequest{
		OwnerID: 1, Symbol: "DOGEUSDT", Side: models.OrderSideBuy, Quantity: d("1"), Leverage: d("10"), Product: models.ProductFutures,
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	open, err := f.manager.ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestOpenEnforcesOneOpenPositionPerKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openFutures(t)

	_, err := f.manager.Open(ctx, OpenRequest{
		OwnerID: 1, Symbol: "BTCUSDT", Side: models.OrderSideBuy, Quantity: d("1"), Leverage: d("5"), Product: models.ProductFutures,
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidOrder)
	assertDec(t, "4000", f.wallet(t, models.ProductFutures).LockedFunds, "locked")

	short, err := f.manager.Open(ctx, OpenRequest{
		OwnerID: 1, Symbol: "BTCUSDT", Side: models.OrderSideSell, Quantity: d("1"), Leverage: d("10"), Product: models.ProductFutures,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SideShort, short.Side)

	f.openMargin(t)
	_, err = f.manager.Open(ctx, OpenRequest{
		OwnerID: 1, Symbol: "SOLUSDT", Side: models.OrderSideSell, Quantity: d("1"), Leverage: d("2"), Product: models.ProductMargin,
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidOrder)
}

func TestOpenDisabledBySwitch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gate := settings.New(f.repo)
	require.NoError(t, gate.SetEnabled(ctx, settings.FeatureOpenPositions, false))
	f.manager.Features = gate

	_, err := f.manager.Open(ctx, OpenRequest{
		OwnerID: 1, Symbol: "BTCUSDT", Side: models.OrderSideBuy, Quantity: d("1"), Leverage: d("10"), Product: models.ProductFutures,
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidOrder)
}

func TestFuturesMarkThenLiquidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.openFutures(t)

	got, err := f.manager.MarkToMarket(ctx, p.ID, d("38000"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, got.Status)
	assertDec(t, "-2000", got.UnrealizedPnL, "upnl")
	assertDec(t, "10", got.MarginRatio, "ratio")

	again, err := f.manager.MarkToMarket(ctx, p.ID, d("38000"))
	require.NoError(t, err)
	assert.True(t, again.MarginRatio.Equal(got.MarginRatio))
	assert.True(t, again.UnrealizedPnL.Equal(got.UnrealizedPnL))

	got, err = f.manager.MarkToMarket(ctx, p.ID, d("36000"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusLiquidated, got.Status)
	assert.True(t, got.MarginRatio.IsZero())
	require.NotNil(t, got.ExitPrice)
	assertDec(t, "36000", *got.ExitPrice, "exit")
	assertDec(t, "-4000", got.RealizedPnL, "realized")
	assert.Equal(t, liquidationRemarks, got.Remarks)
	require.NotNil(t, got.ClosedAt)

	w := f.wallet(t, models.ProductFutures)
	assert.True(t, w.LockedFunds.IsZero())
	assertDec(t, "96000", w.Balance, "balance")
}

func TestMarginMarkLiquidates(t *testing.T) {
	f := newFixture(t)
	p := f.openMargin(t)

	got, err := f.manager.MarkToMarket(context.Background(), p.ID, d("82"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusLiquidated, got.Status)
	assertDec(t, "0.025", got.MarginRatio, "ratio")
	assertDec(t, "-180", got.RealizedPnL, "realized")

	w := f.wallet(t, models.ProductMargin)
	assert.True(t, w.LockedFunds.IsZero())
	assertDec(t, "99820", w.Balance, "balance")
}

func TestMarkRejectsNonPositivePrice(t *testing.T) {
	f := newFixture(t)
	p := f.openFutures(t)
	_, err := f.manager.MarkToMarket(context.Background(), p.ID, decimal.Zero)
	assert.ErrorIs(t, err, apperr.ErrInvalidOrder)
	_, err = f.manager.MarkToMarket(context.Background(), "missing", d("1"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestOpenThenCloseAtSamePriceReleasesCollateral(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.openFutures(t)

	closed, err := f.manager.Close(ctx, p.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, closed.Status)
	assert.True(t, closed.RealizedPnL.IsZero())
	require.NotNil(t, closed.ClosedAt)

	w := f.wallet(t, models.ProductFutures)
	assert.True(t, w.LockedFunds.IsZero())
	assertDec(t, "100000", w.Balance, "balance")

	orders, err := f.repo.ListOrders(ctx, repository.ListOrdersParams{PositionID: &p.ID})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, models.OrderRemarkClose, orders[0].Remarks)
	assert.Equal(t, models.OrderSideSell, orders[0].Side)

	_, err = f.manager.Close(ctx, p.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrInvalidOrder)
	assert.NotErrorIs(t, err, apperr.ErrLiquidationOccurred)
}

func TestCloseShortBooksProfit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.manager.Open(ctx, OpenRequest{
		OwnerID: 1, Symbol: "BTCUSDT", Side: models.OrderSideSell, Quantity: d("0.5"), Leverage: d("20"), Product: models.ProductFutures,
	})
	require.NoError(t, err)
	assertDec(t, "1000", p.Collateral, "collateral")

	f.oracle.Set("BTCUSDT", d("39000"))
	closed, err := f.manager.Close(ctx, p.ID, 1)
	require.NoError(t, err)
	assertDec(t, "500", closed.RealizedPnL, "realized")
	assertDec(t, "100500", f.wallet(t, models.ProductFutures).Balance, "balance")
}

func TestCloseRejectsOtherOwner(t *testing.T) {
	f := newFixture(t)
	p := f.openFutures(t)
	_, err := f.manager.Close(context.Background(), p.ID, 99)
	assert.ErrorIs(t, err, apperr.ErrInvalidOrder)
	_, err = f.manager.Close(context.Background(), "missing", 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCloseAfterLiquidationReportsIt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.openFutures(t)

	f.oracle.Set("BTCUSDT", d("35000"))
	_, err := f.manager.Liquidate(ctx, p.ID)
	require.NoError(t, err)

	_, err = f.manager.Close(ctx, p.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrInvalidOrder)
	assert.ErrorIs(t, err, apperr.ErrLiquidationOccurred)
}

func TestLiquidateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.openFutures(t)

	f.oracle.Set("BTCUSDT", d("37000"))
	first, err := f.manager.Liquidate(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLiquidated, first.Status)
	assertDec(t, "-3000", first.RealizedPnL, "realized")

	f.clock = f.clock.Add(time.Hour)
	f.oracle.Set("BTCUSDT", d("30000"))
	second, err := f.manager.Liquidate(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLiquidated, second.Status)
	assert.True(t, second.RealizedPnL.Equal(first.RealizedPnL))
	assert.True(t, second.ClosedAt.Equal(*first.ClosedAt))

	w := f.wallet(t, models.ProductFutures)
	assertDec(t, "97000", w.Balance, "balance")
}

func TestLiquidateClosedPositionIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.openFutures(t)
	_, err := f.manager.Close(ctx, p.ID, 1)
	require.NoError(t, err)

	got, err := f.manager.Liquidate(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, got.Status)
}

func TestLiquidationWithoutSettlementKeepsCollateralLocked(t *testing.T) {
	f := newFixture(t)
	f.manager.SettleOnLiquidation = false
	p := f.openFutures(t)

	_, err := f.manager.MarkToMarket(context.Background(), p.ID, d("36000"))
	require.NoError(t, err)

	w := f.wallet(t, models.ProductFutures)
	assertDec(t, "4000", w.LockedFunds, "locked")
	assertDec(t, "100000", w.Balance, "balance")
}

func TestConcurrentCloseAndLiquidate(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		ctx := context.Background()
		p := f.openFutures(t)

		var (
			wg                     sync.WaitGroup
			closeErr, liquidateErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, closeErr = f.manager.Close(ctx, p.ID, 1)
		}()
		go func() {
			defer wg.Done()
			_, liquidateErr = f.manager.Liquidate(ctx, p.ID)
		}()
		wg.Wait()

		require.NoError(t, liquidateErr)
		final, err := f.manager.Get(ctx, p.ID)
		require.NoError(t, err)
		switch final.Status {
		case models.StatusClosed:
			require.NoError(t, closeErr)
		case models.StatusLiquidated:
			assert.ErrorIs(t, closeErr, apperr.ErrInvalidOrder)
			assert.ErrorIs(t, closeErr, apperr.ErrLiquidationOccurred)
		default:
			t.Fatalf("status=%s want terminal", final.Status)
		}
		w := f.wallet(t, models.ProductFutures)
		assert.True(t, w.LockedFunds.IsZero())
		assertDec(t, "100000", w.Balance, "balance")
	}
}

func TestAccrueInterest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.openMargin(t)
	fut := f.openFutures(t)

	got, err := f.manager.AccrueInterest(ctx, p.ID, f.clock.Add(23*time.Hour))
	require.NoError(t, err)
	assert.True(t, got.InterestAccrued.IsZero())

	n, err := f.manager.AccrueAllInterest(ctx, f.clock.Add(49*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err = f.manager.Get(ctx, p.ID)
	require.NoError(t, err)
	assertDec(t, "0.8", got.InterestAccrued, "interest")
	require.NotNil(t, got.InterestAccruedAt)
	assert.True(t, got.InterestAccruedAt.Equal(f.clock.Add(48*time.Hour)))

	// the remaining hour does not count twice.
	got, err = f.manager.AccrueInterest(ctx, p.ID, f.clock.Add(50*time.Hour))
	require.NoError(t, err)
	assertDec(t, "0.8", got.InterestAccrued, "interest")

	other, err := f.manager.AccrueInterest(ctx, fut.ID, f.clock.Add(72*time.Hour))
	require.NoError(t, err)
	assert.True(t, other.InterestAccrued.IsZero())

	closed, err := f.manager.Close(ctx, p.ID, 1)
	require.NoError(t, err)
	assertDec(t, "-0.8", closed.RealizedPnL, "realized")
	w := f.wallet(t, models.ProductMargin)
	assert.True(t, w.LockedFunds.IsZero())
	assertDec(t, "99999.2", w.Balance, "balance")
}

func TestInterestBelowMaintenanceLiquidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.openMargin(t)

	marked, err := f.manager.MarkToMarket(ctx, p.ID, d("96.1"))
	require.NoError(t, err)
	require.Equal(t, models.StatusOpen, marked.Status)
	assertDec(t, "0.2013", marked.MarginRatio, "ratio")

	got, err := f.manager.AccrueInterest(ctx, p.ID, f.clock.Add(30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.StatusLiquidated, got.Status)
	assertDec(t, "12", got.InterestAccrued, "interest")
	assertDec(t, "0.1863", got.MarginRatio, "ratio")
	require.NotNil(t, got.ExitPrice)
	assertDec(t, "96.1", *got.ExitPrice, "exit")
	assertDec(t, "-51", got.RealizedPnL, "realized")

	w := f.wallet(t, models.ProductMargin)
	assert.True(t, w.LockedFunds.IsZero())
	assertDec(t, "99949", w.Balance, "balance")
}

// recallingAlerter calls back into the manager for the liquidated id.
type recallingAlerter struct {
	manager *Manager
	calls   int
	err     error
}

func (a *recallingAlerter) PositionLiquidated(ctx context.Context, p *models.Position) error {
	a.calls++
	_, a.err = a.manager.Liquidate(ctx, p.ID)
	return nil
}

func TestAlertRunsAfterPositionLockIsReleased(t *testing.T) {
	f := newFixture(t)
	alerter := &recallingAlerter{manager: f.manager}
	f.manager.Alerter = alerter
	p := f.openFutures(t)

	done := make(chan error, 1)
	go func() {
		_, err := f.manager.MarkToMarket(context.Background(), p.ID, d("36000"))
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("mark to market still holds the position lock while alerting")
	}
	assert.Equal(t, 1, alerter.calls)
	assert.NoError(t, alerter.err)
}

func TestListByOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fut := f.openFutures(t)
	f.openMargin(t)
	_, err := f.manager.Close(ctx, fut.ID, 1)
	require.NoError(t, err)

	all, err := f.manager.ListByOwner(ctx, 1, nil, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	open := models.StatusOpen
	items, err := f.manager.ListByOwner(ctx, 1, nil, &open)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.ProductMargin, items[0].Product)

	futures := models.ProductFutures
	items, err = f.manager.ListByOwner(ctx, 1, &futures, nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.StatusClosed, items[0].Status)
}
