package position

import (
	"github.com/shopspring/decimal"

	"papertrade/internal/config"
	"papertrade/internal/models"
)

const (
	// amountScale is the precision of collateral and borrowed amounts.
	amountScale = 8
	// ratioScale is the precision of margin ratios.
	ratioScale = 4
)

// ProductParams are the leverage bounds and margin thresholds of one product.
type ProductParams struct {
	MinLeverage            decimal.Decimal
	MaxLeverage            decimal.Decimal
	InitialMarginRatio     decimal.Decimal
	MaintenanceMarginRatio decimal.Decimal
	DailyInterestRate      decimal.Decimal
}

type Params struct {
	Futures ProductParams
	Margin  ProductParams
}

func DefaultParams() Params {
	return Params{
		Futures: ProductParams{
			MinLeverage:            decimal.NewFromInt(1),
			MaxLeverage:            decimal.NewFromInt(20),
			InitialMarginRatio:     decimal.RequireFromString("0.10"),
			MaintenanceMarginRatio: decimal.RequireFromString("0.05"),
			DailyInterestRate:      decimal.Zero,
		},
		Margin: ProductParams{
			MinLeverage:            decimal.NewFromInt(2),
			MaxLeverage:            decimal.NewFromInt(10),
			InitialMarginRatio:     decimal.RequireFromString("0.50"),
			MaintenanceMarginRatio: decimal.RequireFromString("0.20"),
			DailyInterestRate:      decimal.RequireFromString("0.0005"),
		},
	}
}

func ParamsFrom(cfg config.RiskConfig) Params {
	conv := func(p config.ProductRiskConfig) ProductParams {
		return ProductParams{
			MinLeverage:            decimal.NewFromInt(int64(p.MinLeverage)),
			MaxLeverage:            decimal.NewFromInt(int64(p.MaxLeverage)),
			InitialMarginRatio:     decimal.NewFromFloat(p.InitialMarginRatio),
			MaintenanceMarginRatio: decimal.NewFromFloat(p.MaintenanceMarginRatio),
			DailyInterestRate:      decimal.NewFromFloat(p.DailyInterestRate),
		}
	}
	return Params{Futures: conv(cfg.Futures), Margin: conv(cfg.Margin)}
}

func (p Params) For(product models.ProductType) (ProductParams, bool) {
	switch product {
	case models.ProductFutures:
		return p.Futures, true
	case models.ProductMargin:
		return p.Margin, true
	}
	return ProductParams{}, false
}

// Economics is the capital split of a new position.
type Economics struct {
	Notional   decimal.Decimal
	Collateral decimal.Decimal
	Borrowed   decimal.Decimal
}

// OpenEconomics computes collateral = price*qty/leverage (8dp, half-up) and,
// for margin, the borrowed remainder of the notional. Leverage may be
// fractional and must be positive.
func OpenEconomics(product models.ProductType, price, quantity, leverage decimal.Decimal) Economics {
	notional := price.Mul(quantity)
	collateral := notional.DivRound(leverage, amountScale)
	e := Economics{Notional: notional, Collateral: collateral, Borrowed: decimal.Zero}
	if product == models.ProductMargin {
		e.Borrowed = notional.Sub(collateral)
	}
	return e
}

// PnLPerUnit is current-entry for long sides and entry-current for short sides.
func PnLPerUnit(side models.PositionSide, entry, current decimal.Decimal) decimal.Decimal {
	if side.IsLong() {
		return current.Sub(entry)
	}
	return entry.Sub(current)
}

func UnrealizedPnL(p *models.Position, current decimal.Decimal) decimal.Decimal {
	return PnLPerUnit(p.Side, p.EntryPrice, current).Mul(p.Quantity)
}

// RealizedPnL is the unrealized PnL at exit, net of accrued interest for margin.
func RealizedPnL(p *models.Position, exit decimal.Decimal) decimal.Decimal {
	pnl := UnrealizedPnL(p, exit)
	if p.Product == models.ProductMargin {
		pnl = pnl.Sub(p.InterestAccrued)
	}
	return pnl
}

// MarginRatio normalizes equity differently per product:
//
//	futures: (collateral + uPnL) / (collateral * maintenance)
//	margin:  (collateral + uPnL - interest) / borrowed
//
// A zero or negative denominator yields zero.
func MarginRatio(p *models.Position, unrealized decimal.Decimal, params ProductParams) decimal.Decimal {
	if p.Product == models.ProductMargin {
		if !p.BorrowedAmount.IsPositive() {
			return decimal.Zero
		}
		equity := p.Collateral.Add(unrealized).Sub(p.InterestAccrued)
		return equity.DivRound(p.BorrowedAmount, ratioScale)
	}
	maintenance := p.Collateral.Mul(params.MaintenanceMarginRatio)
	if !maintenance.IsPositive() {
		return decimal.Zero
	}
	equity := p.Collateral.Add(unrealized)
	return equity.DivRound(maintenance, ratioScale)
}

// ShouldLiquidate applies the product threshold: futures below 1, margin
// below the maintenance ratio.
func ShouldLiquidate(product models.ProductType, ratio decimal.Decimal, params ProductParams) bool {
	if product == models.ProductMargin {
		return ratio.LessThan(params.MaintenanceMarginRatio)
	}
	return ratio.LessThan(decimal.NewFromInt(1))
}

// Mark is the live state of a position at a given price.
type Mark struct {
	Price         decimal.Decimal
	UnrealizedPnL decimal.Decimal
	MarginRatio   decimal.Decimal
	Liquidate     bool
}

func ComputeMark(p *models.Position, price decimal.Decimal, params ProductParams) Mark {
	unrealized := UnrealizedPnL(p, price)
	ratio := MarginRatio(p, unrealized, params)
	return Mark{
		Price:         price,
		UnrealizedPnL: unrealized,
		MarginRatio:   ratio,
		Liquidate:     ShouldLiquidate(p.Product, ratio, params),
	}
}

// DailyInterest is borrowed * rate * days.
func DailyInterest(borrowed, rate decimal.Decimal, days int64) decimal.Decimal {
	if days <= 0 {
		return decimal.Zero
	}
	return borrowed.Mul(rate).Mul(decimal.NewFromInt(days))
}
