package risk

import (
	"context"

	"github.com/shopspring/decimal"

	"papertrade/internal/models"
)

var defaultHighRiskCutoff = decimal.RequireFromString("1.5")

// Summary aggregates an owner's open leveraged positions.
type Summary struct {
	OwnerID            uint64          `json:"owner_id"`
	TotalUnrealizedPnL decimal.Decimal `json:"total_unrealized_pnl"`
	TotalCollateral    decimal.Decimal `json:"total_collateral"`
	MaxMarginRatio     decimal.Decimal `json:"max_margin_ratio"`
	OpenFuturesCount   int             `json:"open_futures_count"`
	OpenMarginCount    int             `json:"open_margin_count"`
	IsHighRisk         bool            `json:"is_high_risk"`
}

// Summary reads the stored live state of the owner's open positions. It does
// not re-mark them. An owner without wallets is NotFound; an owner without
// open positions is never high risk. The maximum ratio starts at zero.
func (m *Monitor) Summary(ctx context.Context, ownerID uint64) (*Summary, error) {
	if m.Wallets != nil {
		if _, err := m.Wallets.ListByOwner(ctx, ownerID); err != nil {
			return nil, err
		}
	}
	open := models.StatusOpen
	items, err := m.Positions.ListByOwner(ctx, ownerID, nil, &open)
	if err != nil {
		return nil, err
	}
	out := &Summary{
		OwnerID:            ownerID,
		TotalUnrealizedPnL: decimal.Zero,
		TotalCollateral:    decimal.Zero,
		MaxMarginRatio:     decimal.Zero,
	}
	for _, p := range items {
		out.TotalUnrealizedPnL = out.TotalUnrealizedPnL.Add(p.UnrealizedPnL)
		out.TotalCollateral = out.TotalCollateral.Add(p.Collateral)
		if p.MarginRatio.GreaterThan(out.MaxMarginRatio) {
			out.MaxMarginRatio = p.MarginRatio
		}
		switch p.Product {
		case models.ProductFutures:
			out.OpenFuturesCount++
		case models.ProductMargin:
			out.OpenMarginCount++
		}
	}
	cutoff := m.HighRiskCutoff
	if !cutoff.IsPositive() {
		cutoff = defaultHighRiskCutoff
	}
	out.IsHighRisk = len(items) > 0 && out.MaxMarginRatio.LessThan(cutoff)
	return out, nil
}
