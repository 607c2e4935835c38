package models

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const (
	FuturesPositionsTable = "futures_positions"
	MarginPositionsTable  = "margin_positions"
)

// Position is a leveraged futures or margin position. Both products share this
// shape and are persisted in separate tables selected by Product. Indexes are
// per table and created in db.AutoMigrate.
type Position struct {
	ID      string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OwnerID uint64         `gorm:"not null" json:"owner_id"`
	Symbol  string         `gorm:"type:varchar(32);not null" json:"symbol"`
	Product ProductType    `gorm:"type:varchar(16);not null" json:"product"`
	Side    PositionSide   `gorm:"type:varchar(8);not null" json:"side"`
	Status  PositionStatus `gorm:"type:varchar(16);not null;default:'OPEN'" json:"status"`

	Quantity       decimal.Decimal  `gorm:"type:numeric(30,10);not null" json:"quantity"`
	EntryPrice     decimal.Decimal  `gorm:"type:numeric(30,10);not null" json:"entry_price"`
	ExitPrice      *decimal.Decimal `gorm:"type:numeric(30,10)" json:"exit_price,omitempty"`
	Leverage       decimal.Decimal  `gorm:"type:numeric(10,4);not null" json:"leverage"`
	Collateral     decimal.Decimal  `gorm:"type:numeric(30,10);not null;default:0" json:"collateral"`
	BorrowedAmount decimal.Decimal  `gorm:"type:numeric(30,10);not null;default:0" json:"borrowed_amount"`

	InterestRate      decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0" json:"interest_rate"`
	InterestAccrued   decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0" json:"interest_accrued"`
	InterestAccruedAt *time.Time      `gorm:"type:timestamptz" json:"interest_accrued_at,omitempty"`

	MarkPrice     decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0" json:"mark_price"`
	UnrealizedPnL decimal.Decimal `gorm:"column:unrealized_pnl;type:numeric(30,10);not null;default:0" json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal `gorm:"column:realized_pnl;type:numeric(30,10);not null;default:0" json:"realized_pnl"`
	MarginRatio   decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0" json:"margin_ratio"`

	Remarks string `gorm:"type:varchar(255)" json:"remarks,omitempty"`
	Version int64  `gorm:"not null;default:0" json:"version"`

	OpenedAt  time.Time  `gorm:"type:timestamptz;not null" json:"opened_at"`
	UpdatedAt time.Time  `gorm:"type:timestamptz;not null" json:"updated_at"`
	ClosedAt  *time.Time `gorm:"type:timestamptz" json:"closed_at,omitempty"`
}

// PositionTable returns the table backing positions of the given product.
func PositionTable(product ProductType) string {
	if product == ProductMargin {
		return MarginPositionsTable
	}
	return FuturesPositionsTable
}

func (p *Position) Table() string {
	return PositionTable(p.Product)
}

func (p *Position) IsOpen() bool {
	return p != nil && p.Status == StatusOpen
}

// OpenKey identifies the single non-terminal position an owner may hold:
// (owner, symbol, side) for futures and (owner, symbol) for margin.
func (p *Position) OpenKey() string {
	return OpenKey(p.OwnerID, p.Product, p.Symbol, p.Side)
}

func OpenKey(owner uint64, product ProductType, symbol string, side PositionSide) string {
	if product == ProductMargin {
		return openKeyPrefix(owner, product, symbol)
	}
	return openKeyPrefix(owner, product, symbol) + "|" + string(side)
}

func openKeyPrefix(owner uint64, product ProductType, symbol string) string {
	return string(product) + "|" + symbol + "|" + strconv.FormatUint(owner, 10)
}
