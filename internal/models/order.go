package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderTypeMarket   = "MARKET"
	OrderStatusFilled = "FILLED"

	OrderRemarkOpen        = "open"
	OrderRemarkClose       = "close"
	OrderRemarkLiquidation = "liquidation"
)

// Order is the immutable fill record emitted for every position transition.
type Order struct {
	ID            uint64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ClientOrderID string      `gorm:"type:varchar(64);not null;uniqueIndex" json:"client_order_id"`
	OwnerID       uint64      `gorm:"not null;index" json:"owner_id"`
	PositionID    string      `gorm:"type:varchar(36);index" json:"position_id"`
	Symbol        string      `gorm:"type:varchar(32);not null;index" json:"symbol"`
	Side          OrderSide   `gorm:"type:varchar(8);not null" json:"side"`
	OrderType     string      `gorm:"type:varchar(16);not null" json:"order_type"`
	Status        string      `gorm:"type:varchar(16);not null" json:"status"`
	Product       ProductType `gorm:"type:varchar(16);not null" json:"product"`

	Quantity       decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"quantity"`
	Price          decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"price"`
	FilledQuantity decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"filled_quantity"`
	AveragePrice   decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"average_price"`
	Leverage       decimal.Decimal `gorm:"type:numeric(10,4);not null;default:1" json:"leverage"`
	Commission     decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0" json:"commission"`
	Remarks        string          `gorm:"type:varchar(32)" json:"remarks"`

	FilledAt  time.Time `gorm:"type:timestamptz;not null" json:"filled_at"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index" json:"created_at"`
}

func (Order) TableName() string {
	return "orders"
}
