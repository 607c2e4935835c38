package models

import "strings"

// ProductType identifies a wallet sub-account and, for positions, the leverage product.
type ProductType string

const (
	ProductSpot    ProductType = "SPOT"
	ProductMargin  ProductType = "MARGIN"
	ProductFutures ProductType = "FUTURES"
	ProductOptions ProductType = "OPTIONS"
)

// WalletProducts lists every wallet type provisioned per owner.
var WalletProducts = []ProductType{ProductSpot, ProductMargin, ProductFutures, ProductOptions}

func (p ProductType) Valid() bool {
	switch p {
	case ProductSpot, ProductMargin, ProductFutures, ProductOptions:
		return true
	}
	return false
}

// Leveraged reports whether positions of this product are tracked by the risk engine.
func (p ProductType) Leveraged() bool {
	return p == ProductMargin || p == ProductFutures
}

func ParseProductType(raw string) (ProductType, bool) {
	p := ProductType(strings.ToUpper(strings.TrimSpace(raw)))
	return p, p.Valid()
}

// OrderSide is the client-facing direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

func ParseOrderSide(raw string) (OrderSide, bool) {
	s := OrderSide(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case OrderSideBuy, OrderSideSell:
		return s, true
	}
	// futures clients may send the position mode directly.
	switch PositionSide(s) {
	case SideLong:
		return OrderSideBuy, true
	case SideShort:
		return OrderSideSell, true
	}
	return "", false
}

func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// PositionSide is LONG/SHORT for futures and BUY/SELL for margin.
type PositionSide string

const (
	SideLong  PositionSide = "LONG"
	SideShort PositionSide = "SHORT"
	SideBuy   PositionSide = "BUY"
	SideSell  PositionSide = "SELL"
)

func (s PositionSide) IsLong() bool {
	return s == SideLong || s == SideBuy
}

// OrderSide returns the order direction that opened a position on this side.
func (s PositionSide) OrderSide() OrderSide {
	if s.IsLong() {
		return OrderSideBuy
	}
	return OrderSideSell
}

// PositionSideFor maps an order side onto the side vocabulary of the product.
func PositionSideFor(product ProductType, side OrderSide) PositionSide {
	if product == ProductFutures {
		if side == OrderSideBuy {
			return SideLong
		}
		return SideShort
	}
	if side == OrderSideBuy {
		return SideBuy
	}
	return SideSell
}

type PositionStatus string

const (
	StatusOpen       PositionStatus = "OPEN"
	StatusClosed     PositionStatus = "CLOSED"
	StatusLiquidated PositionStatus = "LIQUIDATED"
)

func (s PositionStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusClosed, StatusLiquidated:
		return true
	}
	return false
}

// IsTerminal is true for CLOSED and LIQUIDATED; no transition leaves a terminal state.
func (s PositionStatus) IsTerminal() bool {
	return s == StatusClosed || s == StatusLiquidated
}

func ParsePositionStatus(raw string) (PositionStatus, bool) {
	s := PositionStatus(strings.ToUpper(strings.TrimSpace(raw)))
	return s, s.Valid()
}
