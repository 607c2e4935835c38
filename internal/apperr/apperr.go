// Package apperr defines the failure kinds returned by the risk engine.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidOrder covers bad input and illegal state transitions.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrInsufficientBalance is a collateral or locking shortfall.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrNotFound covers unknown owners, wallets, positions and symbols.
	ErrNotFound = errors.New("not found")
	// ErrLiquidationOccurred signals that the position was liquidated concurrently.
	ErrLiquidationOccurred = errors.New("liquidation occurred")
	// ErrConflict is an optimistic version check that lost to a concurrent writer.
	ErrConflict = errors.New("concurrent modification")
)

// HTTPStatus maps an error kind onto a response status.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrLiquidationOccurred), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidOrder):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Kind returns a short machine-readable name for the error kind.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientBalance):
		return "INSUFFICIENT_BALANCE"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrLiquidationOccurred):
		return "LIQUIDATION_OCCURRED"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrInvalidOrder):
		return "INVALID_ORDER"
	default:
		return "INTERNAL"
	}
}
