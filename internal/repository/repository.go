package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"papertrade/internal/models"
)

// Repository is the durable store behind the wallet ledger and the position
// lifecycle manager. Getters return (nil, nil) when the row does not exist.
type Repository interface {
	// InTx runs fn inside one transaction. fn must use the Repository it is
	// handed; nested calls reuse the outer transaction.
	InTx(ctx context.Context, fn func(tx Repository) error) error

	WalletRepository
	PositionRepository
	OrderRepository
	SettingsRepository
}

type WalletRepository interface {
	// CreateWalletIfAbsent inserts item unless (owner, product) already exists.
	CreateWalletIfAbsent(ctx context.Context, item *models.Wallet) (bool, error)
	GetWallet(ctx context.Context, ownerID uint64, product models.ProductType) (*models.Wallet, error)
	GetWalletByID(ctx context.Context, id uint64) (*models.Wallet, error)
	ListWalletsByOwner(ctx context.Context, ownerID uint64) ([]models.Wallet, error)
	// LockWalletFunds adds amount to locked funds only when available >= amount.
	LockWalletFunds(ctx context.Context, id uint64, amount decimal.Decimal) (bool, error)
	// UnlockWalletFunds subtracts amount from locked funds only when locked >= amount.
	UnlockWalletFunds(ctx context.Context, id uint64, amount decimal.Decimal) (bool, error)
	// AdjustWalletBalance adds delta to the balance; false when the wallet is missing.
	AdjustWalletBalance(ctx context.Context, id uint64, delta decimal.Decimal) (bool, error)
}

type PositionRepository interface {
	// InsertPosition fails with apperr.ErrConflict when an open position
	// already holds the same open key.
	InsertPosition(ctx context.Context, item *models.Position) error
	GetPosition(ctx context.Context, id string) (*models.Position, error)
	// GetPositionForUpdate row-locks the position until the transaction ends.
	GetPositionForUpdate(ctx context.Context, id string) (*models.Position, error)
	// UpdatePosition writes item when the stored version equals item.Version
	// and bumps the version. A stale version fails with apperr.ErrConflict.
	UpdatePosition(ctx context.Context, item *models.Position) error
	FindOpenPosition(ctx context.Context, ownerID uint64, product models.ProductType, symbol string, side models.PositionSide) (*models.Position, error)
	ListPositions(ctx context.Context, params ListPositionsParams) ([]models.Position, error)
}

type OrderRepository interface {
	InsertOrder(ctx context.Context, item *models.Order) error
	ListOrders(ctx context.Context, params ListOrdersParams) ([]models.Order, error)
}

type SettingsRepository interface {
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	ListSystemSettings(ctx context.Context, params ListSystemSettingsParams) ([]models.SystemSetting, error)
}

type ListPositionsParams struct {
	OwnerID *uint64
	Product *models.ProductType
	Status  *models.PositionStatus
	Symbol  *string

	Limit  int
	Offset int
}

type ListOrdersParams struct {
	OwnerID    *uint64
	PositionID *string
	Since      *time.Time

	Limit  int
	Offset int
}

type ListSystemSettingsParams struct {
	Prefix *string

	Limit  int
	Offset int
}

// ProductsFor expands an optional product filter into the position tables to scan.
func ProductsFor(product *models.ProductType) []models.ProductType {
	if product != nil && product.Leveraged() {
		return []models.ProductType{*product}
	}
	if product != nil {
		return nil
	}
	return []models.ProductType{models.ProductFutures, models.ProductMargin}
}

func NormalizeLimit(limit int, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func NormalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
