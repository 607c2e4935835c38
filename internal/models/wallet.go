package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is a per-owner, per-product paper sub-account.
type Wallet struct {
	ID          uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID     uint64          `gorm:"not null;uniqueIndex:idx_wallet_owner_product,priority:1" json:"owner_id"`
	Product     ProductType     `gorm:"type:varchar(16);not null;uniqueIndex:idx_wallet_owner_product,priority:2" json:"product"`
	Balance     decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0" json:"balance"`
	LockedFunds decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0" json:"locked_funds"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string {
	return "wallets"
}

// Available is balance minus locked funds.
func (w Wallet) Available() decimal.Decimal {
	return w.Balance.Sub(w.LockedFunds)
}
