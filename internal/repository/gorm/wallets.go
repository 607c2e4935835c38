package gormrepository

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"papertrade/internal/models"
)

func (s *Store) CreateWalletIfAbsent(ctx context.Context, item *models.Wallet) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	// Uniqueness is enforced by idx_wallet_owner_product (owner_id, product).
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}, {Name: "product"}},
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) GetWallet(ctx context.Context, ownerID uint64, product models.ProductType) (*models.Wallet, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Wallet
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND product = ?", ownerID, product).
		First(&item).Error
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetWalletByID(ctx context.Context, id uint64) (*models.Wallet, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Wallet
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListWalletsByOwner(ctx context.Context, ownerID uint64) ([]models.Wallet, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Wallet
	if err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("product asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) LockWalletFunds(ctx context.Context, id uint64, amount decimal.Decimal) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	res := s.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("id = ? AND balance - locked_funds >= ?", id, amount).
		Updates(map[string]any{
			"locked_funds": gorm.Expr("locked_funds + ?", amount),
			"updated_at":   gorm.Expr("now()"),
		})
	return res.RowsAffected == 1, res.Error
}

func (s *Store) UnlockWalletFunds(ctx context.Context, id uint64, amount decimal.Decimal) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	res := s.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("id = ? AND locked_funds >= ?", id, amount).
		Updates(map[string]any{
			"locked_funds": gorm.Expr("locked_funds - ?", amount),
			"updated_at":   gorm.Expr("now()"),
		})
	return res.RowsAffected == 1, res.Error
}

func (s *Store) AdjustWalletBalance(ctx context.Context, id uint64, delta decimal.Decimal) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	res := s.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"balance":    gorm.Expr("balance + ?", delta),
			"updated_at": gorm.Expr("now()"),
		})
	return res.RowsAffected == 1, res.Error
}
