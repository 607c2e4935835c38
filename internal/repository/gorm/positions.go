package gormrepository

import (
	"context"
	"sort"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"papertrade/internal/apperr"
	"papertrade/internal/models"
	"papertrade/internal/repository"
)

func (s *Store) InsertPosition(ctx context.Context, item *models.Position) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	// One open row per key is enforced by the partial unique indexes in db.AutoMigrate.
	err := s.db.WithContext(ctx).Table(item.Table()).Create(item).Error
	return translateWriteErr(err)
}

func (s *Store) GetPosition(ctx context.Context, id string) (*models.Position, error) {
	return s.getPosition(ctx, id, false)
}

func (s *Store) GetPositionForUpdate(ctx context.Context, id string) (*models.Position, error) {
	return s.getPosition(ctx, id, true)
}

func (s *Store) getPosition(ctx context.Context, id string, lock bool) (*models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	// ids are uuids, unique across both tables.
	for _, product := range repository.ProductsFor(nil) {
		query := s.db.WithContext(ctx).Table(models.PositionTable(product))
		if lock {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var item models.Position
		err := query.Where("id = ?", id).First(&item).Error
		if notFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &item, nil
	}
	return nil, nil
}

func (s *Store) UpdatePosition(ctx context.Context, item *models.Position) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	res := s.db.WithContext(ctx).Table(item.Table()).
		Where("id = ? AND version = ?", item.ID, item.Version).
		Updates(map[string]any{
			"status":              item.Status,
			"exit_price":          item.ExitPrice,
			"collateral":          item.Collateral,
			"borrowed_amount":     item.BorrowedAmount,
			"interest_accrued":    item.InterestAccrued,
			"interest_accrued_at": item.InterestAccruedAt,
			"mark_price":          item.MarkPrice,
			"unrealized_pnl":      item.UnrealizedPnL,
			"realized_pnl":        item.RealizedPnL,
			"margin_ratio":        item.MarginRatio,
			"remarks":             item.Remarks,
			"updated_at":          item.UpdatedAt,
			"closed_at":           item.ClosedAt,
			"version":             gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return translateWriteErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.ErrConflict
	}
	item.Version++
	return nil
}

func (s *Store) FindOpenPosition(ctx context.Context, ownerID uint64, product models.ProductType, symbol string, side models.PositionSide) (*models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Table(models.PositionTable(product)).
		Where("owner_id = ? AND symbol = ? AND status = ?", ownerID, symbol, models.StatusOpen)
	if product == models.ProductFutures {
		query = query.Where("side = ?", side)
	}
	var item models.Position
	err := query.First(&item).Error
	if notFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListPositions(ctx context.Context, params repository.ListPositionsParams) ([]models.Position, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	limit := repository.NormalizeLimit(params.Limit, 500)
	offset := repository.NormalizeOffset(params.Offset)
	products := repository.ProductsFor(params.Product)
	var out []models.Position
	for _, product := range products {
		query := s.db.WithContext(ctx).Table(models.PositionTable(product))
		if params.OwnerID != nil {
			query = query.Where("owner_id = ?", *params.OwnerID)
		}
		if params.Status != nil {
			query = query.Where("status = ?", *params.Status)
		}
		if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
			query = query.Where("symbol = ?", strings.ToUpper(strings.TrimSpace(*params.Symbol)))
		}
		query = applyOrder(query, "", false, "opened_at")
		var items []models.Position
		// each table contributes at most offset+limit rows before the merge.
		if err := query.Limit(offset + limit).Find(&items).Error; err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	if len(products) > 1 {
		sort.SliceStable(out, func(i, j int) bool { return out[i].OpenedAt.After(out[j].OpenedAt) })
	}
	if offset >= len(out) {
		return []models.Position{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
