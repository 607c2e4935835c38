package gormrepository

import (
	"context"
	"strings"

	"papertrade/internal/models"
	"papertrade/internal/repository"
)

func (s *Store) InsertOrder(ctx context.Context, item *models.Order) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return translateWriteErr(s.db.WithContext(ctx).Create(item).Error)
}

func (s *Store) ListOrders(ctx context.Context, params repository.ListOrdersParams) ([]models.Order, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Order{})
	if params.OwnerID != nil {
		query = query.Where("owner_id = ?", *params.OwnerID)
	}
	if params.PositionID != nil && strings.TrimSpace(*params.PositionID) != "" {
		query = query.Where("position_id = ?", strings.TrimSpace(*params.PositionID))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	query = applyOrder(query, "", false, "id")
	limit := repository.NormalizeLimit(params.Limit, 200)
	offset := repository.NormalizeOffset(params.Offset)
	var items []models.Order
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
