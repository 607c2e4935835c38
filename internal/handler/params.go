package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"papertrade/internal/models"
)

func intQuery(c *gin.Context, key string, def int) int {
	if val := c.Query(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return def
}

func uintParam(c *gin.Context, key string) (uint64, bool) {
	v, err := strconv.ParseUint(strings.TrimSpace(c.Param(key)), 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return v, true
}

func uintQuery(c *gin.Context, key string) (uint64, bool) {
	v, err := strconv.ParseUint(strings.TrimSpace(c.Query(key)), 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return v, true
}

func productQuery(c *gin.Context) (*models.ProductType, bool) {
	raw := strings.TrimSpace(c.Query("product"))
	if raw == "" {
		return nil, true
	}
	p, ok := models.ParseProductType(raw)
	if !ok {
		return nil, false
	}
	return &p, true
}

func statusQuery(c *gin.Context) (*models.PositionStatus, bool) {
	raw := strings.TrimSpace(c.Query("status"))
	if raw == "" {
		return nil, true
	}
	s, ok := models.ParsePositionStatus(raw)
	if !ok {
		return nil, false
	}
	return &s, true
}

func page[T any](items []T, limit, offset int) ([]T, map[string]any) {
	total := len(items)
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	meta := map[string]any{
		"limit":    limit,
		"offset":   offset,
		"total":    total,
		"has_next": offset+limit < total,
	}
	if offset >= total {
		return []T{}, meta
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items, meta
}
