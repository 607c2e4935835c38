package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"papertrade/internal/models"
	"papertrade/internal/position"
	"papertrade/internal/repository"
)

type PositionHandler struct {
	Manager *position.Manager
	Orders  repository.OrderRepository
}

func (h *PositionHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/positions")
	g.POST("", h.open)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.GET("/:id/orders", h.orders)
	g.POST("/:id/close", h.close)
	g.POST("/:id/liquidate", h.liquidate)
}

type openPositionRequest struct {
	OwnerID  uint64          `json:"owner_id" binding:"required"`
	Symbol   string          `json:"symbol" binding:"required"`
	Side     string          `json:"side" binding:"required"`
	Quantity decimal.Decimal `json:"quantity"`
	Leverage decimal.Decimal `json:"leverage"`
	Product  string          `json:"product" binding:"required"`
}

type closePositionRequest struct {
	OwnerID uint64 `json:"owner_id" binding:"required"`
}

// @Summary Open a leveraged position
// @Tags positions
// @Accept json
// @Param body body openPositionRequest true "order"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 402 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/positions [post]
func (h *PositionHandler) open(c *gin.Context) {
	var req openPositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	side, ok := models.ParseOrderSide(req.Side)
	if !ok {
		Error(c, http.StatusBadRequest, "invalid side", nil)
		return
	}
	product, ok := models.ParseProductType(req.Product)
	if !ok {
		Error(c, http.StatusBadRequest, "invalid product", nil)
		return
	}
	p, err := h.Manager.Open(c.Request.Context(), position.OpenRequest{
		OwnerID:  req.OwnerID,
		Symbol:   req.Symbol,
		Side:     side,
		Quantity: req.Quantity,
		Leverage: req.Leverage,
		Product:  product,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, p, nil)
}

// @Summary List an owner's positions
// @Tags positions
// @Param owner_id query int true "owner id"
// @Param product query string false "FUTURES or MARGIN"
// @Param status query string false "OPEN, CLOSED or LIQUIDATED"
// @Param limit query int false "page size"
// @Param offset query int false "offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/positions [get]
func (h *PositionHandler) list(c *gin.Context) {
	owner, ok := uintQuery(c, "owner_id")
	if !ok {
		Error(c, http.StatusBadRequest, "owner_id is required", nil)
		return
	}
	product, ok := productQuery(c)
	if !ok {
		Error(c, http.StatusBadRequest, "invalid product", nil)
		return
	}
	status, ok := statusQuery(c)
	if !ok {
		Error(c, http.StatusBadRequest, "invalid status", nil)
		return
	}
	items, err := h.Manager.ListByOwner(c.Request.Context(), owner, product, status)
	if err != nil {
		Fail(c, err)
		return
	}
	out, meta := page(items, intQuery(c, "limit", 50), intQuery(c, "offset", 0))
	Ok(c, out, meta)
}

// @Summary Get a position
// @Tags positions
// @Param id path string true "position id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/positions/{id} [get]
func (h *PositionHandler) get(c *gin.Context) {
	p, err := h.Manager.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, p, nil)
}

// @Summary List the fill records of a position
// @Tags positions
// @Param id path string true "position id"
// @Success 200 {object} apiResponse
// @Router /api/v1/positions/{id}/orders [get]
func (h *PositionHandler) orders(c *gin.Context) {
	if h.Orders == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if _, err := h.Manager.Get(c.Request.Context(), id); err != nil {
		Fail(c, err)
		return
	}
	items, err := h.Orders.ListOrders(c.Request.Context(), repository.ListOrdersParams{
		PositionID: &id,
		Limit:      intQuery(c, "limit", 50),
		Offset:     intQuery(c, "offset", 0),
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, nil)
}

// @Summary Close a position at the current price
// @Tags positions
// @Accept json
// @Param id path string true "position id"
// @Param body body closePositionRequest true "owner"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /api/v1/positions/{id}/close [post]
func (h *PositionHandler) close(c *gin.Context) {
	var req closePositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	p, err := h.Manager.Close(c.Request.Context(), strings.TrimSpace(c.Param("id")), req.OwnerID)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, p, nil)
}

// @Summary Force-liquidate a position at the current price
// @Tags positions
// @Param id path string true "position id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/positions/{id}/liquidate [post]
func (h *PositionHandler) liquidate(c *gin.Context) {
	p, err := h.Manager.Liquidate(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, p, nil)
}
