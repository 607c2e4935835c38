package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"papertrade/internal/risk"
)

type RiskHandler struct {
	Monitor *risk.Monitor
}

func (h *RiskHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/risk")
	g.GET("/:owner_id/summary", h.summary)
	g.POST("/sweep", h.sweep)
}

// @Summary Risk summary of an owner's open positions
// @Tags risk
// @Param owner_id path int true "owner id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/risk/{owner_id}/summary [get]
func (h *RiskHandler) summary(c *gin.Context) {
	owner, ok := uintParam(c, "owner_id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid owner_id", nil)
		return
	}
	s, err := h.Monitor.Summary(c.Request.Context(), owner)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, s, nil)
}

// @Summary Run one risk sweep now
// @Tags risk
// @Success 200 {object} apiResponse
// @Router /api/v1/risk/sweep [post]
func (h *RiskHandler) sweep(c *gin.Context) {
	res, err := h.Monitor.RunOnce(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, res, nil)
}
