package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"papertrade/internal/settings"
)

type SettingsHandler struct {
	Settings *settings.Service
}

func (h *SettingsHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/settings")
	g.GET("", h.list)
	g.GET("/:key", h.get)
	g.PUT("/:key", h.put)
}

type putSwitchRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// @Summary List feature switches
// @Tags settings
// @Success 200 {object} apiResponse
// @Router /api/v1/settings [get]
func (h *SettingsHandler) list(c *gin.Context) {
	items, err := h.Settings.List(c.Request.Context())
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, nil)
}

// @Summary Get a feature switch
// @Tags settings
// @Param key path string true "switch key"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/settings/{key} [get]
func (h *SettingsHandler) get(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if !settings.Known(key) {
		Error(c, http.StatusNotFound, "setting not found", nil)
		return
	}
	Ok(c, gin.H{"key": key, "enabled": h.Settings.Enabled(c.Request.Context(), key)}, nil)
}

// @Summary Turn a feature switch on or off
// @Tags settings
// @Accept json
// @Param key path string true "switch key"
// @Param body body putSwitchRequest true "value"
// @Success 200 {object} apiResponse
// @Router /api/v1/settings/{key} [put]
func (h *SettingsHandler) put(c *gin.Context) {
	var req putSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	key := strings.TrimSpace(c.Param("key"))
	if err := h.Settings.SetEnabled(c.Request.Context(), key, *req.Enabled); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, gin.H{"key": key, "enabled": *req.Enabled}, nil)
}
