package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"papertrade/internal/ledger"
)

type AccountHandler struct {
	Ledger *ledger.Ledger
}

func (h *AccountHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/accounts")
	g.POST("/:owner_id/provision", h.provision)
	g.GET("/:owner_id/wallets", h.wallets)
}

// @Summary Provision paper wallets for an owner
// @Tags accounts
// @Param owner_id path int true "owner id"
// @Success 200 {object} apiResponse
// @Router /api/v1/accounts/{owner_id}/provision [post]
func (h *AccountHandler) provision(c *gin.Context) {
	owner, ok := uintParam(c, "owner_id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid owner_id", nil)
		return
	}
	items, err := h.Ledger.Provision(c.Request.Context(), owner)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, items, nil)
}

// @Summary List an owner's wallets
// @Tags accounts
// @Param owner_id path int true "owner id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/accounts/{owner_id}/wallets [get]
func (h *AccountHandler) wallets(c *gin.Context) {
	owner, ok := uintParam(c, "owner_id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid owner_id", nil)
		return
	}
	items, err := h.Ledger.ListByOwner(c.Request.Context(), owner)
	if err != nil {
		Fail(c, err)
		return
	}
	out := make([]walletView, 0, len(items))
	for _, w := range items {
		out = append(out, walletView{
			ID:          w.ID,
			Product:     string(w.Product),
			Balance:     w.Balance.String(),
			LockedFunds: w.LockedFunds.String(),
			Available:   w.Available().String(),
		})
	}
	Ok(c, out, nil)
}

type walletView struct {
	ID          uint64 `json:"id"`
	Product     string `json:"product"`
	Balance     string `json:"balance"`
	LockedFunds string `json:"locked_funds"`
	Available   string `json:"available_balance"`
}
