package gateway

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"marketsync/internal/engine"
	"marketsync/internal/mutation"
	"marketsync/internal/session"
	"marketsync/internal/storage"
)

type MutationHandler struct {
	Pipeline *mutation.Pipeline
	Sessions *session.Store
	// Storage backs the admin guard so it works before the session store has
	// settled. Advisory only: the engine re-authorizes privileged calls.
	Storage storage.Store
}

func (h *MutationHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1")
	g.POST("/orders", h.placeOrder)
	g.DELETE("/orders/:id", h.cancelOrder)
	g.POST("/positions/redeem", h.redeem)
	g.POST("/faucet", h.faucet)

	admin := r.Group("/api/v1/admin")
	admin.Use(h.requireAdmin)
	admin.POST("/faucet", h.faucet)
}

func (h *MutationHandler) requireAdmin(c *gin.Context) {
	if !session.IsAdminFromStorage(c.Request.Context(), h.Storage) {
		Error(c, http.StatusForbidden, "admin party required", nil)
		c.Abort()
		return
	}
	c.Next()
}

func (h *MutationHandler) placeOrder(c *gin.Context) {
	var req engine.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	res, err := h.Pipeline.PlaceOrder(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	// Rejections and partial fills live in res.Status; they are not errors.
	Ok(c, res, nil)
}

func (h *MutationHandler) cancelOrder(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		Error(c, http.StatusBadRequest, "order id required", nil)
		return
	}
	order, err := h.Pipeline.CancelOrder(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, order, nil)
}

func (h *MutationHandler) redeem(c *gin.Context) {
	var req engine.RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if req.PartyID == "" && h.Sessions != nil {
		req.PartyID = h.Sessions.Snapshot().PartyID
	}
	res, err := h.Pipeline.RedeemPosition(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, res, nil)
}

func (h *MutationHandler) faucet(c *gin.Context) {
	var req engine.FaucetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	res, err := h.Pipeline.RequestFaucet(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, res, nil)
}
