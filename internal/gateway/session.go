package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"marketsync/internal/cache"
	"marketsync/internal/session"
)

type SessionHandler struct {
	Sessions *session.Store
	Cache    *cache.Registry
}

func (h *SessionHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/session")
	g.GET("", h.current)
	g.POST("/login", h.login)
	g.POST("/logout", h.logout)
}

type loginRequest struct {
	UserID      string `json:"userId" binding:"required"`
	PartyID     string `json:"partyId" binding:"required"`
	DisplayName string `json:"displayName"`
}

type sessionView struct {
	UserID          string `json:"userId"`
	PartyID         string `json:"partyId"`
	DisplayName     string `json:"displayName"`
	IsAuthenticated bool   `json:"isAuthenticated"`
	IsAdmin         bool   `json:"isAdmin"`
}

func viewOf(st session.State) sessionView {
	return sessionView{
		UserID:          st.UserID,
		PartyID:         st.PartyID,
		DisplayName:     st.DisplayName,
		IsAuthenticated: st.Authenticated,
		IsAdmin:         session.IsAdmin(st),
	}
}

func (h *SessionHandler) current(c *gin.Context) {
	Ok(c, viewOf(h.Sessions.Snapshot()), nil)
}

func (h *SessionHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	err := h.Sessions.Login(c.Request.Context(), session.Identity{
		UserID:      req.UserID,
		PartyID:     req.PartyID,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, viewOf(h.Sessions.Snapshot()), nil)
}

func (h *SessionHandler) logout(c *gin.Context) {
	if err := h.Sessions.Logout(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	// Evict everything: cached identity-scoped views must not outlive the
	// session that fetched them.
	if h.Cache != nil {
		h.Cache.Clear()
	}
	Ok(c, viewOf(h.Sessions.Snapshot()), nil)
}
