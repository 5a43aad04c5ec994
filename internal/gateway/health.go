package gateway

import (
	"strings"

	"github.com/gin-gonic/gin"

	"marketsync/internal/realtime"
)

type HealthHandler struct {
	Channel *realtime.Channel
}

func (h *HealthHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
}

func (h *HealthHandler) health(c *gin.Context) {
	state := realtime.StateDisconnected
	if h.Channel != nil {
		state = h.Channel.State()
	}
	Ok(c, gin.H{
		"status": "ok",
		"ws":     state.String(),
	}, nil)
}

// WatchHandler lets the presentation layer pin realtime topics for markets it
// currently displays.
type WatchHandler struct {
	Channel *realtime.Channel
}

func (h *WatchHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1")
	g.POST("/markets/:id/watch", h.watch)
	g.DELETE("/markets/:id/watch", h.unwatch)
}

func (h *WatchHandler) watch(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if h.Channel != nil && id != "" {
		h.Channel.Subscribe(c.Request.Context(), realtime.MarketChannel(id))
	}
	Ok(c, gin.H{"channel": realtime.MarketChannel(id)}, nil)
}

func (h *WatchHandler) unwatch(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if h.Channel != nil && id != "" {
		h.Channel.Unsubscribe(c.Request.Context(), realtime.MarketChannel(id))
	}
	Ok(c, gin.H{"channel": realtime.MarketChannel(id)}, nil)
}
