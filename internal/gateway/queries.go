// Package gateway exposes the synchronized views over a local read-mostly
// HTTP surface for the presentation layer. All reads go through the cache
// registry, so they inherit its staleness windows and auth gating.
package gateway

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"marketsync/internal/cache"
	"marketsync/internal/engine"
)

type QueryHandler struct {
	Cache  *cache.Registry
	Engine *engine.Client
}

func (h *QueryHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1")
	g.GET("/markets", h.markets)
	g.GET("/markets/:id", h.market)
	g.GET("/markets/:id/book", h.book)
	g.GET("/orders", h.orders)
	g.GET("/positions", h.positions)
	g.GET("/account", h.account)
	g.GET("/account/summary", h.accountSummary)
	g.GET("/parties", h.parties)
}

func (h *QueryHandler) markets(c *gin.Context) {
	items, err := cache.ReadAs(c.Request.Context(), h.Cache, cache.KindMarkets, nil,
		func(ctx context.Context) ([]engine.Market, error) {
			return h.Engine.ListMarkets(ctx)
		})
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, items, nil)
}

func (h *QueryHandler) market(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	item, err := cache.ReadAs(c.Request.Context(), h.Cache, cache.KindMarkets,
		map[string]string{"id": id},
		func(ctx context.Context) (*engine.Market, error) {
			return h.Engine.GetMarket(ctx, id)
		})
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, item, nil)
}

func (h *QueryHandler) book(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	book, err := cache.ReadAs(c.Request.Context(), h.Cache, cache.KindOrderBook,
		map[string]string{"marketId": id},
		func(ctx context.Context) (*engine.OrderBook, error) {
			return h.Engine.GetOrderBook(ctx, id)
		})
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, book, nil)
}

func (h *QueryHandler) orders(c *gin.Context) {
	filter := engine.OrderFilter{
		MarketID: strings.TrimSpace(c.Query("marketId")),
		Status:   strings.TrimSpace(c.Query("status")),
	}
	items, err := cache.ReadAs(c.Request.Context(), h.Cache, cache.KindOrders,
		map[string]string{"marketId": filter.MarketID, "status": filter.Status},
		func(ctx context.Context) ([]engine.Order, error) {
			return h.Engine.ListOrders(ctx, filter)
		})
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, items, nil)
}

func (h *QueryHandler) positions(c *gin.Context) {
	filter := engine.PositionFilter{
		MarketID: strings.TrimSpace(c.Query("marketId")),
	}
	items, err := cache.ReadAs(c.Request.Context(), h.Cache, cache.KindPositions,
		map[string]string{"marketId": filter.MarketID},
		func(ctx context.Context) ([]engine.Position, error) {
			return h.Engine.ListPositions(ctx, filter)
		})
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, items, nil)
}

func (h *QueryHandler) account(c *gin.Context) {
	acct, err := cache.ReadAs(c.Request.Context(), h.Cache, cache.KindAccount, nil,
		func(ctx context.Context) (*engine.Account, error) {
			return h.Engine.GetAccount(ctx)
		})
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, acct, nil)
}

func (h *QueryHandler) accountSummary(c *gin.Context) {
	sum, err := cache.ReadAs(c.Request.Context(), h.Cache, cache.KindAccount,
		map[string]string{"view": "summary"},
		func(ctx context.Context) (*engine.AccountSummary, error) {
			return h.Engine.GetAccountSummary(ctx)
		})
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, sum, nil)
}

func (h *QueryHandler) parties(c *gin.Context) {
	items, err := cache.ReadAs(c.Request.Context(), h.Cache, cache.KindParties, nil,
		func(ctx context.Context) ([]engine.Party, error) {
			return h.Engine.ListParties(ctx)
		})
	if err != nil {
		fail(c, err)
		return
	}
	Ok(c, items, nil)
}
