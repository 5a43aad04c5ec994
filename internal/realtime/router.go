package realtime

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"marketsync/internal/cache"
	"marketsync/internal/engine"
)

// Channel name prefixes on the wire.
const (
	MarketChannelPrefix = "market:"
	UserChannelPrefix   = "user:"
)

// MarketChannel names the topic for one market's push events.
func MarketChannel(marketID string) string {
	return MarketChannelPrefix + marketID
}

// UserChannel names the topic for one user's order/position/account events.
func UserChannel(userID string) string {
	return UserChannelPrefix + userID
}

// Sink records inbound events, e.g. into the raw-event journal.
type Sink interface {
	Record(ev Event)
}

// Router maps inbound events to targeted cache invalidation or merge. Scoping
// is strict: a market event never touches identity-scoped regions.
type Router struct {
	Cache  *cache.Registry
	Sink   Sink
	Logger *zap.Logger
}

func (r *Router) Handle(ev Event) {
	if r.Sink != nil {
		r.Sink.Record(ev)
	}
	if r.Cache == nil {
		return
	}
	switch {
	case strings.HasPrefix(ev.Channel, MarketChannelPrefix):
		r.handleMarket(strings.TrimPrefix(ev.Channel, MarketChannelPrefix), ev)
	case strings.HasPrefix(ev.Channel, UserChannelPrefix):
		r.handleUser(ev)
	default:
		if r.Logger != nil {
			r.Logger.Debug("event on unrecognized channel", zap.String("channel", ev.Channel))
		}
	}
}

func (r *Router) handleMarket(marketID string, ev Event) {
	filter := map[string]string{"marketId": marketID}
	switch ev.Event {
	case "orderbook", "book":
		// Prefer merging the pushed book straight into the cache; fall back
		// to invalidation when the payload does not decode.
		if len(ev.Data) > 0 {
			var book engine.OrderBook
			if err := json.Unmarshal(ev.Data, &book); err == nil && book.MarketID != "" {
				if r.Cache.Merge(cache.KindOrderBook, filter, &book) {
					return
				}
			}
		}
		r.Cache.Invalidate(cache.Key(cache.KindOrderBook, filter))
	case "price", "trade", "market", "resolved":
		r.Cache.Invalidate(cache.KindMarkets, cache.Key(cache.KindOrderBook, filter))
	default:
		r.Cache.Invalidate(cache.Key(cache.KindOrderBook, filter))
	}
}

func (r *Router) handleUser(ev Event) {
	switch ev.Event {
	case "order":
		r.Cache.Invalidate(cache.KindOrders, cache.KindAccount)
	case "position":
		r.Cache.Invalidate(cache.KindPositions, cache.KindAccount)
	case "account":
		r.Cache.Invalidate(cache.KindAccount)
	default:
		r.Cache.Invalidate(cache.KindOrders, cache.KindPositions, cache.KindAccount)
	}
}
