// Package mutation executes state-changing engine calls and invalidates the
// cache regions each one is known to affect.
package mutation

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"marketsync/internal/cache"
	"marketsync/internal/engine"
)

// Op identifies a mutation operation.
type Op string

const (
	OpPlaceOrder     Op = "place_order"
	OpCancelOrder    Op = "cancel_order"
	OpRedeemPosition Op = "redeem_position"
	OpRequestFaucet  Op = "request_faucet"
)

// InvalidationsFor returns the fixed set of cache-key prefixes a successful
// mutation makes stale. The sets are hardcoded: placing an order moves
// collateral (account) and changes the book; redeeming a position pays out.
func InvalidationsFor(op Op) []string {
	switch op {
	case OpPlaceOrder:
		return []string{cache.KindOrders, cache.KindOrderBook, cache.KindAccount}
	case OpCancelOrder:
		return []string{cache.KindOrders, cache.KindAccount}
	case OpRedeemPosition:
		return []string{cache.KindPositions, cache.KindAccount}
	case OpRequestFaucet:
		return []string{cache.KindAccount}
	default:
		return nil
	}
}

// Engine is the write-side subset of the engine client.
type Engine interface {
	PlaceOrder(ctx context.Context, req engine.PlaceOrderRequest) (*engine.PlaceOrderResult, error)
	CancelOrder(ctx context.Context, orderID string) (*engine.Order, error)
	RedeemPosition(ctx context.Context, req engine.RedeemRequest) (*engine.RedeemResult, error)
	RequestFaucet(ctx context.Context, req engine.FaucetRequest) (*engine.FaucetResult, error)
}

// Invalidator is the slice of the cache registry mutations touch.
type Invalidator interface {
	Invalidate(prefixes ...string)
}

// Pipeline runs mutations. Invalidation fires on success only and is
// fire-and-forget relative to the caller: the mutation result is returned
// immediately and any refetch the invalidation triggers happens on later
// reads.
type Pipeline struct {
	Engine Engine
	Cache  Invalidator
	Logger *zap.Logger
}

func (p *Pipeline) PlaceOrder(ctx context.Context, req engine.PlaceOrderRequest) (*engine.PlaceOrderResult, error) {
	if req.ClientOrderID == "" {
		req.ClientOrderID = uuid.NewString()
	}
	res, err := p.Engine.PlaceOrder(ctx, req)
	if err != nil {
		return nil, err
	}
	p.settle(OpPlaceOrder)
	return res, nil
}

func (p *Pipeline) CancelOrder(ctx context.Context, orderID string) (*engine.Order, error) {
	order, err := p.Engine.CancelOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	p.settle(OpCancelOrder)
	return order, nil
}

func (p *Pipeline) RedeemPosition(ctx context.Context, req engine.RedeemRequest) (*engine.RedeemResult, error) {
	res, err := p.Engine.RedeemPosition(ctx, req)
	if err != nil {
		return nil, err
	}
	p.settle(OpRedeemPosition)
	return res, nil
}

func (p *Pipeline) RequestFaucet(ctx context.Context, req engine.FaucetRequest) (*engine.FaucetResult, error) {
	res, err := p.Engine.RequestFaucet(ctx, req)
	if err != nil {
		return nil, err
	}
	p.settle(OpRequestFaucet)
	return res, nil
}

func (p *Pipeline) settle(op Op) {
	prefixes := InvalidationsFor(op)
	if p.Cache != nil && len(prefixes) > 0 {
		p.Cache.Invalidate(prefixes...)
	}
	if p.Logger != nil {
		p.Logger.Debug("mutation invalidated cache regions",
			zap.String("op", string(op)),
			zap.Strings("prefixes", prefixes),
		)
	}
}
