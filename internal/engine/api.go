package engine

import (
	"context"
	"net/url"
)

// Read-side fetchers. Each returns the decoded {data: ...} payload.

type OrderFilter struct {
	MarketID string
	Status   string
}

type PositionFilter struct {
	MarketID string
}

func (c *Client) ListMarkets(ctx context.Context) ([]Market, error) {
	raw, err := c.Get(ctx, "/markets", nil)
	if err != nil {
		return nil, err
	}
	return decodeData[[]Market](raw)
}

func (c *Client) GetMarket(ctx context.Context, marketID string) (*Market, error) {
	raw, err := c.Get(ctx, "/markets/"+url.PathEscape(marketID), nil)
	if err != nil {
		return nil, err
	}
	m, err := decodeData[Market](raw)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) GetOrderBook(ctx context.Context, marketID string) (*OrderBook, error) {
	raw, err := c.Get(ctx, "/markets/"+url.PathEscape(marketID)+"/book", nil)
	if err != nil {
		return nil, err
	}
	book, err := decodeData[OrderBook](raw)
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *Client) ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error) {
	query := url.Values{}
	query.Set("marketId", filter.MarketID)
	query.Set("status", filter.Status)
	raw, err := c.Get(ctx, "/orders", query)
	if err != nil {
		return nil, err
	}
	return decodeData[[]Order](raw)
}

func (c *Client) ListPositions(ctx context.Context, filter PositionFilter) ([]Position, error) {
	query := url.Values{}
	query.Set("marketId", filter.MarketID)
	raw, err := c.Get(ctx, "/positions", query)
	if err != nil {
		return nil, err
	}
	return decodeData[[]Position](raw)
}

func (c *Client) GetAccount(ctx context.Context) (*Account, error) {
	raw, err := c.Get(ctx, "/account", nil)
	if err != nil {
		return nil, err
	}
	acct, err := decodeData[Account](raw)
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (c *Client) GetAccountSummary(ctx context.Context) (*AccountSummary, error) {
	raw, err := c.Get(ctx, "/account/summary", nil)
	if err != nil {
		return nil, err
	}
	sum, err := decodeData[AccountSummary](raw)
	if err != nil {
		return nil, err
	}
	return &sum, nil
}

func (c *Client) ListParties(ctx context.Context) ([]Party, error) {
	raw, err := c.Get(ctx, "/parties", nil)
	if err != nil {
		return nil, err
	}
	return decodeData[[]Party](raw)
}
