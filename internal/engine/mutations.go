package engine

import (
	"context"
	"net/url"

	"github.com/shopspring/decimal"
)

// Write-side calls. The engine reports partial fills and rejections inside
// the success payload's status field; only transport failures and non-2xx
// responses become errors.

type PlaceOrderRequest struct {
	MarketID      string          `json:"marketId"`
	Side          string          `json:"side"`
	Action        string          `json:"action"`
	Type          string          `json:"type"`
	Price         decimal.Decimal `json:"price"`
	Quantity      decimal.Decimal `json:"quantity"`
	ClientOrderID string          `json:"clientOrderId,omitempty"`
}

type PlaceOrderResult struct {
	Order  Order  `json:"order"`
	Status string `json:"status"`
}

type RedeemRequest struct {
	PartyID  string `json:"partyId"`
	MarketID string `json:"marketId"`
	Side     string `json:"side"`
}

type RedeemResult struct {
	Payout        decimal.Decimal `json:"payout"`
	TransactionID string          `json:"transactionId"`
}

type FaucetRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type FaucetResult struct {
	Amount     decimal.Decimal `json:"amount"`
	NewBalance decimal.Decimal `json:"newBalance"`
}

func (c *Client) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	raw, err := c.Post(ctx, "/orders", req)
	if err != nil {
		return nil, err
	}
	res, err := decodeData[PlaceOrderResult](raw)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) (*Order, error) {
	raw, err := c.Delete(ctx, "/orders/"+url.PathEscape(orderID))
	if err != nil {
		return nil, err
	}
	order, err := decodeData[Order](raw)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) RedeemPosition(ctx context.Context, req RedeemRequest) (*RedeemResult, error) {
	raw, err := c.Post(ctx, "/positions/redeem", req)
	if err != nil {
		return nil, err
	}
	res, err := decodeData[RedeemResult](raw)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) RequestFaucet(ctx context.Context, req FaucetRequest) (*FaucetResult, error) {
	raw, err := c.Post(ctx, "/faucet", req)
	if err != nil {
		return nil, err
	}
	res, err := decodeData[FaucetResult](raw)
	if err != nil {
		return nil, err
	}
	return &res, nil
}
