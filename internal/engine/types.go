package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// Monetary and quantity fields are decimal.Decimal throughout, which
// marshals as quoted decimal strings on the wire. Floats would drift.

type MarketStatus string

const (
	MarketOpen     MarketStatus = "open"
	MarketClosed   MarketStatus = "closed"
	MarketResolved MarketStatus = "resolved"
)

// Market is one yes/no prediction market. Outcome is set iff the market is
// resolved.
type Market struct {
	ID           string          `json:"id"`
	Question     string          `json:"question"`
	Status       MarketStatus    `json:"status"`
	Outcome      *bool           `json:"outcome,omitempty"`
	YesPrice     decimal.Decimal `json:"yesPrice"`
	NoPrice      decimal.Decimal `json:"noPrice"`
	Volume       decimal.Decimal `json:"volume"`
	OpenInterest decimal.Decimal `json:"openInterest"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type PriceLevel struct {
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	OrderCount int             `json:"orderCount"`
}

// BookSide holds one side's levels: bids descending by price, asks ascending,
// no duplicate prices within a list.
type BookSide struct {
	Bids []PriceLevel `json:"bids"`
	Asks []PriceLevel `json:"asks"`
}

type OrderBook struct {
	MarketID  string    `json:"marketId"`
	Yes       BookSide  `json:"yes"`
	No        BookSide  `json:"no"`
	Timestamp time.Time `json:"timestamp"`
}

type OrderStatus string

const (
	OrderOpen      OrderStatus = "open"
	OrderFilled    OrderStatus = "filled"
	OrderPartial   OrderStatus = "partial"
	OrderCancelled OrderStatus = "cancelled"
)

type Order struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId"`
	MarketID       string          `json:"marketId"`
	Side           string          `json:"side"`   // yes|no
	Action         string          `json:"action"` // buy|sell
	Type           string          `json:"type"`   // limit|market
	Price          decimal.Decimal `json:"price"`
	Quantity       decimal.Decimal `json:"quantity"`
	FilledQuantity decimal.Decimal `json:"filledQuantity"`
	Status         OrderStatus     `json:"status"`
	LockedAmount   decimal.Decimal `json:"lockedAmount"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Position is a held quantity in one market side. CurrentValue and
// UnrealizedPnL are present only in the with-value variant the engine returns
// when asked to mark positions.
type Position struct {
	ID             string           `json:"id"`
	UserID         string           `json:"userId"`
	MarketID       string           `json:"marketId"`
	Side           string           `json:"side"`
	Quantity       decimal.Decimal  `json:"quantity"`
	LockedQuantity decimal.Decimal  `json:"lockedQuantity"`
	AvgPrice       decimal.Decimal  `json:"avgPrice"`
	CurrentValue   *decimal.Decimal `json:"currentValue,omitempty"`
	UnrealizedPnL  *decimal.Decimal `json:"unrealizedPnl,omitempty"`
}

type Account struct {
	UserID           string          `json:"userId"`
	AvailableBalance decimal.Decimal `json:"availableBalance"`
	LockedBalance    decimal.Decimal `json:"lockedBalance"`
}

// AccountSummary adds marked equity; available + locked + positionsValue
// approximates totalEquity, subject to settlement timing.
type AccountSummary struct {
	Account
	PositionsValue decimal.Decimal `json:"positionsValue"`
	TotalEquity    decimal.Decimal `json:"totalEquity"`
}

type Party struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}
