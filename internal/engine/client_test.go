package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func TestClientBasePath(t *testing.T) {
	c := NewClient(nil, "http://localhost:9000/")
	if got := c.BaseURL(); got != "http://localhost:9000/api" {
		t.Fatalf("BaseURL() = %q, want trailing slash trimmed and /api appended", got)
	}
}

func TestListOrdersDropsEmptyFilterParams(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/orders" {
			t.Errorf("path = %q, want /api/orders", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	ctx := context.Background()

	if _, err := c.ListOrders(ctx, OrderFilter{MarketID: "M1"}); err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if gotQuery != "marketId=M1" {
		t.Fatalf("query = %q, want empty status dropped", gotQuery)
	}

	if _, err := c.ListOrders(ctx, OrderFilter{}); err != nil {
		t.Fatalf("list orders without filter: %v", err)
	}
	if gotQuery != "" {
		t.Fatalf("query = %q, want no query string for empty filter", gotQuery)
	}
}

func TestListPositionsDecodesDecimals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{
			"id":"P1","userId":"U1","marketId":"M1","side":"yes",
			"quantity":"10","lockedQuantity":"0","avgPrice":"0.45",
			"currentValue":"5.20","unrealizedPnl":"0.70"
		}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	positions, err := c.ListPositions(context.Background(), PositionFilter{MarketID: "M1"})
	if err != nil {
		t.Fatalf("list positions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("got %d positions, want 1", len(positions))
	}
	p := positions[0]
	if !p.AvgPrice.Equal(decimal.RequireFromString("0.45")) {
		t.Fatalf("avgPrice = %s, want 0.45", p.AvgPrice)
	}
	if p.CurrentValue == nil || !p.CurrentValue.Equal(decimal.RequireFromString("5.20")) {
		t.Fatalf("currentValue = %v, want 5.20", p.CurrentValue)
	}
	if p.UnrealizedPnL == nil || !p.UnrealizedPnL.Equal(decimal.RequireFromString("0.70")) {
		t.Fatalf("unrealizedPnl = %v, want 0.70", p.UnrealizedPnL)
	}
}

func TestStructuredEngineError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"insufficient balance","code":"insufficient_balance"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	_, err := c.PlaceOrder(context.Background(), PlaceOrderRequest{MarketID: "M1"})
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("err = %v, want *RequestError", err)
	}
	if reqErr.Status != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", reqErr.Status)
	}
	if reqErr.Code != "insufficient_balance" || reqErr.Message != "insufficient balance" {
		t.Fatalf("code/message = %q/%q", reqErr.Code, reqErr.Message)
	}
	if reqErr.IsTransport() {
		t.Fatal("engine rejection reported as transport failure")
	}
}

func TestUnstructuredEngineError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	_, err := c.ListMarkets(context.Background())
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("err = %v, want *RequestError", err)
	}
	if reqErr.Code != CodeUnknownError {
		t.Fatalf("code = %q, want %q", reqErr.Code, CodeUnknownError)
	}
	if reqErr.Message != "boom" {
		t.Fatalf("message = %q, want raw body", reqErr.Message)
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	c := NewClient(nil, srv.URL)
	_, err := c.GetAccount(context.Background())
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("err = %v, want *RequestError", err)
	}
	if reqErr.Code != CodeNetworkError {
		t.Fatalf("code = %q, want %q", reqErr.Code, CodeNetworkError)
	}
	if !reqErr.IsTransport() {
		t.Fatal("transport failure not flagged as such")
	}
}

func TestRedeemPosition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/positions/redeem" {
			t.Errorf("got %s %s, want POST /api/positions/redeem", r.Method, r.URL.Path)
		}
		var req RedeemRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if req.PartyID != "P1" || req.MarketID != "M1" || req.Side != "yes" {
			t.Errorf("unexpected body: %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"payout":"12.50","transactionId":"tx-1"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	res, err := c.RedeemPosition(context.Background(), RedeemRequest{PartyID: "P1", MarketID: "M1", Side: "yes"})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if !res.Payout.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("payout = %s, want 12.5", res.Payout)
	}
	if res.TransactionID != "tx-1" {
		t.Fatalf("transactionId = %q, want tx-1", res.TransactionID)
	}
}

func TestCancelOrderEscapesID(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"id":"a/b","status":"cancelled"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	order, err := c.CancelOrder(context.Background(), "a/b")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if gotPath != "/api/orders/a%2Fb" {
		t.Fatalf("path = %q, want escaped order id", gotPath)
	}
	if order.Status != OrderCancelled {
		t.Fatalf("status = %q, want cancelled", order.Status)
	}
}
