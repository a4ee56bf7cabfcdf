package book

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/you/arb-exec/internal/config"
	"github.com/you/arb-exec/internal/types"
	"github.com/you/arb-exec/internal/venue"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(&config.VenueCfg{
		Name:        "testex",
		Kind:        "order_book",
		RestURL:     srv.URL,
		ApiKey:      "key",
		ApiSecret:   "secret",
		TakerFeeBps: 10,
	}, zap.NewNop())
	require.NoError(t, err)
	return c, srv
}

func TestSymbolFor(t *testing.T) {
	assert.Equal(t, "ETHUSDT", symbolFor("ETH-USDT"))
	assert.Equal(t, "BTCUSDT", symbolFor("btc-usdt"))
}

func TestCache_BestBidAsk(t *testing.T) {
	c := NewCache()
	_, _, err := c.BestBidAsk("ETHUSDT")
	assert.ErrorIs(t, err, types.ErrQuoteUnavailable)
	assert.False(t, c.Has("ETHUSDT"))

	c.Set("ETHUSDT", decimal.NewFromInt(99), decimal.NewFromInt(100))
	bid, ask, err := c.BestBidAsk("ETHUSDT")
	require.NoError(t, err)
	assert.True(t, bid.Equal(decimal.NewFromInt(99)))
	assert.True(t, ask.Equal(decimal.NewFromInt(100)))
	assert.True(t, c.Has("ETHUSDT"))
}

func TestQuotePrice_RestFallbackThenCache(t *testing.T) {
	var restHits int
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/ticker/bookTicker", r.URL.Path)
		restHits++
		json.NewEncoder(w).Encode(bookTickerResp{Symbol: "ETHUSDT", BidPrice: "99", AskPrice: "100"})
	}))
	ctx := context.Background()

	ask, err := c.QuotePrice(ctx, "ETH-USDT", types.SideBuy, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.True(t, ask.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 1, restHits)

	// a populated cache takes precedence over REST
	c.cache.Set("ETHUSDT", decimal.NewFromInt(101), decimal.NewFromInt(102))
	bid, err := c.QuotePrice(ctx, "ETH-USDT", types.SideSell, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.True(t, bid.Equal(decimal.NewFromInt(101)))
	assert.Equal(t, 1, restHits)
}

func TestSubmitOrder_PollsToFill(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v3/order", r.URL.Path)
		switch r.Method {
		case http.MethodPost:
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "ETHUSDT", r.PostForm.Get("symbol"))
			assert.Equal(t, "BUY", r.PostForm.Get("side"))
			assert.Equal(t, "MARKET", r.PostForm.Get("type"))
			assert.NotEmpty(t, r.PostForm.Get("signature"))
			assert.Equal(t, "key", r.Header.Get("X-API-KEY"))
			json.NewEncoder(w).Encode(map[string]any{"orderId": 12345})
		case http.MethodGet:
			assert.Equal(t, "12345", r.URL.Query().Get("orderId"))
			json.NewEncoder(w).Encode(map[string]any{
				"status":              "FILLED",
				"executedQty":         "10",
				"cummulativeQuoteQty": "1000",
			})
		}
	}))

	id, err := c.SubmitOrder(context.Background(), "ETH-USDT", types.SideBuy, decimal.NewFromInt(10), decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, "12345", id)

	select {
	case ev := <-c.Events():
		assert.Equal(t, id, ev.OrderID)
		assert.False(t, ev.Failed)
		require.NotNil(t, ev.Snapshot)
		assert.True(t, ev.Snapshot.Filled)
		assert.True(t, ev.Snapshot.ExecutedAmount.Equal(decimal.NewFromInt(10)))
		assert.True(t, ev.Snapshot.AveragePrice.Equal(decimal.NewFromInt(100)))
		// 1000 * 10bps = 1 USDT
		assert.True(t, ev.Snapshot.CumFeeQuote.Equal(decimal.NewFromInt(1)), "fee = %s", ev.Snapshot.CumFeeQuote)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a fill event")
	}
}

func TestSubmitOrder_RejectedOrderFails(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			json.NewEncoder(w).Encode(map[string]any{"orderId": "abc"})
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{"status": "REJECTED"})
		}
	}))

	id, err := c.SubmitOrder(context.Background(), "ETH-USDT", types.SideBuy, decimal.NewFromInt(1), decimal.Zero)
	require.NoError(t, err)

	select {
	case ev := <-c.Events():
		assert.Equal(t, id, ev.OrderID)
		assert.True(t, ev.Failed)
		assert.Nil(t, ev.Snapshot)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a failure event")
	}
}

func TestSubmitOrder_HTTPErrorIsSynchronous(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"code":-1013,"msg":"Invalid quantity"}`, http.StatusBadRequest)
	}))

	_, err := c.SubmitOrder(context.Background(), "ETH-USDT", types.SideBuy, decimal.NewFromInt(1), decimal.Zero)
	assert.ErrorIs(t, err, types.ErrOrderSubmission)

	success := venue.OrderEvent{}
	select {
	case success = <-c.Events():
	default:
	}
	assert.Empty(t, success.OrderID)
}
