// Package book implements the order-book venue adapter: REST quoting and
// order submission plus a WS-fed best bid/ask cache.
package book

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/you/arb-exec/internal/config"
	"github.com/you/arb-exec/internal/types"
	"github.com/you/arb-exec/internal/venue"
)

const (
	pollInterval = 500 * time.Millisecond
	pollBudget   = 60 * time.Second
)

type Client struct {
	cfg    *config.VenueCfg
	log    *zap.Logger
	http   *http.Client
	cache  *Cache
	events chan venue.OrderEvent
}

func NewClient(cfg *config.VenueCfg, log *zap.Logger) (*Client, error) {
	if cfg.RestURL == "" {
		return nil, fmt.Errorf("venue %s: rest_url is required", cfg.Name)
	}
	return &Client{
		cfg:    cfg,
		log:    log,
		http:   &http.Client{Timeout: 6 * time.Second},
		cache:  NewCache(),
		events: make(chan venue.OrderEvent, 64),
	}, nil
}

func (c *Client) Name() string { return c.cfg.Name }

// Fees returns the taker-fee cost model this venue was configured with.
func (c *Client) Fees() venue.FeeModel {
	return venue.TakerFee{Bps: int64(c.cfg.TakerFeeBps)}
}

// StartStream begins feeding the bid/ask cache over WS. Quoting works
// without it, falling back to REST per call.
func (c *Client) StartStream(ctx context.Context, pairs []string) error {
	if c.cfg.WsURL == "" {
		return nil
	}
	symbols := make([]string, 0, len(pairs))
	for _, p := range pairs {
		symbols = append(symbols, symbolFor(p))
	}
	ws := NewWS(c.cfg.WsURL)
	stream, err := ws.SubscribeBookTicker(ctx, symbols)
	if err != nil {
		return fmt.Errorf("subscribe book ticker: %w", err)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-stream:
				if !ok {
					return
				}
				c.cache.Set(t.Symbol, t.Bid, t.Ask)
			}
		}
	}()
	c.log.Info("book ticker stream started", zap.String("venue", c.cfg.Name), zap.Strings("symbols", symbols))
	return nil
}

func (c *Client) QuotePrice(ctx context.Context, pair string, side types.Side, _ decimal.Decimal) (decimal.Decimal, error) {
	symbol := symbolFor(pair)

	bid, ask, err := c.cache.BestBidAsk(symbol)
	if err != nil {
		bid, ask, err = c.restBookTicker(ctx, symbol)
		if err != nil {
			return decimal.Zero, err
		}
	}
	if side == types.SideBuy {
		return ask, nil
	}
	return bid, nil
}

type bookTickerResp struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	AskPrice string `json:"askPrice"`
}

func (c *Client) restBookTicker(ctx context.Context, symbol string) (bid, ask decimal.Decimal, err error) {
	endpoint := c.cfg.RestURL + "/api/v3/ticker/bookTicker?symbol=" + url.QueryEscape(symbol)
	req, _ := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %v", types.ErrQuoteUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: bookTicker %d: %s", types.ErrQuoteUnavailable, resp.StatusCode, string(b))
	}
	var br bookTickerResp
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %v", types.ErrQuoteUnavailable, err)
	}
	bid, berr := decimal.NewFromString(br.BidPrice)
	ask, aerr := decimal.NewFromString(br.AskPrice)
	if berr != nil || aerr != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: bad bookTicker payload for %s", types.ErrQuoteUnavailable, symbol)
	}
	return bid, ask, nil
}

// SubmitOrder places a market order and starts polling its state; the
// outcome arrives on Events.
func (c *Client) SubmitOrder(ctx context.Context, pair string, side types.Side, amount, _ decimal.Decimal) (string, error) {
	symbol := symbolFor(pair)
	ts := time.Now().UnixMilli()
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("type", "MARKET")
	params.Set("quantity", amount.String())
	params.Set("timestamp", fmt.Sprintf("%d", ts))
	params.Set("recvWindow", "5000")
	params.Set("signature", c.sign(params.Encode()))

	endpoint := c.cfg.RestURL + "/api/v3/order"
	req, _ := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(params.Encode()))
	req.Header.Set("X-API-KEY", c.cfg.ApiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrOrderSubmission, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("%w: order %d: %s", types.ErrOrderSubmission, resp.StatusCode, string(body))
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrOrderSubmission, err)
	}
	var orderID string
	switch v := obj["orderId"].(type) {
	case string:
		orderID = v
	case float64:
		orderID = fmt.Sprintf("%.0f", v)
	default:
		return "", fmt.Errorf("%w: missing orderId in response", types.ErrOrderSubmission)
	}

	go c.pollOrder(symbol, orderID)
	return orderID, nil
}

// pollOrder watches one order until it fills or fails and pushes the
// corresponding event. It runs detached from the submitting call.
func (c *Client) pollOrder(symbol, orderID string) {
	ctx, cancel := context.WithTimeout(context.Background(), pollBudget)
	defer cancel()

	t := time.NewTicker(pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Warn("order poll timed out", zap.String("order_id", orderID), zap.String("symbol", symbol))
			c.push(venue.OrderEvent{Venue: c.cfg.Name, OrderID: orderID, Failed: true})
			return
		case <-t.C:
			snap, terminal, failed, err := c.queryOrder(ctx, symbol, orderID)
			if err != nil {
				c.log.Warn("order query failed", zap.String("order_id", orderID), zap.Error(err))
				continue
			}
			if failed {
				c.push(venue.OrderEvent{Venue: c.cfg.Name, OrderID: orderID, Failed: true})
				return
			}
			if terminal {
				c.push(venue.OrderEvent{Venue: c.cfg.Name, OrderID: orderID, Snapshot: snap})
				return
			}
		}
	}
}

func (c *Client) queryOrder(ctx context.Context, symbol, orderID string) (snap *types.OrderSnapshot, terminal, failed bool, err error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("orderId", orderID)
	q.Set("timestamp", fmt.Sprintf("%d", time.Now().UnixMilli()))
	q.Set("recvWindow", "5000")
	q.Set("signature", c.sign(q.Encode()))

	endpoint := c.cfg.RestURL + "/api/v3/order?" + q.Encode()
	req, _ := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	req.Header.Set("X-API-KEY", c.cfg.ApiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, false, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 {
		return nil, false, false, fmt.Errorf("order query %d: %s", resp.StatusCode, string(body))
	}

	var ord struct {
		Status          string `json:"status"`
		ExecutedQty     string `json:"executedQty"`
		CumulativeQuote string `json:"cummulativeQuoteQty"`
	}
	if err := json.Unmarshal(body, &ord); err != nil {
		return nil, false, false, err
	}

	switch ord.Status {
	case "FILLED":
	case "CANCELED", "REJECTED", "EXPIRED":
		return nil, true, true, nil
	default:
		return nil, false, false, nil
	}

	execQty, qerr := decimal.NewFromString(ord.ExecutedQty)
	cumQuote, cerr := decimal.NewFromString(ord.CumulativeQuote)
	if qerr != nil || cerr != nil || execQty.IsZero() {
		return nil, true, true, nil
	}
	avg := cumQuote.Div(execQty)
	fee := cumQuote.Mul(decimal.NewFromInt(int64(c.cfg.TakerFeeBps))).Div(decimal.NewFromInt(10000))
	return &types.OrderSnapshot{
		ExecutedAmount: execQty,
		AveragePrice:   avg,
		CumFeeQuote:    fee,
		Filled:         true,
		Ts:             time.Now(),
	}, true, false, nil
}

func (c *Client) push(ev venue.OrderEvent) {
	select {
	case c.events <- ev:
	default:
	}
}

func (c *Client) Events() <-chan venue.OrderEvent { return c.events }

func (c *Client) sign(q string) string {
	mac := hmac.New(sha256.New, []byte(c.cfg.ApiSecret))
	mac.Write([]byte(q))
	return hex.EncodeToString(mac.Sum(nil))
}

// symbolFor turns "ETH-USDT" into the venue's "ETHUSDT" symbol form.
func symbolFor(pair string) string {
	return strings.ToUpper(strings.ReplaceAll(pair, "-", ""))
}
