package book

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

type Ticker struct {
	Symbol string
	Bid    decimal.Decimal
	Ask    decimal.Decimal
	TS     time.Time
}

type WS struct {
	URL    string
	Dialer *websocket.Dialer
	conn   *websocket.Conn
	mu     sync.Mutex
}

func NewWS(url string) *WS {
	return &WS{
		URL: strings.TrimRight(url, "/"),
		Dialer: &websocket.Dialer{
			HandshakeTimeout:  15 * time.Second,
			EnableCompression: true,
		},
	}
}

func (w *WS) connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		return nil
	}
	c, _, err := w.Dialer.DialContext(ctx, w.URL, nil)
	if err != nil {
		return err
	}
	w.conn = c

	_ = w.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	})
	return nil
}

func (w *WS) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

// SubscribeBookTicker subscribes to the JSON bookTicker channel for the
// given symbols and streams updates until ctx is cancelled or the
// connection drops.
func (w *WS) SubscribeBookTicker(ctx context.Context, symbols []string) (<-chan Ticker, error) {
	if err := w.connect(ctx); err != nil {
		return nil, err
	}

	params := make([]string, 0, len(symbols))
	for _, s := range symbols {
		params = append(params, strings.ToLower(s)+"@bookTicker")
	}
	sub := struct {
		ID     int      `json:"id"`
		Method string   `json:"method"`
		Params []string `json:"params"`
	}{ID: 1, Method: "SUBSCRIBE", Params: params}

	if err := w.conn.WriteJSON(sub); err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan Ticker, 1024)

	go func() {
		defer close(out)
		defer w.Close()

		pingStop := make(chan struct{})
		go func() {
			t := time.NewTicker(20 * time.Second)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-pingStop:
					return
				case <-t.C:
					_ = w.conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}()
		defer close(pingStop)

		type bookTickerMsg struct {
			ID       *int   `json:"id,omitempty"`
			Symbol   string `json:"s"`
			BidPrice string `json:"b"`
			AskPrice string `json:"a"`
			EventMs  int64  `json:"E"`
		}

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			_, data, err := w.conn.ReadMessage()
			if err != nil {
				return
			}
			_ = w.conn.SetReadDeadline(time.Now().Add(90 * time.Second))

			var msg bookTickerMsg
			if json.Unmarshal(data, &msg) != nil {
				continue
			}
			if msg.ID != nil || msg.Symbol == "" {
				// subscription ack
				continue
			}

			bid, berr := decimal.NewFromString(msg.BidPrice)
			ask, aerr := decimal.NewFromString(msg.AskPrice)
			if berr != nil || aerr != nil || bid.IsZero() || ask.IsZero() {
				continue
			}

			ts := time.Now()
			if msg.EventMs > 0 {
				ts = time.UnixMilli(msg.EventMs)
			}

			out <- Ticker{
				Symbol: strings.ToUpper(msg.Symbol),
				Bid:    bid,
				Ask:    ask,
				TS:     ts,
			}
		}
	}()

	return out, nil
}
