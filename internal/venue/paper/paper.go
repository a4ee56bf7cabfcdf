// Package paper is a simulated venue used in dry-run mode and in tests.
// Quotes come from a settable book, orders fill instantly against it, and
// failures can be scripted per side.
package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/you/arb-exec/internal/types"
	"github.com/you/arb-exec/internal/venue"
)

type book struct {
	bid, ask decimal.Decimal
}

type Venue struct {
	name string

	mu         sync.Mutex
	books      map[string]book
	failNext   map[types.Side]int
	takerBps   int64
	networkFee decimal.Decimal
	gasAsset   string

	events chan venue.OrderEvent
}

func New(name string) *Venue {
	return &Venue{
		name:     name,
		books:    make(map[string]book, 4),
		failNext: make(map[types.Side]int, 2),
		gasAsset: "ETH",
		events:   make(chan venue.OrderEvent, 64),
	}
}

func (v *Venue) Name() string { return v.name }

// SetBook sets the best bid/ask served to quotes and fills.
func (v *Venue) SetBook(pair string, bid, ask decimal.Decimal) {
	v.mu.Lock()
	v.books[pair] = book{bid: bid, ask: ask}
	v.mu.Unlock()
}

// FailNext makes the next n submissions on the given side fail
// asynchronously instead of filling.
func (v *Venue) FailNext(side types.Side, n int) {
	v.mu.Lock()
	v.failNext[side] += n
	v.mu.Unlock()
}

// SetTakerFeeBps configures the order-book style fee model returned by Fees.
func (v *Venue) SetTakerFeeBps(bps int64) {
	v.mu.Lock()
	v.takerBps = bps
	v.mu.Unlock()
}

// SetNetworkFee configures the AMM style flat fee reported by NetworkFee.
func (v *Venue) SetNetworkFee(amount decimal.Decimal, asset string) {
	v.mu.Lock()
	v.networkFee = amount
	v.gasAsset = asset
	v.mu.Unlock()
}

func (v *Venue) QuotePrice(_ context.Context, pair string, side types.Side, _ decimal.Decimal) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	bk, ok := v.books[pair]
	if !ok || bk.bid.IsZero() || bk.ask.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: empty book for %s on %s", types.ErrQuoteUnavailable, pair, v.name)
	}
	if side == types.SideBuy {
		return bk.ask, nil
	}
	return bk.bid, nil
}

func (v *Venue) SubmitOrder(_ context.Context, pair string, side types.Side, amount, _ decimal.Decimal) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := uuid.NewString()
	if v.failNext[side] > 0 {
		v.failNext[side]--
		v.push(venue.OrderEvent{Venue: v.name, OrderID: id, Failed: true})
		return id, nil
	}

	bk, ok := v.books[pair]
	if !ok {
		return "", fmt.Errorf("%w: no book for %s on %s", types.ErrOrderSubmission, pair, v.name)
	}
	px := bk.ask
	if side == types.SideSell {
		px = bk.bid
	}
	fee := px.Mul(amount).Mul(decimal.NewFromInt(v.takerBps)).Div(decimal.NewFromInt(10000))
	v.push(venue.OrderEvent{
		Venue:   v.name,
		OrderID: id,
		Snapshot: &types.OrderSnapshot{
			ExecutedAmount: amount,
			AveragePrice:   px,
			CumFeeQuote:    fee,
			Filled:         true,
			Ts:             time.Now(),
		},
	})
	return id, nil
}

func (v *Venue) push(ev venue.OrderEvent) {
	select {
	case v.events <- ev:
	default:
		// a reader that never drains loses events rather than wedging the venue
	}
}

func (v *Venue) Events() <-chan venue.OrderEvent { return v.events }

func (v *Venue) NetworkFee(_ context.Context) (decimal.Decimal, string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.networkFee, v.gasAsset, nil
}

// TakerFeeBps is read by the bot when wiring the fee model for a dry run.
func (v *Venue) TakerFeeBps() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.takerBps
}
