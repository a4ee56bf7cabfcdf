package venue

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/you/arb-exec/internal/types"
)

type Kind string

const (
	KindOrderBook Kind = "order_book"
	KindAMM       Kind = "amm"
)

// OrderEvent is an asynchronous notification about a previously submitted
// order. Exactly one of Snapshot/Failed is meaningful: Failed reports a
// submission that the venue rejected after the fact, otherwise Snapshot
// carries the acknowledged order state.
type OrderEvent struct {
	Venue    string
	OrderID  string
	Failed   bool
	Snapshot *types.OrderSnapshot
}

// Adapter is the per-venue market capability consumed by the evaluator and
// the run: quoting, order submission and the async order event stream.
// Implementations must be safe for concurrent use; many runs share one
// adapter.
type Adapter interface {
	Name() string

	// QuotePrice returns the expected execution price for a market order of
	// the given side and amount. Errors wrap types.ErrQuoteUnavailable.
	QuotePrice(ctx context.Context, pair string, side types.Side, amount decimal.Decimal) (decimal.Decimal, error)

	// SubmitOrder places a market order and returns the venue order ID.
	// refPrice is informational only; fills and failures are reported later
	// through Events.
	SubmitOrder(ctx context.Context, pair string, side types.Side, amount, refPrice decimal.Decimal) (string, error)

	// Events delivers order acknowledgments and failures for orders
	// submitted through this adapter.
	Events() <-chan OrderEvent
}

// FeeModel prices the cost of taking liquidity on one venue, expressed in
// the given asset. The variant (gas-based for AMMs, taker-fee for order
// books) is fixed per venue at configuration time.
type FeeModel interface {
	CostInAsset(ctx context.Context, pair string, side types.Side, amount, price decimal.Decimal, asset string) (decimal.Decimal, error)
}

// Venue bundles the capabilities of one configured venue.
type Venue struct {
	Name    string
	Kind    Kind
	Adapter Adapter
	Fees    FeeModel
}
