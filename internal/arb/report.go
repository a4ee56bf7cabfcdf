package arb

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/you/arb-exec/internal/types"
)

// NetPnl is the realized profit in quote-asset terms. It is non-zero only
// once the run is Completed.
func (r *Run) NetPnl() decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.netPnlLocked()
}

func (r *Run) netPnlLocked() decimal.Decimal {
	if r.status != types.StatusCompleted || r.buy.Order == nil || r.sell.Order == nil {
		return decimal.Zero
	}
	sellQuote := r.sell.Order.ExecutedAmount.Mul(r.sell.Order.AveragePrice)
	buyQuote := r.buy.Order.ExecutedAmount.Mul(r.buy.Order.AveragePrice)
	cumFees := r.buy.Order.CumFeeQuote.Add(r.sell.Order.CumFeeQuote)
	return sellQuote.Sub(buyQuote).Sub(cumFees)
}

// NetPnlPct is the realized profit relative to the executed buy amount.
func (r *Run) NetPnlPct() decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != types.StatusCompleted || r.buy.Order == nil || r.buy.Order.ExecutedAmount.IsZero() {
		return decimal.Zero
	}
	return r.netPnlLocked().Div(r.buy.Order.ExecutedAmount)
}

// FormatStatus renders the human-readable run summary. Prices and
// percentages are shown once at least one evaluation has run.
func (r *Run) FormatStatus() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	buyPrice, sellPrice := "-", "-"
	spread, cost, net := "-", "-", "-"
	if r.lastEval != nil {
		buyPrice = r.lastEval.BuyPrice.String()
		sellPrice = r.lastEval.SellPrice.String()
		spread = r.lastEval.SpreadPct.String()
		cost = r.lastEval.CostPct.String()
		net = r.lastEval.NetPct.String()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Buy:\n    Venue: %s | Trading Pair: %s | Price: %s\n",
		r.buy.Market.Venue, r.buy.Market.Pair, buyPrice)
	fmt.Fprintf(&b, "Sell:\n    Venue: %s | Trading Pair: %s | Price: %s\n",
		r.sell.Market.Venue, r.sell.Market.Pair, sellPrice)
	fmt.Fprintf(&b, "Order Amount: %s\n", r.cfg.OrderAmount.String())
	fmt.Fprintf(&b, "Real-time Profit analysis:\n")
	fmt.Fprintf(&b, "    Trade PnL (%%): %s | TX Cost (%%): %s\n", spread, cost)
	fmt.Fprintf(&b, "    Net PnL (%%): %s\n", net)
	fmt.Fprintf(&b, "Arbitrage Status: %s", r.status)

	if r.status == types.StatusCompleted {
		_, quote := r.buy.Market.SplitPair()
		pnl := r.netPnlLocked()
		pct := decimal.Zero
		if r.buy.Order != nil && !r.buy.Order.ExecutedAmount.IsZero() {
			pct = pnl.Div(r.buy.Order.ExecutedAmount)
		}
		fmt.Fprintf(&b, "\nTotal Profit (%%): %s | Total Profit (%s): %s", pct.String(), quote, pnl.String())
	}
	if r.status == types.StatusFailed && (r.buy.Filled() || r.sell.Filled()) {
		// Residual exposure: one leg filled, the other gave up. Left for
		// manual intervention.
		fmt.Fprintf(&b, "\nResidual position: buy filled=%v sell filled=%v", r.buy.Filled(), r.sell.Filled())
	}
	return b.String()
}
