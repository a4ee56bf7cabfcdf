// Package profit computes the expected profitability of one cross-venue
// arbitrage before capital is committed.
package profit

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/you/arb-exec/internal/metrics"
	"github.com/you/arb-exec/internal/types"
	"github.com/you/arb-exec/internal/venue"
)

// Leg is one side of the trade as the evaluator sees it.
type Leg struct {
	Market types.Market
	Venue  *venue.Venue
}

// Evaluation is one observation of the opportunity. Percentages are
// fractions (0.01 = 1%); TxCost is in base-asset terms.
type Evaluation struct {
	BuyPrice  decimal.Decimal `json:"buy_price"`
	SellPrice decimal.Decimal `json:"sell_price"`
	SpreadPct decimal.Decimal `json:"spread_pct"`
	CostPct   decimal.Decimal `json:"cost_pct"`
	NetPct    decimal.Decimal `json:"net_pct"`
	TxCost    decimal.Decimal `json:"tx_cost"`
	Ts        time.Time       `json:"ts"`
}

type Evaluator struct {
	buy    Leg
	sell   Leg
	amount decimal.Decimal
	log    *zap.Logger
}

func NewEvaluator(buy, sell Leg, amount decimal.Decimal, log *zap.Logger) *Evaluator {
	return &Evaluator{buy: buy, sell: sell, amount: amount, log: log}
}

// Evaluate quotes both sides, prices both legs' transaction costs and
// returns the net expected profitability. The two quote requests run
// concurrently so the observations are as close in time as two independent
// venues allow.
func (e *Evaluator) Evaluate(ctx context.Context) (Evaluation, error) {
	start := time.Now()
	defer func() {
		metrics.EvalLatency.Observe(time.Since(start).Seconds())
	}()

	buyPrice, sellPrice, err := e.quoteBothSides(ctx)
	if err != nil {
		return Evaluation{}, err
	}
	if buyPrice.IsZero() {
		return Evaluation{}, fmt.Errorf("%w: zero buy price on %s", types.ErrQuoteUnavailable, e.buy.Market)
	}
	spread := sellPrice.Sub(buyPrice).Div(buyPrice)

	// Both leg costs are expressed in the base asset of the buying pair,
	// so dividing by the order amount yields a comparable percentage.
	base, _ := e.buy.Market.SplitPair()
	buyCost, err := e.buy.Venue.Fees.CostInAsset(ctx, e.buy.Market.Pair, types.SideBuy, e.amount, buyPrice, base)
	if err != nil {
		return Evaluation{}, fmt.Errorf("buy leg cost: %w", err)
	}
	sellCost, err := e.sell.Venue.Fees.CostInAsset(ctx, e.sell.Market.Pair, types.SideSell, e.amount, sellPrice, base)
	if err != nil {
		return Evaluation{}, fmt.Errorf("sell leg cost: %w", err)
	}

	txCost := buyCost.Add(sellCost)
	costPct := txCost.Div(e.amount)
	ev := Evaluation{
		BuyPrice:  buyPrice,
		SellPrice: sellPrice,
		SpreadPct: spread,
		CostPct:   costPct,
		NetPct:    spread.Sub(costPct),
		TxCost:    txCost,
		Ts:        time.Now(),
	}

	metrics.SpreadPct.Set(spread.InexactFloat64())
	metrics.CostPct.Set(costPct.InexactFloat64())
	metrics.NetPct.Set(ev.NetPct.InexactFloat64())
	return ev, nil
}

func (e *Evaluator) quoteBothSides(ctx context.Context) (buyPrice, sellPrice decimal.Decimal, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, qerr := e.buy.Venue.Adapter.QuotePrice(gctx, e.buy.Market.Pair, types.SideBuy, e.amount)
		if qerr != nil {
			return fmt.Errorf("buy quote on %s: %w", e.buy.Market, qerr)
		}
		buyPrice = p
		return nil
	})
	g.Go(func() error {
		p, qerr := e.sell.Venue.Adapter.QuotePrice(gctx, e.sell.Market.Pair, types.SideSell, e.amount)
		if qerr != nil {
			return fmt.Errorf("sell quote on %s: %w", e.sell.Market, qerr)
		}
		sellPrice = p
		return nil
	})
	if err := g.Wait(); err != nil {
		metrics.QuoteErrors.Inc()
		return decimal.Zero, decimal.Zero, err
	}
	return buyPrice, sellPrice, nil
}
