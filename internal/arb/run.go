// Package arb drives one cross-venue arbitrage run: a pair of market-order
// legs pushed toward a joint terminal outcome under a bounded retry budget.
package arb

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/you/arb-exec/internal/config"
	"github.com/you/arb-exec/internal/metrics"
	"github.com/you/arb-exec/internal/profit"
	"github.com/you/arb-exec/internal/types"
	"github.com/you/arb-exec/internal/venue"
)

// Config is immutable after construction.
type Config struct {
	BuyMarket        types.Market
	SellMarket       types.Market
	MinProfitability decimal.Decimal
	OrderAmount      decimal.Decimal
	MaxRetries       int
}

// ConfigFrom converts the YAML arbitrage section.
func ConfigFrom(c config.ArbitrageCfg) Config {
	return Config{
		BuyMarket:        types.Market{Venue: c.Buy.Venue, Pair: c.Buy.Pair},
		SellMarket:       types.Market{Venue: c.Sell.Venue, Pair: c.Sell.Pair},
		MinProfitability: decimal.NewFromFloat(c.MinProfitability),
		OrderAmount:      decimal.NewFromFloat(c.OrderAmount),
		MaxRetries:       c.MaxRetries,
	}
}

// Leg tracks one side's order lifecycle. The order ID is empty until the
// venue accepts a submission; Order is nil until the venue acknowledges.
type Leg struct {
	Side    types.Side           `json:"side"`
	Market  types.Market         `json:"market"`
	OrderID string               `json:"order_id,omitempty"`
	Order   *types.OrderSnapshot `json:"order,omitempty"`
}

func (l *Leg) Filled() bool { return l.Order != nil && l.Order.Filled }

// Run owns both legs of one opportunity. The mutex serializes Step against
// the notification handler: a venue event may land while a step is
// mid-flight on another goroutine, and both mutate leg and status fields.
type Run struct {
	mu sync.Mutex

	cfg         Config
	eval        *profit.Evaluator
	buyAdapter  venue.Adapter
	sellAdapter venue.Adapter
	log         *zap.Logger

	status   types.Status
	buy      Leg
	sell     Leg
	lastEval *profit.Evaluation
	failures int
}

func New(cfg Config, buyAdapter, sellAdapter venue.Adapter, eval *profit.Evaluator, log *zap.Logger) *Run {
	return &Run{
		cfg:         cfg,
		eval:        eval,
		buyAdapter:  buyAdapter,
		sellAdapter: sellAdapter,
		log:         log,
		status:      types.StatusNotStarted,
		buy:         Leg{Side: types.SideBuy, Market: cfg.BuyMarket},
		sell:        Leg{Side: types.SideSell, Market: cfg.SellMarket},
	}
}

// Step advances the run by one tick. It returns true once the run is
// terminal, after which the driver must stop invoking it.
func (r *Run) Step(ctx context.Context) (done bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.status {
	case types.StatusNotStarted:
		ev, err := r.eval.Evaluate(ctx)
		if err != nil {
			// Transient: stays NotStarted, retried next tick, does not
			// touch the failure budget.
			r.log.Warn("profitability evaluation failed", zap.Error(err))
			return false
		}
		r.lastEval = &ev
		if ev.NetPct.GreaterThan(r.cfg.MinProfitability) {
			r.log.Info("starting arbitrage",
				zap.String("buy", r.buy.Market.String()),
				zap.String("sell", r.sell.Market.String()),
				zap.String("net_pct", ev.NetPct.String()),
			)
			r.startArbitrageLocked(ctx)
		}
		return false

	case types.StatusActive:
		if r.failures > r.cfg.MaxRetries {
			r.status = types.StatusFailed
			metrics.RunsFailed.Inc()
			r.log.Warn("retry budget exhausted, run failed",
				zap.Int("cumulative_failures", r.failures),
				zap.Int("max_retries", r.cfg.MaxRetries),
				zap.Bool("buy_filled", r.buy.Filled()),
				zap.Bool("sell_filled", r.sell.Filled()),
			)
			return true
		}
		if r.buy.Filled() && r.sell.Filled() {
			r.status = types.StatusCompleted
			pnl := r.netPnlLocked()
			metrics.RunsCompleted.Inc()
			metrics.NetPnl.Set(pnl.InexactFloat64())
			r.log.Info("arbitrage completed", zap.String("net_pnl", pnl.String()))
			return true
		}
		return false

	default:
		// Terminal, nothing left to do.
		return true
	}
}

// startArbitrageLocked flips status and fires both legs concurrently. The
// step waits for the submission acks, not for fills.
func (r *Run) startArbitrageLocked(ctx context.Context) {
	r.status = types.StatusActive

	var wg sync.WaitGroup
	var buyErr, sellErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		buyErr = r.placeLeg(ctx, &r.buy)
	}()
	go func() {
		defer wg.Done()
		sellErr = r.placeLeg(ctx, &r.sell)
	}()
	wg.Wait()

	if buyErr != nil {
		r.handleLegFailureLocked(ctx, &r.buy, buyErr)
	}
	if sellErr != nil {
		r.handleLegFailureLocked(ctx, &r.sell, sellErr)
	}
}

// placeLeg submits one market order for the leg and records the order ID.
// Any previous snapshot is discarded: there is at most one outstanding
// order per leg.
func (r *Run) placeLeg(ctx context.Context, leg *Leg) error {
	id, err := r.adapterFor(leg.Side).SubmitOrder(ctx, leg.Market.Pair, leg.Side, r.cfg.OrderAmount, r.refPriceFor(leg.Side))
	if err != nil {
		return err
	}
	leg.OrderID = id
	leg.Order = nil
	r.log.Info("leg submitted",
		zap.String("side", string(leg.Side)),
		zap.String("market", leg.Market.String()),
		zap.String("order_id", id),
	)
	return nil
}

// handleLegFailureLocked counts one failure and resubmits the same leg while
// the retry budget allows. The other leg is never touched here.
func (r *Run) handleLegFailureLocked(ctx context.Context, leg *Leg, cause error) {
	r.failures++
	metrics.LegFailures.Inc()
	leg.OrderID = ""
	leg.Order = nil
	r.log.Warn("leg failed",
		zap.String("side", string(leg.Side)),
		zap.Int("cumulative_failures", r.failures),
		zap.Error(cause),
	)
	for r.failures <= r.cfg.MaxRetries && ctx.Err() == nil {
		if err := r.placeLeg(ctx, leg); err == nil {
			return
		}
		r.failures++
		metrics.LegFailures.Inc()
		r.log.Warn("leg resubmission failed",
			zap.String("side", string(leg.Side)),
			zap.Int("cumulative_failures", r.failures),
		)
	}
}

// OnOrderEvent consumes an asynchronous venue notification. Events for
// unknown order IDs or terminal runs are dropped.
func (r *Run) OnOrderEvent(ctx context.Context, ev venue.OrderEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status.Terminal() {
		return
	}
	leg := r.legByOrderIDLocked(ev.OrderID)
	if leg == nil {
		return
	}
	if ev.Failed {
		r.handleLegFailureLocked(ctx, leg, types.ErrOrderSubmission)
		return
	}
	leg.Order = ev.Snapshot
	r.log.Info("order acknowledged",
		zap.String("side", string(leg.Side)),
		zap.String("order_id", ev.OrderID),
		zap.Bool("filled", ev.Snapshot != nil && ev.Snapshot.Filled),
	)
}

func (r *Run) legByOrderIDLocked(orderID string) *Leg {
	if orderID == "" {
		return nil
	}
	if r.buy.OrderID == orderID {
		return &r.buy
	}
	if r.sell.OrderID == orderID {
		return &r.sell
	}
	return nil
}

func (r *Run) adapterFor(side types.Side) venue.Adapter {
	if side == types.SideBuy {
		return r.buyAdapter
	}
	return r.sellAdapter
}

func (r *Run) refPriceFor(side types.Side) decimal.Decimal {
	if r.lastEval == nil {
		return decimal.Zero
	}
	if side == types.SideBuy {
		return r.lastEval.BuyPrice
	}
	return r.lastEval.SellPrice
}

func (r *Run) Status() types.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Run) Finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status.Terminal()
}

func (r *Run) CumulativeFailures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures
}

// LastEvaluation returns the most recent observation, or nil before the
// first successful evaluation.
func (r *Run) LastEvaluation() *profit.Evaluation {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastEval == nil {
		return nil
	}
	ev := *r.lastEval
	return &ev
}
