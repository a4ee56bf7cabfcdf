// Package bot wires configuration into venues, the evaluator and the run,
// and drives the run's step function on the configured tick.
package bot

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/you/arb-exec/internal/arb"
	"github.com/you/arb-exec/internal/config"
	"github.com/you/arb-exec/internal/feed"
	"github.com/you/arb-exec/internal/profit"
	"github.com/you/arb-exec/internal/rates"
	"github.com/you/arb-exec/internal/types"
	"github.com/you/arb-exec/internal/venue"
	"github.com/you/arb-exec/internal/venue/amm"
	"github.com/you/arb-exec/internal/venue/book"
	"github.com/you/arb-exec/internal/venue/paper"
)

type Bot struct {
	cfg *config.Config
	log *zap.Logger
}

func New(cfg *config.Config, log *zap.Logger) *Bot {
	return &Bot{cfg: cfg, log: log}
}

func (b *Bot) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// graceful shutdown
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		b.log.Warn("received signal, shutting down...")
		cancel()
	}()

	rateSvc := b.buildRates()

	arbCfg := arb.ConfigFrom(b.cfg.Arbitrage)
	buyVenue, err := b.buildVenue(ctx, arbCfg.BuyMarket, rateSvc)
	if err != nil {
		b.log.Fatal("failed to build buy venue", zap.Error(err))
	}
	var sellVenue *venue.Venue
	if arbCfg.SellMarket.Venue == arbCfg.BuyMarket.Venue {
		sellVenue = buyVenue
	} else {
		sellVenue, err = b.buildVenue(ctx, arbCfg.SellMarket, rateSvc)
		if err != nil {
			b.log.Fatal("failed to build sell venue", zap.Error(err))
		}
	}

	eval := profit.NewEvaluator(
		profit.Leg{Market: arbCfg.BuyMarket, Venue: buyVenue},
		profit.Leg{Market: arbCfg.SellMarket, Venue: sellVenue},
		arbCfg.OrderAmount,
		b.log,
	)
	run := arb.New(arbCfg, buyVenue.Adapter, sellVenue.Adapter, eval, b.log)

	// Venue notifications can land at any moment; the run serializes them
	// against its step internally.
	b.pumpEvents(ctx, run, buyVenue.Adapter)
	if sellVenue.Adapter != buyVenue.Adapter {
		b.pumpEvents(ctx, run, sellVenue.Adapter)
	}

	var pub *feed.Publisher
	if b.cfg.Feed.RedisAddr != "" {
		pub = feed.NewPublisher(b.cfg.Feed)
		defer pub.Close()
	}

	runID := uuid.NewString()
	b.log.Info("run started",
		zap.String("run_id", runID),
		zap.String("buy", arbCfg.BuyMarket.String()),
		zap.String("sell", arbCfg.SellMarket.String()),
		zap.Bool("dry_run", b.cfg.DryRun),
	)

	t := time.NewTicker(b.cfg.Tick())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			b.log.Info("run interrupted", zap.String("run_id", runID))
			return
		case <-t.C:
			if done := run.Step(ctx); !done {
				continue
			}
			b.log.Info("run finished",
				zap.String("run_id", runID),
				zap.String("status", string(run.Status())),
			)
			fmt.Fprintln(os.Stdout, run.FormatStatus())
			if pub != nil {
				res := feed.Result{
					RunID:      runID,
					Status:     run.Status(),
					NetPnl:     run.NetPnl(),
					NetPnlPct:  run.NetPnlPct(),
					Failures:   run.CumulativeFailures(),
					StatusText: run.FormatStatus(),
				}
				if err := pub.PublishResult(ctx, res); err != nil {
					b.log.Warn("failed to publish result", zap.Error(err))
				}
			}
			return
		}
	}
}

func (b *Bot) buildRates() rates.Service {
	table := rates.NewTableFrom(b.cfg.Rates.Static)
	if b.cfg.Rates.RedisAddr == "" {
		return table
	}
	return rates.NewCached(b.cfg.Rates.RedisAddr, table, b.cfg.RatesTTL(), b.log)
}

func (b *Bot) buildVenue(ctx context.Context, m types.Market, rateSvc rates.Service) (*venue.Venue, error) {
	vc := b.cfg.VenueByName(m.Venue)
	if vc == nil {
		if b.cfg.DryRun {
			return b.buildPaperVenue(m), nil
		}
		return nil, fmt.Errorf("venue %q is not configured", m.Venue)
	}

	switch venue.Kind(vc.Kind) {
	case venue.KindOrderBook:
		cl, err := book.NewClient(vc, b.log)
		if err != nil {
			return nil, err
		}
		if err := cl.StartStream(ctx, []string{m.Pair}); err != nil {
			b.log.Warn("book stream unavailable, quoting over REST",
				zap.String("venue", vc.Name), zap.Error(err))
		}
		v := &venue.Venue{Name: vc.Name, Kind: venue.KindOrderBook, Adapter: cl, Fees: cl.Fees()}
		if b.cfg.DryRun {
			v.Adapter = newPaperTrading(cl)
		}
		return v, nil

	case venue.KindAMM:
		ad, err := amm.NewAdapter(vc, rateSvc, b.log)
		if err != nil {
			return nil, err
		}
		v := &venue.Venue{Name: vc.Name, Kind: venue.KindAMM, Adapter: ad, Fees: ad.Fees(rateSvc)}
		if b.cfg.DryRun {
			v.Adapter = newPaperTrading(ad)
		}
		return v, nil

	default:
		return nil, fmt.Errorf("venue %q: unknown kind %q", vc.Name, vc.Kind)
	}
}

// buildPaperVenue is the fallback for dry runs referencing venues with no
// config block: a self-contained simulated venue.
func (b *Bot) buildPaperVenue(m types.Market) *venue.Venue {
	p := paper.New(m.Venue)
	return &venue.Venue{Name: m.Venue, Kind: venue.KindOrderBook, Adapter: p, Fees: venue.TakerFee{Bps: p.TakerFeeBps()}}
}

func (b *Bot) pumpEvents(ctx context.Context, run *arb.Run, ad venue.Adapter) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ad.Events():
				if !ok {
					return
				}
				run.OnOrderEvent(ctx, ev)
			}
		}
	}()
}

// paperTrading quotes against the live venue but simulates order execution,
// so a dry run sees real prices without sending real orders.
type paperTrading struct {
	venue.Adapter
	sim *paper.Venue
}

func newPaperTrading(live venue.Adapter) paperTrading {
	return paperTrading{Adapter: live, sim: paper.New(live.Name() + "-paper")}
}

func (p paperTrading) SubmitOrder(ctx context.Context, pair string, side types.Side, amount, refPrice decimal.Decimal) (string, error) {
	// fill instantly at the reference price
	p.sim.SetBook(pair, refPrice, refPrice)
	return p.sim.SubmitOrder(ctx, pair, side, amount, refPrice)
}

func (p paperTrading) Events() <-chan venue.OrderEvent { return p.sim.Events() }

func NewLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.StacktraceKey = "stacktrace"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	return cfg.Build()
}
