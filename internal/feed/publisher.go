// Package feed publishes terminal run results to redis for external
// consumers (dashboards, alerting). It is optional; with no address
// configured the bot simply does not construct a publisher.
package feed

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/you/arb-exec/internal/config"
	"github.com/you/arb-exec/internal/types"
)

// Result is the terminal outcome of one run.
type Result struct {
	RunID      string
	Status     types.Status
	NetPnl     decimal.Decimal
	NetPnlPct  decimal.Decimal
	Failures   int
	StatusText string
}

type Publisher struct {
	rdb      *redis.Client
	stream   string
	statusNS string
}

func NewPublisher(cfg config.FeedCfg) *Publisher {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return &Publisher{
		rdb:      rdb,
		stream:   cfg.Stream,
		statusNS: cfg.StatusNS,
	}
}

// PublishResult appends the result to the stream and stores the latest
// status text under its run key.
func (p *Publisher) PublishResult(ctx context.Context, res Result) error {
	if err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"run_id":      res.RunID,
			"status":      string(res.Status),
			"net_pnl":     res.NetPnl.String(),
			"net_pnl_pct": res.NetPnlPct.String(),
			"failures":    res.Failures,
			"ts_ms":       time.Now().UnixMilli(),
		},
	}).Err(); err != nil {
		return err
	}
	return p.rdb.Set(ctx, p.statusNS+res.RunID, res.StatusText, 0).Err()
}

func (p *Publisher) Close() error { return p.rdb.Close() }
