package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SpreadPct = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arb_spread_pct",
		Help: "Last observed quote spread (fraction)",
	})

	CostPct = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arb_tx_cost_pct",
		Help: "Last observed two-leg transaction cost (fraction of order amount)",
	})

	NetPct = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arb_net_profitability_pct",
		Help: "Last observed net expected profitability (fraction)",
	})

	NetPnl = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arb_net_pnl_quote",
		Help: "Realized net PnL of the last completed run, in quote asset",
	})

	RunsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arb_runs_completed_total",
		Help: "Runs that reached COMPLETED",
	})

	RunsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arb_runs_failed_total",
		Help: "Runs that exhausted the retry budget",
	})

	LegFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arb_leg_failures_total",
		Help: "Order failure notifications across all legs",
	})

	QuoteErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arb_quote_errors_total",
		Help: "Failed profitability evaluations",
	})

	EvalLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_eval_latency_seconds",
		Help:    "Time to evaluate one opportunity across both venues",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(
		SpreadPct,
		CostPct,
		NetPct,
		NetPnl,
		RunsCompleted,
		RunsFailed,
		LegFailures,
		QuoteErrors,
		EvalLatency,
	)
}
