package feed

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/arb-exec/internal/config"
	"github.com/you/arb-exec/internal/types"
)

func TestPublishResult(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	p := NewPublisher(config.FeedCfg{
		RedisAddr: mr.Addr(),
		Stream:    "arb:results",
		StatusNS:  "arb:status:",
	})
	defer p.Close()

	err = p.PublishResult(context.Background(), Result{
		RunID:      "run-1",
		Status:     types.StatusCompleted,
		NetPnl:     decimal.NewFromInt(8),
		NetPnlPct:  decimal.RequireFromString("0.8"),
		Failures:   0,
		StatusText: "Arbitrage Status: COMPLETED",
	})
	require.NoError(t, err)

	entries, err := mr.Stream("arb:results")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	vals := entries[0].Values
	assert.Contains(t, vals, "run_id")
	assert.Contains(t, vals, "net_pnl")

	text, err := mr.Get("arb:status:run-1")
	require.NoError(t, err)
	assert.Equal(t, "Arbitrage Status: COMPLETED", text)
}
