package rates

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/you/arb-exec/internal/types"
)

func TestTable_DirectInverseAndIdentity(t *testing.T) {
	tbl := NewTableFrom(map[string]float64{"ETH-USDT": 2000})
	ctx := context.Background()

	r, err := tbl.ConversionRate(ctx, "ETH", "USDT")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.NewFromInt(2000)))

	// inverse pair is derived
	r, err = tbl.ConversionRate(ctx, "USDT", "ETH")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.RequireFromString("0.0005")), "inverse = %s", r)

	r, err = tbl.ConversionRate(ctx, "ETH", "ETH")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.NewFromInt(1)))

	_, err = tbl.ConversionRate(ctx, "BTC", "USDT")
	assert.ErrorIs(t, err, types.ErrRateUnavailable)
}

func TestTable_SetOverrides(t *testing.T) {
	tbl := NewTable()
	tbl.Set("ETH", "USDT", decimal.NewFromInt(1800))
	r, err := tbl.ConversionRate(context.Background(), "ETH", "USDT")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.NewFromInt(1800)))
}

// countingService records how many times the upstream is consulted.
type countingService struct {
	next  Service
	calls int
}

func (c *countingService) ConversionRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	c.calls++
	return c.next.ConversionRate(ctx, from, to)
}

func TestCached_HitSkipsUpstream(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	upstream := &countingService{next: NewTableFrom(map[string]float64{"ETH-USDT": 2000})}
	c := NewCached(mr.Addr(), upstream, 5*time.Second, zap.NewNop())
	defer c.Close()
	ctx := context.Background()

	r, err := c.ConversionRate(ctx, "ETH", "USDT")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.NewFromInt(2000)))
	assert.Equal(t, 1, upstream.calls)

	r, err = c.ConversionRate(ctx, "ETH", "USDT")
	require.NoError(t, err)
	assert.True(t, r.Equal(decimal.NewFromInt(2000)))
	assert.Equal(t, 1, upstream.calls, "second lookup must come from the cache")

	// after the TTL the upstream is consulted again
	mr.FastForward(6 * time.Second)
	_, err = c.ConversionRate(ctx, "ETH", "USDT")
	require.NoError(t, err)
	assert.Equal(t, 2, upstream.calls)
}

func TestCached_UpstreamErrorNotCached(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	upstream := &countingService{next: NewTable()}
	c := NewCached(mr.Addr(), upstream, 5*time.Second, zap.NewNop())
	defer c.Close()
	ctx := context.Background()

	_, err = c.ConversionRate(ctx, "BTC", "USDT")
	assert.ErrorIs(t, err, types.ErrRateUnavailable)

	_, err = c.ConversionRate(ctx, "BTC", "USDT")
	assert.ErrorIs(t, err, types.ErrRateUnavailable)
	assert.Equal(t, 2, upstream.calls, "errors must not be cached")
}
