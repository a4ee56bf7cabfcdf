package profit

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/you/arb-exec/internal/rates"
	"github.com/you/arb-exec/internal/types"
	"github.com/you/arb-exec/internal/venue"
	"github.com/you/arb-exec/internal/venue/paper"
)

func legFor(v *paper.Venue, pair string, fees venue.FeeModel) Leg {
	return Leg{
		Market: types.Market{Venue: v.Name(), Pair: pair},
		Venue:  &venue.Venue{Name: v.Name(), Adapter: v, Fees: fees},
	}
}

func TestEvaluate_TakerFeesBothSides(t *testing.T) {
	buyV := paper.New("cex-a")
	buyV.SetBook("ETH-USDT", decimal.NewFromInt(99), decimal.NewFromInt(100))
	sellV := paper.New("cex-b")
	sellV.SetBook("ETH-USDT", decimal.NewFromInt(101), decimal.NewFromInt(102))

	e := NewEvaluator(
		legFor(buyV, "ETH-USDT", venue.TakerFee{Bps: 25}),
		legFor(sellV, "ETH-USDT", venue.TakerFee{Bps: 25}),
		decimal.NewFromInt(10),
		zap.NewNop(),
	)

	ev, err := e.Evaluate(context.Background())
	require.NoError(t, err)

	// buy at the ask, sell at the bid
	assert.True(t, ev.BuyPrice.Equal(decimal.NewFromInt(100)))
	assert.True(t, ev.SellPrice.Equal(decimal.NewFromInt(101)))

	// (101-100)/100 = 1%
	assert.True(t, ev.SpreadPct.Equal(decimal.RequireFromString("0.01")), "spread = %s", ev.SpreadPct)
	// 25 bps per side in base terms: 0.025 + 0.025 ETH on a 10 ETH order
	assert.True(t, ev.TxCost.Equal(decimal.RequireFromString("0.05")), "tx cost = %s", ev.TxCost)
	assert.True(t, ev.CostPct.Equal(decimal.RequireFromString("0.005")), "cost = %s", ev.CostPct)
	assert.True(t, ev.NetPct.Equal(decimal.RequireFromString("0.005")), "net = %s", ev.NetPct)
	assert.False(t, ev.Ts.IsZero())
}

func TestEvaluate_GasFeeLeg(t *testing.T) {
	buyV := paper.New("dex")
	buyV.SetBook("ETH-USDT", decimal.NewFromInt(99), decimal.NewFromInt(100))
	// 0.001 ETH of gas; the quoted pair's base is ETH so no conversion applies
	buyV.SetNetworkFee(decimal.RequireFromString("0.001"), "ETH")
	sellV := paper.New("cex")
	sellV.SetBook("ETH-USDT", decimal.NewFromInt(101), decimal.NewFromInt(102))

	tbl := rates.NewTableFrom(map[string]float64{"ETH-USDT": 100})
	e := NewEvaluator(
		legFor(buyV, "ETH-USDT", venue.GasFee{Source: buyV, Rates: tbl}),
		legFor(sellV, "ETH-USDT", venue.TakerFee{Bps: 25}),
		decimal.NewFromInt(10),
		zap.NewNop(),
	)

	ev, err := e.Evaluate(context.Background())
	require.NoError(t, err)

	// gas 0.001 ETH + taker 0.025 ETH
	assert.True(t, ev.TxCost.Equal(decimal.RequireFromString("0.026")), "tx cost = %s", ev.TxCost)
	assert.True(t, ev.CostPct.Equal(decimal.RequireFromString("0.0026")), "cost = %s", ev.CostPct)
}

func TestEvaluate_QuoteErrorPropagates(t *testing.T) {
	buyV := paper.New("cex-a") // empty book
	sellV := paper.New("cex-b")
	sellV.SetBook("ETH-USDT", decimal.NewFromInt(101), decimal.NewFromInt(102))

	e := NewEvaluator(
		legFor(buyV, "ETH-USDT", venue.TakerFee{Bps: 25}),
		legFor(sellV, "ETH-USDT", venue.TakerFee{Bps: 25}),
		decimal.NewFromInt(10),
		zap.NewNop(),
	)

	_, err := e.Evaluate(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrQuoteUnavailable)
}

func TestEvaluate_NegativeSpread(t *testing.T) {
	buyV := paper.New("cex-a")
	buyV.SetBook("ETH-USDT", decimal.NewFromInt(100), decimal.NewFromInt(101))
	sellV := paper.New("cex-b")
	sellV.SetBook("ETH-USDT", decimal.NewFromInt(100), decimal.NewFromInt(101))

	e := NewEvaluator(
		legFor(buyV, "ETH-USDT", venue.TakerFee{Bps: 25}),
		legFor(sellV, "ETH-USDT", venue.TakerFee{Bps: 25}),
		decimal.NewFromInt(10),
		zap.NewNop(),
	)

	ev, err := e.Evaluate(context.Background())
	require.NoError(t, err)
	// buy 101, sell 100: the spread itself is negative before costs
	assert.True(t, ev.SpreadPct.IsNegative())
	assert.True(t, ev.NetPct.LessThan(ev.SpreadPct))
}
