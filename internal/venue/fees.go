package venue

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/you/arb-exec/internal/rates"
	"github.com/you/arb-exec/internal/types"
)

// NetworkFeeSource reports the current per-transaction network fee on an
// AMM venue, denominated in the chain's gas asset.
type NetworkFeeSource interface {
	NetworkFee(ctx context.Context) (amount decimal.Decimal, asset string, err error)
}

// GasFee is the AMM cost model: a flat network fee per swap, converted into
// the requested asset through the rate service.
type GasFee struct {
	Source NetworkFeeSource
	Rates  rates.Service
}

func (g GasFee) CostInAsset(ctx context.Context, _ string, _ types.Side, _, _ decimal.Decimal, asset string) (decimal.Decimal, error) {
	gasAmount, gasAsset, err := g.Source.NetworkFee(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("network fee: %w", err)
	}
	if asset == gasAsset {
		return gasAmount, nil
	}
	// rate is gasAsset per 1 asset, so cost in asset = gasAmount / rate
	rate, err := g.Rates.ConversionRate(ctx, asset, gasAsset)
	if err != nil {
		return decimal.Zero, err
	}
	if rate.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: zero rate %s-%s", types.ErrRateUnavailable, asset, gasAsset)
	}
	return gasAmount.Div(rate), nil
}

// TakerFee is the order-book cost model: a percentage of the executed
// notional, charged in quote terms.
type TakerFee struct {
	Bps int64
}

func (t TakerFee) CostInAsset(_ context.Context, pair string, _ types.Side, amount, price decimal.Decimal, asset string) (decimal.Decimal, error) {
	feeQuote := price.Mul(amount).Mul(decimal.NewFromInt(t.Bps)).Div(decimal.NewFromInt(10000))
	base, quote := types.Market{Pair: pair}.SplitPair()
	switch asset {
	case quote:
		return feeQuote, nil
	case base:
		if price.IsZero() {
			return decimal.Zero, fmt.Errorf("%w: zero price for %s", types.ErrQuoteUnavailable, pair)
		}
		return feeQuote.Div(price), nil
	default:
		return decimal.Zero, fmt.Errorf("taker fee: asset %s not part of pair %s", asset, pair)
	}
}
