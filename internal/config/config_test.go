package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsAndLookup(t *testing.T) {
	path := writeConfig(t, `
arbitrage:
  buy: {venue: binance, pair: ETH-USDT}
  sell: {venue: uniswap_v3, pair: ETH-USDT}
  min_profitability: 0.003
  order_amount: 10
venues:
  - name: binance
    kind: order_book
    rest_url: https://api.binance.com
    taker_fee_bps: 10
  - name: uniswap_v3
    kind: amm
    rpc_http: https://rpc.example
    quoter_v2: "0x61fFE014bA17989E743c5F6cB21bF9697530B21e"
    quote_asset: USDT
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Arbitrage.TickMs)
	assert.Equal(t, 3, cfg.Arbitrage.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Tick())
	assert.Equal(t, 5*time.Second, cfg.RatesTTL())
	assert.Equal(t, "arb:results", cfg.Feed.Stream)
	assert.Equal(t, "arb:status:", cfg.Feed.StatusNS)

	amm := cfg.VenueByName("uniswap_v3")
	require.NotNil(t, amm)
	assert.Equal(t, "ETH", amm.GasAsset)
	assert.Equal(t, uint64(350_000), amm.GasLimitSwap)
	assert.Equal(t, 0.005, amm.MaxSlippage)

	assert.Nil(t, cfg.VenueByName("nope"))
}

func TestLoad_RejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"zero order amount", `
arbitrage:
  buy: {venue: a, pair: ETH-USDT}
  sell: {venue: b, pair: ETH-USDT}
venues:
  - {name: a, kind: order_book}
  - {name: b, kind: order_book}
`},
		{"unknown sell venue", `
arbitrage:
  buy: {venue: a, pair: ETH-USDT}
  sell: {venue: missing, pair: ETH-USDT}
  order_amount: 1
venues:
  - {name: a, kind: order_book}
`},
		{"duplicate venue", `
arbitrage:
  buy: {venue: a, pair: ETH-USDT}
  sell: {venue: a, pair: ETH-USDT}
  order_amount: 1
venues:
  - {name: a, kind: order_book}
  - {name: a, kind: order_book}
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_DryRunSkipsVenueLookup(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
dry_run: true
arbitrage:
  buy: {venue: paper-a, pair: ETH-USDT}
  sell: {venue: paper-b, pair: ETH-USDT}
  order_amount: 10
`))
	require.NoError(t, err)
	assert.True(t, cfg.DryRun)
}
