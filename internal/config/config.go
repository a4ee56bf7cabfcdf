package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type VenueCfg struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // "order_book" or "amm"

	// order_book venues
	RestURL     string `yaml:"rest_url"`
	WsURL       string `yaml:"ws_url"`
	ApiKey      string `yaml:"api_key"`
	ApiSecret   string `yaml:"api_secret"`
	TakerFeeBps int    `yaml:"taker_fee_bps"`

	// amm venues
	RPCHTTP       string  `yaml:"rpc_http"`
	QuoterV2      string  `yaml:"quoter_v2"`
	Router        string  `yaml:"router"`
	WalletPK      string  `yaml:"wallet_pk"`
	GasLimitSwap  uint64  `yaml:"gas_limit_swap"`
	GasAsset      string  `yaml:"gas_asset"`
	QuoteAsset    string  `yaml:"quote_asset"`
	FeeTier       uint32  `yaml:"fee_tier"`
	BaseToken     string  `yaml:"base_token"`
	QuoteToken    string  `yaml:"quote_token"`
	BaseDecimals  int     `yaml:"base_decimals"`
	QuoteDecimals int     `yaml:"quote_decimals"`
	MaxSlippage   float64 `yaml:"max_slippage"`
}

type MarketCfg struct {
	Venue string `yaml:"venue"`
	Pair  string `yaml:"pair"`
}

type ArbitrageCfg struct {
	Buy              MarketCfg `yaml:"buy"`
	Sell             MarketCfg `yaml:"sell"`
	MinProfitability float64   `yaml:"min_profitability"`
	OrderAmount      float64   `yaml:"order_amount"`
	MaxRetries       int       `yaml:"max_retries"`
	TickMs           int       `yaml:"tick_ms"`
}

type RatesCfg struct {
	RedisAddr string             `yaml:"redis_addr"`
	TTLMs     int                `yaml:"ttl_ms"`
	Static    map[string]float64 `yaml:"static"` // "FROM-TO" -> rate
}

type FeedCfg struct {
	RedisAddr string `yaml:"redis_addr"`
	Stream    string `yaml:"stream"`
	StatusNS  string `yaml:"status_ns"`
}

type MetricsCfg struct {
	ListenAddr string `yaml:"listen_addr"`
}

type Config struct {
	DryRun    bool         `yaml:"dry_run"`
	Arbitrage ArbitrageCfg `yaml:"arbitrage"`
	Venues    []VenueCfg   `yaml:"venues"`
	Rates     RatesCfg     `yaml:"rates"`
	Feed      FeedCfg      `yaml:"feed"`
	Metrics   MetricsCfg   `yaml:"metrics"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	if c.Arbitrage.TickMs == 0 {
		c.Arbitrage.TickMs = 500
	}
	if c.Arbitrage.MaxRetries == 0 {
		c.Arbitrage.MaxRetries = 3
	}
	if c.Rates.TTLMs == 0 {
		c.Rates.TTLMs = 5000
	}
	if c.Feed.Stream == "" {
		c.Feed.Stream = "arb:results"
	}
	if c.Feed.StatusNS == "" {
		c.Feed.StatusNS = "arb:status:"
	}
	for i := range c.Venues {
		v := &c.Venues[i]
		if v.GasAsset == "" {
			v.GasAsset = "ETH"
		}
		if v.GasLimitSwap == 0 {
			v.GasLimitSwap = 350_000
		}
		if v.MaxSlippage == 0 {
			v.MaxSlippage = 0.005
		}
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.Arbitrage.OrderAmount <= 0 {
		return fmt.Errorf("arbitrage.order_amount must be > 0")
	}
	if c.Arbitrage.Buy.Venue == "" || c.Arbitrage.Sell.Venue == "" {
		return fmt.Errorf("arbitrage.buy and arbitrage.sell must both name a venue")
	}
	names := make(map[string]struct{}, len(c.Venues))
	for _, v := range c.Venues {
		if _, dup := names[v.Name]; dup {
			return fmt.Errorf("duplicate venue %q", v.Name)
		}
		names[v.Name] = struct{}{}
	}
	if !c.DryRun {
		if _, ok := names[c.Arbitrage.Buy.Venue]; !ok {
			return fmt.Errorf("unknown buy venue %q", c.Arbitrage.Buy.Venue)
		}
		if _, ok := names[c.Arbitrage.Sell.Venue]; !ok {
			return fmt.Errorf("unknown sell venue %q", c.Arbitrage.Sell.Venue)
		}
	}
	return nil
}

func (c *Config) Tick() time.Duration {
	return time.Duration(c.Arbitrage.TickMs) * time.Millisecond
}

func (c *Config) RatesTTL() time.Duration {
	return time.Duration(c.Rates.TTLMs) * time.Millisecond
}

// VenueByName returns the config block for a named venue, or nil.
func (c *Config) VenueByName(name string) *VenueCfg {
	for i := range c.Venues {
		if c.Venues[i].Name == name {
			return &c.Venues[i]
		}
	}
	return nil
}
