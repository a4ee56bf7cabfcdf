package types

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Status is the lifecycle of one arbitrage run. Transitions only move
// forward; Completed and Failed are absorbing.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusActive     Status = "ACTIVE_ARBITRAGE"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Market identifies one trading pair on one venue, e.g. {uniswap_v3, ETH-USDT}.
type Market struct {
	Venue string `yaml:"venue" json:"venue"`
	Pair  string `yaml:"pair" json:"pair"`
}

// SplitPair splits "BASE-QUOTE" into its two assets.
func (m Market) SplitPair() (base, quote string) {
	parts := strings.SplitN(m.Pair, "-", 2)
	if len(parts) != 2 {
		return m.Pair, ""
	}
	return parts[0], parts[1]
}

func (m Market) String() string { return m.Venue + ":" + m.Pair }

// OrderSnapshot is the venue's view of a submitted order, attached to a leg
// once the venue acknowledges it.
type OrderSnapshot struct {
	ExecutedAmount decimal.Decimal `json:"executed_amount"`
	AveragePrice   decimal.Decimal `json:"average_price"`
	// CumFeeQuote is the cumulative fee charged, in quote-asset terms.
	CumFeeQuote decimal.Decimal `json:"cum_fee_quote"`
	Filled      bool            `json:"filled"`
	Ts          time.Time       `json:"ts"`
}

var (
	ErrQuoteUnavailable = errors.New("quote unavailable")
	ErrRateUnavailable  = errors.New("conversion rate unavailable")
	ErrOrderSubmission  = errors.New("order submission failed")
)
