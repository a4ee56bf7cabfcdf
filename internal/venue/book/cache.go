package book

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/you/arb-exec/internal/types"
)

// Cache holds the latest best bid/ask per symbol, fed by the WS stream.
type Cache struct {
	mu   sync.RWMutex
	bids map[string]decimal.Decimal
	asks map[string]decimal.Decimal
}

func NewCache() *Cache {
	return &Cache{
		bids: make(map[string]decimal.Decimal, 16),
		asks: make(map[string]decimal.Decimal, 16),
	}
}

func (c *Cache) Set(symbol string, bid, ask decimal.Decimal) {
	c.mu.Lock()
	c.bids[symbol] = bid
	c.asks[symbol] = ask
	c.mu.Unlock()
}

func (c *Cache) BestBidAsk(symbol string) (bid, ask decimal.Decimal, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bid = c.bids[symbol]
	ask = c.asks[symbol]
	if bid.IsZero() || ask.IsZero() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: empty book for %s", types.ErrQuoteUnavailable, symbol)
	}
	return bid, ask, nil
}

func (c *Cache) Has(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok1 := c.bids[symbol]
	_, ok2 := c.asks[symbol]
	return ok1 && ok2
}
