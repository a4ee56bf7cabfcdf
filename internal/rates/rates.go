// Package rates resolves asset conversion rates. The service is injected
// into the evaluator so tests can run against a fixed table.
package rates

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/you/arb-exec/internal/types"
)

type Service interface {
	// ConversionRate returns how many units of `to` one unit of `from` is
	// worth. Errors wrap types.ErrRateUnavailable.
	ConversionRate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// Table is an in-memory rate table. Lookups fall back to the inverse pair.
type Table struct {
	mu    sync.RWMutex
	rates map[string]decimal.Decimal
}

func NewTable() *Table {
	return &Table{rates: make(map[string]decimal.Decimal, 16)}
}

// NewTableFrom builds a table from "FROM-TO" keyed float rates, the shape
// the rates.static config section uses.
func NewTableFrom(static map[string]float64) *Table {
	t := NewTable()
	for k, v := range static {
		t.rates[k] = decimal.NewFromFloat(v)
	}
	return t
}

func (t *Table) Set(from, to string, rate decimal.Decimal) {
	t.mu.Lock()
	t.rates[key(from, to)] = rate
	t.mu.Unlock()
}

func (t *Table) ConversionRate(_ context.Context, from, to string) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if r, ok := t.rates[key(from, to)]; ok {
		return r, nil
	}
	if r, ok := t.rates[key(to, from)]; ok && !r.IsZero() {
		return decimal.NewFromInt(1).Div(r), nil
	}
	return decimal.Zero, fmt.Errorf("%w: %s-%s", types.ErrRateUnavailable, from, to)
}

func key(from, to string) string { return from + "-" + to }
