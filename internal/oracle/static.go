package oracle

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"papertrade/internal/apperr"
)

// Static serves prices from memory. Set and Delete let tests and the paper
// environment move the market.
type Static struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
	fail   map[string]error
}

func NewStatic(prices map[string]decimal.Decimal) *Static {
	s := &Static{prices: map[string]decimal.Decimal{}, fail: map[string]error{}}
	for symbol, price := range prices {
		s.prices[NormalizeSymbol(symbol)] = price
	}
	return s
}

func (s *Static) CurrentPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	symbol = NormalizeSymbol(symbol)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.fail[symbol]; err != nil {
		return decimal.Zero, err
	}
	price, ok := s.prices[symbol]
	if !ok {
		return decimal.Zero, errors.Wrapf(apperr.ErrNotFound, "symbol %s", symbol)
	}
	return price, nil
}

func (s *Static) Set(symbol string, price decimal.Decimal) {
	s.mu.Lock()
	s.prices[NormalizeSymbol(symbol)] = price
	s.mu.Unlock()
}

func (s *Static) Delete(symbol string) {
	s.mu.Lock()
	delete(s.prices, NormalizeSymbol(symbol))
	s.mu.Unlock()
}

// Fail makes every lookup of symbol return err until Fail(symbol, nil).
func (s *Static) Fail(symbol string, err error) {
	s.mu.Lock()
	if err == nil {
		delete(s.fail, NormalizeSymbol(symbol))
	} else {
		s.fail[NormalizeSymbol(symbol)] = err
	}
	s.mu.Unlock()
}

func (s *Static) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.prices))
	for symbol := range s.prices {
		out = append(out, symbol)
	}
	return out
}
