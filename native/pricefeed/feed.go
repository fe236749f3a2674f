package pricefeed

import (
	"errors"
	"sync"

	"github.com/holiman/uint256"
)

var ErrPriceUnavailable = errors.New("pricefeed: price unavailable")

// Feed returns the collateral price in debt-token units, scaled by 1e18.
type Feed interface {
	FetchPrice() (*uint256.Int, error)
}

// Static serves an operator-set price.
type Static struct {
	mu    sync.RWMutex
	price *uint256.Int
}

// NewStatic returns a feed fixed at price.
func NewStatic(price *uint256.Int) *Static {
	s := &Static{}
	s.Set(price)
	return s
}

// Set replaces the served price.
func (s *Static) Set(price *uint256.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if price == nil {
		s.price = nil
		return
	}
	s.price = new(uint256.Int).Set(price)
}

// FetchPrice implements Feed.
func (s *Static) FetchPrice() (*uint256.Int, error) {
	if s == nil {
		return nil, ErrPriceUnavailable
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.price == nil || s.price.IsZero() {
		return nil, ErrPriceUnavailable
	}
	return new(uint256.Int).Set(s.price), nil
}
