package market

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Price is a quote-currency amount. Cash and quantities share the type.
type Price = decimal.Decimal

// ParsePrice parses an exchange price string and requires it to be positive.
func ParsePrice(s string) (Price, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty price")
	}
	p, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse price %q: %w", s, err)
	}
	if !p.IsPositive() {
		return decimal.Zero, fmt.Errorf("price must be positive, got %s", s)
	}
	return p, nil
}

// FromFloat is a convenience for config values and tests.
func FromFloat(x float64) Price {
	return decimal.NewFromFloat(x)
}
