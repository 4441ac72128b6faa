// market/instruments.go
package market

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Symbol is an exchange ticker for a tradable base asset, e.g. "BTC".
type Symbol string

// DefaultQuote is the quote currency every symbol is traded against.
const DefaultQuote = "USDT"

var ErrUnknownSymbol = errors.New("unknown symbol")

// Universe is the fixed set of symbols the bot knows how to trade.
var Universe = []Symbol{"BTC", "ETH", "BNB", "XRP", "ADA", "SOL", "DOT", "DOGE", "LTC", "LINK"}

var known = func() map[Symbol]struct{} {
	m := make(map[Symbol]struct{}, len(Universe))
	for _, s := range Universe {
		m[s] = struct{}{}
	}
	return m
}()

// ParseSymbol normalizes s and checks it against the Universe.
func ParseSymbol(s string) (Symbol, error) {
	sym := Symbol(strings.ToUpper(strings.TrimSpace(s)))
	if !sym.Known() {
		return "", fmt.Errorf("%w: %q", ErrUnknownSymbol, s)
	}
	return sym, nil
}

func (s Symbol) Known() bool {
	_, ok := known[s]
	return ok
}

func (s Symbol) String() string { return string(s) }

// Pair returns the REST pair name, e.g. BTCUSDT.
func (s Symbol) Pair(quote string) string {
	return strings.ToUpper(string(s) + quote)
}

// StreamName returns the ticker channel name, e.g. btcusdt@ticker.
func (s Symbol) StreamName(quote string) string {
	return strings.ToLower(string(s)+quote) + "@ticker"
}

// SortSymbols sorts in place, ascending.
func SortSymbols(syms []Symbol) {
	sort.Slice(syms, func(i, j int) bool { return syms[i] < syms[j] })
}

// UniverseNames returns the universe as plain strings, in listing order.
func UniverseNames() []string {
	out := make([]string, len(Universe))
	for i, s := range Universe {
		out[i] = string(s)
	}
	return out
}
