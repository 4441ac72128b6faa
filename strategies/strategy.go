package strategies

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rustyeddy/gridbot/ledger"
	"github.com/rustyeddy/gridbot/market"
	"github.com/shopspring/decimal"
)

// Strategy turns one observation plus the position snapshot taken before it
// into zero or more ledger actions. Strategies never mutate the ledger.
type Strategy interface {
	Name() string
	Evaluate(obs market.Observation, pos ledger.Position) []Action
}

type ActionKind int

const (
	// SetReference records the buy reference price.
	SetReference ActionKind = iota
	Open
	Close
	Adjust
)

func (k ActionKind) String() string {
	switch k {
	case SetReference:
		return "REFERENCE"
	case Open:
		return "BUY"
	case Close:
		return "SELL"
	case Adjust:
		return "ADJUST"
	default:
		return "UNKNOWN"
	}
}

// Action is a single ledger mutation requested by a strategy.
type Action struct {
	Kind     ActionKind
	Asset    market.Symbol
	Price    decimal.Decimal
	Capital  decimal.Decimal // Open only
	Delta    decimal.Decimal // Adjust only
	Strategy string
	Reason   string
}

// Params configures the strategies built by ByName.
type Params struct {
	SlotCapital   decimal.Decimal
	BuyThreshold  decimal.Decimal
	SellThreshold decimal.Decimal
	MomentumStep  decimal.Decimal
}

type factory func(Params) Strategy

var registry = map[string]factory{
	"noop":      func(Params) Strategy { return Noop{} },
	"threshold": func(p Params) Strategy { return NewThreshold(p.SlotCapital, p.BuyThreshold, p.SellThreshold) },
	"momentum":  func(p Params) Strategy { return NewMomentum(p.MomentumStep) },
}

// Names lists the registered strategies.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func ByName(name string, p Params) (Strategy, error) {
	f, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return f(p), nil
}

// Noop never acts.
type Noop struct{}

func (Noop) Name() string                                         { return "noop" }
func (Noop) Evaluate(market.Observation, ledger.Position) []Action { return nil }
