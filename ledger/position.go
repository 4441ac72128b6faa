package ledger

import (
	"time"

	"github.com/rustyeddy/gridbot/market"
	"github.com/shopspring/decimal"
)

// State is the position state machine: FLAT or HELD.
type State string

const (
	Flat State = "FLAT"
	Held State = "HELD"
)

// Position is the per-asset trading record. Optional prices are nil when
// unset; Quantity is zero exactly when EntryPrice is nil.
type Position struct {
	Asset      market.Symbol
	Reference  *decimal.Decimal
	EntryPrice *decimal.Decimal
	Quantity   decimal.Decimal
	LastSeen   *decimal.Decimal
	OpenedAt   time.Time
}

func (p Position) State() State {
	if p.Quantity.IsPositive() {
		return Held
	}
	return Flat
}

// CostBasis is the cash committed to the position, quantity x entry price.
func (p Position) CostBasis() decimal.Decimal {
	if p.EntryPrice == nil {
		return decimal.Zero
	}
	return p.Quantity.Mul(*p.EntryPrice)
}

// clone returns a copy that shares no pointers with p.
func (p Position) clone() Position {
	c := p
	c.Reference = copyDec(p.Reference)
	c.EntryPrice = copyDec(p.EntryPrice)
	c.LastSeen = copyDec(p.LastSeen)
	return c
}

func copyDec(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

// Fill is the result of a committed ledger mutation.
type Fill struct {
	ID       string
	Asset    market.Symbol
	Price    decimal.Decimal
	Quantity decimal.Decimal
	// Amount is the capital committed on open, or the proceeds on close.
	Amount  decimal.Decimal
	Balance decimal.Decimal
	Time    time.Time
}
