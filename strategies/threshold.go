package strategies

import (
	"github.com/rustyeddy/gridbot/ledger"
	"github.com/rustyeddy/gridbot/market"
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// Threshold is the FLAT/HELD position state machine.
//
// While FLAT it buys one slot once the price has fallen BuyThreshold below
// the reference price. A FLAT asset with no reference adopts the first price
// it sees as the reference. While HELD it sells the whole position once the
// price has risen SellThreshold above the entry price, and the exit price
// becomes the reference for the next buy.
type Threshold struct {
	SlotCapital   decimal.Decimal
	BuyThreshold  decimal.Decimal
	SellThreshold decimal.Decimal
}

func NewThreshold(slot, buy, sell decimal.Decimal) *Threshold {
	return &Threshold{SlotCapital: slot, BuyThreshold: buy, SellThreshold: sell}
}

func (s *Threshold) Name() string { return "threshold" }

func (s *Threshold) Evaluate(obs market.Observation, pos ledger.Position) []Action {
	price := obs.Price

	switch pos.State() {
	case ledger.Flat:
		if pos.Reference == nil {
			return []Action{s.action(SetReference, obs, "initial reference")}
		}
		if s.BuyFires(*pos.Reference, price) {
			a := s.action(Open, obs, "price fell below reference")
			a.Capital = s.SlotCapital
			return []Action{a}
		}

	case ledger.Held:
		if pos.EntryPrice != nil && s.SellFires(*pos.EntryPrice, price) {
			return []Action{
				s.action(Close, obs, "price rose above entry"),
				s.action(SetReference, obs, "reference reset after exit"),
			}
		}
	}
	return nil
}

// BuyFires reports price <= reference * (1 - BuyThreshold).
func (s *Threshold) BuyFires(reference, price decimal.Decimal) bool {
	return price.LessThanOrEqual(reference.Mul(one.Sub(s.BuyThreshold)))
}

// SellFires reports price >= entry * (1 + SellThreshold).
func (s *Threshold) SellFires(entry, price decimal.Decimal) bool {
	return price.GreaterThanOrEqual(entry.Mul(one.Add(s.SellThreshold)))
}

func (s *Threshold) action(k ActionKind, obs market.Observation, reason string) Action {
	return Action{Kind: k, Asset: obs.Asset, Price: obs.Price, Strategy: s.Name(), Reason: reason}
}
