package strategies

import (
	"github.com/rustyeddy/gridbot/ledger"
	"github.com/rustyeddy/gridbot/market"
	"github.com/shopspring/decimal"
)

// Momentum nudges the cash balance by Step in the direction of the last
// price move. It ignores position state entirely, so it is a separate
// strategy from Threshold and is off unless configured.
type Momentum struct {
	Step decimal.Decimal
}

func NewMomentum(step decimal.Decimal) *Momentum {
	return &Momentum{Step: step}
}

func (m *Momentum) Name() string { return "momentum" }

func (m *Momentum) Evaluate(obs market.Observation, pos ledger.Position) []Action {
	if pos.LastSeen == nil || !m.Step.IsPositive() {
		return nil
	}

	var delta decimal.Decimal
	var reason string
	switch obs.Price.Cmp(*pos.LastSeen) {
	case 1:
		delta, reason = m.Step, "price rose"
	case -1:
		delta, reason = m.Step.Neg(), "price fell"
	default:
		return nil
	}

	return []Action{{
		Kind:     Adjust,
		Asset:    obs.Asset,
		Price:    obs.Price,
		Delta:    delta,
		Strategy: m.Name(),
		Reason:   reason,
	}}
}
