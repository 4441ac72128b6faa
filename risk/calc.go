package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Grid splits the starting capital into equal allocation slots.
// It is derived once from configuration and never mutated.
type Grid struct {
	startingCapital decimal.Decimal
	slots           int
	slotCapital     decimal.Decimal
}

var ErrInvalidGrid = errors.New("invalid grid")

func NewGrid(startingCapital decimal.Decimal, slots int) (Grid, error) {
	if !startingCapital.IsPositive() {
		return Grid{}, fmt.Errorf("%w: starting capital must be positive, got %s", ErrInvalidGrid, startingCapital)
	}
	if slots <= 0 {
		return Grid{}, fmt.Errorf("%w: slots must be positive, got %d", ErrInvalidGrid, slots)
	}
	return Grid{
		startingCapital: startingCapital,
		slots:           slots,
		slotCapital:     startingCapital.Div(decimal.NewFromInt(int64(slots))),
	}, nil
}

func (g Grid) StartingCapital() decimal.Decimal { return g.startingCapital }
func (g Grid) Slots() int                       { return g.slots }

// SlotCapital is the cash committed by a single buy.
func (g Grid) SlotCapital() decimal.Decimal { return g.slotCapital }
