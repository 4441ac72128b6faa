package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/gridbot/market"
	"github.com/rustyeddy/gridbot/pkg/id"
	"github.com/rustyeddy/gridbot/risk"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidState = errors.New("invalid position state")
	ErrNotTracked   = errors.New("asset not tracked")
	ErrInvalidPrice = errors.New("price must be positive")
	ErrInsufficient = errors.New("insufficient balance")
)

// Ledger is the single owner of the portfolio and the account balance.
// Every mutation holds mu, so a position change and the balance change that
// settles it are observed together.
type Ledger struct {
	mu          sync.Mutex
	starting    decimal.Decimal
	balance     decimal.Decimal
	adjustments decimal.Decimal
	realized    decimal.Decimal
	positions   map[market.Symbol]*Position
	now         func() time.Time
}

func New(startingCapital decimal.Decimal) *Ledger {
	return &Ledger{
		starting:  startingCapital,
		balance:   startingCapital,
		positions: make(map[market.Symbol]*Position),
		now:       time.Now,
	}
}

// Track adds a FLAT position for asset. Tracking an asset twice is a no-op.
func (l *Ledger) Track(asset market.Symbol) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.positions[asset]; ok {
		return
	}
	l.positions[asset] = &Position{Asset: asset}
}

// Untrack removes asset. A HELD position is refused unless force is set, in
// which case the position is closed at its last seen price first (or entry
// price when nothing has been seen) and the close fill is returned.
func (l *Ledger) Untrack(asset market.Symbol, force bool) (*Fill, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[asset]
	if !ok {
		return nil, fmt.Errorf("untrack %s: %w", asset, ErrNotTracked)
	}

	var fill *Fill
	if p.State() == Held {
		if !force {
			return nil, fmt.Errorf("untrack %s: %w: position is held", asset, ErrInvalidState)
		}
		mark := *p.EntryPrice
		if p.LastSeen != nil {
			mark = *p.LastSeen
		}
		f := l.closeLocked(p, mark)
		fill = &f
	}
	delete(l.positions, asset)
	return fill, nil
}

func (l *Ledger) Tracked(asset market.Symbol) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.positions[asset]
	return ok
}

// Assets returns the tracked assets in ascending order.
func (l *Ledger) Assets() []market.Symbol {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]market.Symbol, 0, len(l.positions))
	for s := range l.positions {
		out = append(out, s)
	}
	market.SortSymbols(out)
	return out
}

// OpenPosition commits capital to a FLAT asset at price.
func (l *Ledger) OpenPosition(asset market.Symbol, price, capital decimal.Decimal) (Fill, error) {
	if !price.IsPositive() {
		return Fill{}, fmt.Errorf("open %s: %w", asset, ErrInvalidPrice)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[asset]
	if !ok {
		return Fill{}, fmt.Errorf("open %s: %w", asset, ErrNotTracked)
	}
	if p.State() != Flat {
		return Fill{}, fmt.Errorf("open %s: %w: already %s", asset, ErrInvalidState, p.State())
	}
	if v := risk.Check(l.balance, capital); v != nil {
		return Fill{}, fmt.Errorf("open %s: %w: %s", asset, ErrInsufficient, v.Msg)
	}

	qty := capital.Div(price)
	if !qty.IsPositive() {
		return Fill{}, fmt.Errorf("open %s: %w: %s buys nothing at %s", asset, ErrInvalidPrice, capital, price)
	}
	now := l.now()

	entry := price
	p.EntryPrice = &entry
	p.Quantity = p.Quantity.Add(qty)
	p.OpenedAt = now
	l.balance = l.balance.Sub(capital)

	return Fill{
		ID:       id.NewAt(now),
		Asset:    asset,
		Price:    price,
		Quantity: qty,
		Amount:   capital,
		Balance:  l.balance,
		Time:     now,
	}, nil
}

// ClosePosition settles a HELD asset at price and returns the proceeds.
func (l *Ledger) ClosePosition(asset market.Symbol, price decimal.Decimal) (Fill, error) {
	if !price.IsPositive() {
		return Fill{}, fmt.Errorf("close %s: %w", asset, ErrInvalidPrice)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[asset]
	if !ok {
		return Fill{}, fmt.Errorf("close %s: %w", asset, ErrNotTracked)
	}
	if p.State() != Held {
		return Fill{}, fmt.Errorf("close %s: %w: already %s", asset, ErrInvalidState, p.State())
	}
	return l.closeLocked(p, price), nil
}

func (l *Ledger) closeLocked(p *Position, price decimal.Decimal) Fill {
	qty := p.Quantity
	proceeds := qty.Mul(price)
	now := l.now()

	l.realized = l.realized.Add(proceeds.Sub(p.CostBasis()))
	l.balance = l.balance.Add(proceeds)
	p.Quantity = decimal.Zero
	p.EntryPrice = nil
	p.OpenedAt = time.Time{}

	return Fill{
		ID:       id.NewAt(now),
		Asset:    p.Asset,
		Price:    price,
		Quantity: qty,
		Amount:   proceeds,
		Balance:  l.balance,
		Time:     now,
	}
}

// Adjust moves the cash balance by delta without touching any position.
// The running total is kept so conservation can still be verified.
func (l *Ledger) Adjust(asset market.Symbol, delta decimal.Decimal) (Fill, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.positions[asset]; !ok {
		return Fill{}, fmt.Errorf("adjust %s: %w", asset, ErrNotTracked)
	}
	now := l.now()
	l.balance = l.balance.Add(delta)
	l.adjustments = l.adjustments.Add(delta)

	return Fill{
		ID:      id.NewAt(now),
		Asset:   asset,
		Amount:  delta,
		Balance: l.balance,
		Time:    now,
	}, nil
}

// SetReference records the buy reference price for asset.
func (l *Ledger) SetReference(asset market.Symbol, price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("reference %s: %w", asset, ErrInvalidPrice)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[asset]
	if !ok {
		return fmt.Errorf("reference %s: %w", asset, ErrNotTracked)
	}
	ref := price
	p.Reference = &ref
	return nil
}

// Observe records price as the last seen price and returns the previous one.
func (l *Ledger) Observe(asset market.Symbol, price decimal.Decimal) (*decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[asset]
	if !ok {
		return nil, fmt.Errorf("observe %s: %w", asset, ErrNotTracked)
	}
	prev := p.LastSeen
	seen := price
	p.LastSeen = &seen
	return prev, nil
}

// Snapshot returns a point-in-time copy of the position for asset.
func (l *Ledger) Snapshot(asset market.Symbol) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[asset]
	if !ok {
		return Position{}, fmt.Errorf("snapshot %s: %w", asset, ErrNotTracked)
	}
	return p.clone(), nil
}

// Positions returns copies of all positions sorted by asset.
func (l *Ledger) Positions() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

func (l *Ledger) Balance() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

func (l *Ledger) StartingCapital() decimal.Decimal { return l.starting }

// Adjustments is the net cash added by Adjust over the session.
func (l *Ledger) Adjustments() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.adjustments
}

// Realized is the net profit or loss settled by closes over the session.
func (l *Ledger) Realized() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.realized
}

// Committed is the cash currently held in positions at entry price.
func (l *Ledger) Committed() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.committedLocked()
}

func (l *Ledger) committedLocked() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range l.positions {
		sum = sum.Add(p.CostBasis())
	}
	return sum
}

// Drift returns balance + committed - realized - adjustments - starting.
// It is zero up to division rounding when capital has been conserved:
// cash only moves between the balance and positions, and changes in value
// enter solely through realized P/L or explicit adjustments.
func (l *Ledger) Drift() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance.Add(l.committedLocked()).Sub(l.realized).Sub(l.adjustments).Sub(l.starting)
}
