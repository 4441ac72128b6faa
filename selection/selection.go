package selection

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rustyeddy/gridbot/market"
)

const DefaultMaxAssets = 3

var (
	ErrUnknownAsset  = errors.New("unknown asset")
	ErrSelectionFull = errors.New("selection full")
	ErrNotSelected   = errors.New("asset not selected")
)

// Listener is told about selection changes. An error from a listener
// cancels the change.
type Listener func(asset market.Symbol) error

// Manager holds the user's selection of tracked assets.
type Manager struct {
	mu       sync.Mutex
	max      int
	selected map[market.Symbol]struct{}
	onAdd    []Listener
	onRemove []Listener
}

func New(max int) *Manager {
	if max <= 0 {
		max = DefaultMaxAssets
	}
	return &Manager{
		max:      max,
		selected: make(map[market.Symbol]struct{}),
	}
}

func (m *Manager) OnAdd(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAdd = append(m.onAdd, l)
}

func (m *Manager) OnRemove(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRemove = append(m.onRemove, l)
}

// Add selects the asset named by s. Selecting an asset twice is a no-op.
func (m *Manager) Add(s string) (market.Symbol, error) {
	asset, err := market.ParseSymbol(s)
	if err != nil {
		return "", fmt.Errorf("select %q: %w", s, ErrUnknownAsset)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.selected[asset]; ok {
		return asset, nil
	}
	if len(m.selected) >= m.max {
		return "", fmt.Errorf("select %s: %w (max %d)", asset, ErrSelectionFull, m.max)
	}
	for _, l := range m.onAdd {
		if err := l(asset); err != nil {
			return "", fmt.Errorf("select %s: %w", asset, err)
		}
	}
	m.selected[asset] = struct{}{}
	return asset, nil
}

// Remove deselects the asset named by s.
func (m *Manager) Remove(s string) (market.Symbol, error) {
	asset, err := market.ParseSymbol(s)
	if err != nil {
		return "", fmt.Errorf("remove %q: %w", s, ErrUnknownAsset)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.selected[asset]; !ok {
		return "", fmt.Errorf("remove %s: %w", asset, ErrNotSelected)
	}
	for _, l := range m.onRemove {
		if err := l(asset); err != nil {
			return "", fmt.Errorf("remove %s: %w", asset, err)
		}
	}
	delete(m.selected, asset)
	return asset, nil
}

// List returns the selection in symbol order.
func (m *Manager) List() []market.Symbol {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]market.Symbol, 0, len(m.selected))
	for a := range m.selected {
		out = append(out, a)
	}
	market.SortSymbols(out)
	return out
}

func (m *Manager) Max() int { return m.max }

func (m *Manager) Contains(asset market.Symbol) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.selected[asset]
	return ok
}
