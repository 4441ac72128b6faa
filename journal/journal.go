// journal/journal.go
package journal

import (
	"sync"
	"time"

	"github.com/rustyeddy/gridbot/market"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindBuy    Kind = "buy"
	KindSell   Kind = "sell"
	KindAdjust Kind = "adjust"
)

// Event is emitted for every committed buy, sell and balance adjustment.
type Event struct {
	ID       string          `json:"id"`
	Kind     Kind            `json:"kind"`
	Asset    market.Symbol   `json:"asset"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	// Delta is the change in cash balance caused by the event.
	Delta   decimal.Decimal `json:"delta"`
	Balance decimal.Decimal `json:"resulting_balance"`
	Time    time.Time       `json:"time"`
	Reason  string          `json:"reason,omitempty"`
}

type Journal interface {
	Record(Event) error
	Close() error
}

// Multi fans every event out to each journal. All journals see every event;
// the first error is returned.
type Multi []Journal

func (m Multi) Record(e Event) error {
	var first error
	for _, j := range m {
		if err := j.Record(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) Close() error {
	var first error
	for _, j := range m {
		if err := j.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Memory keeps events in a slice.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) Record(e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

func (m *Memory) Close() error { return nil }

// Func adapts a function to the Journal interface.
type Func func(Event) error

func (f Func) Record(e Event) error { return f(e) }
func (Func) Close() error           { return nil }
