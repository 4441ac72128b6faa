package market

import (
	"errors"
	"sync"
	"time"
)

// Source tells where an observation came from.
type Source string

const (
	SourcePush Source = "push"
	SourcePoll Source = "poll"
)

// Observation is a single point-in-time price for one asset.
type Observation struct {
	Asset      Symbol
	Price      Price
	ObservedAt time.Time
	Source     Source
}

func (o Observation) Valid() bool {
	return o.Asset.Known() && o.Price.IsPositive()
}

var ErrNoPrice = errors.New("price not found")

// PriceStore keeps the most recent observation per asset.
type PriceStore struct {
	mu   sync.RWMutex
	last map[Symbol]Observation
}

func NewPriceStore() *PriceStore {
	return &PriceStore{last: make(map[Symbol]Observation)}
}

func (ps *PriceStore) Set(o Observation) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.last[o.Asset] = o
}

func (ps *PriceStore) Get(asset Symbol) (Observation, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	o, ok := ps.last[asset]
	if !ok {
		return Observation{}, ErrNoPrice
	}
	return o, nil
}

func (ps *PriceStore) Delete(asset Symbol) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	delete(ps.last, asset)
}
