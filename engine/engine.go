package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/gridbot/journal"
	"github.com/rustyeddy/gridbot/ledger"
	"github.com/rustyeddy/gridbot/market"
	"github.com/rustyeddy/gridbot/metrics"
	"github.com/rustyeddy/gridbot/strategies"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

var (
	ErrRunning            = errors.New("engine already running")
	ErrInvalidObservation = errors.New("invalid observation")
)

// Feed is the price source the engine subscribes to.
type Feed interface {
	Subscribe(ctx context.Context, asset market.Symbol) <-chan market.Observation
	Poll(ctx context.Context, asset market.Symbol) (market.Observation, error)
}

// Engine turns observations into ledger mutations. Subscriptions forward
// into one queue and a single worker evaluates them, so evaluations never
// run concurrently.
type Engine struct {
	ledger     *ledger.Ledger
	feed       Feed
	strategies []strategies.Strategy
	journal    journal.Journal
	prices     *market.PriceStore
	logger     zerolog.Logger
	metrics    *metrics.Metrics
	queue      chan tagged

	// evalMu serializes evaluations with subscription removal.
	evalMu sync.Mutex

	mu      sync.Mutex
	subs    map[market.Symbol]*subscription
	gen     uint64
	running bool
	runCtx  context.Context
	group   *errgroup.Group
}

type subscription struct {
	gen    uint64
	cancel context.CancelFunc
}

// tagged is an observation stamped with the generation of the
// subscription that produced it.
type tagged struct {
	obs market.Observation
	gen uint64
}

type Option func(*Engine)

func WithLogger(l zerolog.Logger) Option         { return func(e *Engine) { e.logger = l } }
func WithMetrics(m *metrics.Metrics) Option      { return func(e *Engine) { e.metrics = m } }
func WithJournal(j journal.Journal) Option       { return func(e *Engine) { e.journal = j } }
func WithQueueSize(n int) Option                 { return func(e *Engine) { e.queue = make(chan tagged, n) } }
func WithPriceStore(p *market.PriceStore) Option { return func(e *Engine) { e.prices = p } }

// New builds an engine over l. Strategies run in the given order for every
// observation.
func New(l *ledger.Ledger, feed Feed, strats []strategies.Strategy, opts ...Option) *Engine {
	e := &Engine{
		ledger:     l,
		feed:       feed,
		strategies: strats,
		prices:     market.NewPriceStore(),
		logger:     zerolog.Nop(),
		subs:       make(map[market.Symbol]*subscription),
	}
	for _, o := range opts {
		o(e)
	}
	if e.queue == nil {
		e.queue = make(chan tagged, 64)
	}
	if e.metrics == nil {
		e.metrics = metrics.New()
	}
	e.logger = e.logger.With().Str("component", "engine").Logger()
	e.metrics.Balance.Set(e.ledger.Balance().InexactFloat64())
	return e
}

func (e *Engine) Ledger() *ledger.Ledger       { return e.ledger }
func (e *Engine) Prices() *market.PriceStore   { return e.prices }
func (e *Engine) Balance() decimal.Decimal     { return e.ledger.Balance() }
func (e *Engine) Positions() []ledger.Position { return e.ledger.Positions() }
func (e *Engine) Metrics() *metrics.Metrics    { return e.metrics }

// Add starts tracking asset. A non-nil reference seeds the buy reference,
// otherwise the first observation does. Adding a tracked asset only
// updates the reference.
func (e *Engine) Add(asset market.Symbol, reference *decimal.Decimal) error {
	if !asset.Known() {
		return fmt.Errorf("add %q: %w", asset, market.ErrUnknownSymbol)
	}
	e.ledger.Track(asset)
	if reference != nil {
		if err := e.ledger.SetReference(asset, *reference); err != nil {
			return err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.subs[asset]; ok {
		return nil
	}
	e.gen++
	s := &subscription{gen: e.gen}
	e.subs[asset] = s
	if e.running {
		e.startLocked(asset, s)
	}
	e.logger.Info().Str("asset", string(asset)).Uint64("gen", s.gen).Msg("tracking")
	return nil
}

// Remove stops the subscription for asset and untracks it. A HELD asset is
// refused unless force is set, in which case it is sold at its last seen
// price. Observations already queued for the asset are discarded.
func (e *Engine) Remove(asset market.Symbol, force bool) error {
	e.evalMu.Lock()
	defer e.evalMu.Unlock()

	fill, err := e.ledger.Untrack(asset, force)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if s, ok := e.subs[asset]; ok {
		if s.cancel != nil {
			s.cancel()
		}
		delete(e.subs, asset)
	}
	e.mu.Unlock()
	e.prices.Delete(asset)

	if fill != nil {
		e.emit(journal.Event{
			ID:       fill.ID,
			Kind:     journal.KindSell,
			Asset:    asset,
			Price:    fill.Price,
			Quantity: fill.Quantity,
			Delta:    fill.Amount,
			Balance:  fill.Balance,
			Time:     fill.Time,
			Reason:   "closed on removal",
		})
	}
	e.logger.Info().Str("asset", string(asset)).Msg("untracked")
	return nil
}

// Tracked lists the subscribed assets in symbol order.
func (e *Engine) Tracked() []market.Symbol {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]market.Symbol, 0, len(e.subs))
	for a := range e.subs {
		out = append(out, a)
	}
	market.SortSymbols(out)
	return out
}

// Run subscribes every tracked asset and evaluates observations until ctx
// is done. Assets added while running are subscribed immediately.
func (e *Engine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrRunning
	}
	e.running = true
	e.runCtx = gctx
	e.group = g
	for asset, s := range e.subs {
		e.startLocked(asset, s)
	}
	e.mu.Unlock()

	g.Go(func() error { return e.work(gctx) })
	err := g.Wait()

	e.mu.Lock()
	for _, s := range e.subs {
		if s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
	}
	e.running = false
	e.runCtx = nil
	e.group = nil
	e.mu.Unlock()
	return err
}

func (e *Engine) startLocked(asset market.Symbol, s *subscription) {
	if e.runCtx.Err() != nil {
		return
	}
	ctx, cancel := context.WithCancel(e.runCtx)
	s.cancel = cancel
	gen := s.gen
	e.group.Go(func() error {
		e.forward(ctx, asset, gen)
		return nil
	})
}

func (e *Engine) forward(ctx context.Context, asset market.Symbol, gen uint64) {
	for obs := range e.feed.Subscribe(ctx, asset) {
		select {
		case e.queue <- tagged{obs: obs, gen: gen}:
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) work(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case first := <-e.queue:
			for _, t := range e.drain(first) {
				e.process(t)
			}
		}
	}
}

// drain collects everything pending behind first and orders it by symbol.
// The sort is stable, so per-asset arrival order is kept.
func (e *Engine) drain(first tagged) []tagged {
	batch := []tagged{first}
	for {
		select {
		case t := <-e.queue:
			batch = append(batch, t)
		default:
			sort.SliceStable(batch, func(i, j int) bool {
				return batch[i].obs.Asset < batch[j].obs.Asset
			})
			return batch
		}
	}
}

func (e *Engine) process(t tagged) {
	e.evalMu.Lock()
	defer e.evalMu.Unlock()

	e.mu.Lock()
	s, ok := e.subs[t.obs.Asset]
	current := ok && s.gen == t.gen
	e.mu.Unlock()

	if !current {
		e.metrics.Discarded.WithLabelValues(string(t.obs.Asset)).Inc()
		e.logger.Debug().Str("asset", string(t.obs.Asset)).Uint64("gen", t.gen).Msg("discarding stale observation")
		return
	}
	_, _ = e.evaluateLocked(t.obs)
}

// Evaluate runs one observation through the strategies synchronously and
// returns the events it committed.
func (e *Engine) Evaluate(obs market.Observation) ([]journal.Event, error) {
	e.evalMu.Lock()
	defer e.evalMu.Unlock()
	return e.evaluateLocked(obs)
}

func (e *Engine) evaluateLocked(obs market.Observation) ([]journal.Event, error) {
	if !obs.Valid() {
		return nil, fmt.Errorf("evaluate %s: %w", obs.Asset, ErrInvalidObservation)
	}
	log := e.logger.With().Str("asset", string(obs.Asset)).Logger()

	pos, err := e.ledger.Snapshot(obs.Asset)
	if err != nil {
		return nil, err
	}
	if _, err := e.ledger.Observe(obs.Asset, obs.Price); err != nil {
		return nil, err
	}
	e.prices.Set(obs)

	// every strategy sees the position as it was before this observation.
	// A rejected action drops the rest of that strategy's actions only.
	var (
		events []journal.Event
		errs   []error
	)
	for _, s := range e.strategies {
		for _, a := range s.Evaluate(obs, pos) {
			if a.Strategy == "" {
				a.Strategy = s.Name()
			}
			ev, err := e.apply(a)
			if err != nil {
				e.metrics.StateErrors.WithLabelValues(string(obs.Asset)).Inc()
				log.Error().Err(err).Str("strategy", a.Strategy).Str("action", a.Kind.String()).Msg("action rejected")
				errs = append(errs, err)
				break
			}
			if ev != nil {
				events = append(events, *ev)
				e.emit(*ev)
			}
		}
	}
	return events, errors.Join(errs...)
}

func (e *Engine) apply(a strategies.Action) (*journal.Event, error) {
	var (
		fill ledger.Fill
		kind journal.Kind
		err  error
	)
	switch a.Kind {
	case strategies.SetReference:
		return nil, e.ledger.SetReference(a.Asset, a.Price)
	case strategies.Open:
		kind = journal.KindBuy
		fill, err = e.ledger.OpenPosition(a.Asset, a.Price, a.Capital)
		fill.Amount = fill.Amount.Neg()
	case strategies.Close:
		kind = journal.KindSell
		fill, err = e.ledger.ClosePosition(a.Asset, a.Price)
	case strategies.Adjust:
		kind = journal.KindAdjust
		fill, err = e.ledger.Adjust(a.Asset, a.Delta)
		fill.Price = a.Price
	default:
		return nil, fmt.Errorf("unknown action %d", a.Kind)
	}
	if err != nil {
		return nil, err
	}

	return &journal.Event{
		ID:       fill.ID,
		Kind:     kind,
		Asset:    a.Asset,
		Price:    fill.Price,
		Quantity: fill.Quantity,
		Delta:    fill.Amount,
		Balance:  fill.Balance,
		Time:     fill.Time,
		Reason:   a.Strategy + ": " + a.Reason,
	}, nil
}

func (e *Engine) emit(ev journal.Event) {
	e.metrics.Trades.WithLabelValues(string(ev.Asset), string(ev.Kind)).Inc()
	e.metrics.Balance.Set(ev.Balance.InexactFloat64())

	e.logger.Debug().Str("asset", string(ev.Asset)).Str("kind", string(ev.Kind)).Str("id", ev.ID).Msg("committed")

	if e.journal == nil {
		return
	}
	if err := e.journal.Record(ev); err != nil {
		e.logger.Warn().Err(err).Str("event", ev.ID).Msg("journal write failed")
	}
}

// Cycle polls every tracked asset once and evaluates the results in symbol
// order. Assets whose poll fails are skipped.
func (e *Engine) Cycle(ctx context.Context) ([]journal.Event, error) {
	var events []journal.Event
	for _, asset := range e.ledger.Assets() {
		if err := ctx.Err(); err != nil {
			return events, err
		}
		obs, err := e.feed.Poll(ctx, asset)
		if err != nil {
			e.logger.Warn().Err(err).Str("asset", string(asset)).Msg("poll failed, skipping")
			continue
		}
		evs, err := e.Evaluate(obs)
		if err != nil && !isStateError(err) {
			e.logger.Warn().Err(err).Str("asset", string(asset)).Msg("evaluation failed")
		}
		events = append(events, evs...)
	}
	return events, nil
}

func isStateError(err error) bool {
	return errors.Is(err, ledger.ErrInvalidState) || errors.Is(err, ledger.ErrInsufficient)
}
