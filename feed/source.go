package feed

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/gridbot/market"
	"github.com/rustyeddy/gridbot/metrics"
)

type Config struct {
	PollInterval time.Duration
	Backoff      Backoff
	// MaxSilentFailures consecutive failures raise an Alert. Zero disables.
	MaxSilentFailures int
	// Buffer is the capacity of each subscription channel.
	Buffer int
}

func DefaultConfig() Config {
	return Config{
		PollInterval:      5 * time.Second,
		Backoff:           DefaultBackoff(),
		MaxSilentFailures: 10,
		Buffer:            16,
	}
}

// Source supervises per-asset subscriptions. Each subscription prefers the
// push stream; whenever the stream fails it polls immediately and then on
// every PollInterval for one backoff window before trying the stream again.
type Source struct {
	push    Streamer
	pull    Poller
	cfg     Config
	logger  zerolog.Logger
	metrics *metrics.Metrics
	alert   func(Alert)
}

type Option func(*Source)

func WithLogger(l zerolog.Logger) Option    { return func(s *Source) { s.logger = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Source) { s.metrics = m } }
func WithAlert(f func(Alert)) Option        { return func(s *Source) { s.alert = f } }

// NewSource builds a Source. Either side may be nil but not both: a nil
// Streamer gives a poll-only feed, a nil Poller a push-only one.
func NewSource(push Streamer, pull Poller, cfg Config, opts ...Option) *Source {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}
	s := &Source{
		push:   push,
		pull:   pull,
		cfg:    cfg,
		logger: zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	s.logger = s.logger.With().Str("component", "feed").Logger()
	return s
}

// Subscribe starts a subscription for asset. The returned channel yields
// observations in arrival order and is closed once ctx is done. A fresh
// Subscribe may be issued at any time.
func (s *Source) Subscribe(ctx context.Context, asset market.Symbol) <-chan market.Observation {
	out := make(chan market.Observation, s.cfg.Buffer)
	go func() {
		defer close(out)
		s.run(ctx, asset, out)
	}()
	return out
}

// Poll fetches one price through the pull side.
func (s *Source) Poll(ctx context.Context, asset market.Symbol) (market.Observation, error) {
	if s.pull == nil {
		return market.Observation{}, &FeedError{Asset: asset, Source: market.SourcePoll, Op: "poll", Err: ErrNoFeed}
	}
	obs, err := s.pull.Poll(ctx, asset)
	if err != nil {
		s.metrics.FeedFailures.WithLabelValues(string(asset), string(market.SourcePoll)).Inc()
		return obs, err
	}
	s.metrics.Observations.WithLabelValues(string(asset), string(market.SourcePoll)).Inc()
	return obs, nil
}

// subscription is the per-asset state; it is only touched by the
// subscription goroutine.
type subscription struct {
	asset    market.Symbol
	out      chan<- market.Observation
	failures int
	alerted  bool
	log      zerolog.Logger
}

func (s *Source) run(ctx context.Context, asset market.Symbol, out chan<- market.Observation) {
	sub := &subscription{
		asset: asset,
		out:   out,
		log:   s.logger.With().Str("asset", string(asset)).Logger(),
	}

	if s.push == nil {
		if s.pull == nil {
			sub.log.Error().Err(ErrNoFeed).Msg("subscription has nothing to read")
			return
		}
		s.pollFor(ctx, sub, 0)
		return
	}

	attempt := 0
	for ctx.Err() == nil {
		n, err := s.push.Stream(ctx, asset, func(o market.Observation) {
			s.deliver(ctx, sub, o)
		})
		if ctx.Err() != nil {
			return
		}
		if n > 0 {
			attempt = 0
		}
		attempt++
		s.failed(sub, market.SourcePush, err)

		if s.pull == nil {
			if !sleep(ctx, s.cfg.Backoff.Next(attempt)) {
				return
			}
			continue
		}

		s.metrics.Fallbacks.WithLabelValues(string(asset)).Inc()
		window := s.cfg.Backoff.Next(attempt)
		sub.log.Warn().Err(err).Int("delivered", n).Dur("retry_in", window).Msg("push feed down, polling")
		if !s.pollFor(ctx, sub, window) {
			return
		}
	}
}

// pollFor polls immediately and then every PollInterval until window has
// elapsed (forever when window is zero). Polls run one at a time, so they
// never overlap. It reports false once ctx is done.
func (s *Source) pollFor(ctx context.Context, sub *subscription, window time.Duration) bool {
	var deadline <-chan time.Time
	if window > 0 {
		t := time.NewTimer(window)
		defer t.Stop()
		deadline = t.C
	}
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		obs, err := s.pull.Poll(ctx, sub.asset)
		if ctx.Err() != nil {
			return false
		}
		if err != nil {
			s.failed(sub, market.SourcePoll, err)
		} else {
			s.deliver(ctx, sub, obs)
		}

		select {
		case <-ctx.Done():
			return false
		case <-deadline:
			return true
		case <-ticker.C:
		}
	}
}

func (s *Source) deliver(ctx context.Context, sub *subscription, o market.Observation) {
	if sub.failures > 0 {
		sub.log.Info().Int("after_failures", sub.failures).Str("source", string(o.Source)).Msg("feed recovered")
	}
	sub.failures = 0
	sub.alerted = false
	s.metrics.Observations.WithLabelValues(string(sub.asset), string(o.Source)).Inc()

	select {
	case sub.out <- o:
	case <-ctx.Done():
	}
}

func (s *Source) failed(sub *subscription, src market.Source, err error) {
	sub.failures++
	s.metrics.FeedFailures.WithLabelValues(string(sub.asset), string(src)).Inc()
	sub.log.Debug().Err(err).Str("source", string(src)).Int("failures", sub.failures).Msg("feed failure")

	if s.cfg.MaxSilentFailures > 0 && sub.failures >= s.cfg.MaxSilentFailures && !sub.alerted {
		sub.alerted = true
		sub.log.Error().Err(err).Int("failures", sub.failures).Msg("feed failing persistently")
		if s.alert != nil {
			s.alert(Alert{Asset: sub.asset, Failures: sub.failures, Err: err})
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
