package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog"
	"github.com/rustyeddy/gridbot/market"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const DefaultRESTURL = "https://api1.binance.com"

// Poller is the pull side of a Source: one point-in-time price per call.
type Poller interface {
	Poll(ctx context.Context, asset market.Symbol) (market.Observation, error)
}

type PollerConfig struct {
	BaseURL string
	Quote   string
	Timeout time.Duration
	// RPS and Burst bound the request rate across every asset sharing
	// the poller.
	RPS   float64
	Burst int
	// BreakerFailures consecutive failures open the breaker for
	// BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		BaseURL:         DefaultRESTURL,
		Quote:           market.DefaultQuote,
		Timeout:         10 * time.Second,
		RPS:             5,
		Burst:           3,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

// RESTPoller fetches /api/v3/ticker/price through the binance client,
// behind a shared rate limiter and a circuit breaker.
type RESTPoller struct {
	client  *binance.Client
	quote   string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

func NewRESTPoller(cfg PollerConfig, logger zerolog.Logger) *RESTPoller {
	def := DefaultPollerConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Quote == "" {
		cfg.Quote = def.Quote
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}

	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}

	client := binance.NewClient("", "")
	client.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	client.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	p := &RESTPoller{
		client:  client,
		quote:   cfg.Quote,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		logger:  logger.With().Str("component", "rest").Logger(),
	}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "ticker-price",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return p
}

// BreakerState reports the circuit breaker state, e.g. "closed" or "open".
func (p *RESTPoller) BreakerState() string {
	return p.breaker.State().String()
}

func (p *RESTPoller) Poll(ctx context.Context, asset market.Symbol) (market.Observation, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return market.Observation{}, p.fail(asset, "wait", err)
	}

	pair := asset.Pair(p.quote)
	v, err := p.breaker.Execute(func() (interface{}, error) {
		prices, err := p.client.NewListPricesService().Symbol(pair).Do(ctx)
		if err != nil {
			return nil, err
		}
		for _, sp := range prices {
			if sp == nil || (sp.Symbol != "" && sp.Symbol != pair) {
				continue
			}
			if sp.Price == "" {
				return nil, ErrMissingPrice
			}
			return market.ParsePrice(sp.Price)
		}
		return nil, ErrMissingPrice
	})
	if err != nil {
		return market.Observation{}, p.fail(asset, "ticker/price", err)
	}

	return market.Observation{
		Asset:      asset,
		Price:      v.(market.Price),
		ObservedAt: time.Now().UTC(),
		Source:     market.SourcePoll,
	}, nil
}

func (p *RESTPoller) fail(asset market.Symbol, op string, err error) error {
	return &FeedError{Asset: asset, Source: market.SourcePoll, Op: op, Err: fmt.Errorf("%s: %w", asset.Pair(p.quote), err)}
}
