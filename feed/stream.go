package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rustyeddy/gridbot/market"
	"github.com/rustyeddy/gridbot/metrics"
)

const (
	DefaultStreamURL      = "wss://stream.binance.com:9443/ws"
	DefaultSilenceTimeout = 30 * time.Second
)

// Streamer is the push side of a Source. Stream blocks while the session
// is healthy, calling emit from its own goroutine for every observation,
// and returns how many observations it delivered once the session ends.
type Streamer interface {
	Stream(ctx context.Context, asset market.Symbol, emit func(market.Observation)) (int, error)
}

// WSStream reads the per-symbol ticker channel over a websocket.
type WSStream struct {
	BaseURL        string
	Quote          string
	SilenceTimeout time.Duration
	Dialer         *websocket.Dialer
	Logger         zerolog.Logger
	Metrics        *metrics.Metrics
}

func NewWSStream(baseURL, quote string, silence time.Duration, logger zerolog.Logger, m *metrics.Metrics) *WSStream {
	if baseURL == "" {
		baseURL = DefaultStreamURL
	}
	if quote == "" {
		quote = market.DefaultQuote
	}
	if m == nil {
		m = metrics.New()
	}
	if silence <= 0 {
		silence = DefaultSilenceTimeout
	}
	return &WSStream{
		BaseURL:        baseURL,
		Quote:          quote,
		SilenceTimeout: silence,
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		Logger:  logger.With().Str("component", "ws").Logger(),
		Metrics: m,
	}
}

func (s *WSStream) URL(asset market.Symbol) string {
	return strings.TrimRight(s.BaseURL, "/") + "/" + asset.StreamName(s.Quote)
}

func (s *WSStream) Stream(ctx context.Context, asset market.Symbol, emit func(market.Observation)) (int, error) {
	url := s.URL(asset)
	conn, resp, err := s.Dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (http %d)", err, resp.StatusCode)
		}
		return 0, &FeedError{Asset: asset, Source: market.SourcePush, Op: "dial", Err: err}
	}
	defer conn.Close()

	// ReadMessage does not watch ctx; closing the conn unblocks it.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	log := s.Logger.With().Str("asset", string(asset)).Logger()
	log.Debug().Str("url", url).Msg("connected")

	// The deadline only moves on a valid observation, so a connection that
	// keeps sending unusable payloads still counts as silent.
	silence := s.SilenceTimeout
	if silence <= 0 {
		silence = DefaultSilenceTimeout
	}
	_ = conn.SetReadDeadline(time.Now().Add(silence))

	pair := asset.Pair(s.Quote)
	delivered := 0
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return delivered, ctx.Err()
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				err = ErrSilence
			}
			return delivered, &FeedError{Asset: asset, Source: market.SourcePush, Op: "read", Err: err}
		}

		obs, err := ParseTicker(asset, pair, msg)
		if err != nil {
			s.Metrics.Malformed.WithLabelValues(string(asset)).Inc()
			log.Warn().Err(err).Str("raw", trimForErr(string(msg))).Msg("skipping message")
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(silence))
		delivered++
		emit(obs)
	}
}

// tickerMsg declares the upper-case siblings of the fields we read so that
// encoding/json's case-insensitive matching cannot confuse "c" with "C".
type tickerMsg struct {
	Event     string  `json:"e"`
	EventTime int64   `json:"E"`
	Symbol    string  `json:"s"`
	LastPrice *string `json:"c"`
	CloseTime int64   `json:"C"`
}

// ParseTicker decodes a ticker payload for asset. Only the last price is
// required; unknown fields are ignored.
func ParseTicker(asset market.Symbol, pair string, raw []byte) (market.Observation, error) {
	var m tickerMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		return market.Observation{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if m.LastPrice == nil {
		return market.Observation{}, ErrMissingPrice
	}
	if m.Symbol != "" && !strings.EqualFold(m.Symbol, pair) {
		return market.Observation{}, fmt.Errorf("%w: symbol %q, want %q", ErrMalformed, m.Symbol, pair)
	}
	price, err := market.ParsePrice(*m.LastPrice)
	if err != nil {
		return market.Observation{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	at := time.Now().UTC()
	if m.EventTime > 0 {
		at = time.UnixMilli(m.EventTime).UTC()
	}
	return market.Observation{
		Asset:      asset,
		Price:      price,
		ObservedAt: at,
		Source:     market.SourcePush,
	}, nil
}

func trimForErr(s string) string {
	const n = 200
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
