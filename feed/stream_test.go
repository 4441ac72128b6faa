package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/rustyeddy/gridbot/market"
	"github.com/rustyeddy/gridbot/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsServer upgrades every request and hands the conn to handle. The conn is
// closed when handle returns.
func wsServer(t *testing.T, handle func(conn *websocket.Conn, r *http.Request)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn, r)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func send(conn *websocket.Conn, msgs ...string) {
	for _, m := range msgs {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
			return
		}
	}
}

func newTestStream(url string, silence time.Duration, m *metrics.Metrics) *WSStream {
	return NewWSStream(url, market.DefaultQuote, silence, zerolog.Nop(), m)
}

func TestWSStreamSkipsMalformedMessages(t *testing.T) {
	paths := make(chan string, 1)
	url := wsServer(t, func(conn *websocket.Conn, r *http.Request) {
		paths <- r.URL.Path
		send(conn,
			`{"e":"24hrTicker","E":1700000000000,"s":"BTCUSDT","c":"100.5","C":1700000000000,"o":"99.1","x":"unknown"}`,
			`not json`,
			`{"e":"24hrTicker","s":"BTCUSDT"}`,
			`{"e":"24hrTicker","s":"ETHUSDT","c":"2000"}`,
			`{"e":"24hrTicker","s":"BTCUSDT","c":"abc"}`,
			`{"e":"24hrTicker","E":1700000001000,"s":"BTCUSDT","c":"101"}`,
		)
	})

	m := metrics.New()
	var got []market.Observation
	n, err := newTestStream(url, time.Second, m).Stream(context.Background(), "BTC", func(o market.Observation) {
		got = append(got, o)
	})

	require.Error(t, err)
	var fe *FeedError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, market.SourcePush, fe.Source)
	assert.Equal(t, "read", fe.Op)

	assert.Equal(t, "/btcusdt@ticker", <-paths)
	assert.Equal(t, 2, n)
	require.Len(t, got, 2)
	assert.Equal(t, "100.5", got[0].Price.String())
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), got[0].ObservedAt)
	assert.Equal(t, "101", got[1].Price.String())
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Malformed.WithLabelValues("BTC")))
}

func TestWSStreamSilenceTimeout(t *testing.T) {
	url := wsServer(t, func(conn *websocket.Conn, r *http.Request) {
		send(conn, `{"s":"ETHUSDT","c":"2000"}`)
		// hold the connection open without writing until the client leaves
		_, _, _ = conn.ReadMessage()
	})

	start := time.Now()
	n, err := newTestStream(url, 100*time.Millisecond, nil).Stream(context.Background(), "ETH", func(market.Observation) {})

	assert.Equal(t, 1, n)
	assert.ErrorIs(t, err, ErrSilence)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWSStreamMalformedOnlyIsSilence(t *testing.T) {
	url := wsServer(t, func(conn *websocket.Conn, r *http.Request) {
		for i := 0; i < 100; i++ {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"s":"BTCUSDT","lastPrice":"1"}`)); err != nil {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	})

	m := metrics.New()
	start := time.Now()
	n, err := newTestStream(url, 100*time.Millisecond, m).Stream(context.Background(), "BTC", func(market.Observation) {})

	assert.Zero(t, n)
	assert.ErrorIs(t, err, ErrSilence)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Greater(t, testutil.ToFloat64(m.Malformed.WithLabelValues("BTC")), 0.0)
}

func TestWSStreamContextCancel(t *testing.T) {
	url := wsServer(t, func(conn *websocket.Conn, r *http.Request) {
		_, _, _ = conn.ReadMessage()
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := newTestStream(url, 0, nil).Stream(ctx, "BTC", func(market.Observation) {})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWSStreamDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n, err := newTestStream("ws"+strings.TrimPrefix(srv.URL, "http"), time.Second, nil).
		Stream(context.Background(), "BTC", func(market.Observation) {})

	assert.Zero(t, n)
	var fe *FeedError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "dial", fe.Op)
	assert.Contains(t, err.Error(), "503")
}

func TestParseTicker(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr error
	}{
		{"full ticker", `{"e":"24hrTicker","E":1,"s":"BTCUSDT","p":"1","P":"2","c":"64000.10","C":2,"Q":"3","q":"4"}`, "64000.1", nil},
		{"minimal", `{"c":"1.5"}`, "1.5", nil},
		{"lower case symbol", `{"s":"btcusdt","c":"2"}`, "2", nil},
		{"missing price", `{"e":"24hrTicker","C":5}`, "", ErrMissingPrice},
		{"not json", `{`, "", ErrMalformed},
		{"zero price", `{"c":"0"}`, "", ErrMalformed},
		{"other symbol", `{"s":"ETHUSDT","c":"1"}`, "", ErrMalformed},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			obs, err := ParseTicker("BTC", "BTCUSDT", []byte(tt.raw))
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, obs.Price.String())
			assert.Equal(t, market.Symbol("BTC"), obs.Asset)
		})
	}
}

func TestBackoffNext(t *testing.T) {
	b := Backoff{Min: 100 * time.Millisecond, Max: time.Second, Factor: 2}

	assert.Equal(t, 100*time.Millisecond, b.Next(0))
	assert.Equal(t, 100*time.Millisecond, b.Next(1))
	assert.Equal(t, 200*time.Millisecond, b.Next(2))
	assert.Equal(t, 800*time.Millisecond, b.Next(4))
	assert.Equal(t, time.Second, b.Next(10))

	b.Jitter = 0.5
	for i := 0; i < 20; i++ {
		d := b.Next(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}
