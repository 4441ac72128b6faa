package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.Observations.WithLabelValues("BTC", "push").Inc()
	m.Observations.WithLabelValues("BTC", "push").Inc()
	m.Trades.WithLabelValues("BTC", "buy").Inc()
	m.Balance.Set(90)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Observations.WithLabelValues("BTC", "push")))
	assert.Equal(t, 90.0, testutil.ToFloat64(m.Balance))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `gridbot_trades_total{asset="BTC",kind="buy"} 1`)
	assert.Contains(t, string(body), "gridbot_balance 90")
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.Fallbacks.WithLabelValues("ETH").Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Fallbacks.WithLabelValues("ETH")))
}
