package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/gridbot/ledger"
	"github.com/rustyeddy/gridbot/market"
	"github.com/rustyeddy/gridbot/metrics"
	"github.com/rustyeddy/gridbot/selection"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	ledger *ledger.Ledger
	sel    *selection.Manager
	srv    *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l := ledger.New(decimal.NewFromInt(100))
	sel := selection.New(2)
	sel.OnAdd(func(a market.Symbol) error {
		l.Track(a)
		return nil
	})
	sel.OnRemove(func(a market.Symbol) error {
		_, err := l.Untrack(a, false)
		return err
	})
	return &fixture{
		ledger: l,
		sel:    sel,
		srv:    NewServer(l, sel, metrics.New(), zerolog.Nop()),
	}
}

func (fx *fixture) do(t *testing.T, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	fx.srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))

	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") && strings.HasPrefix(rec.Body.String(), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealthAndBalance(t *testing.T) {
	fx := newFixture(t)

	rec, body := fx.do(t, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec, body = fx.do(t, http.MethodGet, "/balance")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "100", body["balance"])
	assert.Equal(t, "100", body["starting_capital"])
	assert.Equal(t, "0", body["committed"])
}

func TestSelectionLifecycle(t *testing.T) {
	fx := newFixture(t)

	rec, body := fx.do(t, http.MethodPut, "/selection/btc")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"BTC"}, body["assets"])
	assert.Equal(t, 2.0, body["max"])

	rec, _ = fx.do(t, http.MethodPut, "/selection/ETH")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = fx.do(t, http.MethodPut, "/selection/SOL")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, body["error"], "selection full")

	rec, _ = fx.do(t, http.MethodPut, "/selection/FOO")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = fx.do(t, http.MethodDelete, "/selection/ADA")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = fx.do(t, http.MethodDelete, "/selection/ETH")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"BTC"}, body["assets"])
}

func TestRemoveHeldAssetConflicts(t *testing.T) {
	fx := newFixture(t)
	_, _ = fx.sel.Add("BTC")
	_, err := fx.ledger.OpenPosition("BTC", decimal.NewFromInt(50), decimal.NewFromInt(10))
	require.NoError(t, err)

	rec, _ := fx.do(t, http.MethodDelete, "/selection/BTC")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, []market.Symbol{"BTC"}, fx.sel.List())
}

func TestPositions(t *testing.T) {
	fx := newFixture(t)
	_, _ = fx.sel.Add("ETH")
	_, _ = fx.sel.Add("BTC")
	_, err := fx.ledger.OpenPosition("BTC", decimal.NewFromInt(50), decimal.NewFromInt(10))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	fx.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/positions", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "BTC", list[0]["asset"])
	assert.Equal(t, "HELD", list[0]["state"])
	assert.Equal(t, "0.2", list[0]["quantity"])
	assert.Equal(t, "50", list[0]["entry_price"])
	assert.Equal(t, "FLAT", list[1]["state"])
	assert.NotContains(t, list[1], "entry_price")

	rec, body := fx.do(t, http.MethodGet, "/positions/btc")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HELD", body["state"])
	assert.Contains(t, body, "opened_at")

	rec, _ = fx.do(t, http.MethodGet, "/positions/SOL")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = fx.do(t, http.MethodGet, "/positions/XYZ")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsAndNotFound(t *testing.T) {
	fx := newFixture(t)

	rec := httptest.NewRecorder()
	fx.srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gridbot_balance")

	rec, body := fx.do(t, http.MethodGet, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", body["error"])
}
