package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rustyeddy/gridbot/ledger"
	"github.com/rustyeddy/gridbot/market"
	"github.com/rustyeddy/gridbot/metrics"
	"github.com/rustyeddy/gridbot/pkg/id"
	"github.com/rustyeddy/gridbot/selection"
	"github.com/shopspring/decimal"
)

// Book is the read side of the ledger.
type Book interface {
	Balance() decimal.Decimal
	StartingCapital() decimal.Decimal
	Committed() decimal.Decimal
	Realized() decimal.Decimal
	Adjustments() decimal.Decimal
	Positions() []ledger.Position
	Snapshot(asset market.Symbol) (ledger.Position, error)
}

// Selector changes the set of tracked assets.
type Selector interface {
	Add(asset string) (market.Symbol, error)
	Remove(asset string) (market.Symbol, error)
	List() []market.Symbol
	Max() int
}

// Server is the JSON status API. Only the selection endpoints change
// anything, and they go through the Selector.
type Server struct {
	router  *mux.Router
	book    Book
	sel     Selector
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func NewServer(book Book, sel Selector, m *metrics.Metrics, logger zerolog.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		book:    book,
		sel:     sel,
		metrics: m,
		logger:  logger.With().Str("component", "api").Logger(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(jsonContentTypeMiddleware)
	api.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	api.HandleFunc("/balance", s.balance).Methods(http.MethodGet)
	api.HandleFunc("/positions", s.positions).Methods(http.MethodGet)
	api.HandleFunc("/positions/{asset}", s.position).Methods(http.MethodGet)
	api.HandleFunc("/selection", s.selection).Methods(http.MethodGet)
	api.HandleFunc("/selection/{asset}", s.selectAsset).Methods(http.MethodPut)
	api.HandleFunc("/selection/{asset}", s.deselectAsset).Methods(http.MethodDelete)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info().Str("addr", addr).Msg("status api listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	}
}

type balanceView struct {
	Balance         decimal.Decimal `json:"balance"`
	StartingCapital decimal.Decimal `json:"starting_capital"`
	Committed       decimal.Decimal `json:"committed"`
	Realized        decimal.Decimal `json:"realized"`
	Adjustments     decimal.Decimal `json:"adjustments"`
}

type positionView struct {
	Asset      market.Symbol    `json:"asset"`
	State      ledger.State     `json:"state"`
	Reference  *decimal.Decimal `json:"reference,omitempty"`
	EntryPrice *decimal.Decimal `json:"entry_price,omitempty"`
	Quantity   decimal.Decimal  `json:"quantity"`
	LastSeen   *decimal.Decimal `json:"last_seen,omitempty"`
	OpenedAt   *time.Time       `json:"opened_at,omitempty"`
}

func viewOf(p ledger.Position) positionView {
	v := positionView{
		Asset:      p.Asset,
		State:      p.State(),
		Reference:  p.Reference,
		EntryPrice: p.EntryPrice,
		Quantity:   p.Quantity,
		LastSeen:   p.LastSeen,
	}
	if !p.OpenedAt.IsZero() {
		t := p.OpenedAt
		v.OpenedAt = &t
	}
	return v
}

type selectionView struct {
	Assets []market.Symbol `json:"assets"`
	Max    int             `json:"max"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, balanceView{
		Balance:         s.book.Balance(),
		StartingCapital: s.book.StartingCapital(),
		Committed:       s.book.Committed(),
		Realized:        s.book.Realized(),
		Adjustments:     s.book.Adjustments(),
	})
}

func (s *Server) positions(w http.ResponseWriter, r *http.Request) {
	ps := s.book.Positions()
	out := make([]positionView, 0, len(ps))
	for _, p := range ps {
		out = append(out, viewOf(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) position(w http.ResponseWriter, r *http.Request) {
	asset, err := market.ParseSymbol(mux.Vars(r)["asset"])
	if err != nil {
		s.fail(w, err)
		return
	}
	p, err := s.book.Snapshot(asset)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p))
}

func (s *Server) selection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, selectionView{Assets: s.sel.List(), Max: s.sel.Max()})
}

func (s *Server) selectAsset(w http.ResponseWriter, r *http.Request) {
	if _, err := s.sel.Add(mux.Vars(r)["asset"]); err != nil {
		s.fail(w, err)
		return
	}
	s.selection(w, r)
}

func (s *Server) deselectAsset(w http.ResponseWriter, r *http.Request) {
	if _, err := s.sel.Remove(mux.Vars(r)["asset"]); err != nil {
		s.fail(w, err)
		return
	}
	s.selection(w, r)
}

// fail maps domain errors onto status codes.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, selection.ErrUnknownAsset), errors.Is(err, market.ErrUnknownSymbol):
		status = http.StatusBadRequest
	case errors.Is(err, selection.ErrNotSelected), errors.Is(err, ledger.ErrNotTracked):
		status = http.StatusNotFound
	case errors.Is(err, selection.ErrSelectionFull), errors.Is(err, ledger.ErrInvalidState):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", id.New())
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		s.logger.Debug().
			Str("request_id", w.Header().Get("X-Request-ID")).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.statusCode).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
