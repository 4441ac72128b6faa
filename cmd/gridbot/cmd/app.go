package cmd

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/gridbot/config"
	"github.com/rustyeddy/gridbot/engine"
	"github.com/rustyeddy/gridbot/feed"
	"github.com/rustyeddy/gridbot/journal"
	"github.com/rustyeddy/gridbot/ledger"
	"github.com/rustyeddy/gridbot/logging"
	"github.com/rustyeddy/gridbot/market"
	"github.com/rustyeddy/gridbot/metrics"
	"github.com/rustyeddy/gridbot/risk"
	"github.com/rustyeddy/gridbot/selection"
	"github.com/rustyeddy/gridbot/strategies"
	"github.com/shopspring/decimal"
)

// app is one fully wired engine session.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	grid      risk.Grid
	ledger    *ledger.Ledger
	source    *feed.Source
	engine    *engine.Engine
	selection *selection.Manager
	journal   journal.Journal
}

type appOptions struct {
	alert   func(feed.Alert)
	onEvent func(journal.Event)
	// pollOnly skips the websocket stream.
	pollOnly bool
}

func newApp(cfg *config.Config, opts appOptions) (*app, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	durs, err := cfg.Feed.Durations()
	if err != nil {
		return nil, err
	}
	grid, err := risk.NewGrid(decimal.NewFromFloat(cfg.Account.StartingCapital), cfg.Grid.Slots)
	if err != nil {
		return nil, err
	}

	params := cfg.StrategyParams()
	params.SlotCapital = grid.SlotCapital()
	var strats []strategies.Strategy
	for _, name := range cfg.StrategyNames() {
		s, err := strategies.ByName(name, params)
		if err != nil {
			return nil, err
		}
		strats = append(strats, s)
	}

	m := metrics.New()
	poller := feed.NewRESTPoller(feed.PollerConfig{
		BaseURL: cfg.Feed.RESTURL,
		Quote:   cfg.Account.Quote,
		RPS:     cfg.Feed.PollRPS,
	}, logger)

	var push feed.Streamer
	if !cfg.Feed.DisablePush && !opts.pollOnly {
		push = feed.NewWSStream(cfg.Feed.StreamURL, cfg.Account.Quote, durs.SilenceTimeout, logger, m)
	}

	backoff := feed.DefaultBackoff()
	if durs.BackoffMin > 0 {
		backoff.Min = durs.BackoffMin
	}
	if durs.BackoffMax > 0 {
		backoff.Max = durs.BackoffMax
	}
	src := feed.NewSource(push, poller, feed.Config{
		PollInterval:      durs.PollInterval,
		Backoff:           backoff,
		MaxSilentFailures: cfg.Feed.MaxSilentFailures,
	}, feed.WithLogger(logger), feed.WithMetrics(m), feed.WithAlert(opts.alert))

	j, err := openJournal(cfg.Journal, logger)
	if err != nil {
		return nil, err
	}
	if opts.onEvent != nil {
		j = append(j, journal.Func(func(e journal.Event) error {
			opts.onEvent(e)
			return nil
		}))
	}

	l := ledger.New(grid.StartingCapital())
	eng := engine.New(l, src, strats,
		engine.WithLogger(logger),
		engine.WithMetrics(m),
		engine.WithJournal(j),
	)

	sel := selection.New(cfg.Selection.MaxAssets)
	sel.OnAdd(func(a market.Symbol) error { return eng.Add(a, nil) })
	sel.OnRemove(func(a market.Symbol) error { return eng.Remove(a, cfg.Selection.CloseOnRemove) })
	for _, a := range cfg.Selection.Assets {
		if _, err := sel.Add(a); err != nil {
			j.Close()
			return nil, err
		}
	}

	logger.Info().
		Str("starting_capital", grid.StartingCapital().String()).
		Int("slots", grid.Slots()).
		Str("slot_capital", grid.SlotCapital().String()).
		Strs("strategies", cfg.StrategyNames()).
		Msg("engine ready")

	return &app{
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		grid:      grid,
		ledger:    l,
		source:    src,
		engine:    eng,
		selection: sel,
		journal:   j,
	}, nil
}

func (a *app) Close() error { return a.journal.Close() }

// openJournal always logs events and adds a file sink when configured.
func openJournal(cfg config.JournalConfig, logger zerolog.Logger) (journal.Multi, error) {
	j := journal.Multi{journal.NewLog(logger)}
	switch cfg.Type {
	case "csv":
		c, err := journal.NewCSV(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("create csv journal: %w", err)
		}
		j = append(j, c)
	case "sqlite":
		s, err := journal.NewSQLite(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("create sqlite journal: %w", err)
		}
		j = append(j, s)
	}
	return j, nil
}
