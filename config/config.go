package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/rustyeddy/gridbot/market"
	"github.com/rustyeddy/gridbot/strategies"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents the complete engine configuration
type Config struct {
	Account   AccountConfig   `json:"account" yaml:"account" toml:"account"`
	Grid      GridConfig      `json:"grid" yaml:"grid" toml:"grid"`
	Strategy  StrategyConfig  `json:"strategy" yaml:"strategy" toml:"strategy"`
	Selection SelectionConfig `json:"selection" yaml:"selection" toml:"selection"`
	Feed      FeedConfig      `json:"feed" yaml:"feed" toml:"feed"`
	Journal   JournalConfig   `json:"journal" yaml:"journal" toml:"journal"`
	Log       LogConfig       `json:"log" yaml:"log" toml:"log"`
	HTTP      HTTPConfig      `json:"http" yaml:"http" toml:"http"`
}

// AccountConfig contains account initialization parameters
type AccountConfig struct {
	StartingCapital float64 `json:"starting_capital" yaml:"starting_capital" toml:"starting_capital"`
	Quote           string  `json:"quote" yaml:"quote" toml:"quote"`
}

type GridConfig struct {
	Slots int `json:"slots" yaml:"slots" toml:"slots"`
}

// StrategyConfig contains strategy parameters. Thresholds are fractions,
// 0.02 meaning 2%.
type StrategyConfig struct {
	BuyThreshold    float64 `json:"buy_threshold" yaml:"buy_threshold" toml:"buy_threshold"`
	SellThreshold   float64 `json:"sell_threshold" yaml:"sell_threshold" toml:"sell_threshold"`
	MomentumEnabled bool    `json:"momentum_enabled" yaml:"momentum_enabled" toml:"momentum_enabled"`
	MomentumStep    float64 `json:"momentum_step" yaml:"momentum_step" toml:"momentum_step"`
}

type SelectionConfig struct {
	MaxAssets int      `json:"max_assets" yaml:"max_assets" toml:"max_assets"`
	Assets    []string `json:"assets" yaml:"assets" toml:"assets"`
	// CloseOnRemove sells a HELD asset when it is deselected. With it off,
	// removing a HELD asset is refused.
	CloseOnRemove bool `json:"close_on_remove" yaml:"close_on_remove" toml:"close_on_remove"`
}

// FeedConfig durations are Go duration strings, e.g. "30s".
type FeedConfig struct {
	StreamURL         string  `json:"stream_url" yaml:"stream_url" toml:"stream_url"`
	RESTURL           string  `json:"rest_url" yaml:"rest_url" toml:"rest_url"`
	DisablePush       bool    `json:"disable_push" yaml:"disable_push" toml:"disable_push"`
	SilenceTimeout    string  `json:"silence_timeout" yaml:"silence_timeout" toml:"silence_timeout"`
	PollInterval      string  `json:"poll_interval" yaml:"poll_interval" toml:"poll_interval"`
	BackoffMin        string  `json:"backoff_min" yaml:"backoff_min" toml:"backoff_min"`
	BackoffMax        string  `json:"backoff_max" yaml:"backoff_max" toml:"backoff_max"`
	PollRPS           float64 `json:"poll_rps" yaml:"poll_rps" toml:"poll_rps"`
	MaxSilentFailures int     `json:"max_silent_failures" yaml:"max_silent_failures" toml:"max_silent_failures"`
}

// FeedDurations holds the parsed FeedConfig durations.
type FeedDurations struct {
	SilenceTimeout time.Duration
	PollInterval   time.Duration
	BackoffMin     time.Duration
	BackoffMax     time.Duration
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type string `json:"type" yaml:"type" toml:"type"` // "none", "csv" or "sqlite"
	Path string `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level"`
	Format string `json:"format" yaml:"format" toml:"format"` // "console" or "json"
}

type HTTPConfig struct {
	// Addr is the status API listen address; empty disables it.
	Addr string `json:"addr" yaml:"addr" toml:"addr"`
}

// LoadFromFile loads configuration from a YAML, JSON or TOML file chosen by
// extension. Fields missing from the file keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	switch formatOf(path) {
	case "json":
		err = json.Unmarshal(data, cfg)
	case "toml":
		err = toml.Unmarshal(data, cfg)
	default:
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile saves configuration to a file (YAML, JSON or TOML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch formatOf(path) {
	case "json":
		data, err = json.MarshalIndent(c, "", "  ")
	case "toml":
		data, err = toml.Marshal(c)
	default:
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".toml":
		return "toml"
	default:
		return "yaml"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.StartingCapital <= 0 {
		return fmt.Errorf("account.starting_capital must be positive")
	}
	if c.Account.Quote == "" {
		return fmt.Errorf("account.quote is required")
	}
	if c.Grid.Slots <= 0 {
		return fmt.Errorf("grid.slots must be positive")
	}
	if c.Strategy.BuyThreshold <= 0 || c.Strategy.BuyThreshold >= 1 {
		return fmt.Errorf("strategy.buy_threshold must be between 0 and 1")
	}
	if c.Strategy.SellThreshold <= 0 {
		return fmt.Errorf("strategy.sell_threshold must be positive")
	}
	if c.Strategy.MomentumEnabled && c.Strategy.MomentumStep <= 0 {
		return fmt.Errorf("strategy.momentum_step must be positive when momentum is enabled")
	}
	if c.Selection.MaxAssets <= 0 || c.Selection.MaxAssets > len(market.Universe) {
		return fmt.Errorf("selection.max_assets must be between 1 and %d", len(market.Universe))
	}
	if len(c.Selection.Assets) > c.Selection.MaxAssets {
		return fmt.Errorf("selection.assets lists %d assets, max is %d", len(c.Selection.Assets), c.Selection.MaxAssets)
	}
	for _, a := range c.Selection.Assets {
		if _, err := market.ParseSymbol(a); err != nil {
			return fmt.Errorf("selection.assets: %w", err)
		}
	}
	durs, err := c.Feed.Durations()
	if err != nil {
		return err
	}
	if !c.Feed.DisablePush && durs.SilenceTimeout <= 0 {
		return fmt.Errorf("feed.silence_timeout must be positive when push is enabled")
	}
	if c.Feed.PollRPS < 0 {
		return fmt.Errorf("feed.poll_rps must not be negative")
	}
	switch c.Journal.Type {
	case "", "none":
	case "csv", "sqlite":
		if c.Journal.Path == "" {
			return fmt.Errorf("journal.path required for %s journal", c.Journal.Type)
		}
	default:
		return fmt.Errorf("journal.type must be 'none', 'csv' or 'sqlite'")
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("log.format must be 'console' or 'json'")
	}
	return nil
}

// Durations parses the feed duration strings. Empty values are zero.
func (f FeedConfig) Durations() (FeedDurations, error) {
	var d FeedDurations
	fields := []struct {
		name string
		val  string
		dst  *time.Duration
	}{
		{"feed.silence_timeout", f.SilenceTimeout, &d.SilenceTimeout},
		{"feed.poll_interval", f.PollInterval, &d.PollInterval},
		{"feed.backoff_min", f.BackoffMin, &d.BackoffMin},
		{"feed.backoff_max", f.BackoffMax, &d.BackoffMax},
	}
	for _, fd := range fields {
		if fd.val == "" {
			continue
		}
		v, err := time.ParseDuration(fd.val)
		if err != nil {
			return d, fmt.Errorf("%s: %w", fd.name, err)
		}
		if v < 0 {
			return d, fmt.Errorf("%s must not be negative", fd.name)
		}
		*fd.dst = v
	}
	if d.BackoffMax > 0 && d.BackoffMax < d.BackoffMin {
		return d, fmt.Errorf("feed.backoff_max must be at least feed.backoff_min")
	}
	return d, nil
}

// StrategyParams converts the strategy section for strategies.ByName.
func (c *Config) StrategyParams() strategies.Params {
	return strategies.Params{
		SlotCapital:   decimal.NewFromFloat(c.Account.StartingCapital).Div(decimal.NewFromInt(int64(c.Grid.Slots))),
		BuyThreshold:  decimal.NewFromFloat(c.Strategy.BuyThreshold),
		SellThreshold: decimal.NewFromFloat(c.Strategy.SellThreshold),
		MomentumStep:  decimal.NewFromFloat(c.Strategy.MomentumStep),
	}
}

// StrategyNames lists the strategies to run, in evaluation order.
func (c *Config) StrategyNames() []string {
	names := []string{"threshold"}
	if c.Strategy.MomentumEnabled {
		names = append(names, "momentum")
	}
	return names
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			StartingCapital: 100,
			Quote:           market.DefaultQuote,
		},
		Grid: GridConfig{
			Slots: 10,
		},
		Strategy: StrategyConfig{
			BuyThreshold:  0.02,
			SellThreshold: 0.02,
			MomentumStep:  10,
		},
		Selection: SelectionConfig{
			MaxAssets:     3,
			CloseOnRemove: true,
		},
		Feed: FeedConfig{
			StreamURL:         "wss://stream.binance.com:9443/ws",
			RESTURL:           "https://api1.binance.com",
			SilenceTimeout:    "30s",
			PollInterval:      "5s",
			BackoffMin:        "1s",
			BackoffMax:        "30s",
			PollRPS:           5,
			MaxSilentFailures: 10,
		},
		Journal: JournalConfig{
			Type: "none",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
