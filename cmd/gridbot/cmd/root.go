package cmd

import (
	"fmt"

	"github.com/rustyeddy/gridbot/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gridbot",
	Short: "A grid-slot crypto trading engine",
	Long: `Gridbot tracks up to three crypto assets from a fixed universe and trades
them against a fixed starting capital split into equal slots.

Each asset buys one slot when its price falls a threshold below its
reference price and sells the whole position when the price rises a
threshold above the entry price. Prices stream over a websocket and fall
back to REST polling while the stream is down.

All state is kept in memory for a single session.`,
	SilenceUsage: true,
}

var (
	configPath string
	logLevel   string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "f", "", "config file (YAML, JSON or TOML); defaults are used when empty")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level")
}

// loadConfig reads --config, or the defaults when it is not set.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}
