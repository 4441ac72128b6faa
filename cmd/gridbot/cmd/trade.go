package cmd

import (
	"fmt"
	"time"

	"github.com/rustyeddy/gridbot/journal"
	"github.com/spf13/cobra"
)

var tradeCmd = &cobra.Command{
	Use:   "trade [ASSET...]",
	Short: "Poll prices and trade in fixed cycles",
	Long: `Poll the REST price of every selected asset and evaluate it once per
cycle. The first cycle seeds each asset's reference price, so at least two
cycles are needed for a trade.

Example:
  gridbot trade --cycles 10 --interval 30s BTC SOL`,
	RunE: runTrade,
}

var (
	tradeCycles   int
	tradeInterval time.Duration
)

func init() {
	rootCmd.AddCommand(tradeCmd)

	tradeCmd.Flags().IntVarP(&tradeCycles, "cycles", "n", 1, "number of poll cycles")
	tradeCmd.Flags().DurationVarP(&tradeInterval, "interval", "i", 10*time.Second, "wait between cycles")
}

func runTrade(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.Selection.Assets = args
	}
	if len(cfg.Selection.Assets) == 0 {
		return fmt.Errorf("no assets selected")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	out := cmd.OutOrStdout()
	a, err := newApp(cfg, appOptions{
		pollOnly: true,
		onEvent:  func(e journal.Event) { printEvent(out, e) },
	})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	fmt.Fprintf(out, "Balance before trading: $%s\n", a.engine.Balance().StringFixed(2))
	for i := 0; i < tradeCycles; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(tradeInterval):
			}
		}
		if _, err := a.engine.Cycle(ctx); err != nil {
			return err
		}
	}

	printPositions(out, a.engine.Positions())
	fmt.Fprintf(out, "Balance after trading: $%s\n", a.engine.Balance().StringFixed(2))
	return nil
}
