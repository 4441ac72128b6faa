package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rustyeddy/gridbot/api"
	"github.com/rustyeddy/gridbot/feed"
	"github.com/rustyeddy/gridbot/journal"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run [ASSET...]",
	Short: "Run the live engine",
	Long: `Run the trading engine against the live price feed until interrupted.

Assets given as arguments are added to the configured selection. While
running, commands typed on stdin change the selection and inspect the
account (type "help"). When http.addr is set a JSON status API is served
as well.

Example:
  gridbot run -f gridbot.yaml BTC ETH`,
	RunE: runRun,
}

var (
	runNoConsole bool
	runHTTPAddr  string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runNoConsole, "no-console", false, "do not read commands from stdin")
	runCmd.Flags().StringVar(&runHTTPAddr, "http", "", "override http.addr, e.g. :8080")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Selection.Assets = append(cfg.Selection.Assets, args...)
	if runHTTPAddr != "" {
		cfg.HTTP.Addr = runHTTPAddr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	out := cmd.OutOrStdout()
	a, err := newApp(cfg, appOptions{
		alert: func(al feed.Alert) {
			fmt.Fprintf(out, "WARNING: price feed for %s has failed %d times in a row: %v\n", al.Asset, al.Failures, al.Err)
		},
		onEvent: func(e journal.Event) { printEvent(out, e) },
	})
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintf(out, "Starting capital $%s in %d slots of $%s\n",
		a.grid.StartingCapital().StringFixed(2), a.grid.Slots(), a.grid.SlotCapital().StringFixed(2))
	fmt.Fprintf(out, "Tracking: %v\n", a.selection.List())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.engine.Run(ctx) })
	if cfg.HTTP.Addr != "" {
		srv := api.NewServer(a.ledger, a.selection, a.metrics, a.logger)
		g.Go(func() error { return srv.ListenAndServe(ctx, cfg.HTTP.Addr) })
	}
	if !runNoConsole {
		c := newConsole(a.selection, a.engine, cmd.InOrStdin(), out)
		g.Go(func() error { return c.run(ctx) })
	}

	err = g.Wait()
	if errors.Is(err, errQuit) {
		err = nil
	}

	fmt.Fprintln(out)
	printPositions(out, a.engine.Positions())
	fmt.Fprintf(out, "Final balance: $%s (started with $%s)\n",
		a.engine.Balance().StringFixed(2), a.grid.StartingCapital().StringFixed(2))
	return err
}
