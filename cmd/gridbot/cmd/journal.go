package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/rustyeddy/gridbot/journal"
	"github.com/rustyeddy/gridbot/market"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query a SQLite trade journal",
	Long: `Display events written by a run with journal.type set to sqlite.

Examples:
  gridbot journal list
  gridbot journal list --asset BTC --db ./gridbot.sqlite
  gridbot journal list --org >> trading.org`,
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded events",
	Args:  cobra.NoArgs,
	RunE:  runJournalList,
}

var (
	journalDBPath string
	journalAsset  string
	journalOrg    bool
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalListCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./gridbot.sqlite", "path to SQLite journal DB")
	journalListCmd.Flags().StringVarP(&journalAsset, "asset", "a", "", "only events for this asset")
	journalListCmd.Flags().BoolVar(&journalOrg, "org", false, "print Org-mode entries instead of a table")
}

func runJournalList(cmd *cobra.Command, args []string) error {
	var asset market.Symbol
	if journalAsset != "" {
		var err error
		if asset, err = market.ParseSymbol(journalAsset); err != nil {
			return err
		}
	}

	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	events, err := j.ListEvents(asset)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	if len(events) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no events")
		return nil
	}
	if journalOrg {
		fmt.Fprint(cmd.OutOrStdout(), journal.FormatEventsOrg(events))
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tKIND\tASSET\tPRICE\tQUANTITY\tDELTA\tBALANCE")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Time.Format("2006-01-02 15:04:05"), e.Kind, e.Asset, e.Price, e.Quantity.StringFixed(6),
			e.Delta.StringFixed(2), e.Balance.StringFixed(2))
	}
	return tw.Flush()
}
