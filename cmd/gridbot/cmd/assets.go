package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/rustyeddy/gridbot/market"
	"github.com/spf13/cobra"
)

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "List the tradable assets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		selected := map[market.Symbol]bool{}
		for _, s := range cfg.Selection.Assets {
			if a, err := market.ParseSymbol(s); err == nil {
				selected[a] = true
			}
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ASSET\tPAIR\tSELECTED")
		for _, a := range market.Universe {
			mark := ""
			if selected[a] {
				mark = "*"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", a, a.Pair(cfg.Account.Quote), mark)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(assetsCmd)
}
