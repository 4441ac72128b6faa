package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rustyeddy/gridbot/engine"
	"github.com/rustyeddy/gridbot/journal"
	"github.com/rustyeddy/gridbot/ledger"
	"github.com/rustyeddy/gridbot/market"
	"github.com/rustyeddy/gridbot/selection"
	"github.com/shopspring/decimal"
)

var errQuit = errors.New("quit")

const consoleHelp = `commands:
  select <ASSET>   start tracking an asset
  remove <ASSET>   stop tracking an asset
  show             list tracked positions
  balance          show the account balance
  trade            poll every tracked asset once and trade on the result
  assets           list the tradable universe
  help             show this help
  quit             stop the engine`

// console reads commands line by line and drives the session.
type console struct {
	sel *selection.Manager
	eng *engine.Engine
	in  io.Reader
	out io.Writer
}

func newConsole(sel *selection.Manager, eng *engine.Engine, in io.Reader, out io.Writer) *console {
	return &console{sel: sel, eng: eng, in: in, out: out}
}

// run processes commands until ctx is done, input ends, or quit. Quit is
// reported as errQuit so the caller can stop the session.
func (c *console) run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(c.out, `type "help" for commands`)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := c.exec(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return err
				}
				fmt.Fprintf(c.out, "error: %v\n", err)
			}
		}
	}
}

func (c *console) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "select", "add":
		if len(args) != 1 {
			return fmt.Errorf("usage: select <ASSET>")
		}
		a, err := c.sel.Add(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "tracking %s (%d/%d)\n", a, len(c.sel.List()), c.sel.Max())

	case "remove", "rm":
		if len(args) != 1 {
			return fmt.Errorf("usage: remove <ASSET>")
		}
		a, err := c.sel.Remove(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "stopped tracking %s\n", a)

	case "show", "positions":
		printPositions(c.out, c.eng.Positions())

	case "balance":
		fmt.Fprintf(c.out, "balance: $%s\n", c.eng.Balance().StringFixed(2))

	case "trade":
		evs, err := c.eng.Cycle(ctx)
		if err != nil {
			return err
		}
		if len(evs) == 0 {
			fmt.Fprintln(c.out, "no trades")
		}
		fmt.Fprintf(c.out, "balance: $%s\n", c.eng.Balance().StringFixed(2))

	case "assets":
		fmt.Fprintln(c.out, strings.Join(market.UniverseNames(), " "))

	case "help", "?":
		fmt.Fprintln(c.out, consoleHelp)

	case "quit", "exit":
		return errQuit

	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return nil
}

func printPositions(w io.Writer, ps []ledger.Position) {
	if len(ps) == 0 {
		fmt.Fprintln(w, "no assets tracked")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ASSET\tSTATE\tREFERENCE\tENTRY\tQUANTITY\tLAST")
	for _, p := range ps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Asset, p.State(), decOrDash(p.Reference), decOrDash(p.EntryPrice), p.Quantity.StringFixed(6), decOrDash(p.LastSeen))
	}
	tw.Flush()
}

func printEvent(w io.Writer, e journal.Event) {
	switch e.Kind {
	case journal.KindAdjust:
		fmt.Fprintf(w, "ADJUST %s %s | balance $%s\n", e.Asset, e.Delta.StringFixed(2), e.Balance.StringFixed(2))
	default:
		fmt.Fprintf(w, "%s %s %s @ %s | balance $%s\n",
			strings.ToUpper(string(e.Kind)), e.Quantity.StringFixed(6), e.Asset, e.Price.String(), e.Balance.StringFixed(2))
	}
}

func decOrDash(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.String()
}
