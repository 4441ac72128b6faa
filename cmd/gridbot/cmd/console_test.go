package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rustyeddy/gridbot/engine"
	"github.com/rustyeddy/gridbot/journal"
	"github.com/rustyeddy/gridbot/ledger"
	"github.com/rustyeddy/gridbot/market"
	"github.com/rustyeddy/gridbot/selection"
	"github.com/rustyeddy/gridbot/strategies"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticFeed polls a fixed price per asset.
type staticFeed map[market.Symbol]string

func (f staticFeed) Subscribe(ctx context.Context, asset market.Symbol) <-chan market.Observation {
	ch := make(chan market.Observation)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}

func (f staticFeed) Poll(ctx context.Context, asset market.Symbol) (market.Observation, error) {
	return market.Observation{
		Asset:      asset,
		Price:      decimal.RequireFromString(f[asset]),
		ObservedAt: time.Now(),
		Source:     market.SourcePoll,
	}, nil
}

func newTestConsole(t *testing.T, input string, feed staticFeed) (*console, *bytes.Buffer) {
	t.Helper()
	l := ledger.New(decimal.NewFromInt(100))
	var out bytes.Buffer
	j := journal.Func(func(e journal.Event) error {
		printEvent(&out, e)
		return nil
	})
	thr := strategies.NewThreshold(decimal.NewFromInt(10), decimal.RequireFromString("0.02"), decimal.RequireFromString("0.02"))
	eng := engine.New(l, feed, []strategies.Strategy{thr}, engine.WithJournal(j))

	sel := selection.New(3)
	sel.OnAdd(func(a market.Symbol) error { return eng.Add(a, nil) })
	sel.OnRemove(func(a market.Symbol) error { return eng.Remove(a, false) })
	return newConsole(sel, eng, strings.NewReader(input), &out), &out
}

func TestConsoleSession(t *testing.T) {
	feed := staticFeed{"BTC": "100", "ETH": "50"}
	c, out := newTestConsole(t, "", feed)
	ctx := context.Background()

	require.NoError(t, c.exec(ctx, "select btc"))
	require.NoError(t, c.exec(ctx, "add ETH"))
	assert.Error(t, c.exec(ctx, "select FOO"))
	assert.Error(t, c.exec(ctx, "select"))

	// first cycle seeds references
	require.NoError(t, c.exec(ctx, "trade"))
	assert.Contains(t, out.String(), "no trades")

	feed["BTC"] = "97.9"
	require.NoError(t, c.exec(ctx, "trade"))
	assert.Contains(t, out.String(), "BUY 0.102145 BTC @ 97.9 | balance $90.00")

	out.Reset()
	require.NoError(t, c.exec(ctx, "show"))
	assert.Contains(t, out.String(), "HELD")
	assert.Contains(t, out.String(), "FLAT")

	out.Reset()
	require.NoError(t, c.exec(ctx, "balance"))
	assert.Equal(t, "balance: $90.00\n", out.String())

	err := c.exec(ctx, "remove BTC")
	assert.ErrorIs(t, err, ledger.ErrInvalidState)
	require.NoError(t, c.exec(ctx, "remove eth"))
	assert.Equal(t, []market.Symbol{"BTC"}, c.sel.List())

	assert.Error(t, c.exec(ctx, "launch"))
	assert.ErrorIs(t, c.exec(ctx, "quit"), errQuit)
}

func TestConsoleRunStopsOnQuitAndEOF(t *testing.T) {
	c, out := newTestConsole(t, "help\nassets\nbogus\nquit\nbalance\n", staticFeed{})
	err := c.run(context.Background())
	assert.ErrorIs(t, err, errQuit)
	assert.Contains(t, out.String(), "select <ASSET>")
	assert.Contains(t, out.String(), "BTC ETH BNB")
	assert.Contains(t, out.String(), `error: unknown command "bogus"`)
	assert.NotContains(t, out.String(), "balance: $")

	c, _ = newTestConsole(t, "help\n", staticFeed{})
	assert.NoError(t, c.run(context.Background()))
}
