package ledger

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rustyeddy/gridbot/market"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(x float64) decimal.Decimal { return decimal.NewFromFloat(x) }

func newLedger(t *testing.T, assets ...market.Symbol) *Ledger {
	t.Helper()
	l := New(d(100))
	for _, a := range assets {
		l.Track(a)
	}
	return l
}

func assertConserved(t *testing.T, l *Ledger) {
	t.Helper()
	assert.InDelta(t, 0, l.Drift().InexactFloat64(), 1e-9)
}

func TestOpenAndClose(t *testing.T) {
	l := newLedger(t, "BTC")

	fill, err := l.OpenPosition("BTC", d(97.9), d(10))
	require.NoError(t, err)
	assert.NotEmpty(t, fill.ID)
	assert.InDelta(t, 10/97.9, fill.Quantity.InexactFloat64(), 1e-12)
	assert.True(t, fill.Balance.Equal(d(90)))
	assert.True(t, l.Balance().Equal(d(90)))
	assertConserved(t, l)

	pos, err := l.Snapshot("BTC")
	require.NoError(t, err)
	assert.Equal(t, Held, pos.State())
	require.NotNil(t, pos.EntryPrice)
	assert.True(t, pos.EntryPrice.Equal(d(97.9)))

	fill, err = l.ClosePosition("BTC", d(100))
	require.NoError(t, err)
	assert.InDelta(t, 10.2145, fill.Amount.InexactFloat64(), 1e-4)
	assert.InDelta(t, 100.2145, l.Balance().InexactFloat64(), 1e-4)
	assert.InDelta(t, 0.2145, l.Realized().InexactFloat64(), 1e-4)
	assertConserved(t, l)

	pos, err = l.Snapshot("BTC")
	require.NoError(t, err)
	assert.Equal(t, Flat, pos.State())
	assert.Nil(t, pos.EntryPrice)
	assert.True(t, pos.Quantity.IsZero())
}

func TestAtMostOnePosition(t *testing.T) {
	l := newLedger(t, "ETH")

	_, err := l.ClosePosition("ETH", d(100))
	require.ErrorIs(t, err, ErrInvalidState)
	assert.True(t, l.Balance().Equal(d(100)))

	_, err = l.OpenPosition("ETH", d(100), d(10))
	require.NoError(t, err)

	before, _ := l.Snapshot("ETH")
	_, err = l.OpenPosition("ETH", d(90), d(10))
	require.ErrorIs(t, err, ErrInvalidState)

	after, _ := l.Snapshot("ETH")
	assert.True(t, before.Quantity.Equal(after.Quantity))
	assert.True(t, before.EntryPrice.Equal(*after.EntryPrice))
	assert.True(t, l.Balance().Equal(d(90)))
}

func TestUntrackedAndInvalidInputs(t *testing.T) {
	l := newLedger(t)

	_, err := l.OpenPosition("BTC", d(100), d(10))
	assert.ErrorIs(t, err, ErrNotTracked)
	_, err = l.ClosePosition("BTC", d(100))
	assert.ErrorIs(t, err, ErrNotTracked)
	_, err = l.Snapshot("BTC")
	assert.ErrorIs(t, err, ErrNotTracked)
	_, err = l.Adjust("BTC", d(10))
	assert.ErrorIs(t, err, ErrNotTracked)

	l.Track("BTC")
	_, err = l.OpenPosition("BTC", decimal.Zero, d(10))
	assert.ErrorIs(t, err, ErrInvalidPrice)
	assert.ErrorIs(t, l.SetReference("BTC", d(-1)), ErrInvalidPrice)
}

func TestOpenRejectsZeroQuantity(t *testing.T) {
	l := newLedger(t, "BTC")

	_, err := l.OpenPosition("BTC", d(1e20), d(10))
	require.ErrorIs(t, err, ErrInvalidPrice)

	pos, err := l.Snapshot("BTC")
	require.NoError(t, err)
	assert.Equal(t, Flat, pos.State())
	assert.Nil(t, pos.EntryPrice)
	assert.True(t, pos.Quantity.IsZero())
	assert.True(t, l.Balance().Equal(d(100)))
	assertConserved(t, l)
}

func TestInsufficientBalance(t *testing.T) {
	l := newLedger(t, "BTC")
	_, err := l.Adjust("BTC", d(-95))
	require.NoError(t, err)

	_, err = l.OpenPosition("BTC", d(100), d(10))
	require.ErrorIs(t, err, ErrInsufficient)
	assert.True(t, l.Balance().Equal(d(5)))
	assertConserved(t, l)
}

func TestAdjustKeepsDriftZero(t *testing.T) {
	l := newLedger(t, "BTC")

	_, err := l.Adjust("BTC", d(10))
	require.NoError(t, err)
	_, err = l.Adjust("BTC", d(-20))
	require.NoError(t, err)

	assert.True(t, l.Balance().Equal(d(90)))
	assert.True(t, l.Adjustments().Equal(d(-10)))
	assertConserved(t, l)
}

func TestObserveAndReference(t *testing.T) {
	l := newLedger(t, "SOL")

	prev, err := l.Observe("SOL", d(20))
	require.NoError(t, err)
	assert.Nil(t, prev)

	prev, err = l.Observe("SOL", d(21))
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.True(t, prev.Equal(d(20)))

	require.NoError(t, l.SetReference("SOL", d(20)))
	pos, _ := l.Snapshot("SOL")
	require.NotNil(t, pos.Reference)
	assert.True(t, pos.Reference.Equal(d(20)))
	assert.True(t, pos.LastSeen.Equal(d(21)))

	// snapshots are copies
	*pos.Reference = d(1)
	again, _ := l.Snapshot("SOL")
	assert.True(t, again.Reference.Equal(d(20)))
}

func TestUntrack(t *testing.T) {
	l := newLedger(t, "BTC", "ETH")

	_, err := l.OpenPosition("BTC", d(100), d(10))
	require.NoError(t, err)
	_, err = l.Observe("BTC", d(110))
	require.NoError(t, err)

	_, err = l.Untrack("BTC", false)
	require.ErrorIs(t, err, ErrInvalidState)
	assert.True(t, l.Tracked("BTC"))

	fill, err := l.Untrack("BTC", true)
	require.NoError(t, err)
	require.NotNil(t, fill)
	assert.True(t, fill.Price.Equal(d(110)))
	assert.True(t, l.Balance().Equal(d(101)))
	assert.False(t, l.Tracked("BTC"))

	fill, err = l.Untrack("ETH", false)
	require.NoError(t, err)
	assert.Nil(t, fill)

	_, err = l.Untrack("ETH", false)
	assert.ErrorIs(t, err, ErrNotTracked)
	assert.Empty(t, l.Assets())
}

func TestAssetsSorted(t *testing.T) {
	l := newLedger(t, "SOL", "ADA", "BTC")
	l.Track("ADA")
	assert.Equal(t, []market.Symbol{"ADA", "BTC", "SOL"}, l.Assets())

	ps := l.Positions()
	require.Len(t, ps, 3)
	assert.Equal(t, market.Symbol("ADA"), ps[0].Asset)
}

func TestConcurrentOpensOnlyOneWins(t *testing.T) {
	l := newLedger(t, "BTC")

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.OpenPosition("BTC", d(100), d(10)); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.True(t, l.Balance().Equal(d(90)))
	assertConserved(t, l)
}

func TestConservationOverSequence(t *testing.T) {
	l := newLedger(t, "BTC", "ETH", "SOL")
	prices := []float64{100, 97.3, 101.7, 88.8, 123.45, 99.99}

	for i, p := range prices {
		for _, a := range l.Assets() {
			pos, _ := l.Snapshot(a)
			var err error
			if pos.State() == Flat {
				_, err = l.OpenPosition(a, d(p+float64(i)), d(10))
			} else {
				_, err = l.ClosePosition(a, d(p-float64(i)))
			}
			require.NoError(t, err)
			assertConserved(t, l)
		}
	}
}
