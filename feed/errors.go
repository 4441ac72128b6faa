package feed

import (
	"errors"
	"fmt"

	"github.com/rustyeddy/gridbot/market"
)

var (
	ErrSilence      = errors.New("no message within silence timeout")
	ErrMissingPrice = errors.New("price field missing")
	ErrMalformed    = errors.New("malformed message")
	ErrNoFeed       = errors.New("no push or poll feed configured")
)

// FeedError is a recoverable failure of one push session or one poll.
// It never leaves the Source; it is logged, counted, and retried.
type FeedError struct {
	Asset  market.Symbol
	Source market.Source
	Op     string
	Err    error
}

func (e *FeedError) Error() string {
	return fmt.Sprintf("feed %s %s %s: %v", e.Source, e.Asset, e.Op, e.Err)
}

func (e *FeedError) Unwrap() error { return e.Err }

// Alert is raised once a subscription has failed MaxSilentFailures times in
// a row, so persistent outages become user visible.
type Alert struct {
	Asset    market.Symbol
	Failures int
	Err      error
}
