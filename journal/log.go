package journal

import (
	"github.com/rs/zerolog"
)

// Log writes each event as a structured log line.
type Log struct {
	Logger zerolog.Logger
}

func NewLog(l zerolog.Logger) *Log {
	return &Log{Logger: l.With().Str("component", "journal").Logger()}
}

func (j *Log) Record(e Event) error {
	j.Logger.Info().
		Str("id", e.ID).
		Str("kind", string(e.Kind)).
		Str("asset", string(e.Asset)).
		Str("price", e.Price.String()).
		Str("quantity", e.Quantity.String()).
		Str("delta", e.Delta.StringFixed(2)).
		Str("balance", e.Balance.StringFixed(2)).
		Str("reason", e.Reason).
		Msg("trade event")
	return nil
}

func (j *Log) Close() error { return nil }
