package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rustyeddy/gridbot/market"
	"github.com/shopspring/decimal"
)

// SQLite writes events to a sqlite database. The session never reads it
// back; ListEvents exists for inspection after the fact.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) Record(e Event) error {
	_, err := j.db.Exec(`
		INSERT INTO events
		(id, time, kind, asset, price, quantity, delta, balance, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Time.UTC(), string(e.Kind), string(e.Asset),
		e.Price.String(), e.Quantity.String(), e.Delta.String(), e.Balance.String(), e.Reason,
	)
	return err
}

// ListEvents returns events for asset (all assets when empty) in id order.
func (j *SQLite) ListEvents(asset market.Symbol) ([]Event, error) {
	q := `SELECT id, time, kind, asset, price, quantity, delta, balance, reason FROM events`
	var args []any
	if asset != "" {
		q += ` WHERE asset = ?`
		args = append(args, string(asset))
	}
	q += ` ORDER BY id ASC`

	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e                          Event
			kind, sym                  string
			price, qty, delta, balance string
		)
		if err := rows.Scan(&e.ID, &e.Time, &kind, &sym, &price, &qty, &delta, &balance, &e.Reason); err != nil {
			return nil, err
		}
		e.Kind = Kind(kind)
		e.Asset = market.Symbol(sym)
		if e.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("event %s price: %w", e.ID, err)
		}
		if e.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("event %s quantity: %w", e.ID, err)
		}
		if e.Delta, err = decimal.NewFromString(delta); err != nil {
			return nil, fmt.Errorf("event %s delta: %w", e.ID, err)
		}
		if e.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("event %s balance: %w", e.ID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
