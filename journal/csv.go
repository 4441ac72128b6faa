package journal

import (
	"encoding/csv"
	"os"
	"sync"
	"time"
)

var csvHeader = []string{"id", "time", "kind", "asset", "price", "quantity", "delta", "balance", "reason"}

// CSV appends one row per event.
type CSV struct {
	mu sync.Mutex
	w  *csv.Writer
	f  *os.File
}

func NewCSV(path string) (*CSV, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, err
	}

	return &CSV{w: w, f: f}, nil
}

func (j *CSV) Record(e Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	err := j.w.Write([]string{
		e.ID,
		e.Time.UTC().Format(time.RFC3339Nano),
		string(e.Kind),
		string(e.Asset),
		e.Price.String(),
		e.Quantity.String(),
		e.Delta.String(),
		e.Balance.StringFixed(8),
		e.Reason,
	})
	if err != nil {
		return err
	}
	j.w.Flush()
	return j.w.Error()
}

func (j *CSV) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.w.Flush()
	if err := j.w.Error(); err != nil {
		j.f.Close()
		return err
	}
	return j.f.Close()
}
