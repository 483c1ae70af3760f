// Package feeder supplies per-iteration message payloads from CSV or JSON
// datasets.
package feeder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// Record is one row of named fields.
type Record map[string]string

// Feeder hands out records in a fixed order. Implementations are safe for
// concurrent use.
type Feeder interface {
	Next(ctx context.Context) (Record, error)
	Close() error
	Len() int
}

// ErrExhausted is returned by a non-cycling feeder once every record has
// been handed out.
var ErrExhausted = errors.New("feeder exhausted: no more records available")

// Open loads path as CSV or JSON based on its extension.
func Open(path string) (Feeder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return NewCSVFeeder(path)
	case ".json":
		return NewJSONFeeder(path)
	default:
		return nil, fmt.Errorf("unsupported feeder file %q: want .csv or .json", path)
	}
}

// records is the in-memory dataset shared by the file feeders. With cycle
// set, Next wraps around instead of reporting exhaustion.
type records struct {
	mu    sync.Mutex
	rows  []Record
	index int
	cycle bool
}

func (r *records) Next(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index >= len(r.rows) {
		if !r.cycle || len(r.rows) == 0 {
			return nil, ErrExhausted
		}
		r.index = 0
	}
	rec := r.rows[r.index]
	r.index++
	return rec, nil
}

func (r *records) Len() int { return len(r.rows) }

func (r *records) Close() error { return nil }
