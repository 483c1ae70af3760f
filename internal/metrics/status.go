package metrics

import (
	"sort"
	"sync"
)

// StatusBucket is the number of failed opens for one protocol/status pair.
type StatusBucket struct {
	Protocol string `json:"protocol" yaml:"protocol"`
	Code     string `json:"code" yaml:"code"`
	Count    int64  `json:"count" yaml:"count"`
}

type statusKey struct {
	protocol string
	code     string
}

// StatusTable tallies handshake and transport failures by protocol and code.
type StatusTable struct {
	reg    *Registry
	mu     sync.Mutex
	counts map[statusKey]int64
}

// Statuses returns the registry's failure table.
func (r *Registry) Statuses() *StatusTable {
	r.statusOnce.Do(func() {
		r.statuses = &StatusTable{reg: r, counts: make(map[statusKey]int64)}
	})
	return r.statuses
}

// Record adds one failure for protocol/code.
func (t *StatusTable) Record(protocol, code string) {
	if t.reg.frozen.Load() {
		return
	}
	t.mu.Lock()
	t.counts[statusKey{protocol, code}]++
	t.mu.Unlock()
}

// Rows returns the table sorted by descending count, then protocol and code.
func (t *StatusTable) Rows() []StatusBucket {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.counts) == 0 {
		return nil
	}
	rows := make([]StatusBucket, 0, len(t.counts))
	for k, n := range t.counts {
		rows = append(rows, StatusBucket{Protocol: k.protocol, Code: k.code, Count: n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			if rows[i].Protocol == rows[j].Protocol {
				return rows[i].Code < rows[j].Code
			}
			return rows[i].Protocol < rows[j].Protocol
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}

func (t *StatusTable) reset() {
	t.mu.Lock()
	clear(t.counts)
	t.mu.Unlock()
}
