package metrics

import (
	"math/rand/v2"
	"sync/atomic"
)

const shardCount = 32

// paddedInt64 keeps each shard on its own cache line.
type paddedInt64 struct {
	v atomic.Int64
	_ [56]byte
}

type shardedInt64 [shardCount]paddedInt64

func (s *shardedInt64) add(n int64) {
	s[rand.IntN(shardCount)].v.Add(n)
}

func (s *shardedInt64) sum() int64 {
	var total int64
	for i := range s {
		total += s[i].v.Load()
	}
	return total
}

func (s *shardedInt64) zero() {
	for i := range s {
		s[i].v.Store(0)
	}
}

// Counter is a monotonically increasing sum.
type Counter struct {
	name   string
	reg    *Registry
	shards shardedInt64
}

func newCounter(name string, reg *Registry) *Counter {
	return &Counter{name: name, reg: reg}
}

func (c *Counter) Name() string { return c.name }
func (c *Counter) Kind() Kind   { return KindCounter }

// Add increments the counter by n. Non-positive n is ignored.
func (c *Counter) Add(n int64) {
	if n <= 0 || c.reg.frozen.Load() {
		return
	}
	c.shards.add(n)
}

// Inc increments the counter by one.
func (c *Counter) Inc() { c.Add(1) }

// Value returns the current sum.
func (c *Counter) Value() int64 { return c.shards.sum() }

func (c *Counter) reset() { c.shards.zero() }

// Rate tracks the fraction of observations that were non-zero.
type Rate struct {
	name  string
	reg   *Registry
	hits  shardedInt64
	total shardedInt64
}

func newRate(name string, reg *Registry) *Rate {
	return &Rate{name: name, reg: reg}
}

func (r *Rate) Name() string { return r.name }
func (r *Rate) Kind() Kind   { return KindRate }

// Add records one observation.
func (r *Rate) Add(hit bool) {
	if r.reg.frozen.Load() {
		return
	}
	// total before hits so a concurrent reader never sees hits > total
	r.total.add(1)
	if hit {
		r.hits.add(1)
	}
}

// Value returns hits/total, or 0 with no observations.
func (r *Rate) Value() (hits, total int64) {
	hits = r.hits.sum()
	total = r.total.sum()
	if hits > total {
		hits = total
	}
	return hits, total
}

func (r *Rate) reset() {
	r.hits.zero()
	r.total.zero()
}

// Gauge holds the most recent value and its maximum.
type Gauge struct {
	name string
	reg  *Registry
	cur  atomic.Int64
	max  atomic.Int64
}

func (g *Gauge) Name() string { return g.name }
func (g *Gauge) Kind() Kind   { return KindGauge }

// Set stores v and raises the high-water mark if needed.
func (g *Gauge) Set(v int64) {
	if g.reg.frozen.Load() {
		return
	}
	g.cur.Store(v)
	for {
		m := g.max.Load()
		if v <= m || g.max.CompareAndSwap(m, v) {
			return
		}
	}
}

// Value returns the current value and the maximum seen.
func (g *Gauge) Value() (cur, peak int64) {
	return g.cur.Load(), g.max.Load()
}

func (g *Gauge) reset() {
	g.cur.Store(0)
	g.max.Store(0)
}
