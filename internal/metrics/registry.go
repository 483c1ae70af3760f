package metrics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Kind identifies the type of a registered metric.
type Kind int

const (
	KindCounter Kind = iota
	KindRate
	KindGauge
	KindTrend
)

func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindRate:
		return "rate"
	case KindGauge:
		return "gauge"
	case KindTrend:
		return "trend"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Metric is implemented by every registered metric.
type Metric interface {
	Name() string
	Kind() Kind
	reset()
}

// Registry maps metric names to metrics for the lifetime of one run.
type Registry struct {
	metrics sync.Map // name -> Metric
	frozen  atomic.Bool

	statusOnce sync.Once
	statuses   *StatusTable

	mu    sync.Mutex
	start time.Time
	end   time.Time
}

// NewRegistry returns an empty registry whose run clock starts now.
func NewRegistry() *Registry {
	return &Registry{start: time.Now()}
}

// Counter returns the counter registered under name, creating it if needed.
func (r *Registry) Counter(name string) *Counter {
	m := r.load(name, KindCounter, func() Metric { return newCounter(name, r) })
	return m.(*Counter)
}

// Rate returns the rate registered under name, creating it if needed.
func (r *Registry) Rate(name string) *Rate {
	m := r.load(name, KindRate, func() Metric { return newRate(name, r) })
	return m.(*Rate)
}

// Gauge returns the gauge registered under name, creating it if needed.
func (r *Registry) Gauge(name string) *Gauge {
	m := r.load(name, KindGauge, func() Metric { return &Gauge{name: name, reg: r} })
	return m.(*Gauge)
}

// Trend returns the trend registered under name, creating it if needed.
func (r *Registry) Trend(name string) *Trend {
	m := r.load(name, KindTrend, func() Metric { return newTrend(name, r) })
	return m.(*Trend)
}

// Lookup returns the metric registered under name.
func (r *Registry) Lookup(name string) (Metric, bool) {
	v, ok := r.metrics.Load(name)
	if !ok {
		return nil, false
	}
	return v.(Metric), true
}

// Each calls fn for every registered metric in no particular order.
func (r *Registry) Each(fn func(Metric)) {
	r.metrics.Range(func(_, v any) bool {
		fn(v.(Metric))
		return true
	})
}

func (r *Registry) load(name string, kind Kind, create func() Metric) Metric {
	if v, ok := r.metrics.Load(name); ok {
		return mustKind(v.(Metric), kind)
	}
	v, _ := r.metrics.LoadOrStore(name, create())
	return mustKind(v.(Metric), kind)
}

func mustKind(m Metric, kind Kind) Metric {
	if m.Kind() != kind {
		panic(fmt.Sprintf("metrics: %q already registered as %s, requested %s", m.Name(), m.Kind(), kind))
	}
	return m
}

// Reset zeroes every metric, unfreezes the registry and restarts the run
// clock. Metrics obtained before Reset remain valid.
func (r *Registry) Reset() {
	r.Each(func(m Metric) { m.reset() })
	r.Statuses().reset()
	r.mu.Lock()
	r.start = time.Now()
	r.end = time.Time{}
	r.mu.Unlock()
	r.frozen.Store(false)
}

// Freeze stops the run clock. Writes after Freeze are dropped.
func (r *Registry) Freeze() {
	if r.frozen.Swap(true) {
		return
	}
	r.mu.Lock()
	r.end = time.Now()
	r.mu.Unlock()
}

// Frozen reports whether Freeze has been called since the last Reset.
func (r *Registry) Frozen() bool {
	return r.frozen.Load()
}

// Elapsed returns the run duration so far, or the frozen duration.
func (r *Registry) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.end.IsZero() {
		return r.end.Sub(r.start)
	}
	return time.Since(r.start)
}
