package metrics

import (
	"math"
	"sort"
	"time"
)

// RateValue is a frozen [Rate].
type RateValue struct {
	Hits  int64 `json:"hits" yaml:"hits"`
	Total int64 `json:"total" yaml:"total"`
}

// Ratio returns Hits/Total, or 0 when nothing was observed.
func (r RateValue) Ratio() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Hits) / float64(r.Total)
}

// GaugeValue is a frozen [Gauge].
type GaugeValue struct {
	Value int64 `json:"value" yaml:"value"`
	Max   int64 `json:"max" yaml:"max"`
}

// TrendSummary holds exact aggregates of a trend, in the trend's unit.
type TrendSummary struct {
	Count int     `json:"count" yaml:"count"`
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
	Avg   float64 `json:"avg" yaml:"avg"`
	Med   float64 `json:"med" yaml:"med"`
	P90   float64 `json:"p90" yaml:"p90"`
	P95   float64 `json:"p95" yaml:"p95"`
	P99   float64 `json:"p99" yaml:"p99"`
}

// Snapshot is an immutable view of the registry.
type Snapshot struct {
	Duration time.Duration
	Counters map[string]int64
	Rates    map[string]RateValue
	Gauges   map[string]GaugeValue
	// Trend samples sorted ascending.
	Trends map[string][]float64
	// Failed opens grouped by protocol and status code.
	Statuses []StatusBucket
}

// Snapshot copies every metric. Call after Freeze for a stable result.
func (r *Registry) Snapshot() Snapshot {
	snap := Snapshot{
		Duration: r.Elapsed(),
		Counters: make(map[string]int64),
		Rates:    make(map[string]RateValue),
		Gauges:   make(map[string]GaugeValue),
		Trends:   make(map[string][]float64),
		Statuses: r.Statuses().Rows(),
	}
	r.Each(func(m Metric) {
		switch v := m.(type) {
		case *Counter:
			snap.Counters[v.name] = v.Value()
		case *Rate:
			hits, total := v.Value()
			snap.Rates[v.name] = RateValue{Hits: hits, Total: total}
		case *Gauge:
			cur, peak := v.Value()
			snap.Gauges[v.name] = GaugeValue{Value: cur, Max: peak}
		case *Trend:
			samples := v.Samples()
			sort.Float64s(samples)
			snap.Trends[v.name] = samples
		}
	})
	return snap
}

// Has reports whether name was registered during the run.
func (s Snapshot) Has(name string) bool {
	if _, ok := s.Counters[name]; ok {
		return true
	}
	if _, ok := s.Rates[name]; ok {
		return true
	}
	if _, ok := s.Gauges[name]; ok {
		return true
	}
	_, ok := s.Trends[name]
	return ok
}

// Count returns the counter sum, the number of rate observations, the gauge
// value or the number of trend samples for name.
func (s Snapshot) Count(name string) (int64, bool) {
	if v, ok := s.Counters[name]; ok {
		return v, true
	}
	if v, ok := s.Rates[name]; ok {
		return v.Total, true
	}
	if v, ok := s.Gauges[name]; ok {
		return v.Value, true
	}
	if v, ok := s.Trends[name]; ok {
		return int64(len(v)), true
	}
	return 0, false
}

// Rate returns the hit ratio of a rate metric. For counters and trends it is
// the number of events per second over the run. ok is false for a rate with
// no samples.
func (s Snapshot) Rate(name string) (float64, bool) {
	if v, ok := s.Rates[name]; ok {
		return v.Ratio(), v.Total > 0
	}
	var n int64
	if v, ok := s.Counters[name]; ok {
		n = v
	} else if v, ok := s.Trends[name]; ok {
		n = int64(len(v))
	} else {
		return 0, false
	}
	if s.Duration <= 0 {
		return 0, true
	}
	return float64(n) / s.Duration.Seconds(), true
}

// Percentile returns the p-th percentile of a trend. ok is false when the
// trend is unknown or has no samples.
func (s Snapshot) Percentile(name string, p float64) (float64, bool) {
	samples, ok := s.Trends[name]
	if !ok || len(samples) == 0 {
		return 0, false
	}
	return Percentile(samples, p), true
}

// Summary returns exact aggregates for a trend.
func (s Snapshot) Summary(name string) (TrendSummary, bool) {
	samples, ok := s.Trends[name]
	if !ok || len(samples) == 0 {
		return TrendSummary{}, false
	}
	return Summarize(samples), true
}

// Percentile computes the p-th percentile of ascending-sorted samples by
// linear interpolation between closest ranks. p is clamped to [0,100].
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	p = math.Max(0, math.Min(100, p))
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Summarize computes a TrendSummary over ascending-sorted samples.
func Summarize(sorted []float64) TrendSummary {
	if len(sorted) == 0 {
		return TrendSummary{}
	}
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return TrendSummary{
		Count: len(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Avg:   sum / float64(len(sorted)),
		Med:   Percentile(sorted, 50),
		P90:   Percentile(sorted, 90),
		P95:   Percentile(sorted, 95),
		P99:   Percentile(sorted, 99),
	}
}

// CounterNames returns counter names sorted alphabetically.
func (s Snapshot) CounterNames() []string { return sortedKeys(s.Counters) }

// RateNames returns rate names sorted alphabetically.
func (s Snapshot) RateNames() []string { return sortedKeys(s.Rates) }

// GaugeNames returns gauge names sorted alphabetically.
func (s Snapshot) GaugeNames() []string { return sortedKeys(s.Gauges) }

// TrendNames returns trend names sorted alphabetically.
func (s Snapshot) TrendNames() []string { return sortedKeys(s.Trends) }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
