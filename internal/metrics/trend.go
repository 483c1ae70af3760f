package metrics

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Live histograms track 1µs..60s with 3 significant figures.
const (
	histLowest  = 1
	histHighest = 60_000_000
	histSigFigs = 3
)

type trendShard struct {
	mu      sync.Mutex
	samples []float64
	hist    *hdrhistogram.Histogram
}

// Trend collects numeric samples. Durations are stored in milliseconds.
type Trend struct {
	name   string
	reg    *Registry
	shards [shardCount]*trendShard
}

func newTrend(name string, reg *Registry) *Trend {
	t := &Trend{name: name, reg: reg}
	for i := range t.shards {
		t.shards[i] = &trendShard{hist: hdrhistogram.New(histLowest, histHighest, histSigFigs)}
	}
	return t
}

func (t *Trend) Name() string { return t.name }
func (t *Trend) Kind() Kind   { return KindTrend }

// Add appends one sample. NaN, infinite and negative samples are dropped.
func (t *Trend) Add(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || t.reg.frozen.Load() {
		return
	}
	us := int64(v * 1000)
	if us < histLowest {
		us = histLowest
	}
	if us > histHighest {
		us = histHighest
	}

	s := t.shards[rand.IntN(shardCount)]
	s.mu.Lock()
	s.samples = append(s.samples, v)
	_ = s.hist.RecordValue(us)
	s.mu.Unlock()
}

// AddDuration appends d expressed in milliseconds.
func (t *Trend) AddDuration(d time.Duration) {
	t.Add(float64(d) / float64(time.Millisecond))
}

// Samples returns a copy of every recorded sample, unsorted.
func (t *Trend) Samples() []float64 {
	var out []float64
	for _, s := range t.shards {
		s.mu.Lock()
		out = append(out, s.samples...)
		s.mu.Unlock()
	}
	return out
}

// LiveStats is an approximate summary read while the run is in progress.
type LiveStats struct {
	Count int64
	Mean  float64
	P50   float64
	P90   float64
	P95   float64
	P99   float64
	P999  float64
	Min   float64
	Max   float64
}

// Live merges the shard histograms into an approximate summary in milliseconds.
func (t *Trend) Live() LiveStats {
	merged := hdrhistogram.New(histLowest, histHighest, histSigFigs)
	for _, s := range t.shards {
		s.mu.Lock()
		merged.Merge(s.hist)
		s.mu.Unlock()
	}
	if merged.TotalCount() == 0 {
		return LiveStats{}
	}
	ms := func(us int64) float64 { return float64(us) / 1000 }
	return LiveStats{
		Count: merged.TotalCount(),
		Mean:  merged.Mean() / 1000,
		P50:   ms(merged.ValueAtQuantile(50)),
		P90:   ms(merged.ValueAtQuantile(90)),
		P95:   ms(merged.ValueAtQuantile(95)),
		P99:   ms(merged.ValueAtQuantile(99)),
		P999:  ms(merged.ValueAtQuantile(99.9)),
		Min:   ms(merged.Min()),
		Max:   ms(merged.Max()),
	}
}

func (t *Trend) reset() {
	for _, s := range t.shards {
		s.mu.Lock()
		s.samples = nil
		s.hist.Reset()
		s.mu.Unlock()
	}
}
