package metrics_test

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/pulsebench/pulsebench/internal/metrics"
)

func TestCounterConcurrentAddsSumExactly(t *testing.T) {
	reg := metrics.NewRegistry()
	c := reg.Counter("iterations")

	const workers = 64
	const perWorker = 1000
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				c.Add(n)
			}
		}(int64(w%3 + 1))
	}
	wg.Wait()

	var want int64
	for w := 0; w < workers; w++ {
		want += int64(w%3+1) * perWorker
	}
	if got := c.Value(); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestCounterIgnoresNegative(t *testing.T) {
	reg := metrics.NewRegistry()
	c := reg.Counter("failed_requests")
	c.Add(5)
	c.Add(-3)
	c.Add(0)
	if got := c.Value(); got != 5 {
		t.Fatalf("counter decreased: got %d", got)
	}
}

func TestPercentileInterpolation(t *testing.T) {
	samples := []float64{100, 200, 300, 400}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 100},
		{50, 250},
		{100, 400},
		{25, 175},
		{150, 400},
	}
	for _, tt := range tests {
		if got := metrics.Percentile(samples, tt.p); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("p%.0f: expected %v, got %v", tt.p, tt.want, got)
		}
	}
}

func TestSnapshotPercentileIsDeterministic(t *testing.T) {
	reg := metrics.NewRegistry()
	tr := reg.Trend("http_req_duration")
	for _, v := range []float64{400, 100, 300, 200} {
		tr.Add(v)
	}
	reg.Freeze()

	for i := 0; i < 3; i++ {
		snap := reg.Snapshot()
		p50, ok := snap.Percentile("http_req_duration", 50)
		if !ok || p50 != 250 {
			t.Fatalf("expected p50 250, got %v (ok=%v)", p50, ok)
		}
		p100, _ := snap.Percentile("http_req_duration", 100)
		if p100 != 400 {
			t.Fatalf("expected p100 400, got %v", p100)
		}
	}
}

func TestSnapshotUnknownMetric(t *testing.T) {
	snap := metrics.NewRegistry().Snapshot()
	if _, ok := snap.Count("nope"); ok {
		t.Error("expected unknown counter")
	}
	if _, ok := snap.Percentile("nope", 95); ok {
		t.Error("expected unknown trend")
	}
	if _, ok := snap.Rate("nope"); ok {
		t.Error("expected unknown rate")
	}
	if snap.Has("nope") {
		t.Error("Has should be false")
	}
}

func TestEmptyTrendHasNoPercentile(t *testing.T) {
	reg := metrics.NewRegistry()
	reg.Trend("time_to_first_message")
	snap := reg.Snapshot()
	if !snap.Has("time_to_first_message") {
		t.Fatal("declared trend should be present")
	}
	if _, ok := snap.Percentile("time_to_first_message", 95); ok {
		t.Fatal("empty trend should not report a percentile")
	}
}

func TestTrendDropsInvalidSamples(t *testing.T) {
	reg := metrics.NewRegistry()
	tr := reg.Trend("rtt")
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), -5, 10, 20} {
		tr.Add(v)
	}
	snap := reg.Snapshot()
	if n, _ := snap.Count("rtt"); n != 2 {
		t.Fatalf("expected 2 samples, got %d", n)
	}
	if max, _ := snap.Percentile("rtt", 100); max != 20 {
		t.Fatalf("expected max 20, got %v", max)
	}
	if live := tr.Live(); live.Count != 2 || math.IsInf(live.Mean, 0) {
		t.Fatalf("unexpected live stats %+v", live)
	}
}

func TestRateRatio(t *testing.T) {
	reg := metrics.NewRegistry()
	r := reg.Rate("http_req_failed")
	for i := 0; i < 1000; i++ {
		r.Add(i < 2)
	}
	got, ok := reg.Snapshot().Rate("http_req_failed")
	if !ok {
		t.Fatal("rate missing")
	}
	if math.Abs(got-0.002) > 1e-12 {
		t.Fatalf("expected 0.002, got %v", got)
	}
}

func TestEmptyRateIsNotObserved(t *testing.T) {
	reg := metrics.NewRegistry()
	reg.Rate("http_req_failed")
	if _, ok := reg.Snapshot().Rate("http_req_failed"); ok {
		t.Fatal("a rate without samples must not report a ratio")
	}
}

func TestCounterRateIsPerSecond(t *testing.T) {
	snap := metrics.Snapshot{
		Duration: 2 * time.Second,
		Counters: map[string]int64{"messages_received": 10},
	}
	got, ok := snap.Rate("messages_received")
	if !ok || got != 5 {
		t.Fatalf("expected 5/s, got %v (ok=%v)", got, ok)
	}
}

func TestFreezeDropsLateWrites(t *testing.T) {
	reg := metrics.NewRegistry()
	c := reg.Counter("failed_connections")
	tr := reg.Trend("websocket_message_rtt")
	c.Inc()
	tr.Add(12)
	reg.Freeze()
	c.Inc()
	tr.Add(99)

	snap := reg.Snapshot()
	if n, _ := snap.Count("failed_connections"); n != 1 {
		t.Errorf("expected 1, got %d", n)
	}
	if n, _ := snap.Count("websocket_message_rtt"); n != 1 {
		t.Errorf("expected 1 sample, got %d", n)
	}
}

func TestResetKeepsHandles(t *testing.T) {
	reg := metrics.NewRegistry()
	c := reg.Counter("iterations")
	c.Add(7)
	reg.Freeze()
	reg.Reset()
	if reg.Frozen() {
		t.Fatal("reset should unfreeze")
	}
	if c.Value() != 0 {
		t.Fatalf("expected zero after reset, got %d", c.Value())
	}
	c.Inc()
	if reg.Counter("iterations").Value() != 1 {
		t.Fatal("handle obtained before reset should still be live")
	}
}

func TestKindMismatchPanics(t *testing.T) {
	reg := metrics.NewRegistry()
	reg.Counter("x")
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	reg.Trend("x")
}

func TestGaugeTracksMax(t *testing.T) {
	reg := metrics.NewRegistry()
	g := reg.Gauge("vus")
	g.Set(3)
	g.Set(10)
	g.Set(4)
	v := reg.Snapshot().Gauges["vus"]
	if v.Value != 4 || v.Max != 10 {
		t.Fatalf("unexpected gauge %+v", v)
	}
}

func TestTrendLiveApproximatesExact(t *testing.T) {
	reg := metrics.NewRegistry()
	tr := reg.Trend("grpc_message_rtt")
	for i := 1; i <= 100; i++ {
		tr.AddDuration(time.Duration(i) * time.Millisecond)
	}
	live := tr.Live()
	if live.Count != 100 {
		t.Fatalf("expected 100 samples, got %d", live.Count)
	}
	if live.P50 < 49 || live.P50 > 51 {
		t.Errorf("expected p50 ~50ms, got %v", live.P50)
	}
	if live.Max < 99 || live.Max > 101 {
		t.Errorf("expected max ~100ms, got %v", live.Max)
	}
}

func TestSummarize(t *testing.T) {
	s := metrics.Summarize([]float64{10, 20, 30, 40, 50})
	if s.Count != 5 || s.Min != 10 || s.Max != 50 || s.Avg != 30 || s.Med != 30 {
		t.Fatalf("unexpected summary %+v", s)
	}
}
