package output

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pulsebench/pulsebench/internal/metrics"
	"github.com/pulsebench/pulsebench/internal/runner"
)

// Sample is one progress tick, kept for the HTML report's timeline.
type Sample struct {
	ElapsedSec float64 `json:"t"`
	VUs        int64   `json:"vus"`
	Iterations int64   `json:"iterations"`
	Failed     int64   `json:"failed"`
	IterPerSec float64 `json:"ips"`
}

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	registry *metrics.Registry
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
	start    time.Time

	mu      sync.Mutex
	history []Sample
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(registry *metrics.Registry, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		registry: registry,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
		start:    time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
	}
}

// History returns the samples taken so far.
func (p *ProgressReporter) History() []Sample {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Sample, len(p.history))
	copy(out, p.history)
	return out
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			s := p.sample()
			fmt.Fprintf(p.writer, "\rVUs: %d | Iterations: %d | Failed: %d | Iter/s: %.1f | Elapsed: %s",
				s.VUs, s.Iterations, s.Failed, s.IterPerSec, time.Since(p.start).Round(time.Second))
		case <-p.done:
			return
		}
	}
}

func (p *ProgressReporter) sample() Sample {
	elapsed := time.Since(p.start).Seconds()
	vus, _ := p.registry.Gauge(runner.MetricVUs).Value()
	s := Sample{
		ElapsedSec: elapsed,
		VUs:        vus,
		Iterations: p.registry.Counter(runner.MetricIterations).Value(),
		Failed:     p.registry.Counter(runner.MetricFailedIterations).Value(),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.history); n > 0 {
		prev := p.history[n-1]
		if dt := s.ElapsedSec - prev.ElapsedSec; dt > 0 {
			s.IterPerSec = float64(s.Iterations-prev.Iterations) / dt
		}
	} else if elapsed > 0 {
		s.IterPerSec = float64(s.Iterations) / elapsed
	}
	p.history = append(p.history, s)
	return s
}
