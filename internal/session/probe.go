package session

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ProbePrefix marks outbound latency probes: "ping <unix_ms>".
const ProbePrefix = "ping"

// CorrelationPolicy decides which pending probe an inbound message answers.
type CorrelationPolicy int

const (
	// PrefixFirstMatch pairs any inbound message starting with the probe
	// prefix with the oldest pending probe.
	PrefixFirstMatch CorrelationPolicy = iota
	// ExactTimestamp pairs an inbound message only with the pending probe
	// whose embedded timestamp it echoes.
	ExactTimestamp
)

func (p CorrelationPolicy) String() string {
	if p == ExactTimestamp {
		return "exact"
	}
	return "prefix"
}

// ParsePolicy accepts "prefix" (default) or "exact".
func ParsePolicy(s string) (CorrelationPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "prefix":
		return PrefixFirstMatch, nil
	case "exact":
		return ExactTimestamp, nil
	default:
		return PrefixFirstMatch, fmt.Errorf("unknown correlation policy %q", s)
	}
}

// FormatProbe renders a probe payload for t.
func FormatProbe(t time.Time) string {
	return fmt.Sprintf("%s %d", ProbePrefix, t.UnixMilli())
}

// ParseProbe extracts the millisecond timestamp embedded in a probe payload.
func ParseProbe(msg string) (int64, bool) {
	rest, ok := strings.CutPrefix(msg, ProbePrefix)
	if !ok {
		return 0, false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return 0, false
	}
	ms, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, false
	}
	return ms, true
}

// ProbeRegistry remembers probes that were sent and not yet answered.
type ProbeRegistry struct {
	policy CorrelationPolicy

	mu        sync.Mutex
	pending   []time.Time
	unmatched int64
}

// NewProbeRegistry returns an empty registry using policy.
func NewProbeRegistry(policy CorrelationPolicy) *ProbeRegistry {
	return &ProbeRegistry{policy: policy}
}

// Sent registers a probe written at t.
func (p *ProbeRegistry) Sent(t time.Time) {
	p.mu.Lock()
	p.pending = append(p.pending, t)
	p.mu.Unlock()
}

// Pending returns the number of unanswered probes.
func (p *ProbeRegistry) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Unmatched returns the number of probe-looking messages that matched nothing.
func (p *ProbeRegistry) Unmatched() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.unmatched
}

// Match correlates an inbound message received at `at` with a pending probe
// and returns the round-trip time. Messages that are not probe replies, or
// that match no pending probe, return ok=false.
func (p *ProbeRegistry) Match(msg string, at time.Time) (rtt time.Duration, ok bool) {
	if !strings.HasPrefix(msg, ProbePrefix) {
		return 0, false
	}
	stamp, hasStamp := ParseProbe(msg)

	p.mu.Lock()
	defer p.mu.Unlock()

	idx := -1
	switch p.policy {
	case ExactTimestamp:
		if hasStamp {
			for i, sent := range p.pending {
				if sent.UnixMilli() == stamp {
					idx = i
					break
				}
			}
		}
	default:
		if len(p.pending) > 0 {
			idx = 0
		}
	}
	if idx < 0 {
		p.unmatched++
		return 0, false
	}

	sent := p.pending[idx]
	p.pending = append(p.pending[:idx], p.pending[idx+1:]...)

	// Prefer the precise send instant; fall back to the echoed stamp when
	// the reply answers a different probe than the one dequeued.
	if hasStamp && sent.UnixMilli() != stamp {
		rtt = at.Sub(time.UnixMilli(stamp))
	} else {
		rtt = at.Sub(sent)
	}
	if rtt < 0 {
		rtt = 0
	}
	return rtt, true
}
