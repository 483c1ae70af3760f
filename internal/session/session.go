package session

import (
	"sync"
	"time"
)

// State is a session lifecycle state.
type State int

const (
	Connecting State = iota
	Open
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == Closed || s == Failed }

// EventKind classifies inbound traffic.
type EventKind int

const (
	// EventMessage carries one inbound payload.
	EventMessage EventKind = iota
	// EventError reports a transport failure; the producer stops after it.
	EventError
	// EventEnd reports an orderly end of stream from the server.
	EventEnd
)

// Event is one item on a session's inbound queue.
type Event struct {
	Kind EventKind
	// Name is the SSE event type or the gRPC sender; empty for plain messages.
	Name string
	Data []byte
	At   time.Time
	Err  error
}

// Stats are per-session traffic counters.
type Stats struct {
	MessagesSent     int64
	MessagesReceived int64
	BytesSent        int64
	BytesReceived    int64
	OpenedAt         time.Time
	LastActivity     time.Time
}

// Session is the lifecycle of one connection.
type Session struct {
	Protocol string

	events chan Event
	done   chan struct{}
	probes *ProbeRegistry

	mu    sync.Mutex
	state State
	err   error
	stats Stats
}

// DefaultQueueSize bounds the inbound event queue.
const DefaultQueueSize = 256

// New returns a session in the Connecting state.
func New(protocol string, queueSize int, policy CorrelationPolicy) *Session {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Session{
		Protocol: protocol,
		events:   make(chan Event, queueSize),
		done:     make(chan struct{}),
		probes:   NewProbeRegistry(policy),
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that failed the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// MarkOpen moves Connecting to Open. It returns false from any other state.
func (s *Session) MarkOpen(at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Connecting {
		return false
	}
	s.state = Open
	s.stats.OpenedAt = at
	s.stats.LastActivity = at
	return true
}

// Fail moves a non-terminal session to Failed. It returns true only for the
// call that performed the transition.
func (s *Session) Fail(err error) bool {
	return s.finish(Failed, err)
}

// Close moves a non-terminal session to Closed. Repeated calls, or a call
// after Fail, return false and change nothing.
func (s *Session) Close() bool {
	return s.finish(Closed, nil)
}

func (s *Session) finish(to State, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false
	}
	s.state = to
	s.err = err
	close(s.done)
	return true
}

// Done is closed once the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

// Events returns the inbound queue.
func (s *Session) Events() <-chan Event { return s.events }

// Probes returns the pending-probe registry.
func (s *Session) Probes() *ProbeRegistry { return s.probes }

// Deliver enqueues ev, blocking while the queue is full. It returns false if
// the session ended first.
func (s *Session) Deliver(ev Event) bool {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if ev.Kind == EventMessage {
		s.mu.Lock()
		s.stats.MessagesReceived++
		s.stats.BytesReceived += int64(len(ev.Data))
		s.stats.LastActivity = ev.At
		s.mu.Unlock()
	}
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// RecordSent updates outbound counters.
func (s *Session) RecordSent(n int) {
	s.mu.Lock()
	s.stats.MessagesSent++
	s.stats.BytesSent += int64(n)
	s.stats.LastActivity = time.Now()
	s.mu.Unlock()
}

// Stats returns a copy of the traffic counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
