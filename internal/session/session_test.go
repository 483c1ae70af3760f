package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestSessionTransitions(t *testing.T) {
	s := New("websocket", 4, PrefixFirstMatch)
	if s.State() != Connecting {
		t.Fatalf("expected connecting, got %s", s.State())
	}
	if !s.MarkOpen(time.Now()) {
		t.Fatal("MarkOpen should succeed from connecting")
	}
	if s.MarkOpen(time.Now()) {
		t.Fatal("MarkOpen should fail from open")
	}
	if !s.Close() {
		t.Fatal("first Close should transition")
	}
	if s.Close() {
		t.Fatal("second Close must be a no-op")
	}
	if s.Fail(errors.New("late")) {
		t.Fatal("Fail after Close must be a no-op")
	}
	if s.State() != Closed || s.Err() != nil {
		t.Fatalf("unexpected terminal state %s err=%v", s.State(), s.Err())
	}
	select {
	case <-s.Done():
	default:
		t.Fatal("Done should be closed")
	}
}

func TestSessionFailKeepsError(t *testing.T) {
	s := New("sse", 0, PrefixFirstMatch)
	s.MarkOpen(time.Now())
	boom := &TransportError{Protocol: "sse", Err: errors.New("reset")}
	if !s.Fail(boom) {
		t.Fatal("Fail should transition")
	}
	if s.Close() {
		t.Fatal("Close after Fail must be a no-op")
	}
	if s.State() != Failed || !errors.Is(s.Err(), boom.Err) {
		t.Fatalf("unexpected state %s err=%v", s.State(), s.Err())
	}
}

func TestDeliverAfterCloseIsDropped(t *testing.T) {
	s := New("websocket", 1, PrefixFirstMatch)
	s.MarkOpen(time.Now())
	if !s.Deliver(Event{Kind: EventMessage, Data: []byte("a")}) {
		t.Fatal("expected delivery")
	}

	done := make(chan bool)
	go func() { done <- s.Deliver(Event{Kind: EventMessage, Data: []byte("b")}) }()
	time.Sleep(10 * time.Millisecond)
	s.Close()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("blocked delivery should fail once the session closes")
		}
	case <-time.After(time.Second):
		t.Fatal("Deliver did not unblock on Close")
	}
	if got := s.Stats().MessagesReceived; got != 2 {
		t.Fatalf("expected 2 received, got %d", got)
	}
}

func TestProbeRoundTripWithinWallClock(t *testing.T) {
	p := NewProbeRegistry(PrefixFirstMatch)

	before := time.Now()
	sent := time.Now()
	msg := FormatProbe(sent)
	p.Sent(sent)
	time.Sleep(5 * time.Millisecond)
	at := time.Now()
	rtt, ok := p.Match(msg, at)
	after := time.Now()

	if !ok {
		t.Fatal("echoed probe should match")
	}
	if rtt < 0 || rtt > after.Sub(before) {
		t.Fatalf("rtt %s outside [0, %s]", rtt, after.Sub(before))
	}
	if p.Pending() != 0 {
		t.Fatalf("expected no pending probes, got %d", p.Pending())
	}
}

func TestProbeUnmatchedWithoutSend(t *testing.T) {
	p := NewProbeRegistry(PrefixFirstMatch)
	if _, ok := p.Match(FormatProbe(time.Now()), time.Now()); ok {
		t.Fatal("reply without a pending probe must not produce a sample")
	}
	if _, ok := p.Match("Hello from pulsebench!", time.Now()); ok {
		t.Fatal("non-probe message must not match")
	}
	if p.Unmatched() != 1 {
		t.Fatalf("expected 1 unmatched, got %d", p.Unmatched())
	}
}

func TestProbePolicies(t *testing.T) {
	base := time.UnixMilli(1_700_000_000_000)
	first := base
	second := base.Add(5 * time.Second)

	tests := []struct {
		name    string
		policy  CorrelationPolicy
		reply   string
		wantOK  bool
		wantRTT time.Duration
		left    int
	}{
		{"prefix pairs oldest", PrefixFirstMatch, FormatProbe(first), true, 6 * time.Second, 1},
		{"prefix uses echoed stamp on reorder", PrefixFirstMatch, FormatProbe(second), true, time.Second, 1},
		{"prefix accepts bare marker", PrefixFirstMatch, "ping", true, 6 * time.Second, 1},
		{"exact finds second", ExactTimestamp, FormatProbe(second), true, time.Second, 1},
		{"exact rejects unknown stamp", ExactTimestamp, fmt.Sprintf("ping %d", base.UnixMilli()+1), false, 0, 2},
		{"exact rejects bare marker", ExactTimestamp, "ping", false, 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProbeRegistry(tt.policy)
			p.Sent(first)
			p.Sent(second)
			rtt, ok := p.Match(tt.reply, base.Add(6*time.Second))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && rtt != tt.wantRTT {
				t.Fatalf("rtt = %s, want %s", rtt, tt.wantRTT)
			}
			if p.Pending() != tt.left {
				t.Fatalf("pending = %d, want %d", p.Pending(), tt.left)
			}
		})
	}
}

func TestParsePolicy(t *testing.T) {
	if p, err := ParsePolicy(""); err != nil || p != PrefixFirstMatch {
		t.Fatalf("default: %v %v", p, err)
	}
	if p, err := ParsePolicy("EXACT"); err != nil || p != ExactTimestamp {
		t.Fatalf("exact: %v %v", p, err)
	}
	if _, err := ParsePolicy("fifo"); err == nil {
		t.Fatal("expected error")
	}
}

func TestIsFailure(t *testing.T) {
	live := context.Background()
	done, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout on live context", Interrupted(live, &HandshakeError{Protocol: "sse", Err: fmt.Errorf("no response: %w", context.Canceled)}), true},
		{"client timeout", Interrupted(live, fmt.Errorf("post: %w", context.DeadlineExceeded)), true},
		{"transport reset", &TransportError{Protocol: "websocket", Err: errors.New("reset")}, true},
		{"bad status", &HandshakeError{Protocol: "sse", Status: 503}, true},
		{"configuration", &ConfigurationError{Reason: "TARGET_URL is not set"}, true},
		{"cancelled context", Interrupted(done, fmt.Errorf("wrapped: %w", context.Canceled)), false},
		{"cancelled mid handshake", Interrupted(done, &HandshakeError{Protocol: "websocket", Err: errors.New("eof")}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFailure(tt.err); got != tt.want {
				t.Errorf("IsFailure(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestInterruptedKeepsCause(t *testing.T) {
	done, cancel := context.WithCancel(context.Background())
	cancel()

	hsErr := &HandshakeError{Protocol: "sse", Status: 0, Err: errors.New("eof")}
	err := Interrupted(done, hsErr)
	var got *HandshakeError
	if !errors.As(err, &got) || got != hsErr {
		t.Fatalf("expected wrapped handshake error, got %v", err)
	}
	if again := Interrupted(done, err); again != err {
		t.Errorf("Interrupted should not wrap twice: %v", again)
	}
	if Interrupted(done, nil) != nil {
		t.Error("nil stays nil")
	}
}

func TestHandshakeErrorStatusCode(t *testing.T) {
	if got := (&HandshakeError{Status: 403}).StatusCode(); got != "403" {
		t.Errorf("got %q", got)
	}
	if got := (&HandshakeError{Err: errors.New("refused")}).StatusCode(); got != "transport" {
		t.Errorf("got %q", got)
	}
}
