package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError reports a missing or invalid target. The iteration ends
// without attempting a connection.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration: " + e.Reason
}

// HandshakeError reports an open attempt that did not meet its success
// criterion. Status is 0 when no response was received.
type HandshakeError struct {
	Protocol string
	Status   int
	Err      error
}

func (e *HandshakeError) Error() string {
	switch {
	case e.Status > 0 && e.Err != nil:
		return fmt.Sprintf("%s handshake: status %d: %v", e.Protocol, e.Status, e.Err)
	case e.Status > 0:
		return fmt.Sprintf("%s handshake: unexpected status %d", e.Protocol, e.Status)
	default:
		return fmt.Sprintf("%s handshake: %v", e.Protocol, e.Err)
	}
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// StatusCode returns the handshake status as a string, or "transport" when
// no response arrived.
func (e *HandshakeError) StatusCode() string {
	if e.Status == 0 {
		return "transport"
	}
	return fmt.Sprintf("%d", e.Status)
}

// TransportError reports a failure after the session was open.
type TransportError struct {
	Protocol string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport: %v", e.Protocol, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ThresholdViolation is returned at run end when at least one threshold
// failed. It is never produced while VUs are running.
type ThresholdViolation struct {
	Failed []string
}

func (e *ThresholdViolation) Error() string {
	return fmt.Sprintf("%d threshold(s) failed: %s", len(e.Failed), strings.Join(e.Failed, "; "))
}

// ErrInterrupted marks work cut short because the caller's context ended.
var ErrInterrupted = errors.New("interrupted")

// Interrupted marks err with ErrInterrupted when ctx is done. Whether an
// error is an interruption depends on ctx, not on the error: a handshake or
// request timeout that fires while ctx is live stays a failure even though
// it may wrap context.DeadlineExceeded.
func Interrupted(ctx context.Context, err error) error {
	if err == nil || ctx.Err() == nil || errors.Is(err, ErrInterrupted) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrInterrupted, err)
}

// IsFailure reports whether err counts against the run. Every error does
// unless Interrupted marked it.
func IsFailure(err error) bool {
	return err != nil && !errors.Is(err, ErrInterrupted)
}
