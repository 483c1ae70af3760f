// Package scenario implements the per-VU workloads: a REST echo exchange, a
// WebSocket duplex session, an SSE stream session and a gRPC chat loop.
//
// Every scenario validates its target before connecting, records metrics as
// events arrive, bounds session lifetime independently of the server and
// always closes what it opened. Failures are counted and returned to the
// runner, which isolates them per VU.
package scenario

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/pulsebench/pulsebench/internal/auth"
	"github.com/pulsebench/pulsebench/internal/metrics"
	"github.com/pulsebench/pulsebench/internal/runner"
	"github.com/pulsebench/pulsebench/internal/session"
	"github.com/pulsebench/pulsebench/internal/tracing"
)

// Metric names recorded by scenarios.
const (
	MetricFailedRequests     = "failed_requests"
	MetricHTTPReqs           = "http_reqs"
	MetricHTTPReqFailed      = "http_req_failed"
	MetricHTTPReqDuration    = "http_req_duration"
	MetricTimeToFirstMessage = "time_to_first_message"
	MetricMessageRTT         = "websocket_message_rtt"
	MetricFailedConnections  = "failed_connections"
	MetricMessagesReceived   = "messages_received"
	MetricReconnects         = "reconnects"
	MetricGRPCMessageRTT     = "grpc_message_rtt"
	MetricGRPCTimeouts       = "grpc_timeouts"
)

// Defaults for session-shaped scenarios.
const (
	DefaultMessage         = "Hello from pulsebench!"
	DefaultChatMessage     = "ping"
	DefaultSessionLifetime = 20 * time.Second
	DefaultProbeInterval   = 5 * time.Second
	DefaultReplyTimeout    = 10 * time.Second
	DefaultChatPause       = 10 * time.Millisecond
)

// MessageSource yields the payload for one iteration.
type MessageSource interface {
	Next(ctx context.Context) (string, error)
}

// Env holds what every scenario of a run shares.
type Env struct {
	Registry *metrics.Registry
	Logger   *zap.Logger
	Tracer   trace.Tracer
	// Propagate sends W3C trace context with requests and handshakes.
	Propagate bool
	// Messages overrides each scenario's default payload.
	Messages MessageSource
	Auth     auth.Provider
	// Reconnect retries failed opens within one iteration. The zero value
	// makes a single attempt.
	Reconnect runner.RetryPolicy
}

func (e Env) withDefaults() Env {
	if e.Registry == nil {
		e.Registry = metrics.NewRegistry()
	}
	if e.Logger == nil {
		e.Logger = zap.NewNop()
	}
	if e.Tracer == nil {
		e.Tracer = noop.NewTracerProvider().Tracer("pulsebench")
	}
	return e
}

func (e Env) message(ctx context.Context, fallback string) (string, error) {
	if e.Messages == nil {
		return fallback, nil
	}
	return e.Messages.Next(ctx)
}

// handshakeHeaders copies base and adds auth and trace context.
func (e Env) handshakeHeaders(ctx context.Context, base http.Header) (http.Header, error) {
	h := base.Clone()
	if h == nil {
		h = http.Header{}
	}
	if err := auth.ApplyHeader(ctx, e.Auth, h); err != nil {
		return nil, err
	}
	if e.Propagate {
		tracing.InjectHTTPHeaders(ctx, h)
	}
	return h, nil
}

// openWithRetry runs open under the reconnect policy, counting every extra
// attempt.
func (e Env) openWithRetry(ctx context.Context, reconnects *metrics.Counter, open func(ctx context.Context) error) error {
	attempts, err := runner.Retry(ctx, e.Reconnect, open)
	if attempts > 1 {
		reconnects.Add(int64(attempts - 1))
	}
	return err
}

// interrupted reports an error returned because the VU itself stopped.
// Timeouts inside a live VU are failures.
func interrupted(ctx context.Context, err error) bool {
	return err != nil && ctx.Err() != nil
}

// statusLabel names a failed open for the status table.
func statusLabel(status int, err error) string {
	var cfgErr *session.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		return "config"
	case status > 0:
		return strconv.Itoa(status)
	default:
		return "transport"
	}
}

// sleepCtx waits d or until ctx ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
