package scenario

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pulsebench/pulsebench/internal/metrics"
	"github.com/pulsebench/pulsebench/internal/session"
	"github.com/pulsebench/pulsebench/internal/sse"
	"github.com/pulsebench/pulsebench/internal/tracing"
)

// StreamConfig configures an SSE session.
type StreamConfig struct {
	URL              string
	Headers          http.Header
	HTTPClient       *http.Client
	HandshakeTimeout time.Duration
	Lifetime         time.Duration
	QueueSize        int
}

// Stream holds one SSE session open per iteration, counting events and
// measuring time to the first one.
type Stream struct {
	env Env
	cfg StreamConfig
	vu  int

	failedConns *metrics.Counter
	received    *metrics.Counter
	reconnects  *metrics.Counter
	ttfm        *metrics.Trend
}

// DeclareStream registers the SSE metrics.
func DeclareStream(reg *metrics.Registry) {
	reg.Counter(MetricFailedConnections)
	reg.Counter(MetricMessagesReceived)
	reg.Trend(MetricTimeToFirstMessage)
}

// NewStream builds the scenario for VU vu.
func NewStream(env Env, cfg StreamConfig, vu int) *Stream {
	env = env.withDefaults()
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = DefaultSessionLifetime
	}
	reg := env.Registry
	return &Stream{
		env:         env,
		cfg:         cfg,
		vu:          vu,
		failedConns: reg.Counter(MetricFailedConnections),
		received:    reg.Counter(MetricMessagesReceived),
		reconnects:  reg.Counter(MetricReconnects),
		ttfm:        reg.Trend(MetricTimeToFirstMessage),
	}
}

// Iterate runs one session. A mid-stream transport error ends it at once
// and is not retried.
func (s *Stream) Iterate(ctx context.Context) (err error) {
	if err := sse.ValidateURL(s.cfg.URL); err != nil {
		s.failOpen(0, err)
		return err
	}

	ctx, span := tracing.StartSessionSpan(ctx, s.env.Tracer, "sse", s.cfg.URL, s.vu)
	defer func() { tracing.EndSpan(span, failureOnly(err)) }()

	var (
		client *sse.Client
		opened sse.HandshakeResult
	)
	err = s.env.openWithRetry(ctx, s.reconnects, func(ctx context.Context) error {
		headers, err := s.env.handshakeHeaders(ctx, s.cfg.Headers)
		if err != nil {
			return err
		}
		client = sse.NewClient(sse.Config{
			URL:              s.cfg.URL,
			Headers:          headers,
			HTTPClient:       s.cfg.HTTPClient,
			HandshakeTimeout: s.cfg.HandshakeTimeout,
			QueueSize:        s.cfg.QueueSize,
		})
		opened, err = client.Open(ctx)
		if err != nil {
			client.Close()
			s.env.Logger.Debug("sse handshake failed", zap.Int("vu", s.vu), zap.Int("status", opened.Status), zap.Error(err))
		}
		return err
	})
	if err != nil {
		if interrupted(ctx, err) {
			return session.Interrupted(ctx, err)
		}
		s.failOpen(opened.Status, err)
		return err
	}
	defer client.Close()

	lifetime := time.NewTimer(s.cfg.Lifetime)
	defer lifetime.Stop()

	firstSeen := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-lifetime.C:
			return nil
		case ev := <-client.Events():
			switch ev.Kind {
			case session.EventMessage:
				s.received.Inc()
				if !firstSeen {
					firstSeen = true
					s.ttfm.AddDuration(ev.At.Sub(opened.OpenedAt))
				}
			case session.EventError:
				if ctx.Err() != nil {
					return nil
				}
				client.Session().Fail(ev.Err)
				s.failedConns.Inc()
				s.env.Registry.Statuses().Record("sse", "transport")
				s.env.Logger.Debug("sse stream failed", zap.Int("vu", s.vu), zap.Error(ev.Err))
				return ev.Err
			case session.EventEnd:
				return nil
			}
		}
	}
}

func (s *Stream) failOpen(status int, err error) {
	s.failedConns.Inc()
	s.env.Registry.Statuses().Record("sse", statusLabel(status, err))
}

// Close is a no-op; each iteration closes its own session.
func (s *Stream) Close() error { return nil }
