package scenario

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pulsebench/pulsebench/internal/metrics"
	"github.com/pulsebench/pulsebench/internal/session"
	"github.com/pulsebench/pulsebench/internal/tracing"
	"github.com/pulsebench/pulsebench/internal/websocket"
)

// DuplexConfig configures a WebSocket session.
type DuplexConfig struct {
	URL              string
	Headers          http.Header
	HandshakeTimeout time.Duration
	Correlation      session.CorrelationPolicy
	Lifetime         time.Duration // session is closed after this long
	ProbeInterval    time.Duration // period of "ping <unix_ms>" probes
	QueueSize        int
}

// Duplex opens one WebSocket session per iteration: it greets the server,
// sends timestamped probes on an interval and measures time to first message
// and probe round trips until the lifetime elapses.
type Duplex struct {
	env Env
	cfg DuplexConfig
	vu  int

	failedConns *metrics.Counter
	received    *metrics.Counter
	reconnects  *metrics.Counter
	ttfm        *metrics.Trend
	rtt         *metrics.Trend
}

// DeclareDuplex registers the WebSocket metrics.
func DeclareDuplex(reg *metrics.Registry) {
	reg.Counter(MetricFailedConnections)
	reg.Counter(MetricMessagesReceived)
	reg.Trend(MetricTimeToFirstMessage)
	reg.Trend(MetricMessageRTT)
}

// NewDuplex builds the scenario for VU vu.
func NewDuplex(env Env, cfg DuplexConfig, vu int) *Duplex {
	env = env.withDefaults()
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = DefaultSessionLifetime
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultProbeInterval
	}
	reg := env.Registry
	return &Duplex{
		env:         env,
		cfg:         cfg,
		vu:          vu,
		failedConns: reg.Counter(MetricFailedConnections),
		received:    reg.Counter(MetricMessagesReceived),
		reconnects:  reg.Counter(MetricReconnects),
		ttfm:        reg.Trend(MetricTimeToFirstMessage),
		rtt:         reg.Trend(MetricMessageRTT),
	}
}

// Iterate runs one session.
func (d *Duplex) Iterate(ctx context.Context) (err error) {
	if err := websocket.ValidateURL(d.cfg.URL); err != nil {
		d.failOpen(0, err)
		return err
	}
	greeting, err := d.env.message(ctx, DefaultMessage)
	if err != nil {
		return session.Interrupted(ctx, err)
	}

	ctx, span := tracing.StartSessionSpan(ctx, d.env.Tracer, "websocket", d.cfg.URL, d.vu)
	defer func() { tracing.EndSpan(span, failureOnly(err)) }()

	var (
		client *websocket.Client
		opened websocket.HandshakeResult
	)
	err = d.env.openWithRetry(ctx, d.reconnects, func(ctx context.Context) error {
		headers, err := d.env.handshakeHeaders(ctx, d.cfg.Headers)
		if err != nil {
			return err
		}
		client = websocket.NewClient(websocket.Config{
			URL:              d.cfg.URL,
			Headers:          headers,
			HandshakeTimeout: d.cfg.HandshakeTimeout,
			QueueSize:        d.cfg.QueueSize,
			Correlation:      d.cfg.Correlation,
		})
		opened, err = client.Open(ctx)
		if err != nil {
			client.Close()
			d.env.Logger.Debug("websocket handshake failed", zap.Int("vu", d.vu), zap.Int("status", opened.Status), zap.Error(err))
		}
		return err
	})
	if err != nil {
		if interrupted(ctx, err) {
			return session.Interrupted(ctx, err)
		}
		d.failOpen(opened.Status, err)
		return err
	}
	defer client.Close()

	return d.drive(ctx, client, opened.OpenedAt, greeting)
}

func (d *Duplex) failOpen(status int, err error) {
	d.failedConns.Inc()
	d.env.Registry.Statuses().Record("websocket", statusLabel(status, err))
}

func (d *Duplex) drive(ctx context.Context, client *websocket.Client, openedAt time.Time, greeting string) error {
	lifetime := time.NewTimer(d.cfg.Lifetime)
	defer lifetime.Stop()
	probes := time.NewTicker(d.cfg.ProbeInterval)
	defer probes.Stop()

	if err := client.Send([]byte(greeting)); err != nil {
		return d.transportFailure(ctx, client, err)
	}

	firstSeen := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-lifetime.C:
			return nil
		case <-probes.C:
			if _, err := client.SendProbe(); err != nil {
				return d.transportFailure(ctx, client, err)
			}
		case ev := <-client.Events():
			switch ev.Kind {
			case session.EventMessage:
				d.received.Inc()
				if !firstSeen {
					firstSeen = true
					d.ttfm.AddDuration(ev.At.Sub(openedAt))
				}
				if rtt, ok := client.Session().Probes().Match(string(ev.Data), ev.At); ok {
					d.rtt.AddDuration(rtt)
				}
			case session.EventError:
				return d.transportFailure(ctx, client, ev.Err)
			case session.EventEnd:
				return nil
			}
		}
	}
}

// transportFailure ends the session on a send or read error. Errors caused by
// the VU stopping are normal endings.
func (d *Duplex) transportFailure(ctx context.Context, client *websocket.Client, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	client.Session().Fail(err)
	d.failedConns.Inc()
	d.env.Registry.Statuses().Record("websocket", "transport")
	d.env.Logger.Debug("websocket session failed", zap.Int("vu", d.vu), zap.Error(err))
	return err
}

// Close is a no-op; each iteration closes its own session.
func (d *Duplex) Close() error { return nil }

// failureOnly hides normal endings from span status.
func failureOnly(err error) error {
	if session.IsFailure(err) {
		return err
	}
	return nil
}
