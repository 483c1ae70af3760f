package scenario

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/pulsebench/pulsebench/internal/auth"
	"github.com/pulsebench/pulsebench/internal/grpcclient"
	"github.com/pulsebench/pulsebench/internal/metrics"
	"github.com/pulsebench/pulsebench/internal/session"
	"github.com/pulsebench/pulsebench/internal/tracing"
)

// ChatConfig configures the gRPC chat loop. Conn is shared by all VUs.
type ChatConfig struct {
	Target       string
	Conn         grpc.ClientConnInterface
	Schema       *grpcclient.ChatSchema
	Metadata     map[string]string
	ReplyTimeout time.Duration // wait for any inbound message
	Pause        time.Duration // pause after each exchange
	QueueSize    int
}

// Chat keeps one bidirectional stream per VU. Each iteration sends a
// message as client-<vu> and waits for the next inbound message, recording
// the round trip or a timeout. A failed stream is reopened on the next
// iteration.
type Chat struct {
	env    Env
	cfg    ChatConfig
	vu     int
	sender string

	stream *grpcclient.ChatStream
	span   spanEnder

	failedConns *metrics.Counter
	received    *metrics.Counter
	reconnects  *metrics.Counter
	timeouts    *metrics.Counter
	rtt         *metrics.Trend
}

type spanEnder func(err error)

// DeclareChat registers the gRPC metrics.
func DeclareChat(reg *metrics.Registry) {
	reg.Counter(MetricFailedConnections)
	reg.Counter(MetricMessagesReceived)
	reg.Counter(MetricGRPCTimeouts)
	reg.Trend(MetricGRPCMessageRTT)
}

// NewChat builds the scenario for VU vu.
func NewChat(env Env, cfg ChatConfig, vu int) *Chat {
	env = env.withDefaults()
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = DefaultReplyTimeout
	}
	if cfg.Pause == 0 {
		cfg.Pause = DefaultChatPause
	}
	reg := env.Registry
	return &Chat{
		env:         env,
		cfg:         cfg,
		vu:          vu,
		sender:      fmt.Sprintf("client-%d", vu),
		failedConns: reg.Counter(MetricFailedConnections),
		received:    reg.Counter(MetricMessagesReceived),
		reconnects:  reg.Counter(MetricReconnects),
		timeouts:    reg.Counter(MetricGRPCTimeouts),
		rtt:         reg.Trend(MetricGRPCMessageRTT),
	}
}

// Iterate performs one send/await exchange.
func (c *Chat) Iterate(ctx context.Context) error {
	if err := grpcclient.ValidateTarget(c.cfg.Target); err != nil || c.cfg.Conn == nil || c.cfg.Schema == nil {
		if err == nil {
			err = fmt.Errorf("grpc connection is not configured")
		}
		cfgErr := &session.ConfigurationError{Reason: err.Error()}
		c.failedConns.Inc()
		c.env.Registry.Statuses().Record("grpc", statusLabel(0, cfgErr))
		return cfgErr
	}

	if c.stream == nil {
		if err := c.open(ctx); err != nil {
			return err
		}
	}

	msg, err := c.env.message(ctx, DefaultChatMessage)
	if err != nil {
		return session.Interrupted(ctx, err)
	}
	sent := time.Now()
	if err := c.stream.Send(c.sender, msg); err != nil {
		return c.dropStream(ctx, err)
	}

	timer := time.NewTimer(c.cfg.ReplyTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil
	case <-timer.C:
		c.timeouts.Inc()
		c.env.Logger.Debug("no chat reply", zap.Int("vu", c.vu), zap.Duration("timeout", c.cfg.ReplyTimeout))
	case ev := <-c.stream.Events():
		switch ev.Kind {
		case session.EventMessage:
			c.received.Inc()
			c.rtt.AddDuration(ev.At.Sub(sent))
		case session.EventError:
			return c.dropStream(ctx, ev.Err)
		case session.EventEnd:
			c.closeStream(nil)
			return nil
		}
	}
	_ = sleepCtx(ctx, c.cfg.Pause)
	return nil
}

func (c *Chat) open(ctx context.Context) error {
	// ctx is the VU context; the stream spans many iterations.
	spanCtx, span := tracing.StartSessionSpan(ctx, c.env.Tracer, "grpc", c.cfg.Target, c.vu)

	var stream *grpcclient.ChatStream
	err := c.env.openWithRetry(spanCtx, c.reconnects, func(ctx context.Context) error {
		md := metadata.New(c.cfg.Metadata)
		if err := auth.ApplyMetadata(ctx, c.env.Auth, md); err != nil {
			return err
		}
		if c.env.Propagate {
			tracing.InjectGRPCMetadata(ctx, md)
		}
		var err error
		stream, err = grpcclient.OpenChat(ctx, c.cfg.Conn, c.cfg.Schema, md, c.cfg.QueueSize)
		if err != nil {
			stream.Close()
			c.env.Logger.Debug("grpc stream open failed", zap.Int("vu", c.vu), zap.Error(err))
		}
		return err
	})
	if err != nil {
		err = session.Interrupted(ctx, err)
		if session.IsFailure(err) {
			c.failedConns.Inc()
			c.env.Registry.Statuses().Record("grpc", grpcclient.StatusCode(err))
		}
		tracing.EndSpan(span, failureOnly(err))
		return err
	}
	c.stream = stream
	c.span = func(err error) {
		tracing.EndSpan(span, failureOnly(err))
	}
	return nil
}

// dropStream records a transport failure and discards the stream so the
// next iteration opens a new one. Errors caused by the VU stopping are not
// failures.
func (c *Chat) dropStream(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		c.closeStream(nil)
		return nil
	}
	if c.stream != nil {
		c.stream.Session().Fail(err)
	}
	c.failedConns.Inc()
	c.env.Registry.Statuses().Record("grpc", grpcclient.StatusCode(err))
	c.env.Logger.Debug("grpc stream failed", zap.Int("vu", c.vu), zap.Error(err))
	c.closeStream(err)
	return err
}

func (c *Chat) closeStream(err error) {
	if c.stream == nil {
		return
	}
	c.stream.Close()
	c.stream = nil
	if c.span != nil {
		c.span(err)
		c.span = nil
	}
}

// Close ends the VU's stream.
func (c *Chat) Close() error {
	c.closeStream(nil)
	return nil
}
