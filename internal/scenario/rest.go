package scenario

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/pulsebench/pulsebench/internal/auth"
	"github.com/pulsebench/pulsebench/internal/httpclient"
	"github.com/pulsebench/pulsebench/internal/metrics"
	"github.com/pulsebench/pulsebench/internal/session"
	"github.com/pulsebench/pulsebench/internal/tracing"
)

// RESTConfig configures the echo exchange.
type RESTConfig struct {
	URL     string
	Headers http.Header
	Client  *http.Client
}

// REST posts one message per iteration and checks that it is echoed back.
type REST struct {
	env   Env
	vu    int
	url   string
	probe *httpclient.EchoProbe

	reqs     *metrics.Counter
	failed   *metrics.Counter
	failRate *metrics.Rate
	duration *metrics.Trend
}

// DeclareREST registers the REST metrics so thresholds see them even when
// nothing was recorded.
func DeclareREST(reg *metrics.Registry) {
	reg.Counter(MetricHTTPReqs)
	reg.Counter(MetricFailedRequests)
	reg.Rate(MetricHTTPReqFailed)
	reg.Trend(MetricHTTPReqDuration)
}

// NewREST builds the scenario for VU vu.
func NewREST(env Env, cfg RESTConfig, vu int) *REST {
	env = env.withDefaults()
	reg := env.Registry
	return &REST{
		env: env,
		vu:  vu,
		url: cfg.URL,
		probe: httpclient.NewEchoProbe(httpclient.EchoConfig{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Auth:    requestDecorator{provider: env.Auth, propagate: env.Propagate},
			Client:  cfg.Client,
		}),
		reqs:     reg.Counter(MetricHTTPReqs),
		failed:   reg.Counter(MetricFailedRequests),
		failRate: reg.Rate(MetricHTTPReqFailed),
		duration: reg.Trend(MetricHTTPReqDuration),
	}
}

// Iterate performs one exchange. An unset target counts as a failed request
// without any network activity.
func (s *REST) Iterate(ctx context.Context) error {
	msg, err := s.env.message(ctx, DefaultMessage)
	if err != nil {
		return session.Interrupted(ctx, err)
	}

	ctx, span := tracing.StartSessionSpan(ctx, s.env.Tracer, "http", s.url, s.vu)
	res, err := s.probe.Do(ctx, msg)
	err = session.Interrupted(ctx, err)
	s.record(res, err)
	tracing.EndSpan(span, failureOnly(err), tracing.AttrStatus.Int(res.Status))
	if session.IsFailure(err) {
		s.env.Logger.Debug("rest exchange failed", zap.Int("vu", s.vu), zap.Int("status", res.Status), zap.Error(err))
	}
	return err
}

func (s *REST) record(res httpclient.EchoResult, err error) {
	var cfgErr *session.ConfigurationError
	if errors.As(err, &cfgErr) {
		s.failed.Inc()
		s.failRate.Add(true)
		s.env.Registry.Statuses().Record("http", statusLabel(0, err))
		return
	}
	if err != nil && !session.IsFailure(err) {
		return
	}

	s.reqs.Inc()
	s.duration.AddDuration(res.Latency)
	transportFailed := res.Status == 0 || res.Status >= http.StatusBadRequest
	s.failRate.Add(transportFailed)
	if err != nil {
		s.failed.Inc()
		if transportFailed {
			s.env.Registry.Statuses().Record("http", statusLabel(res.Status, err))
		}
	}
}

// Close is a no-op; connections are pooled by the shared client.
func (s *REST) Close() error { return nil }
