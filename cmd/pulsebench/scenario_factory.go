package main

import (
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/grpc"

	"github.com/pulsebench/pulsebench/internal/config"
	"github.com/pulsebench/pulsebench/internal/grpcclient"
	"github.com/pulsebench/pulsebench/internal/httpclient"
	"github.com/pulsebench/pulsebench/internal/runner"
	"github.com/pulsebench/pulsebench/internal/scenario"
	"github.com/pulsebench/pulsebench/internal/session"
)

// scenarioFactory builds one protocol scenario per VU and owns whatever the
// VUs share, such as the gRPC connection.
type scenarioFactory struct {
	build func(id int) runner.Scenario
	// latencyMetric is the trend shown live on the dashboard.
	latencyMetric string
	conn          *grpc.ClientConn
}

// newScenarioFactory declares the protocol's metrics on env.Registry and
// prepares the shared clients. An unset target is not an error here: every
// iteration then fails with a configuration error.
func newScenarioFactory(cfg *config.Config, env scenario.Env) (*scenarioFactory, error) {
	headers := makeHeaders(cfg.Headers)

	switch cfg.Protocol {
	case config.ProtocolREST, "":
		scenario.DeclareREST(env.Registry)
		client := httpclient.NewClient(cfg.Timeout)
		rc := scenario.RESTConfig{URL: cfg.TargetURL, Headers: headers, Client: client}
		return &scenarioFactory{
			latencyMetric: scenario.MetricHTTPReqDuration,
			build:         func(id int) runner.Scenario { return scenario.NewREST(env, rc, id) },
		}, nil

	case config.ProtocolWebSocket:
		policy, err := session.ParsePolicy(cfg.WebSocket.Correlation)
		if err != nil {
			return nil, err
		}
		scenario.DeclareDuplex(env.Registry)
		dc := scenario.DuplexConfig{
			URL:              cfg.TargetURL,
			Headers:          headers,
			HandshakeTimeout: cfg.WebSocket.HandshakeTimeout,
			Correlation:      policy,
			Lifetime:         cfg.WebSocket.Lifetime,
			ProbeInterval:    cfg.WebSocket.ProbeInterval,
			QueueSize:        cfg.WebSocket.QueueSize,
		}
		return &scenarioFactory{
			latencyMetric: scenario.MetricMessageRTT,
			build:         func(id int) runner.Scenario { return scenario.NewDuplex(env, dc, id) },
		}, nil

	case config.ProtocolSSE:
		scenario.DeclareStream(env.Registry)
		sc := scenario.StreamConfig{
			URL:              cfg.TargetURL,
			Headers:          headers,
			HandshakeTimeout: cfg.SSE.HandshakeTimeout,
			Lifetime:         cfg.SSE.Lifetime,
			QueueSize:        cfg.SSE.QueueSize,
		}
		return &scenarioFactory{
			latencyMetric: scenario.MetricTimeToFirstMessage,
			build:         func(id int) runner.Scenario { return scenario.NewStream(env, sc, id) },
		}, nil

	case config.ProtocolGRPC:
		return newChatFactory(cfg, env)

	default:
		return nil, fmt.Errorf("unsupported protocol: %s", cfg.Protocol)
	}
}

func newChatFactory(cfg *config.Config, env scenario.Env) (*scenarioFactory, error) {
	scenario.DeclareChat(env.Registry)

	schema, err := grpcclient.LoadChatSchema(cfg.GRPC.ProtoFile, cfg.GRPC.Service, cfg.GRPC.Method)
	if err != nil {
		return nil, err
	}

	f := &scenarioFactory{latencyMetric: scenario.MetricGRPCMessageRTT}
	cc := scenario.ChatConfig{
		Target:       cfg.TargetURL,
		Schema:       schema,
		Metadata:     cfg.GRPC.Metadata,
		ReplyTimeout: cfg.GRPC.ReplyTimeout,
		Pause:        cfg.GRPC.Pause,
	}
	if grpcclient.ValidateTarget(cfg.TargetURL) == nil {
		conn, err := grpcclient.Dial(grpcclient.Config{
			Target:   cfg.TargetURL,
			UseTLS:   cfg.GRPC.TLS,
			Insecure: cfg.GRPC.Insecure,
			Metadata: cfg.GRPC.Metadata,
		})
		if err != nil {
			return nil, fmt.Errorf("dial grpc target: %w", err)
		}
		f.conn = conn
		cc.Conn = conn
	}
	f.build = func(id int) runner.Scenario { return scenario.NewChat(env, cc, id) }
	return f, nil
}

// New satisfies runner.ScenarioFactory.
func (f *scenarioFactory) New(id int) (runner.Scenario, error) {
	return f.build(id), nil
}

// Close releases the shared clients.
func (f *scenarioFactory) Close() error {
	if f == nil || f.conn == nil {
		return nil
	}
	return f.conn.Close()
}

func makeHeaders(values map[string]string) http.Header {
	headers := http.Header{}
	for key, value := range values {
		if strings.TrimSpace(key) == "" {
			continue
		}
		headers.Set(key, value)
	}
	return headers
}
