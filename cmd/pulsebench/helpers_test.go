package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/pulsebench/pulsebench/internal/config"
	"github.com/pulsebench/pulsebench/internal/metrics"
	"github.com/pulsebench/pulsebench/internal/scenario"
	"github.com/pulsebench/pulsebench/internal/session"
)

func TestBuildAuthProvider(t *testing.T) {
	tests := []struct {
		name    string
		auth    config.AuthConfig
		wantNil bool
		wantErr bool
	}{
		{name: "none", auth: config.AuthConfig{}, wantNil: true},
		{name: "static", auth: config.AuthConfig{Type: config.AuthTypeStatic, StaticToken: "abc"}},
		{name: "static without token", auth: config.AuthConfig{Type: config.AuthTypeStatic}, wantErr: true},
		{name: "client credentials", auth: config.AuthConfig{
			Type:         config.AuthTypeOAuth2ClientCredentials,
			TokenURL:     "https://idp.example.com/token",
			ClientID:     "id",
			ClientSecret: "secret",
		}},
		{name: "unsupported", auth: config.AuthConfig{Type: "kerberos"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := buildAuthProvider(&config.Config{Auth: tt.auth})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantNil {
				if provider != nil {
					t.Fatalf("expected nil provider, got %T", provider)
				}
				return
			}
			if provider == nil {
				t.Fatal("expected provider")
			}
			provider.Close()
		})
	}
}

func TestBuildAuthProviderStaticInjectsHeader(t *testing.T) {
	provider, err := buildAuthProvider(&config.Config{Auth: config.AuthConfig{Type: config.AuthTypeStatic, StaticToken: "abc"}})
	if err != nil {
		t.Fatalf("buildAuthProvider: %v", err)
	}
	defer provider.Close()

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	if err := provider.InjectHeader(context.Background(), req); err != nil {
		t.Fatalf("InjectHeader: %v", err)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer abc" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestBuildMessages(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "messages.csv")
	if err := os.WriteFile(csvPath, []byte("message,user\nhello,alice\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	jsonPath := filepath.Join(dir, "messages.json")
	if err := os.WriteFile(jsonPath, []byte(`[{"message":"hi","user":"bob"}]`), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		feeder  config.FeederConfig
		want    string
		wantNil bool
		wantErr bool
	}{
		{name: "none", wantNil: true},
		{name: "csv", feeder: config.FeederConfig{Path: csvPath, Type: "csv"}, want: "hello"},
		{name: "json by extension", feeder: config.FeederConfig{Path: jsonPath}, want: "hi"},
		{name: "template", feeder: config.FeederConfig{Path: csvPath, Type: "csv", Template: "{{user}}: {{message}}"}, want: "alice: hello"},
		{name: "unknown type", feeder: config.FeederConfig{Path: csvPath, Type: "xml"}, wantErr: true},
		{name: "missing file", feeder: config.FeederConfig{Path: filepath.Join(dir, "nope.csv"), Type: "csv"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := buildMessages(&config.Config{Feeder: tt.feeder})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer msgs.Close()
			if tt.wantNil {
				if msgs != nil {
					t.Fatal("expected nil messages")
				}
				return
			}
			got, err := msgs.Next(context.Background())
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if got != tt.want {
				t.Errorf("Next() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewScenarioFactory(t *testing.T) {
	tests := []struct {
		name          string
		cfg           config.Config
		latencyMetric string
		declared      string
		wantConn      bool
		wantErr       bool
	}{
		{
			name:          "rest",
			cfg:           config.Config{Protocol: config.ProtocolREST, TargetURL: "http://localhost/echo", Timeout: time.Second},
			latencyMetric: scenario.MetricHTTPReqDuration,
			declared:      scenario.MetricHTTPReqFailed,
		},
		{
			name: "websocket",
			cfg: config.Config{Protocol: config.ProtocolWebSocket, TargetURL: "ws://localhost/ws",
				WebSocket: config.WebSocketConfig{Correlation: "exact", Lifetime: time.Second}},
			latencyMetric: scenario.MetricMessageRTT,
			declared:      scenario.MetricFailedConnections,
		},
		{
			name:    "websocket bad correlation",
			cfg:     config.Config{Protocol: config.ProtocolWebSocket, WebSocket: config.WebSocketConfig{Correlation: "fuzzy"}},
			wantErr: true,
		},
		{
			name:          "sse",
			cfg:           config.Config{Protocol: config.ProtocolSSE, TargetURL: "http://localhost/events"},
			latencyMetric: scenario.MetricTimeToFirstMessage,
			declared:      scenario.MetricMessagesReceived,
		},
		{
			name:          "grpc without target",
			cfg:           config.Config{Protocol: config.ProtocolGRPC},
			latencyMetric: scenario.MetricGRPCMessageRTT,
			declared:      scenario.MetricGRPCTimeouts,
		},
		{
			name:          "grpc with target",
			cfg:           config.Config{Protocol: config.ProtocolGRPC, TargetURL: "localhost:50051"},
			latencyMetric: scenario.MetricGRPCMessageRTT,
			declared:      scenario.MetricGRPCTimeouts,
			wantConn:      true,
		},
		{
			name:    "unknown protocol",
			cfg:     config.Config{Protocol: "ftp"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := metrics.NewRegistry()
			env := scenario.Env{Registry: reg, Logger: zap.NewNop()}
			cfg := tt.cfg
			f, err := newScenarioFactory(&cfg, env)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer f.Close()

			if f.latencyMetric != tt.latencyMetric {
				t.Errorf("latencyMetric = %q, want %q", f.latencyMetric, tt.latencyMetric)
			}
			if (f.conn != nil) != tt.wantConn {
				t.Errorf("conn set = %v, want %v", f.conn != nil, tt.wantConn)
			}
			found := false
			reg.Each(func(m metrics.Metric) {
				if m.Name() == tt.declared {
					found = true
				}
			})
			if !found {
				t.Errorf("metric %q not declared", tt.declared)
			}
			sc, err := f.New(1)
			if err != nil || sc == nil {
				t.Fatalf("New(1) = %v, %v", sc, err)
			}
			_ = sc.Close()
		})
	}
}

func TestGRPCFactoryWithoutTargetFailsIterations(t *testing.T) {
	reg := metrics.NewRegistry()
	env := scenario.Env{Registry: reg, Logger: zap.NewNop()}
	f, err := newScenarioFactory(&config.Config{Protocol: config.ProtocolGRPC}, env)
	if err != nil {
		t.Fatalf("newScenarioFactory: %v", err)
	}
	defer f.Close()

	sc, err := f.New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err = sc.Iterate(ctx)
	var cfgErr *session.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Iterate() = %v, want ConfigurationError", err)
	}
}

func TestMetricsHandler(t *testing.T) {
	reg := metrics.NewRegistry()
	reg.Counter("http_reqs").Add(3)
	reg.Rate("http_req_failed").Add(true)
	reg.Trend("http_req_duration").AddDuration(25 * time.Millisecond)

	handler, err := newMetricsHandler(reg)
	if err != nil {
		t.Fatalf("newMetricsHandler: %v", err)
	}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		"pulsebench_http_reqs_total 3",
		"pulsebench_http_req_failed_ratio 1",
		"pulsebench_http_req_duration_milliseconds_count 1",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestServeMetricsStopsOnCancel(t *testing.T) {
	reg := metrics.NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveMetrics(ctx, "127.0.0.1:0", reg, zap.NewNop()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serveMetrics() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("serveMetrics did not return after cancel")
	}
}
