package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestAsString(t *testing.T) {
	tests := []struct {
		input interface{}
		want  string
	}{
		{"hello", "hello"},
		{123, "123"},
		{true, "true"},
		{nil, ""},
		{[]byte("bytes"), "bytes"},
	}

	for _, tt := range tests {
		got, err := asString(tt.input)
		if err != nil {
			t.Errorf("asString(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asString(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestAsInt(t *testing.T) {
	tests := []struct {
		input interface{}
		want  int
	}{
		{123, 123},
		{"456", 456},
		{int64(789), 789},
		{float64(10.0), 10},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asInt(tt.input)
		if err != nil {
			t.Errorf("asInt(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asInt(%v) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestAsBool(t *testing.T) {
	tests := []struct {
		input interface{}
		want  bool
	}{
		{true, true},
		{"true", true},
		{"1", true},
		{false, false},
		{"false", false},
		{"0", false},
		{nil, false},
	}

	for _, tt := range tests {
		got, err := asBool(tt.input)
		if err != nil {
			t.Errorf("asBool(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asBool(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsDuration(t *testing.T) {
	tests := []struct {
		input interface{}
		want  time.Duration
	}{
		{time.Second, time.Second},
		{"1m", time.Minute},
		{10, 10 * time.Second}, // int treated as seconds
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asDuration(tt.input)
		if err != nil {
			t.Errorf("asDuration(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asDuration(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestApplyConfigSettings(t *testing.T) {
	cfg := defaultConfig()
	settings := map[string]interface{}{
		"protocol":      "SSE",
		"target":        " http://example.com/stream ",
		"timeout":       "5s",
		"graceful_stop": 10,
		"rate":          2.5,
		"headers": map[string]interface{}{
			"x-api-key": "k",
		},
		"stages": []interface{}{
			map[string]interface{}{"duration": "1s", "target": 3},
			"2s:0",
		},
		"arrival_model": "poisson",
		"sse": map[string]interface{}{
			"lifetime":   "3s",
			"queue_size": 8,
		},
		"grpc": map[string]interface{}{
			"metadata": map[string]interface{}{"x-tenant": "a"},
			"tls":      "true",
		},
		"auth": map[string]interface{}{
			"type":      "oauth2_resource_owner",
			"token_url": "http://idp/token",
			"client_id": "cli",
			"username":  "user",
			"password":  "pass",
			"scopes":    []interface{}{"read", "write"},
		},
	}

	if err := applyConfigSettings(cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}

	if cfg.Protocol != ProtocolSSE {
		t.Errorf("Protocol = %q, want sse", cfg.Protocol)
	}
	if cfg.TargetURL != "http://example.com/stream" {
		t.Errorf("TargetURL = %q", cfg.TargetURL)
	}
	if cfg.Timeout != 5*time.Second || cfg.GracefulStop != 10*time.Second {
		t.Errorf("Timeout = %v, GracefulStop = %v", cfg.Timeout, cfg.GracefulStop)
	}
	if cfg.Rate != 2.5 {
		t.Errorf("Rate = %v, want 2.5", cfg.Rate)
	}
	if cfg.Headers["X-Api-Key"] != "k" {
		t.Errorf("Headers = %v", cfg.Headers)
	}
	if len(cfg.Stages) != 2 || cfg.Stages[0].Target != 3 || cfg.Stages[1].Duration != 2*time.Second {
		t.Errorf("Stages = %v", cfg.Stages)
	}
	if cfg.Arrival.Model != ArrivalModelPoisson {
		t.Errorf("Arrival = %q", cfg.Arrival.Model)
	}
	if cfg.SSE.Lifetime != 3*time.Second || cfg.SSE.QueueSize != 8 {
		t.Errorf("SSE = %+v", cfg.SSE)
	}
	if !cfg.GRPC.TLS || cfg.GRPC.Metadata["x-tenant"] != "a" {
		t.Errorf("GRPC = %+v", cfg.GRPC)
	}
	if cfg.Auth.Type != AuthTypeOAuth2ResourceOwner || cfg.Auth.Username != "user" || len(cfg.Auth.Scopes) != 2 {
		t.Errorf("Auth = %+v", cfg.Auth)
	}
}

func TestApplyConfigSettingsErrors(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]interface{}
		want     string
	}{
		{"bad duration", map[string]interface{}{"timeout": "soon"}, "timeout"},
		{"bad stage", map[string]interface{}{"stages": []interface{}{"20s"}}, "stages"},
		{"bad bool", map[string]interface{}{"dashboard": "maybe"}, "dashboard"},
		{"stages not a list", map[string]interface{}{"stages": 5}, "stages"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := applyConfigSettings(defaultConfig(), tt.settings)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("applyConfigSettings() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := defaultConfig()
	cfg.Stages = []Stage{{Duration: time.Second, Target: 1}}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)

	args := []string{
		"--protocol=GRPC",
		"--stage=10s:4",
		"--stage=5s:0",
		"--header=X-Test=123",
		"--grpc-metadata=X-Tenant=a",
		"--grpc-reply-timeout=2s",
		"--reconnect-attempts=3",
		"--auth-token=secret",
		"--tracing-propagate=true",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := applyFlagOverrides(cfg, fs); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}

	if cfg.Protocol != ProtocolGRPC {
		t.Errorf("Protocol = %q, want grpc", cfg.Protocol)
	}
	if len(cfg.Stages) != 2 || cfg.Stages[0] != (Stage{Duration: 10 * time.Second, Target: 4}) {
		t.Errorf("Stages = %v", cfg.Stages)
	}
	if cfg.Headers["X-Test"] != "123" {
		t.Errorf("Headers[X-Test] = %q, want 123", cfg.Headers["X-Test"])
	}
	if cfg.GRPC.Metadata["x-tenant"] != "a" || cfg.GRPC.ReplyTimeout != 2*time.Second {
		t.Errorf("GRPC = %+v", cfg.GRPC)
	}
	if cfg.Reconnect.Attempts != 3 {
		t.Errorf("Reconnect.Attempts = %d", cfg.Reconnect.Attempts)
	}
	if cfg.Auth.Type != AuthTypeStatic || cfg.Auth.StaticToken != "secret" {
		t.Errorf("Auth = %+v", cfg.Auth)
	}
	if !cfg.Tracing.ShouldPropagate() {
		t.Error("tracing-propagate should force propagation without an endpoint")
	}
	// Unchanged flags keep earlier values.
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
}

func TestApplyFlagOverridesRejectsBadHeader(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)
	if err := fs.Parse([]string{"--header=novalue"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := applyFlagOverrides(defaultConfig(), fs); err == nil {
		t.Fatal("expected error for malformed header")
	}
}
