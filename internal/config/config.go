package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type Protocol string

const (
	ProtocolREST      Protocol = "rest"
	ProtocolWebSocket Protocol = "websocket"
	ProtocolSSE       Protocol = "sse"
	ProtocolGRPC      Protocol = "grpc"
)

// TargetEnv names the environment variable consulted when no target is set.
const TargetEnv = "TARGET_URL"

type Config struct {
	Protocol     Protocol          `mapstructure:"protocol"`
	TargetURL    string            `mapstructure:"target"`
	Headers      map[string]string `mapstructure:"headers"`
	Preset       string            `mapstructure:"preset"`
	Stages       []Stage           `mapstructure:"stages"`
	StartVUs     int               `mapstructure:"start_vus"`
	Thresholds   []string          `mapstructure:"thresholds"`
	Timeout      time.Duration     `mapstructure:"timeout"`
	GracefulStop time.Duration     `mapstructure:"graceful_stop"`
	PollInterval time.Duration     `mapstructure:"poll_interval"`
	FailurePause time.Duration     `mapstructure:"failure_pause"`
	Rate         float64           `mapstructure:"rate"`
	Arrival      ArrivalConfig     `mapstructure:"arrival"`
	Reconnect    ReconnectConfig   `mapstructure:"reconnect"`
	Feeder       FeederConfig      `mapstructure:"feeder"`
	Auth         AuthConfig        `mapstructure:"auth"`
	WebSocket    WebSocketConfig   `mapstructure:"websocket"`
	SSE          SSEConfig         `mapstructure:"sse"`
	GRPC         GRPCConfig        `mapstructure:"grpc"`
	Tracing      TracingConfig     `mapstructure:"tracing"`
	JSONOutput   bool              `mapstructure:"json_output"`
	YAMLOutput   bool              `mapstructure:"yaml_output"`
	HTMLOutput   string            `mapstructure:"html_output"`
	ReportFile   string            `mapstructure:"report_file"`
	Dashboard    bool              `mapstructure:"dashboard"`
	Quiet        bool              `mapstructure:"quiet"`
	MetricsAddr  string            `mapstructure:"metrics_addr"`
	LogLevel     string            `mapstructure:"log_level"`
	LogJSON      bool              `mapstructure:"log_json"`
	ConfigFile   string            `mapstructure:"-"`
}

// Stage ramps the VU target linearly to Target over Duration.
type Stage struct {
	Duration time.Duration `mapstructure:"duration"`
	Target   int           `mapstructure:"target"`
}

func (s Stage) String() string {
	return fmt.Sprintf("%s:%d", s.Duration, s.Target)
}

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

type ArrivalConfig struct {
	Model ArrivalModel `mapstructure:"model"`
}

// ReconnectConfig bounds retries of a failed session open. Attempts is the
// number of retries after the first try; zero disables reconnecting.
type ReconnectConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Base     time.Duration `mapstructure:"base"`
	Max      time.Duration `mapstructure:"max"`
}

type FeederConfig struct {
	Path     string `mapstructure:"path"`
	Type     string `mapstructure:"type"`     // "csv" or "json"
	Template string `mapstructure:"template"` // e.g. "{{message}}"
}

type WebSocketConfig struct {
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"` // WebSocket handshake timeout
	Lifetime         time.Duration `mapstructure:"lifetime"`          // How long each session stays open
	ProbeInterval    time.Duration `mapstructure:"probe_interval"`    // Interval between RTT probes
	Correlation      string        `mapstructure:"correlation"`       // "prefix" or "exact"
	QueueSize        int           `mapstructure:"queue_size"`        // Inbound event buffer
}

type SSEConfig struct {
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"` // Wait for response headers
	Lifetime         time.Duration `mapstructure:"lifetime"`          // How long each stream stays open
	QueueSize        int           `mapstructure:"queue_size"`        // Inbound event buffer
}

type GRPCConfig struct {
	ProtoFile    string            `mapstructure:"proto_file"`    // Path to .proto file
	Service      string            `mapstructure:"service"`       // Service name (e.g., "chat.ChatService")
	Method       string            `mapstructure:"method"`        // Bidirectional method name (e.g., "BidiChat")
	Metadata     map[string]string `mapstructure:"metadata"`      // gRPC metadata (headers)
	ReplyTimeout time.Duration     `mapstructure:"reply_timeout"` // Wait for an inbound message
	Pause        time.Duration     `mapstructure:"pause"`         // Pause after each exchange
	TLS          bool              `mapstructure:"tls"`           // Use TLS
	Insecure     bool              `mapstructure:"insecure"`      // Skip TLS verification
}

type AuthType string

const (
	AuthTypeStatic                  AuthType = "static"
	AuthTypeOAuth2ClientCredentials AuthType = "oauth2_client_credentials"
	AuthTypeOAuth2ResourceOwner     AuthType = "oauth2_resource_owner"
)

type AuthConfig struct {
	Type                AuthType      `mapstructure:"type"`
	TokenURL            string        `mapstructure:"token_url"`
	ClientID            string        `mapstructure:"client_id"`
	ClientSecret        string        `mapstructure:"client_secret"`
	Username            string        `mapstructure:"username"`
	Password            string        `mapstructure:"password"`
	Scopes              []string      `mapstructure:"scopes"`
	StaticToken         string        `mapstructure:"static_token"`
	RefreshBeforeExpiry time.Duration `mapstructure:"refresh_before_expiry"`
}

// TracingConfig controls OTLP span export.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`     // OTLP collector, e.g. "localhost:4317"
	Protocol    string  `mapstructure:"protocol"`     // "grpc" (default) or "http"
	ServiceName string  `mapstructure:"service_name"` // defaults to "pulsebench"
	SampleRate  float64 `mapstructure:"sample_rate"`  // 0 or 1 samples everything
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   *bool   `mapstructure:"propagate"` // inject trace context; defaults to Enabled()
}

// Enabled reports whether an exporter endpoint is configured.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != ""
}

// ShouldPropagate reports whether outgoing requests carry trace context.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// Validate collects every configuration problem. A missing target is not one:
// the run proceeds and reports every iteration as failed.
func (c Config) Validate() error {
	var issues []string
	var warnings []string

	if len(c.Stages) == 0 && c.StartVUs == 0 {
		issues = append(issues, "at least one stage is required (use --stage 30s:10 or --preset)")
	}
	if c.StartVUs < 0 {
		issues = append(issues, "start_vus must be >= 0")
	}
	issues = append(issues, validateStages(c.Stages)...)

	if peak := peakVUs(c); peak > 1000 {
		warnings = append(warnings, fmt.Sprintf("WARNING: High concurrency configured (%d VUs). Ensure you have authorization to test the target system.", peak))
	}

	// Print warnings to stderr
	if len(warnings) > 0 {
		for _, w := range warnings {
			fmt.Fprintln(os.Stderr, w)
		}
	}

	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.GracefulStop < 0 {
		issues = append(issues, "graceful_stop must be >= 0")
	}
	if c.PollInterval < 0 {
		issues = append(issues, "poll_interval must be >= 0")
	}
	if c.Dashboard && (c.JSONOutput || c.YAMLOutput) {
		issues = append(issues, "dashboard and json/yaml output are mutually exclusive")
	}
	if c.JSONOutput && c.YAMLOutput {
		issues = append(issues, "json-output and yaml-output are mutually exclusive")
	}

	issues = append(issues, validateArrivalConfig(c.Arrival)...)
	issues = append(issues, validateReconnectConfig(c.Reconnect)...)
	issues = append(issues, validateAuthConfig(c.Auth)...)

	// Security warnings for unsafe auth patterns
	if c.Auth.Type == AuthTypeOAuth2ResourceOwner {
		fmt.Fprintln(os.Stderr, "WARNING: oauth2_resource_owner (password grant) is a legacy flow and is NOT RECOMMENDED. Consider using oauth2_client_credentials instead.")
	}

	issues = append(issues, validateFeederConfig(c.Feeder)...)
	issues = append(issues, validateProtocolConfig(c.Protocol, c.WebSocket, c.SSE, c.GRPC)...)
	issues = append(issues, validateTracingConfig(c.Tracing)...)

	// Security warning for insecure gRPC
	if c.Protocol == ProtocolGRPC && c.GRPC.Insecure {
		fmt.Fprintln(os.Stderr, "WARNING: gRPC TLS verification is DISABLED (insecure: true). This should ONLY be used in development/testing environments.")
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}

	return nil
}

func validateStages(stages []Stage) []string {
	var issues []string
	for idx, stage := range stages {
		if stage.Duration < 0 {
			issues = append(issues, fmt.Sprintf("stages[%d]: duration must be >= 0", idx))
		}
		if stage.Target < 0 {
			issues = append(issues, fmt.Sprintf("stages[%d]: target must be >= 0", idx))
		}
	}
	return issues
}

func peakVUs(c Config) int {
	peak := c.StartVUs
	for _, stage := range c.Stages {
		if stage.Target > peak {
			peak = stage.Target
		}
	}
	return peak
}

func validateArrivalConfig(arr ArrivalConfig) []string {
	model := arr.Model
	if model == "" {
		model = ArrivalModelUniform
	}
	switch model {
	case ArrivalModelUniform, ArrivalModelPoisson:
		return nil
	default:
		return []string{fmt.Sprintf("arrival model %q is not supported", model)}
	}
}

func validateReconnectConfig(rc ReconnectConfig) []string {
	var issues []string
	if rc.Attempts < 0 {
		issues = append(issues, "reconnect: attempts must be >= 0")
	}
	if rc.Base < 0 || rc.Max < 0 {
		issues = append(issues, "reconnect: base and max must be >= 0")
	}
	if rc.Max > 0 && rc.Base > rc.Max {
		issues = append(issues, "reconnect: base must not exceed max")
	}
	return issues
}

func validateAuthConfig(auth AuthConfig) []string {
	var issues []string
	if auth.Type == "" {
		return nil
	}

	switch auth.Type {
	case AuthTypeStatic:
		if strings.TrimSpace(auth.StaticToken) == "" {
			issues = append(issues, "auth: static_token is required for static")
		}
	case AuthTypeOAuth2ClientCredentials:
		if strings.TrimSpace(auth.TokenURL) == "" {
			issues = append(issues, "auth: token_url is required for oauth2_client_credentials")
		}
		if strings.TrimSpace(auth.ClientID) == "" {
			issues = append(issues, "auth: client_id is required for oauth2_client_credentials")
		}
		if strings.TrimSpace(auth.ClientSecret) == "" {
			issues = append(issues, "auth: client_secret is required for oauth2_client_credentials")
		}
	case AuthTypeOAuth2ResourceOwner:
		if strings.TrimSpace(auth.TokenURL) == "" {
			issues = append(issues, "auth: token_url is required for oauth2_resource_owner")
		}
		if strings.TrimSpace(auth.ClientID) == "" {
			issues = append(issues, "auth: client_id is required for oauth2_resource_owner")
		}
		if strings.TrimSpace(auth.Username) == "" {
			issues = append(issues, "auth: username is required for oauth2_resource_owner")
		}
		if strings.TrimSpace(auth.Password) == "" {
			issues = append(issues, "auth: password is required for oauth2_resource_owner")
		}
	default:
		issues = append(issues, fmt.Sprintf("auth: unsupported type %q", auth.Type))
	}

	return issues
}

func validateFeederConfig(feeder FeederConfig) []string {
	var issues []string
	if strings.TrimSpace(feeder.Path) == "" {
		return nil // No feeder configured
	}

	switch feeder.Type {
	case "":
		// inferred from the file extension
	case "csv", "json":
	default:
		issues = append(issues, fmt.Sprintf("feeder: type must be 'csv' or 'json', got %q", feeder.Type))
	}

	return issues
}

func validateProtocolConfig(protocol Protocol, ws WebSocketConfig, sse SSEConfig, grpc GRPCConfig) []string {
	var issues []string

	switch protocol {
	case ProtocolREST, ProtocolWebSocket, ProtocolSSE, ProtocolGRPC:
		// Valid protocols
	default:
		issues = append(issues, fmt.Sprintf("protocol: must be 'rest', 'websocket', 'sse', or 'grpc', got %q", protocol))
		return issues
	}

	if protocol == ProtocolWebSocket {
		if ws.HandshakeTimeout < 0 {
			issues = append(issues, "websocket: handshake_timeout must be >= 0")
		}
		if ws.Lifetime < 0 {
			issues = append(issues, "websocket: lifetime must be >= 0")
		}
		if ws.ProbeInterval < 0 {
			issues = append(issues, "websocket: probe_interval must be >= 0")
		}
		switch ws.Correlation {
		case "", "prefix", "exact":
		default:
			issues = append(issues, fmt.Sprintf("websocket: correlation must be 'prefix' or 'exact', got %q", ws.Correlation))
		}
		if ws.QueueSize < 0 {
			issues = append(issues, "websocket: queue_size must be >= 0")
		}
	}

	if protocol == ProtocolSSE {
		if sse.HandshakeTimeout < 0 {
			issues = append(issues, "sse: handshake_timeout must be >= 0")
		}
		if sse.Lifetime < 0 {
			issues = append(issues, "sse: lifetime must be >= 0")
		}
		if sse.QueueSize < 0 {
			issues = append(issues, "sse: queue_size must be >= 0")
		}
	}

	if protocol == ProtocolGRPC {
		if grpc.ReplyTimeout < 0 {
			issues = append(issues, "grpc: reply_timeout must be >= 0")
		}
		if grpc.Pause < 0 {
			issues = append(issues, "grpc: pause must be >= 0")
		}
		if grpc.Insecure && !grpc.TLS {
			issues = append(issues, "grpc: insecure requires tls")
		}
	}

	return issues
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", t.Protocol))
	}
	return issues
}
