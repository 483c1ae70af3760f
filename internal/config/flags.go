package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pulsebench",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Target flags
	flags.String("protocol", string(ProtocolREST), "Protocol: 'rest', 'websocket', 'sse', or 'grpc'")
	flags.String("target", "", "Target URL (host:port for grpc); falls back to $"+TargetEnv)
	flags.StringSlice("header", nil, "Additional request/handshake header in key=value form")
	flags.String("preset", "", "Load a preset stage and threshold set: rest, websocket, sse or grpc")

	// Load shape flags
	flags.StringArray("stage", nil, "Stage in duration:target form, e.g. 20s:100 (repeatable)")
	flags.Int("start-vus", 0, "Virtual users at t=0")
	flags.Duration("timeout", 30*time.Second, "Per-request timeout (rest)")
	flags.Duration("graceful-stop", 30*time.Second, "Max time to wait for virtual users after the last stage")
	flags.Duration("poll-interval", 100*time.Millisecond, "How often the VU count is reconciled with the stage target")
	flags.Duration("failure-pause", 0, "Pause after a failed iteration (0 uses the default, negative disables)")
	flags.Float64("rate", 0, "Per-VU iterations per second (0 runs iterations back to back)")
	flags.String("arrival-model", string(ArrivalModelUniform), "Arrival model to use when pacing iterations (uniform or poisson)")
	flags.Int("reconnect-attempts", 0, "Retries of a failed session open (0 disables reconnecting)")
	flags.Duration("reconnect-base", 100*time.Millisecond, "First reconnect backoff")
	flags.Duration("reconnect-max", 5*time.Second, "Reconnect backoff ceiling")

	// Threshold flags
	flags.StringArray("threshold", nil, "Threshold, e.g. 'http_req_duration:p95 < 800' (repeatable)")

	// Output flags
	flags.Bool("json-output", false, "Emit JSON formatted report")
	flags.Bool("yaml-output", false, "Emit YAML formatted report")
	flags.String("html-output", "", "Generate HTML report to the specified file path")
	flags.String("report-file", "", "Also write the JSON report to this file")
	flags.Bool("dashboard", false, "Show live terminal dashboard with metrics")
	flags.Bool("quiet", false, "Suppress the live progress line")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.Bool("log-json", false, "Emit logs as JSON")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Feeder flags
	flags.String("feeder-path", "", "Path to CSV or JSON file supplying message payloads")
	flags.String("feeder-type", "", "Type of feeder file: 'csv' or 'json' (default from extension)")
	flags.String("feeder-template", "", "Message template with {{column}} placeholders")

	// Auth flags
	flags.String("auth-type", "", "Auth: static, oauth2_client_credentials or oauth2_resource_owner")
	flags.String("auth-token", "", "Static bearer token")
	flags.String("auth-token-url", "", "OAuth2 token endpoint")
	flags.String("auth-client-id", "", "OAuth2 client id")
	flags.String("auth-client-secret", "", "OAuth2 client secret (prefer $"+EnvPrefix+"_AUTH_CLIENT_SECRET)")
	flags.StringSlice("auth-scopes", nil, "OAuth2 scopes")

	// WebSocket flags
	flags.Duration("ws-handshake-timeout", 10*time.Second, "WebSocket handshake timeout")
	flags.Duration("ws-lifetime", 20*time.Second, "How long each WebSocket session stays open")
	flags.Duration("ws-probe-interval", 5*time.Second, "Interval between RTT probes")
	flags.String("ws-correlation", "prefix", "RTT probe correlation: 'prefix' or 'exact'")

	// SSE flags
	flags.Duration("sse-handshake-timeout", 10*time.Second, "SSE wait for response headers")
	flags.Duration("sse-lifetime", 20*time.Second, "How long each SSE stream stays open")

	// gRPC flags
	flags.String("grpc-proto-file", "", "Path to .proto file (default: embedded chat.proto)")
	flags.String("grpc-service", "", "gRPC service name (default chat.ChatService)")
	flags.String("grpc-method", "", "Bidirectional streaming method (default BidiChat)")
	flags.StringToString("grpc-metadata", nil, "gRPC metadata key=value pairs")
	flags.Duration("grpc-reply-timeout", 10*time.Second, "Wait for an inbound chat message")
	flags.Duration("grpc-pause", 10*time.Millisecond, "Pause after each chat exchange")
	flags.Bool("grpc-tls", false, "Use TLS for gRPC connection")
	flags.Bool("grpc-insecure", false, "Skip TLS verification for gRPC")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (falls back to $OTEL_EXPORTER_OTLP_ENDPOINT)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.Float64("tracing-sample-rate", 1, "Fraction of sessions traced")
	flags.Bool("tracing-insecure", false, "Disable TLS towards the collector")
	flags.Bool("tracing-propagate", false, "Inject W3C trace context into requests (default on when exporting)")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if err := stringFlag(fs, "protocol", func(v string) { cfg.Protocol = Protocol(strings.ToLower(strings.TrimSpace(v))) }); err != nil {
		return err
	}
	if err := stringFlag(fs, "target", func(v string) { cfg.TargetURL = strings.TrimSpace(v) }); err != nil {
		return err
	}

	if fs.Changed("stage") {
		values, err := fs.GetStringArray("stage")
		if err != nil {
			return err
		}
		stages, err := ParseStages(values)
		if err != nil {
			return err
		}
		cfg.Stages = stages
	}
	if fs.Changed("start-vus") {
		val, err := fs.GetInt("start-vus")
		if err != nil {
			return err
		}
		cfg.StartVUs = val
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringArray("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}

	durations := map[string]*time.Duration{
		"timeout":               &cfg.Timeout,
		"graceful-stop":         &cfg.GracefulStop,
		"poll-interval":         &cfg.PollInterval,
		"failure-pause":         &cfg.FailurePause,
		"reconnect-base":        &cfg.Reconnect.Base,
		"reconnect-max":         &cfg.Reconnect.Max,
		"ws-handshake-timeout":  &cfg.WebSocket.HandshakeTimeout,
		"ws-lifetime":           &cfg.WebSocket.Lifetime,
		"ws-probe-interval":     &cfg.WebSocket.ProbeInterval,
		"sse-handshake-timeout": &cfg.SSE.HandshakeTimeout,
		"sse-lifetime":          &cfg.SSE.Lifetime,
		"grpc-reply-timeout":    &cfg.GRPC.ReplyTimeout,
		"grpc-pause":            &cfg.GRPC.Pause,
	}
	for name, target := range durations {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetDuration(name)
		if err != nil {
			return err
		}
		*target = val
	}

	if fs.Changed("rate") {
		val, err := fs.GetFloat64("rate")
		if err != nil {
			return err
		}
		cfg.Rate = val
	}
	if fs.Changed("reconnect-attempts") {
		val, err := fs.GetInt("reconnect-attempts")
		if err != nil {
			return err
		}
		cfg.Reconnect.Attempts = val
	}

	bools := map[string]*bool{
		"json-output":      &cfg.JSONOutput,
		"yaml-output":      &cfg.YAMLOutput,
		"dashboard":        &cfg.Dashboard,
		"quiet":            &cfg.Quiet,
		"log-json":         &cfg.LogJSON,
		"grpc-tls":         &cfg.GRPC.TLS,
		"grpc-insecure":    &cfg.GRPC.Insecure,
		"tracing-insecure": &cfg.Tracing.Insecure,
	}
	for name, target := range bools {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetBool(name)
		if err != nil {
			return err
		}
		*target = val
	}
	if fs.Changed("tracing-propagate") {
		val, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		cfg.Tracing.Propagate = &val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}

	strs := map[string]*string{
		"html-output":        &cfg.HTMLOutput,
		"report-file":        &cfg.ReportFile,
		"metrics-addr":       &cfg.MetricsAddr,
		"log-level":          &cfg.LogLevel,
		"feeder-path":        &cfg.Feeder.Path,
		"feeder-type":        &cfg.Feeder.Type,
		"auth-token":         &cfg.Auth.StaticToken,
		"auth-token-url":     &cfg.Auth.TokenURL,
		"auth-client-id":     &cfg.Auth.ClientID,
		"auth-client-secret": &cfg.Auth.ClientSecret,
		"grpc-proto-file":    &cfg.GRPC.ProtoFile,
		"grpc-service":       &cfg.GRPC.Service,
		"grpc-method":        &cfg.GRPC.Method,
		"tracing-endpoint":   &cfg.Tracing.Endpoint,
		"tracing-protocol":   &cfg.Tracing.Protocol,
	}
	for name, target := range strs {
		if err := stringFlag(fs, name, func(v string) { *target = strings.TrimSpace(v) }); err != nil {
			return err
		}
	}
	if err := stringFlag(fs, "feeder-template", func(v string) { cfg.Feeder.Template = v }); err != nil {
		return err
	}
	if err := stringFlag(fs, "ws-correlation", func(v string) { cfg.WebSocket.Correlation = strings.ToLower(strings.TrimSpace(v)) }); err != nil {
		return err
	}
	if err := stringFlag(fs, "auth-type", func(v string) { cfg.Auth.Type = AuthType(strings.ToLower(strings.TrimSpace(v))) }); err != nil {
		return err
	}
	// A bare token implies static auth.
	if cfg.Auth.Type == "" && cfg.Auth.StaticToken != "" {
		cfg.Auth.Type = AuthTypeStatic
	}
	if fs.Changed("auth-scopes") {
		val, err := fs.GetStringSlice("auth-scopes")
		if err != nil {
			return err
		}
		cfg.Auth.Scopes = val
	}
	if fs.Changed("arrival-model") {
		val, err := fs.GetString("arrival-model")
		if err != nil {
			return err
		}
		cfg.Arrival.Model = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}

	vals, err := fs.GetStringSlice("header")
	if err != nil {
		return err
	}
	if len(vals) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, entry := range vals {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("header must be in key=value format: %s", entry)
			}
			key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
			if key == "" {
				return fmt.Errorf("header key cannot be empty")
			}
			cfg.Headers[key] = strings.TrimSpace(parts[1])
		}
	}

	if fs.Changed("grpc-metadata") {
		md, err := fs.GetStringToString("grpc-metadata")
		if err != nil {
			return err
		}
		if cfg.GRPC.Metadata == nil {
			cfg.GRPC.Metadata = map[string]string{}
		}
		for k, v := range md {
			cfg.GRPC.Metadata[strings.ToLower(k)] = v
		}
	}

	return nil
}

func stringFlag(fs *pflag.FlagSet, name string, set func(string)) error {
	if !fs.Changed(name) {
		return nil
	}
	val, err := fs.GetString(name)
	if err != nil {
		return err
	}
	set(val)
	return nil
}
