package config

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files, the environment and
// command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// EnvPrefix prefixes environment overrides, e.g. PULSEBENCH_PROTOCOL.
const EnvPrefix = "PULSEBENCH"

// envKeys are the settings that may come from the environment.
var envKeys = []string{
	"protocol",
	"preset",
	"log_level",
	"metrics_addr",
	"tracing.endpoint",
	"tracing.protocol",
	"auth.static_token",
	"auth.client_secret",
	"auth.password",
}

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments, the optional configuration file and the
// environment to produce a Config. Precedence: flags, environment, file,
// preset, defaults.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	// If no arguments provided and no config file, show help/usage
	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}

	cfgViper, err := newViper(configPath)
	if err != nil {
		return nil, err
	}
	settings := cfgViper.AllSettings()

	cfg := defaultConfig()
	cfg.ConfigFile = configPath

	presetName, err := resolvePreset(settings, flagSet)
	if err != nil {
		return nil, err
	}
	if presetName != "" {
		if err := applyPreset(cfg, presetName); err != nil {
			return nil, err
		}
	}

	if err := applyConfigSettings(cfg, settings); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.TargetURL = strings.TrimSpace(cfg.TargetURL)
	cfg.Protocol = Protocol(strings.ToLower(strings.TrimSpace(string(cfg.Protocol))))
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Protocol:     ProtocolREST,
		Headers:      map[string]string{},
		Timeout:      30 * time.Second,
		GracefulStop: 30 * time.Second,
		PollInterval: 100 * time.Millisecond,
		Arrival:      ArrivalConfig{Model: ArrivalModelUniform},
		Reconnect:    ReconnectConfig{Base: 100 * time.Millisecond, Max: 5 * time.Second},
		LogLevel:     "info",
	}
}

func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}
	if err := v.BindEnv("target", EnvPrefix+"_TARGET", TargetEnv); err != nil {
		return nil, err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func resolvePreset(settings map[string]interface{}, fs *pflag.FlagSet) (string, error) {
	if fs.Changed("preset") {
		return fs.GetString("preset")
	}
	if raw, ok := lookupSetting(settings, "preset"); ok {
		val, err := asString(raw)
		if err != nil {
			return "", fmt.Errorf("preset: %w", err)
		}
		return strings.TrimSpace(val), nil
	}
	return "", nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		if strings.TrimSpace(val) != "" {
			cfg.Protocol = Protocol(strings.ToLower(strings.TrimSpace(val)))
		}
	}

	if raw, ok := lookupSetting(settings, "target"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("target: %w", err)
		}
		cfg.TargetURL = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for k, v := range hdrs {
			cfg.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}

	if raw, ok := lookupSetting(settings, "stages"); ok {
		stages, err := parseStages(raw)
		if err != nil {
			return fmt.Errorf("stages: %w", err)
		}
		cfg.Stages = stages
	}

	if raw, ok := lookupSetting(settings, "startvus", "start_vus", "start-vus"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("start_vus: %w", err)
		}
		cfg.StartVUs = val
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		thresholds, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = thresholds
	}

	durations := []struct {
		name   string
		keys   []string
		target *time.Duration
	}{
		{"timeout", []string{"timeout"}, &cfg.Timeout},
		{"graceful_stop", []string{"gracefulstop", "graceful_stop", "graceful-stop"}, &cfg.GracefulStop},
		{"poll_interval", []string{"pollinterval", "poll_interval", "poll-interval"}, &cfg.PollInterval},
		{"failure_pause", []string{"failurepause", "failure_pause", "failure-pause"}, &cfg.FailurePause},
	}
	for _, d := range durations {
		if raw, ok := lookupSetting(settings, d.keys...); ok {
			dur, err := asDuration(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", d.name, err)
			}
			*d.target = dur
		}
	}

	if raw, ok := lookupSetting(settings, "rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		cfg.Rate = val
	}

	if raw, ok := lookupSetting(settings, "arrival"); ok {
		arrival, err := parseArrival(raw)
		if err != nil {
			return fmt.Errorf("arrival: %w", err)
		}
		if arrival.Model != "" {
			cfg.Arrival = arrival
		}
	} else if raw, ok := lookupSetting(settings, "arrivalmodel", "arrival_model", "arrival-model"); ok {
		arrival, err := parseArrival(raw)
		if err != nil {
			return fmt.Errorf("arrivalModel: %w", err)
		}
		if arrival.Model != "" {
			cfg.Arrival = arrival
		}
	}

	if raw, ok := lookupSetting(settings, "reconnect"); ok {
		if err := applyReconnect(&cfg.Reconnect, raw); err != nil {
			return fmt.Errorf("reconnect: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "feeder"); ok {
		feeder, err := parseFeeder(raw)
		if err != nil {
			return fmt.Errorf("feeder: %w", err)
		}
		cfg.Feeder = feeder
	}

	if raw, ok := lookupSetting(settings, "auth"); ok {
		auth, err := parseAuth(raw)
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
		cfg.Auth = auth
	}

	if raw, ok := lookupSetting(settings, "websocket"); ok {
		ws, err := parseWebSocketConfig(raw)
		if err != nil {
			return fmt.Errorf("websocket: %w", err)
		}
		cfg.WebSocket = ws
	}

	if raw, ok := lookupSetting(settings, "sse"); ok {
		sse, err := parseSSEConfig(raw)
		if err != nil {
			return fmt.Errorf("sse: %w", err)
		}
		cfg.SSE = sse
	}

	if raw, ok := lookupSetting(settings, "grpc"); ok {
		grpc, err := parseGRPCConfig(raw)
		if err != nil {
			return fmt.Errorf("grpc: %w", err)
		}
		cfg.GRPC = grpc
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tracing, err := parseTracingConfig(raw)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tracing
	}

	bools := []struct {
		name   string
		keys   []string
		target *bool
	}{
		{"json_output", []string{"jsonoutput", "json_output", "json-output"}, &cfg.JSONOutput},
		{"yaml_output", []string{"yamloutput", "yaml_output", "yaml-output"}, &cfg.YAMLOutput},
		{"dashboard", []string{"dashboard"}, &cfg.Dashboard},
		{"quiet", []string{"quiet"}, &cfg.Quiet},
		{"log_json", []string{"logjson", "log_json", "log-json"}, &cfg.LogJSON},
	}
	for _, b := range bools {
		if raw, ok := lookupSetting(settings, b.keys...); ok {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", b.name, err)
			}
			*b.target = val
		}
	}

	strs := []struct {
		name   string
		keys   []string
		target *string
	}{
		{"html_output", []string{"htmloutput", "html_output", "html-output"}, &cfg.HTMLOutput},
		{"report_file", []string{"reportfile", "report_file", "report-file"}, &cfg.ReportFile},
		{"metrics_addr", []string{"metricsaddr", "metrics_addr", "metrics-addr"}, &cfg.MetricsAddr},
		{"log_level", []string{"loglevel", "log_level", "log-level"}, &cfg.LogLevel},
	}
	for _, s := range strs {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.name, err)
			}
			*s.target = strings.TrimSpace(val)
		}
	}

	return nil
}

// parseStages accepts a list of {duration, target} maps or "20s:100"
// strings.
func parseStages(value interface{}) ([]Stage, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return ParseStages(strings.Split(v, ","))
	case []string:
		return ParseStages(v)
	}
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	stages := make([]Stage, 0, len(items))
	for idx, item := range items {
		if raw, ok := item.(string); ok {
			stage, err := ParseStage(raw)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", idx, err)
			}
			stages = append(stages, stage)
			continue
		}
		entry, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		var stage Stage
		if raw, ok := lookupSetting(entry, "duration"); ok {
			dur, err := asDuration(raw)
			if err != nil {
				return nil, fmt.Errorf("index %d: duration: %w", idx, err)
			}
			stage.Duration = dur
		}
		if raw, ok := lookupSetting(entry, "target", "vus"); ok {
			val, err := asInt(raw)
			if err != nil {
				return nil, fmt.Errorf("index %d: target: %w", idx, err)
			}
			stage.Target = val
		}
		stages = append(stages, stage)
	}
	return stages, nil
}

// ParseStage parses "duration:target", e.g. "20s:100".
func ParseStage(raw string) (Stage, error) {
	durPart, targetPart, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return Stage{}, fmt.Errorf("stage %q must be in duration:target form", raw)
	}
	dur, err := time.ParseDuration(strings.TrimSpace(durPart))
	if err != nil {
		return Stage{}, fmt.Errorf("stage %q: %w", raw, err)
	}
	target, err := strconv.Atoi(strings.TrimSpace(targetPart))
	if err != nil {
		return Stage{}, fmt.Errorf("stage %q: target: %w", raw, err)
	}
	return Stage{Duration: dur, Target: target}, nil
}

// ParseStages parses each entry with ParseStage.
func ParseStages(raws []string) ([]Stage, error) {
	stages := make([]Stage, 0, len(raws))
	for _, raw := range raws {
		stage, err := ParseStage(raw)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	return stages, nil
}

func parseArrival(value interface{}) (ArrivalConfig, error) {
	if value == nil {
		return ArrivalConfig{}, nil
	}
	if str, ok := value.(string); ok {
		return ArrivalConfig{Model: ArrivalModel(strings.ToLower(strings.TrimSpace(str)))}, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return ArrivalConfig{}, err
	}
	var arrival ArrivalConfig
	if raw, ok := lookupSetting(entry, "model"); ok {
		val, err := asString(raw)
		if err != nil {
			return ArrivalConfig{}, fmt.Errorf("model: %w", err)
		}
		arrival.Model = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}
	return arrival, nil
}

func applyReconnect(rc *ReconnectConfig, value interface{}) error {
	if value == nil {
		return nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(entry, "attempts"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("attempts: %w", err)
		}
		rc.Attempts = val
	}
	if raw, ok := lookupSetting(entry, "base"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("base: %w", err)
		}
		rc.Base = dur
	}
	if raw, ok := lookupSetting(entry, "max"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("max: %w", err)
		}
		rc.Max = dur
	}
	return nil
}

func parseAuth(value interface{}) (AuthConfig, error) {
	if value == nil {
		return AuthConfig{}, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return AuthConfig{}, err
	}
	return buildAuthConfig(entry)
}

func buildAuthConfig(settings map[string]interface{}) (AuthConfig, error) {
	var auth AuthConfig
	strs := []struct {
		name   string
		keys   []string
		target *string
	}{
		{"token_url", []string{"tokenurl", "token_url", "token-url"}, &auth.TokenURL},
		{"client_id", []string{"clientid", "client_id", "client-id"}, &auth.ClientID},
		{"client_secret", []string{"clientsecret", "client_secret", "client-secret"}, &auth.ClientSecret},
		{"username", []string{"username"}, &auth.Username},
		{"password", []string{"password"}, &auth.Password},
		{"static_token", []string{"statictoken", "static_token", "static-token"}, &auth.StaticToken},
	}
	if raw, ok := lookupSetting(settings, "type"); ok {
		val, err := asString(raw)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("type: %w", err)
		}
		auth.Type = AuthType(strings.ToLower(strings.TrimSpace(val)))
	}
	for _, s := range strs {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asString(raw)
			if err != nil {
				return AuthConfig{}, fmt.Errorf("%s: %w", s.name, err)
			}
			*s.target = strings.TrimSpace(val)
		}
	}
	if raw, ok := lookupSetting(settings, "scopes"); ok {
		scopes, err := asStringSlice(raw)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("scopes: %w", err)
		}
		auth.Scopes = scopes
	}
	if raw, ok := lookupSetting(settings, "refreshbeforeexpiry", "refresh_before_expiry", "refresh-before-expiry"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("refresh_before_expiry: %w", err)
		}
		auth.RefreshBeforeExpiry = dur
	}
	return auth, nil
}

func parseFeeder(value interface{}) (FeederConfig, error) {
	if value == nil {
		return FeederConfig{}, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return FeederConfig{}, err
	}
	var feeder FeederConfig
	if raw, ok := lookupSetting(entry, "path"); ok {
		val, err := asString(raw)
		if err != nil {
			return FeederConfig{}, fmt.Errorf("path: %w", err)
		}
		feeder.Path = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "type"); ok {
		val, err := asString(raw)
		if err != nil {
			return FeederConfig{}, fmt.Errorf("type: %w", err)
		}
		feeder.Type = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(entry, "template"); ok {
		val, err := asString(raw)
		if err != nil {
			return FeederConfig{}, fmt.Errorf("template: %w", err)
		}
		feeder.Template = val
	}
	return feeder, nil
}

func parseWebSocketConfig(value interface{}) (WebSocketConfig, error) {
	if value == nil {
		return WebSocketConfig{}, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return WebSocketConfig{}, err
	}
	var ws WebSocketConfig
	if raw, ok := lookupSetting(entry, "handshaketimeout", "handshake_timeout", "handshake-timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return WebSocketConfig{}, fmt.Errorf("handshake_timeout: %w", err)
		}
		ws.HandshakeTimeout = dur
	}
	if raw, ok := lookupSetting(entry, "lifetime"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return WebSocketConfig{}, fmt.Errorf("lifetime: %w", err)
		}
		ws.Lifetime = dur
	}
	if raw, ok := lookupSetting(entry, "probeinterval", "probe_interval", "probe-interval"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return WebSocketConfig{}, fmt.Errorf("probe_interval: %w", err)
		}
		ws.ProbeInterval = dur
	}
	if raw, ok := lookupSetting(entry, "correlation"); ok {
		val, err := asString(raw)
		if err != nil {
			return WebSocketConfig{}, fmt.Errorf("correlation: %w", err)
		}
		ws.Correlation = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(entry, "queuesize", "queue_size", "queue-size"); ok {
		val, err := asInt(raw)
		if err != nil {
			return WebSocketConfig{}, fmt.Errorf("queue_size: %w", err)
		}
		ws.QueueSize = val
	}
	return ws, nil
}

func parseSSEConfig(value interface{}) (SSEConfig, error) {
	if value == nil {
		return SSEConfig{}, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return SSEConfig{}, err
	}
	var sse SSEConfig
	if raw, ok := lookupSetting(entry, "handshaketimeout", "handshake_timeout", "handshake-timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return SSEConfig{}, fmt.Errorf("handshake_timeout: %w", err)
		}
		sse.HandshakeTimeout = dur
	}
	if raw, ok := lookupSetting(entry, "lifetime"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return SSEConfig{}, fmt.Errorf("lifetime: %w", err)
		}
		sse.Lifetime = dur
	}
	if raw, ok := lookupSetting(entry, "queuesize", "queue_size", "queue-size"); ok {
		val, err := asInt(raw)
		if err != nil {
			return SSEConfig{}, fmt.Errorf("queue_size: %w", err)
		}
		sse.QueueSize = val
	}
	return sse, nil
}

func parseGRPCConfig(value interface{}) (GRPCConfig, error) {
	if value == nil {
		return GRPCConfig{}, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return GRPCConfig{}, err
	}
	var grpc GRPCConfig
	if raw, ok := lookupSetting(entry, "protofile", "proto_file", "proto-file"); ok {
		val, err := asString(raw)
		if err != nil {
			return GRPCConfig{}, fmt.Errorf("proto_file: %w", err)
		}
		grpc.ProtoFile = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "service"); ok {
		val, err := asString(raw)
		if err != nil {
			return GRPCConfig{}, fmt.Errorf("service: %w", err)
		}
		grpc.Service = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "method"); ok {
		val, err := asString(raw)
		if err != nil {
			return GRPCConfig{}, fmt.Errorf("method: %w", err)
		}
		grpc.Method = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "metadata"); ok {
		md, err := asStringMap(raw)
		if err != nil {
			return GRPCConfig{}, fmt.Errorf("metadata: %w", err)
		}
		grpc.Metadata = md
	}
	if raw, ok := lookupSetting(entry, "replytimeout", "reply_timeout", "reply-timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return GRPCConfig{}, fmt.Errorf("reply_timeout: %w", err)
		}
		grpc.ReplyTimeout = dur
	}
	if raw, ok := lookupSetting(entry, "pause"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return GRPCConfig{}, fmt.Errorf("pause: %w", err)
		}
		grpc.Pause = dur
	}
	if raw, ok := lookupSetting(entry, "tls"); ok {
		val, err := asBool(raw)
		if err != nil {
			return GRPCConfig{}, fmt.Errorf("tls: %w", err)
		}
		grpc.TLS = val
	}
	if raw, ok := lookupSetting(entry, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return GRPCConfig{}, fmt.Errorf("insecure: %w", err)
		}
		grpc.Insecure = val
	}
	return grpc, nil
}

func parseTracingConfig(value interface{}) (TracingConfig, error) {
	if value == nil {
		return TracingConfig{}, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return TracingConfig{}, err
	}
	var tc TracingConfig
	if raw, ok := lookupSetting(entry, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("endpoint: %w", err)
		}
		tc.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("protocol: %w", err)
		}
		tc.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(entry, "servicename", "service_name", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("service_name: %w", err)
		}
		tc.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("sample_rate: %w", err)
		}
		tc.SampleRate = val
	}
	if raw, ok := lookupSetting(entry, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("insecure: %w", err)
		}
		tc.Insecure = val
	}
	if raw, ok := lookupSetting(entry, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("propagate: %w", err)
		}
		tc.Propagate = &val
	}
	return tc, nil
}
