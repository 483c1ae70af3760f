package config

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Preset is a named protocol, stage list and threshold set.
type Preset struct {
	Protocol   Protocol
	StartVUs   int
	Stages     []Stage
	Thresholds []string
}

var presets = map[string]Preset{
	"rest": {
		Protocol: ProtocolREST,
		Stages: []Stage{
			{Duration: 20 * time.Second, Target: 100},
			{Duration: 40 * time.Second, Target: 100},
			{Duration: 10 * time.Second, Target: 0},
		},
		Thresholds: []string{
			"http_req_failed:rate<0.001",
			"http_req_duration:p95<800",
		},
	},
	"websocket": {
		Protocol: ProtocolWebSocket,
		Stages: []Stage{
			{Duration: 20 * time.Second, Target: 50},
			{Duration: 40 * time.Second, Target: 50},
			{Duration: 10 * time.Second, Target: 0},
		},
		Thresholds: []string{
			"failed_connections:count==0",
			"time_to_first_message:p95<1500",
			"websocket_message_rtt:p95<500",
		},
	},
	"sse": {
		Protocol: ProtocolSSE,
		Stages: []Stage{
			{Duration: 20 * time.Second, Target: 50},
			{Duration: 40 * time.Second, Target: 50},
			{Duration: 10 * time.Second, Target: 0},
		},
		Thresholds: []string{
			"failed_connections:count==0",
			"time_to_first_message:p95<1500",
		},
	},
	// Fixed concurrency for the whole run.
	"grpc": {
		Protocol: ProtocolGRPC,
		StartVUs: 50,
		Stages: []Stage{
			{Duration: 60 * time.Second, Target: 50},
		},
	},
}

// LookupPreset returns the named preset.
func LookupPreset(name string) (Preset, bool) {
	p, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// PresetNames lists the known presets alphabetically.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func applyPreset(cfg *Config, name string) error {
	p, ok := LookupPreset(name)
	if !ok {
		return fmt.Errorf("unknown preset %q (available: %s)", name, strings.Join(PresetNames(), ", "))
	}
	cfg.Preset = strings.ToLower(strings.TrimSpace(name))
	cfg.Protocol = p.Protocol
	cfg.StartVUs = p.StartVUs
	cfg.Stages = append([]Stage(nil), p.Stages...)
	cfg.Thresholds = append([]string(nil), p.Thresholds...)
	return nil
}
