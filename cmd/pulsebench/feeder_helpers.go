package main

import (
	"fmt"
	"strings"

	"github.com/pulsebench/pulsebench/internal/config"
	feederpkg "github.com/pulsebench/pulsebench/internal/feeder"
)

// buildMessages returns nil when no feeder is configured, leaving each
// scenario on its default payload.
func buildMessages(cfg *config.Config) (*feederpkg.Messages, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	path := strings.TrimSpace(cfg.Feeder.Path)
	if path == "" {
		return nil, nil
	}

	var (
		inner feederpkg.Feeder
		err   error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Feeder.Type)) {
	case "csv":
		inner, err = feederpkg.NewCSVFeeder(path)
	case "json":
		inner, err = feederpkg.NewJSONFeeder(path)
	case "":
		inner, err = feederpkg.Open(path)
	default:
		return nil, fmt.Errorf("unsupported feeder type %q", cfg.Feeder.Type)
	}
	if err != nil {
		return nil, err
	}

	return feederpkg.NewMessages(inner, cfg.Feeder.Template, ""), nil
}
