package feeder

import (
	"context"
	"fmt"
)

// DefaultTemplate renders the "message" column.
const DefaultTemplate = "{{message}}"

// Messages turns records into message strings. With no feeder every call
// returns the fallback.
type Messages struct {
	feeder   Feeder
	template string
	fallback string
}

// NewMessages wraps f. An empty template uses DefaultTemplate.
func NewMessages(f Feeder, template, fallback string) *Messages {
	if template == "" {
		template = DefaultTemplate
	}
	return &Messages{feeder: f, template: template, fallback: fallback}
}

// Next returns the payload for one iteration.
func (m *Messages) Next(ctx context.Context) (string, error) {
	if m == nil {
		return "", nil
	}
	if m.feeder == nil {
		return m.fallback, nil
	}
	rec, err := m.feeder.Next(ctx)
	if err != nil {
		return "", fmt.Errorf("next feeder record: %w", err)
	}
	return SubstitutePlaceholders(m.template, rec), nil
}

// Close closes the underlying feeder.
func (m *Messages) Close() error {
	if m == nil || m.feeder == nil {
		return nil
	}
	return m.feeder.Close()
}
