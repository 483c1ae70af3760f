package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/pulsebench/pulsebench/internal/session"
)

const protocol = "http"

// maxBody caps how much of a response is read for the echo check.
const maxBody = 1 << 20

// AuthProvider injects credentials into outgoing requests.
type AuthProvider interface {
	InjectHeader(ctx context.Context, req *http.Request) error
}

// EchoConfig configures an EchoProbe.
type EchoConfig struct {
	URL     string
	Headers http.Header
	// Field is the JSON field sent and expected back. Defaults to "message".
	Field  string
	Auth   AuthProvider
	Client *http.Client
}

// EchoResult describes one completed exchange.
type EchoResult struct {
	Status  int
	Latency time.Duration
	Echoed  string
}

// EchoMismatchError reports a 200 response whose body did not echo the
// message that was sent.
type EchoMismatchError struct {
	Field string
	Want  string
	Got   string
}

func (e *EchoMismatchError) Error() string {
	return fmt.Sprintf("response field %q = %q, want %q", e.Field, e.Got, e.Want)
}

// EchoProbe POSTs {"<field>": message} and checks that the reply echoes it.
type EchoProbe struct {
	cfg EchoConfig
}

// NewEchoProbe applies defaults to cfg.
func NewEchoProbe(cfg EchoConfig) *EchoProbe {
	if cfg.Field == "" {
		cfg.Field = "message"
	}
	if cfg.Client == nil {
		cfg.Client = NewClient(30 * time.Second)
	}
	return &EchoProbe{cfg: cfg}
}

// ValidateURL checks that raw is an absolute http(s) URL.
func ValidateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return &session.ConfigurationError{Reason: "target URL is not set"}
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &session.ConfigurationError{Reason: fmt.Sprintf("target URL %q must be an absolute http(s) URL", raw)}
	}
	return nil
}

// Do performs one exchange. Success is status 200 with the field echoed
// verbatim. Latency covers the request through the end of the body.
func (p *EchoProbe) Do(ctx context.Context, message string) (EchoResult, error) {
	if err := ValidateURL(p.cfg.URL); err != nil {
		return EchoResult{}, err
	}

	payload, err := json.Marshal(map[string]string{p.cfg.Field: message})
	if err != nil {
		return EchoResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return EchoResult{}, &session.ConfigurationError{Reason: err.Error()}
	}
	for key, values := range p.cfg.Headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.Auth != nil {
		if err := p.cfg.Auth.InjectHeader(ctx, req); err != nil {
			return EchoResult{}, fmt.Errorf("inject auth header: %w", err)
		}
	}

	start := time.Now()
	resp, err := p.cfg.Client.Do(req)
	if err != nil {
		return EchoResult{Latency: time.Since(start)}, &session.HandshakeError{Protocol: protocol, Err: err}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	res := EchoResult{Status: resp.StatusCode, Latency: time.Since(start)}
	if readErr != nil {
		return res, &session.TransportError{Protocol: protocol, Err: readErr}
	}
	if resp.StatusCode != http.StatusOK {
		return res, &session.HandshakeError{Protocol: protocol, Status: resp.StatusCode}
	}

	res.Echoed = gjson.GetBytes(body, p.cfg.Field).String()
	if res.Echoed != message {
		return res, &EchoMismatchError{Field: p.cfg.Field, Want: message, Got: res.Echoed}
	}
	return res, nil
}
