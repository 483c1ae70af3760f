package sse

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pulsebench/pulsebench/internal/session"
)

const protocol = "sse"

// ErrHandshakeTimeout reports that no response headers arrived within
// Config.HandshakeTimeout.
var ErrHandshakeTimeout = errors.New("sse: no response headers before handshake timeout")

// Event is one dispatched Server-Sent Event.
type Event struct {
	ID    string
	Event string
	Data  string
}

// Config configures a one-way stream client.
type Config struct {
	URL     string
	Headers http.Header
	// HTTPClient must not set a total Timeout; the stream is long-lived.
	HTTPClient       *http.Client
	HandshakeTimeout time.Duration
	QueueSize        int
}

// HandshakeResult describes a successful open.
type HandshakeResult struct {
	Status   int
	OpenedAt time.Time
	Latency  time.Duration
}

// Client is one SSE session. A Client is opened at most once.
type Client struct {
	cfg  Config
	sess *session.Session

	mu      sync.Mutex
	resp    *http.Response
	cancel  context.CancelFunc
	pumpEnd chan struct{}

	closeOnce sync.Once
}

// NewClient returns an unopened client.
func NewClient(cfg Config) *Client {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Client{
		cfg:  cfg,
		sess: session.New(protocol, cfg.QueueSize, session.PrefixFirstMatch),
	}
}

// Session exposes the client's state machine and event queue.
func (c *Client) Session() *session.Session { return c.sess }

// Events is shorthand for Session().Events(). Message events carry the SSE
// event type in Name and the joined data lines in Data.
func (c *Client) Events() <-chan session.Event { return c.sess.Events() }

// ValidateURL checks that raw is an absolute http(s) URL.
func ValidateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return &session.ConfigurationError{Reason: "target URL is not set"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &session.ConfigurationError{Reason: fmt.Sprintf("invalid target URL %q: %v", raw, err)}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &session.ConfigurationError{Reason: fmt.Sprintf("target URL %q must be an absolute http(s) URL", raw)}
	}
	return nil
}

// Open issues the stream request. It succeeds only on status 200, and the
// stream stays bound to ctx until Close.
func (c *Client) Open(ctx context.Context) (HandshakeResult, error) {
	if err := ValidateURL(c.cfg.URL); err != nil {
		c.sess.Fail(err)
		return HandshakeResult{}, err
	}
	if c.sess.State() != session.Connecting {
		return HandshakeResult{}, fmt.Errorf("sse: session already %s", c.sess.State())
	}

	streamCtx, cancelCause := context.WithCancelCause(ctx)
	cancel := func() { cancelCause(nil) }
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		cancel()
		cfgErr := &session.ConfigurationError{Reason: err.Error()}
		c.sess.Fail(cfgErr)
		return HandshakeResult{}, cfgErr
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for key, values := range c.cfg.Headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	started := time.Now()
	// Only the wait for response headers is bounded.
	timer := time.AfterFunc(c.cfg.HandshakeTimeout, func() { cancelCause(ErrHandshakeTimeout) })
	resp, err := c.cfg.HTTPClient.Do(req)
	timedOut := !timer.Stop()
	if err != nil {
		cancel()
		if timedOut && ctx.Err() == nil {
			// The request error only says the context was cancelled.
			err = fmt.Errorf("no response within %s: %w", c.cfg.HandshakeTimeout, context.Cause(streamCtx))
		}
		hsErr := &session.HandshakeError{Protocol: protocol, Err: err}
		c.sess.Fail(hsErr)
		return HandshakeResult{}, hsErr
	}
	if timedOut {
		// headers raced the timer, which already cancelled the stream
		resp.Body.Close()
		cancel()
		hsErr := &session.HandshakeError{Protocol: protocol, Err: fmt.Errorf("no response within %s: %w", c.cfg.HandshakeTimeout, ErrHandshakeTimeout)}
		c.sess.Fail(hsErr)
		return HandshakeResult{}, hsErr
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		hsErr := &session.HandshakeError{Protocol: protocol, Status: resp.StatusCode}
		c.sess.Fail(hsErr)
		return HandshakeResult{Status: resp.StatusCode}, hsErr
	}

	opened := time.Now()
	c.mu.Lock()
	c.resp = resp
	c.cancel = cancel
	c.pumpEnd = make(chan struct{})
	c.mu.Unlock()

	c.sess.MarkOpen(opened)
	go c.readPump(bufio.NewReader(resp.Body))

	return HandshakeResult{Status: resp.StatusCode, OpenedAt: opened, Latency: opened.Sub(started)}, nil
}

func (c *Client) readPump(reader *bufio.Reader) {
	defer close(c.pumpEnd)
	for {
		ev, err := ReadEvent(reader)
		at := time.Now()
		if err != nil {
			if c.sess.State().Terminal() {
				return
			}
			if errors.Is(err, io.EOF) {
				c.sess.Deliver(session.Event{Kind: session.EventEnd, At: at})
				return
			}
			c.sess.Deliver(session.Event{
				Kind: session.EventError,
				At:   at,
				Err:  &session.TransportError{Protocol: protocol, Err: err},
			})
			return
		}
		if !c.sess.Deliver(session.Event{Kind: session.EventMessage, Name: ev.Event, Data: []byte(ev.Data), At: at}) {
			return
		}
	}
}

// ReadEvent reads lines until a blank line dispatches an event. Comment and
// malformed lines are skipped. io.EOF is returned when the stream ends.
func ReadEvent(reader *bufio.Reader) (Event, error) {
	event := Event{}
	var dataLines []string

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, fmt.Errorf("read line: %w", err)
		}

		line = strings.TrimRight(line, "\r\n")

		// Empty line marks end of event
		if line == "" {
			if len(dataLines) > 0 || event.Event != "" || event.ID != "" {
				event.Data = strings.Join(dataLines, "\n")
				return event, nil
			}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "id":
			event.ID = value
		case "event":
			event.Event = value
		case "data":
			dataLines = append(dataLines, value)
		}
	}
}

// Close cancels the stream and waits for the read pump. Only the first call
// has any effect.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.sess.Close()

		c.mu.Lock()
		resp, cancel, pumpEnd := c.resp, c.cancel, c.pumpEnd
		c.mu.Unlock()
		if resp == nil {
			return
		}
		cancel()
		_ = resp.Body.Close()
		<-pumpEnd
	})
	return nil
}
