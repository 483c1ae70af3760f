package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pulsebench/pulsebench/internal/session"
)

const protocol = "websocket"

// Config configures a duplex client.
type Config struct {
	URL              string
	Headers          http.Header
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	MaxMessageSize   int64
	QueueSize        int
	Correlation      session.CorrelationPolicy
}

// HandshakeResult describes a successful upgrade.
type HandshakeResult struct {
	Status   int
	OpenedAt time.Time
	Latency  time.Duration
}

// Client is one WebSocket session. A Client is opened at most once.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	sess   *session.Session

	mu      sync.Mutex // guards writes and conn
	conn    *websocket.Conn
	pumpEnd chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewClient returns an unopened client.
func NewClient(cfg Config) *Client {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = 1024 * 1024 // 1MB default
	}

	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			Proxy:            http.ProxyFromEnvironment,
		},
		sess: session.New(protocol, cfg.QueueSize, cfg.Correlation),
	}
}

// Session exposes the client's state machine and event queue.
func (c *Client) Session() *session.Session { return c.sess }

// Events is shorthand for Session().Events().
func (c *Client) Events() <-chan session.Event { return c.sess.Events() }

// ValidateURL checks that raw is an absolute ws:// or wss:// URL.
func ValidateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return &session.ConfigurationError{Reason: "target URL is not set"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &session.ConfigurationError{Reason: fmt.Sprintf("invalid target URL %q: %v", raw, err)}
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return &session.ConfigurationError{Reason: fmt.Sprintf("target URL %q must use ws or wss", raw)}
	}
	if u.Host == "" {
		return &session.ConfigurationError{Reason: fmt.Sprintf("target URL %q has no host", raw)}
	}
	return nil
}

// Open performs the upgrade handshake. It succeeds only on status 101 and
// starts the read pump before returning, so no inbound message is missed.
func (c *Client) Open(ctx context.Context) (HandshakeResult, error) {
	if err := ValidateURL(c.cfg.URL); err != nil {
		c.sess.Fail(err)
		return HandshakeResult{}, err
	}
	if c.sess.State() != session.Connecting {
		return HandshakeResult{}, fmt.Errorf("websocket: session already %s", c.sess.State())
	}

	started := time.Now()
	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, c.cfg.Headers)
	if err != nil {
		hsErr := &session.HandshakeError{Protocol: protocol, Err: err}
		if resp != nil {
			hsErr.Status = resp.StatusCode
		}
		c.sess.Fail(hsErr)
		return HandshakeResult{Status: hsErr.Status}, hsErr
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		conn.Close()
		hsErr := &session.HandshakeError{Protocol: protocol, Status: resp.StatusCode}
		c.sess.Fail(hsErr)
		return HandshakeResult{Status: resp.StatusCode}, hsErr
	}

	opened := time.Now()
	conn.SetReadLimit(c.cfg.MaxMessageSize)

	c.mu.Lock()
	c.conn = conn
	c.pumpEnd = make(chan struct{})
	c.mu.Unlock()

	c.sess.MarkOpen(opened)
	go c.readPump(conn)

	return HandshakeResult{Status: resp.StatusCode, OpenedAt: opened, Latency: opened.Sub(started)}, nil
}

func (c *Client) readPump(conn *websocket.Conn) {
	defer close(c.pumpEnd)
	for {
		_, data, err := conn.ReadMessage()
		at := time.Now()
		if err != nil {
			if c.sess.State().Terminal() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
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
		if !c.sess.Deliver(session.Event{Kind: session.EventMessage, Data: data, At: at}) {
			return
		}
	}
}

// Send writes one text frame.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(data)
}

// SendProbe writes "ping <unix_ms>" and registers it for correlation.
func (c *Client) SendProbe() (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	c.sess.Probes().Sent(now)
	return now, c.writeLocked([]byte(session.FormatProbe(now)))
}

func (c *Client) writeLocked(data []byte) error {
	if c.conn == nil || c.sess.State() != session.Open {
		return errors.New("websocket: not open")
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &session.TransportError{Protocol: protocol, Err: err}
	}
	c.sess.RecordSent(len(data))
	return nil
}

// Close sends a close frame, closes the connection and waits for the read
// pump to exit. Only the first call has any effect.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.sess.Close()

		c.mu.Lock()
		conn := c.conn
		pumpEnd := c.pumpEnd
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.closeErr = conn.Close()
		<-pumpEnd
	})
	return c.closeErr
}
