package grpcclient

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/pulsebench/pulsebench/internal/session"
)

const protocol = "grpc"

// ChatStream is one bidirectional chat call. Inbound messages are delivered
// on the session queue with the sender in Event.Name.
type ChatStream struct {
	schema *ChatSchema
	sess   *session.Session
	stream grpc.ClientStream
	cancel context.CancelFunc

	sendMu  sync.Mutex
	pumpEnd chan struct{}

	closeOnce sync.Once
}

// OpenChat starts the streaming call on conn. md is attached as outgoing
// metadata.
func OpenChat(ctx context.Context, conn grpc.ClientConnInterface, schema *ChatSchema, md metadata.MD, queueSize int) (*ChatStream, error) {
	sess := session.New(protocol, queueSize, session.PrefixFirstMatch)
	c := &ChatStream{schema: schema, sess: sess}

	streamCtx, cancel := context.WithCancel(ctx)
	if len(md) > 0 {
		streamCtx = metadata.NewOutgoingContext(streamCtx, md)
	}
	desc := &grpc.StreamDesc{
		StreamName:    schema.method.GetName(),
		ClientStreams: true,
		ServerStreams: true,
	}
	stream, err := conn.NewStream(streamCtx, desc, schema.FullMethod())
	if err != nil {
		cancel()
		hsErr := &session.HandshakeError{Protocol: protocol, Err: err}
		sess.Fail(hsErr)
		return c, hsErr
	}

	c.stream = stream
	c.cancel = cancel
	c.pumpEnd = make(chan struct{})
	sess.MarkOpen(time.Now())
	go c.recvPump()
	return c, nil
}

// Session exposes the stream's state machine and event queue.
func (c *ChatStream) Session() *session.Session { return c.sess }

// Events is shorthand for Session().Events().
func (c *ChatStream) Events() <-chan session.Event { return c.sess.Events() }

func (c *ChatStream) recvPump() {
	defer close(c.pumpEnd)
	for {
		msg := c.schema.NewInbound()
		err := c.stream.RecvMsg(msg)
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
		ev := session.Event{
			Kind: session.EventMessage,
			Name: stringField(msg, "sender"),
			Data: []byte(stringField(msg, "message")),
			At:   at,
		}
		if !c.sess.Deliver(ev) {
			return
		}
	}
}

// Send writes one chat message.
func (c *ChatStream) Send(sender, message string) error {
	if c.sess.State() != session.Open {
		return errors.New("grpc: stream not open")
	}
	msg, err := c.schema.NewOutbound(sender, message, time.Now())
	if err != nil {
		return err
	}
	c.sendMu.Lock()
	err = c.stream.SendMsg(msg)
	c.sendMu.Unlock()
	if err != nil {
		return &session.TransportError{Protocol: protocol, Err: err}
	}
	c.sess.RecordSent(len(message))
	return nil
}

// Close half-closes the call, cancels it and waits for the receive pump.
// Only the first call has any effect.
func (c *ChatStream) Close() error {
	c.closeOnce.Do(func() {
		c.sess.Close()
		if c.stream == nil {
			return
		}
		c.sendMu.Lock()
		_ = c.stream.CloseSend()
		c.sendMu.Unlock()
		c.cancel()
		<-c.pumpEnd
	})
	return nil
}

// StatusCode returns the gRPC status name for err, "OK" for nil.
func StatusCode(err error) string {
	if err == nil {
		return codes.OK.String()
	}
	var te *session.TransportError
	if errors.As(err, &te) {
		err = te.Err
	}
	var he *session.HandshakeError
	if errors.As(err, &he) && he.Err != nil {
		err = he.Err
	}
	if st, ok := status.FromError(err); ok {
		return st.Code().String()
	}
	return codes.Unknown.String()
}
