// Package auth supplies bearer tokens for REST requests, WebSocket and SSE
// handshakes, and gRPC stream metadata.
package auth

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/grpc/metadata"
)

// Provider obtains a token and injects it into outgoing requests.
type Provider interface {
	// Token returns a valid token, from cache when possible.
	Token(ctx context.Context) (string, error)

	// InjectHeader sets the Authorization header on req.
	InjectHeader(ctx context.Context, req *http.Request) error

	Close() error
}

// ApplyHeader sets the Authorization header on h. A nil provider leaves h
// untouched.
func ApplyHeader(ctx context.Context, p Provider, h http.Header) error {
	if p == nil {
		return nil
	}
	token, err := p.Token(ctx)
	if err != nil {
		return fmt.Errorf("auth token: %w", err)
	}
	h.Set("Authorization", "Bearer "+token)
	return nil
}

// ApplyMetadata sets the authorization key on md.
func ApplyMetadata(ctx context.Context, p Provider, md metadata.MD) error {
	if p == nil {
		return nil
	}
	token, err := p.Token(ctx)
	if err != nil {
		return fmt.Errorf("auth token: %w", err)
	}
	md.Set("authorization", "Bearer "+token)
	return nil
}
