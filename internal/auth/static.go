package auth

import (
	"context"
	"net/http"
)

// StaticTokenProvider returns a token obtained outside the tool.
type StaticTokenProvider struct {
	token string
}

// NewStaticTokenProvider wraps token.
func NewStaticTokenProvider(token string) *StaticTokenProvider {
	return &StaticTokenProvider{token: token}
}

func (p *StaticTokenProvider) Token(context.Context) (string, error) {
	return p.token, nil
}

func (p *StaticTokenProvider) InjectHeader(_ context.Context, req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+p.token)
	return nil
}

func (p *StaticTokenProvider) Close() error { return nil }
