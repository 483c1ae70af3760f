package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// OAuth2Config configures a token endpoint. Username and Password are only
// sent by the resource owner flow.
type OAuth2Config struct {
	TokenURL            string
	ClientID            string
	ClientSecret        string
	Username            string
	Password            string
	Scopes              []string
	RefreshBeforeExpiry time.Duration
	HTTPClient          *http.Client
}

// OAuth2Provider fetches and caches access tokens. Concurrent callers that
// miss the cache share one token request.
type OAuth2Provider struct {
	cfg   OAuth2Config
	grant string

	fetches singleflight.Group

	mu     sync.Mutex
	token  string
	expiry time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error,omitempty"`
	ErrorDesc   string `json:"error_description,omitempty"`
}

// NewClientCredentialsProvider uses the client_credentials grant.
func NewClientCredentialsProvider(cfg OAuth2Config) (*OAuth2Provider, error) {
	return newOAuth2Provider(cfg, "client_credentials")
}

// NewResourceOwnerProvider uses the password grant.
func NewResourceOwnerProvider(cfg OAuth2Config) (*OAuth2Provider, error) {
	if cfg.Username == "" {
		return nil, errors.New("oauth2 password grant requires a username")
	}
	return newOAuth2Provider(cfg, "password")
}

func newOAuth2Provider(cfg OAuth2Config, grant string) (*OAuth2Provider, error) {
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return nil, errors.New("oauth2 token URL is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &OAuth2Provider{cfg: cfg, grant: grant}, nil
}

// Token returns the cached token until RefreshBeforeExpiry before it lapses.
func (p *OAuth2Provider) Token(ctx context.Context) (string, error) {
	if token, ok := p.cached(); ok {
		return token, nil
	}
	v, err, _ := p.fetches.Do(p.grant, func() (any, error) {
		if token, ok := p.cached(); ok {
			return token, nil
		}
		token, ttl, err := p.fetch(ctx)
		if err != nil {
			return "", err
		}
		p.mu.Lock()
		p.token = token
		p.expiry = time.Now().Add(ttl - p.cfg.RefreshBeforeExpiry)
		p.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (p *OAuth2Provider) cached() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" && time.Now().Before(p.expiry) {
		return p.token, true
	}
	return "", false
}

func (p *OAuth2Provider) fetch(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{}
	form.Set("grant_type", p.grant)
	if p.grant == "password" {
		form.Set("username", p.cfg.Username)
		form.Set("password", p.cfg.Password)
	}
	if len(p.cfg.Scopes) > 0 {
		form.Set("scope", strings.Join(p.cfg.Scopes, " "))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)

	resp, err := p.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("fetch token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token request failed with status %d", resp.StatusCode)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", 0, fmt.Errorf("decode token response: %w", err)
	}
	if body.Error != "" {
		return "", 0, fmt.Errorf("oauth2 error: %s - %s", body.Error, body.ErrorDesc)
	}
	if body.AccessToken == "" {
		return "", 0, errors.New("no access token in response")
	}
	return body.AccessToken, time.Duration(body.ExpiresIn) * time.Second, nil
}

func (p *OAuth2Provider) InjectHeader(ctx context.Context, req *http.Request) error {
	token, err := p.Token(ctx)
	if err != nil {
		return fmt.Errorf("get token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (p *OAuth2Provider) Close() error {
	p.cfg.HTTPClient.CloseIdleConnections()
	return nil
}
