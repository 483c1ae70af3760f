package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/pulsebench/pulsebench/internal/auth"
	"github.com/pulsebench/pulsebench/internal/config"
)

const defaultAuthRefreshLeeway = 30 * time.Second

// buildAuthProvider returns nil when no auth is configured.
func buildAuthProvider(cfg *config.Config) (auth.Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	authCfg := cfg.Auth
	if strings.TrimSpace(string(authCfg.Type)) == "" {
		return nil, nil
	}

	refreshWindow := authCfg.RefreshBeforeExpiry
	if refreshWindow <= 0 {
		refreshWindow = defaultAuthRefreshLeeway
	}
	oauthCfg := auth.OAuth2Config{
		TokenURL:            authCfg.TokenURL,
		ClientID:            authCfg.ClientID,
		ClientSecret:        authCfg.ClientSecret,
		Username:            authCfg.Username,
		Password:            authCfg.Password,
		Scopes:              authCfg.Scopes,
		RefreshBeforeExpiry: refreshWindow,
	}

	switch authCfg.Type {
	case config.AuthTypeStatic:
		if strings.TrimSpace(authCfg.StaticToken) == "" {
			return nil, fmt.Errorf("static token is required for %s", authCfg.Type)
		}
		return auth.NewStaticTokenProvider(authCfg.StaticToken), nil
	case config.AuthTypeOAuth2ClientCredentials:
		return auth.NewClientCredentialsProvider(oauthCfg)
	case config.AuthTypeOAuth2ResourceOwner:
		return auth.NewResourceOwnerProvider(oauthCfg)
	default:
		return nil, fmt.Errorf("unsupported auth type %q", authCfg.Type)
	}
}
