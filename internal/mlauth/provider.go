// Package mlauth obtains marketplace access tokens from a long-lived refresh
// token and caches them in Redis between invocations.
package mlauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

const (
	DefaultAPIBase  = "https://api.mercadolibre.com"
	DefaultAuthBase = "https://auth.mercadolivre.com.br"

	// cached tokens expire this long before the upstream says they do
	expiryMargin = time.Minute
)

var ErrNotConfigured = errors.New("ML_APP_ID / ML_APP_SECRET / ML_REFRESH_TOKEN not configured")

type Config struct {
	AppID        string
	AppSecret    string
	RefreshToken string
	RedirectURI  string
	APIBase      string
	AuthBase     string
}

// Configured reports whether a refresh-token grant can be attempted.
func (c Config) Configured() bool {
	return c.AppID != "" && c.AppSecret != "" && c.RefreshToken != ""
}

// Have lists which OAuth settings are present, without their values.
func (c Config) Have() map[string]bool {
	return map[string]bool{
		"ML_APP_ID":        c.AppID != "",
		"ML_APP_SECRET":    c.AppSecret != "",
		"ML_REDIRECT_URI":  c.RedirectURI != "",
		"ML_REFRESH_TOKEN": c.RefreshToken != "",
	}
}

func (c Config) oauthConfig() *oauth2.Config {
	apiBase := strings.TrimRight(c.APIBase, "/")
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	authBase := strings.TrimRight(c.AuthBase, "/")
	if authBase == "" {
		authBase = DefaultAuthBase
	}
	return &oauth2.Config{
		ClientID:     c.AppID,
		ClientSecret: c.AppSecret,
		RedirectURL:  c.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authBase + "/authorization",
			TokenURL:  apiBase + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// TokenCache is the subset of the Redis client used for caching.
type TokenCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Provider hands out access tokens. A missing configuration is reported as
// ErrNotConfigured so callers can proceed unauthenticated.
type Provider struct {
	cfg        Config
	oauth      *oauth2.Config
	cache      TokenCache
	httpClient *http.Client
	logger     *slog.Logger

	mu  sync.Mutex
	src oauth2.TokenSource
}

// NewProvider builds a provider; cache may be nil.
func NewProvider(cfg Config, cache TokenCache, logger *slog.Logger) *Provider {
	return &Provider{
		cfg:        cfg,
		oauth:      cfg.oauthConfig(),
		cache:      cache,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger.With("component", "mlauth"),
	}
}

func (p *Provider) Config() Config {
	return p.cfg
}

func (p *Provider) cacheKey() string {
	return "mlauth:access_token:" + p.cfg.AppID
}

// AccessToken returns a valid bearer token.
func (p *Provider) AccessToken(ctx context.Context) (string, error) {
	if !p.cfg.Configured() {
		return "", ErrNotConfigured
	}

	if p.cache != nil {
		cached, err := p.cache.Get(ctx, p.cacheKey()).Result()
		switch {
		case err == nil && cached != "":
			return cached, nil
		case err != nil && !errors.Is(err, redis.Nil):
			p.logger.Warn("token cache read failed", "error", err)
		}
	}

	tok, err := p.source().Token()
	if err != nil {
		return "", fmt.Errorf("token exchange failed: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("token exchange returned empty access_token")
	}

	if p.cache != nil {
		ttl := time.Until(tok.Expiry) - expiryMargin
		if !tok.Expiry.IsZero() && ttl > 0 {
			if err := p.cache.Set(ctx, p.cacheKey(), tok.AccessToken, ttl).Err(); err != nil {
				p.logger.Warn("token cache write failed", "error", err)
			}
		}
	}

	return tok.AccessToken, nil
}

// source keeps one reusing token source per process so a rotated refresh
// token is carried forward.
func (p *Provider) source() oauth2.TokenSource {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.src == nil {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, p.httpClient)
		p.src = p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: p.cfg.RefreshToken})
	}
	return p.src
}

// LoginURL is where an operator authorises the application.
func (p *Provider) LoginURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token pair.
func (p *Provider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return tok, nil
}
