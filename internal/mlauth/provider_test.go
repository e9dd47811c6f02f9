package mlauth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTokenCache struct {
	mock.Mock
}

func (m *MockTokenCache) Get(ctx context.Context, key string) *redis.StringCmd {
	args := m.Called(ctx, key)
	cmd := redis.NewStringCmd(ctx)
	if err := args.Error(1); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(args.String(0))
	}
	return cmd
}

func (m *MockTokenCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	args := m.Called(ctx, key, value, expiration)
	cmd := redis.NewStatusCmd(ctx)
	if err := args.Error(0); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal("OK")
	}
	return cmd
}

func tokenServer(t *testing.T, calls *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		require.Equal(t, "/oauth/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "app", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"APP_USR-123","token_type":"bearer","expires_in":21600,"refresh_token":"TG-next"}`))
	}))
}

func TestProvider_AccessToken(t *testing.T) {
	ctx := context.Background()

	t.Run("not configured", func(t *testing.T) {
		p := NewProvider(Config{AppID: "app"}, nil, slog.Default())
		_, err := p.AccessToken(ctx)
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("refresh grant without cache", func(t *testing.T) {
		var calls int32
		srv := tokenServer(t, &calls)
		defer srv.Close()

		p := NewProvider(Config{AppID: "app", AppSecret: "secret", RefreshToken: "TG-1", APIBase: srv.URL}, nil, slog.Default())

		tok, err := p.AccessToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "APP_USR-123", tok)

		// reused until expiry
		_, err = p.AccessToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("cache hit skips exchange", func(t *testing.T) {
		var calls int32
		srv := tokenServer(t, &calls)
		defer srv.Close()

		cache := new(MockTokenCache)
		cache.On("Get", ctx, "mlauth:access_token:app").Return("APP_USR-cached", nil)

		p := NewProvider(Config{AppID: "app", AppSecret: "secret", RefreshToken: "TG-1", APIBase: srv.URL}, cache, slog.Default())
		tok, err := p.AccessToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "APP_USR-cached", tok)
		assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
		cache.AssertExpectations(t)
	})

	t.Run("cache miss stores token", func(t *testing.T) {
		var calls int32
		srv := tokenServer(t, &calls)
		defer srv.Close()

		cache := new(MockTokenCache)
		cache.On("Get", ctx, "mlauth:access_token:app").Return("", redis.Nil)
		cache.On("Set", ctx, "mlauth:access_token:app", "APP_USR-123", mock.MatchedBy(func(ttl time.Duration) bool {
			return ttl > 5*time.Hour && ttl < 6*time.Hour
		})).Return(nil)

		p := NewProvider(Config{AppID: "app", AppSecret: "secret", RefreshToken: "TG-1", APIBase: srv.URL}, cache, slog.Default())
		tok, err := p.AccessToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "APP_USR-123", tok)
		cache.AssertExpectations(t)
	})

	t.Run("cache failure is not fatal", func(t *testing.T) {
		var calls int32
		srv := tokenServer(t, &calls)
		defer srv.Close()

		cache := new(MockTokenCache)
		cache.On("Get", ctx, mock.Anything).Return("", errors.New("connection refused"))
		cache.On("Set", ctx, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("connection refused"))

		p := NewProvider(Config{AppID: "app", AppSecret: "secret", RefreshToken: "TG-1", APIBase: srv.URL}, cache, slog.Default())
		tok, err := p.AccessToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "APP_USR-123", tok)
	})

	t.Run("upstream rejects refresh token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
		}))
		defer srv.Close()

		p := NewProvider(Config{AppID: "app", AppSecret: "secret", RefreshToken: "TG-1", APIBase: srv.URL}, nil, slog.Default())
		_, err := p.AccessToken(ctx)
		assert.Error(t, err)
	})
}

func TestProvider_LoginURL(t *testing.T) {
	p := NewProvider(Config{AppID: "app", RedirectURI: "https://example.com/api/ml/callback"}, nil, slog.Default())

	u, err := url.Parse(p.LoginURL("xyz"))
	require.NoError(t, err)
	assert.Equal(t, "auth.mercadolivre.com.br", u.Host)
	assert.Equal(t, "/authorization", u.Path)
	assert.Equal(t, "code", u.Query().Get("response_type"))
	assert.Equal(t, "app", u.Query().Get("client_id"))
	assert.Equal(t, "https://example.com/api/ml/callback", u.Query().Get("redirect_uri"))
	assert.Equal(t, "xyz", u.Query().Get("state"))
}

func TestConfig_Have(t *testing.T) {
	have := Config{AppID: "a", RefreshToken: "r"}.Have()
	assert.True(t, have["ML_APP_ID"])
	assert.False(t, have["ML_APP_SECRET"])
	assert.True(t, have["ML_REFRESH_TOKEN"])
}
