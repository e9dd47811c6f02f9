package mlapi

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(srv *httptest.Server, timeout time.Duration) *Client {
	return NewClient(&Options{BaseURL: srv.URL, Timeout: timeout, UserAgent: "test"}, slog.Default())
}

func TestClient_Get(t *testing.T) {
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/items/MLB1":
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Write([]byte(`{"id":"MLB1","price":10,"auth":"` + r.Header.Get("Authorization") + `","q":"` + r.URL.Query().Get("access_token") + `"}`))
		case "/broken":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"price":`))
		case "/html":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<html></html>`))
		case "/slow":
			time.Sleep(200 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv, time.Second)

	t.Run("public request decodes JSON", func(t *testing.T) {
		resp, err := c.Get(ctx, "/items/MLB1", nil, AuthNone, "")
		require.NoError(t, err)
		assert.True(t, resp.OK())
		obj, ok := resp.Object()
		require.True(t, ok)
		assert.Equal(t, "", obj["auth"])
	})

	t.Run("header auth", func(t *testing.T) {
		resp, err := c.Get(ctx, "/items/MLB1", nil, AuthHeader, "tok")
		require.NoError(t, err)
		obj, _ := resp.Object()
		assert.Equal(t, "Bearer tok", obj["auth"])
	})

	t.Run("query auth is redacted in URL", func(t *testing.T) {
		resp, err := c.Get(ctx, "/items/MLB1", url.Values{"attributes": {"price"}}, AuthQuery, "secret")
		require.NoError(t, err)
		obj, _ := resp.Object()
		assert.Equal(t, "secret", obj["q"])
		assert.NotContains(t, resp.URL, "secret")
		assert.Contains(t, resp.URL, "attributes=price")
	})

	t.Run("non-2xx is not an error", func(t *testing.T) {
		resp, err := c.Get(ctx, "/nope", nil, AuthNone, "")
		require.NoError(t, err)
		assert.False(t, resp.OK())
		assert.Equal(t, http.StatusForbidden, resp.Status)
	})

	t.Run("html is not decoded", func(t *testing.T) {
		resp, err := c.Get(ctx, "/html", nil, AuthNone, "")
		require.NoError(t, err)
		assert.True(t, resp.OK())
		assert.Nil(t, resp.Data)
		assert.ErrorIs(t, resp.DecodeErr, ErrNotJSON)
		assert.Contains(t, resp.DecodeErr.Error(), "text/html")
	})

	t.Run("malformed JSON is reported", func(t *testing.T) {
		resp, err := c.Get(ctx, "/broken", nil, AuthNone, "")
		require.NoError(t, err)
		assert.Nil(t, resp.Data)
		assert.ErrorIs(t, resp.DecodeErr, ErrNotJSON)
	})

	t.Run("decoded JSON has no decode error", func(t *testing.T) {
		resp, err := c.Get(ctx, "/items/MLB1", nil, AuthNone, "")
		require.NoError(t, err)
		assert.NoError(t, resp.DecodeErr)
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := c.Get(ctx, "/items/MLB1", nil, AuthHeader, "")
		assert.ErrorIs(t, err, ErrTokenMissing)
	})

	t.Run("timeout is an error", func(t *testing.T) {
		fast := newTestClient(srv, 20*time.Millisecond)
		_, err := fast.Get(ctx, "/slow", nil, AuthNone, "")
		assert.Error(t, err)
	})
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "https://x/items?access_token=%2A%2A%2A&ids=MLB1", Redact("https://x/items?ids=MLB1&access_token=abc"))
	assert.Equal(t, "https://x/items?ids=MLB1", Redact("https://x/items?ids=MLB1"))
}

func TestNewClient_LeavesOptionsUntouched(t *testing.T) {
	opts := &Options{UserAgent: "test"}
	c := NewClient(opts, slog.Default())

	assert.Empty(t, opts.BaseURL)
	assert.Zero(t, opts.Timeout)
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, 10*time.Second, c.timeout)
}
