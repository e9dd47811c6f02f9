// Package mlapi performs single GET requests against the marketplace API with
// a selectable authentication mode.
package mlapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.mercadolibre.com"

// maxBody caps how much of an upstream response is read.
const maxBody = 4 << 20

var (
	ErrNotJSON      = errors.New("upstream response is not JSON")
	ErrTokenMissing = errors.New("auth mode requires a token")
)

// AuthMode selects how the access token reaches the upstream.
type AuthMode int

const (
	AuthNone AuthMode = iota
	AuthHeader
	AuthQuery
)

func (m AuthMode) String() string {
	switch m {
	case AuthHeader:
		return "header"
	case AuthQuery:
		return "query"
	default:
		return "none"
	}
}

// Response is a completed upstream exchange. Data is nil unless the body was
// JSON and decoded cleanly; otherwise DecodeErr wraps ErrNotJSON.
type Response struct {
	Status      int
	URL         string
	ContentType string
	Body        []byte
	Data        any
	DecodeErr   error
}

func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Object returns the decoded body when it is a JSON object.
func (r *Response) Object() (map[string]any, bool) {
	m, ok := r.Data.(map[string]any)
	return m, ok
}

type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

func DefaultOptions() *Options {
	return &Options{
		BaseURL:   DefaultBaseURL,
		Timeout:   10 * time.Second,
		UserAgent: "ImportCostControl/1.0 (server)",
	}
}

type Client struct {
	baseURL    string
	userAgent  string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(opts *Options, logger *slog.Logger) *Client {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	opts = &o
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		userAgent:  opts.UserAgent,
		timeout:    opts.Timeout,
		httpClient: &http.Client{},
		logger:     logger.With("component", "mlapi"),
	}
}

// Get requests path (relative to the base URL) with the given query and auth.
// A non-2xx status is not an error; transport failures and timeouts are.
func (c *Client) Get(ctx context.Context, path string, query url.Values, auth AuthMode, token string) (*Response, error) {
	if auth != AuthNone && token == "" {
		return nil, ErrTokenMissing
	}

	q := url.Values{}
	for k, v := range query {
		q[k] = append([]string(nil), v...)
	}
	if auth == AuthQuery {
		q.Set("access_token", token)
	}

	target := c.baseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if auth == AuthHeader {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s failed: %w", Redact(target), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	out := &Response{
		Status:      resp.StatusCode,
		URL:         Redact(target),
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}
	if strings.Contains(out.ContentType, "json") {
		var data any
		if err := json.Unmarshal(body, &data); err != nil {
			out.DecodeErr = fmt.Errorf("%w: %v", ErrNotJSON, err)
		} else {
			out.Data = data
		}
	} else {
		out.DecodeErr = fmt.Errorf("%w: content type %q", ErrNotJSON, out.ContentType)
	}

	c.logger.Debug("upstream call",
		"url", out.URL,
		"auth", auth.String(),
		"status", out.Status,
		"duration", time.Since(start),
	)

	return out, nil
}

// Redact hides the access_token query parameter of a URL.
func Redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Get("access_token") == "" {
		return raw
	}
	q.Set("access_token", "***")
	u.RawQuery = q.Encode()
	return u.String()
}
