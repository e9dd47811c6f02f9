// Package browser renders listing pages on a remote browser service over the
// Playwright protocol.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

var ErrNotConfigured = errors.New("remote browser endpoint not configured")

type Options struct {
	Endpoint       string
	Token          string
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ExtraHeaders   map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Timeout:        20 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1366,
		ViewportHeight: 768,
		AcceptLanguage: "pt-BR,pt;q=0.9,en;q=0.8",
		TimezoneID:     "America/Sao_Paulo",
		Locale:         "pt-BR",
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"DNT":    "1",
		},
	}
}

// Browser holds one lazily established connection to the remote service.
// Each Fetch gets its own browser context.
type Browser struct {
	opts   *Options
	logger *slog.Logger

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

func New(opts *Options, logger *slog.Logger) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	opts = &o
	if opts.Endpoint == "" {
		return nil, ErrNotConfigured
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	return &Browser{
		opts:   opts,
		logger: logger.With("component", "browser"),
	}, nil
}

// ConnectURL appends the service token to the websocket endpoint.
func (b *Browser) ConnectURL() (string, error) {
	u, err := url.Parse(b.opts.Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid browser endpoint: %w", err)
	}
	if b.opts.Token != "" {
		q := u.Query()
		q.Set("token", b.opts.Token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (b *Browser) connect() (playwright.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil && b.browser.IsConnected() {
		return b.browser, nil
	}

	if b.pw == nil {
		pw, err := playwright.Run()
		if err != nil {
			return nil, fmt.Errorf("failed to start playwright: %w", err)
		}
		b.pw = pw
	}

	wsURL, err := b.ConnectURL()
	if err != nil {
		return nil, err
	}

	browser, err := b.pw.Chromium.Connect(wsURL, playwright.BrowserTypeConnectOptions{
		Timeout: playwright.Float(float64(b.opts.Timeout.Milliseconds())),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to remote browser: %w", err)
	}
	b.browser = browser
	b.logger.Info("connected to remote browser")

	return browser, nil
}

// Fetch renders pageURL and returns the resulting document.
func (b *Browser) Fetch(ctx context.Context, pageURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	browser, err := b.connect()
	if err != nil {
		return "", err
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         &b.opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &b.opts.Locale,
		TimezoneId:        &b.opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  b.opts.ViewportWidth,
			Height: b.opts.ViewportHeight,
		},
		ExtraHttpHeaders: b.headers(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create browser context: %w", err)
	}
	defer bctx.Close()

	page, err := bctx.NewPage()
	if err != nil {
		return "", fmt.Errorf("failed to create new page: %w", err)
	}
	defer page.Close()

	timeout := b.opts.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	page.SetDefaultTimeout(float64(timeout.Milliseconds()))

	resp, err := page.Goto(pageURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return "", fmt.Errorf("navigation failed: %w", err)
	}
	if resp != nil && resp.Status() >= 400 {
		return "", fmt.Errorf("listing page returned status %d", resp.Status())
	}

	content, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to get page content: %w", err)
	}

	b.logger.Debug("page rendered", "url", pageURL, "bytes", len(content))
	return content, nil
}

func (b *Browser) headers() map[string]string {
	h := make(map[string]string, len(b.opts.ExtraHeaders)+1)
	for k, v := range b.opts.ExtraHeaders {
		h[k] = v
	}
	if b.opts.AcceptLanguage != "" {
		h["Accept-Language"] = b.opts.AcceptLanguage
	}
	return h
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
		b.browser = nil
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
		b.pw = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	return nil
}
