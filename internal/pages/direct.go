package pages

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gocolly/colly/v2"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Direct downloads listing pages with a plain HTTP collector, no rendering.
type Direct struct {
	timeout   time.Duration
	userAgent string
	logger    *slog.Logger
}

func NewDirect(timeout time.Duration, userAgent string, logger *slog.Logger) *Direct {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Direct{
		timeout:   timeout,
		userAgent: userAgent,
		logger:    logger.With("component", "direct_fetcher"),
	}
}

func (d *Direct) Fetch(ctx context.Context, pageURL string) (string, error) {
	c := colly.NewCollector(
		colly.UserAgent(d.userAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(d.timeout)

	var body []byte
	var status int

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "pt-BR,pt;q=0.9,en-US;q=0.8,en;q=0.7")
	})

	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})

	if err := c.Visit(pageURL); err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	d.logger.Debug("listing page fetched", "url", pageURL, "status", status, "bytes", len(body))

	if len(body) == 0 {
		return "", ErrEmptyPage
	}
	return string(body), nil
}
