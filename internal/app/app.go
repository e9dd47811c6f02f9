// Package app wires configuration into the services shared by the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/import-cost-control/internal/browser"
	"github.com/maltedev/import-cost-control/internal/config"
	"github.com/maltedev/import-cost-control/internal/database"
	"github.com/maltedev/import-cost-control/internal/events"
	"github.com/maltedev/import-cost-control/internal/mlapi"
	"github.com/maltedev/import-cost-control/internal/mlauth"
	"github.com/maltedev/import-cost-control/internal/pages"
	"github.com/maltedev/import-cost-control/internal/ratelimit"
	"github.com/maltedev/import-cost-control/internal/refresh"
	"github.com/maltedev/import-cost-control/internal/resolver"
	"github.com/maltedev/import-cost-control/internal/storage"
)

// Services holds everything built from one configuration. Optional parts are
// nil when not configured.
type Services struct {
	Resolver *resolver.Resolver
	Auth     *mlauth.Provider
	Redis    *redis.Client
	DB       *database.DB
	Relay    *database.Relay
	Refresh  *refresh.Job

	browser *browser.Browser
	logger  *slog.Logger
}

// Build connects to Redis and Postgres when configured and wires the
// resolver and refresh job. fileFallback makes the refresh job use the JSON
// product file when no database is configured.
func Build(ctx context.Context, cfg *config.Config, fileFallback bool, logger *slog.Logger) (*Services, error) {
	s := &Services{logger: logger}

	var cache mlauth.TokenCache
	if cfg.Redis.Enabled() {
		s.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := s.Redis.Ping(ctx).Err(); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		cache = s.Redis
	}

	s.Auth = mlauth.NewProvider(mlauth.Config{
		AppID:        cfg.OAuth.AppID,
		AppSecret:    cfg.OAuth.AppSecret,
		RefreshToken: cfg.OAuth.RefreshToken,
		RedirectURI:  cfg.OAuth.RedirectURI,
		APIBase:      cfg.Marketplace.APIBase,
		AuthBase:     cfg.Marketplace.AuthBase,
	}, cache, logger)

	api := mlapi.NewClient(&mlapi.Options{
		BaseURL:   cfg.Marketplace.APIBase,
		Timeout:   cfg.Marketplace.Timeout,
		UserAgent: cfg.Marketplace.UserAgent,
	}, logger)

	fetcher, err := s.fetcher(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Resolver = resolver.New(api, s.Auth, fetcher, &resolver.Options{
		Site:          cfg.Marketplace.SiteID,
		ListingBase:   cfg.Marketplace.ListingBase,
		ScrapeDefault: cfg.Scrape.Default,
		ScrapeTimeout: cfg.Scrape.Timeout,
	}, logger)

	limiter := ratelimit.NewAdaptiveRateLimiter(cfg.Refresh.RateMin, cfg.Refresh.RateMax)

	switch {
	case cfg.Database.Enabled():
		if err := s.openDatabase(ctx, cfg); err != nil {
			s.Close()
			return nil, err
		}

		outbox := database.NewOutboxRepository(s.DB)
		publisher := events.NewPublisher(outbox, cfg.Redis.Stream, logger)
		store := refresh.NewDBStore(s.DB, database.NewProductRepository(s.DB), publisher)

		var flusher refresh.Flusher
		if s.Redis != nil {
			s.Relay = database.NewRelay(outbox, s.Redis, logger, database.RelayConfig{
				BatchSize: cfg.Refresh.RelayBatch,
			})
			flusher = s.Relay
		}
		s.Refresh = refresh.NewJob(store, s.Resolver, limiter, flusher, logger)

	case fileFallback:
		file, err := storage.NewProductFile(cfg.Refresh.ProductsFile)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to open products file: %w", err)
		}
		s.Refresh = refresh.NewJob(refresh.NewFileStore(file, logger), s.Resolver, limiter, nil, logger)
	}

	return s, nil
}

// fetcher picks the remote browser when configured, then the direct
// collector. Without either the scrape strategy is unavailable.
func (s *Services) fetcher(cfg *config.Config) (pages.Fetcher, error) {
	if cfg.Scrape.BrowserURL != "" {
		opts := browser.DefaultOptions()
		opts.Endpoint = cfg.Scrape.BrowserURL
		opts.Token = cfg.Scrape.Token
		opts.Timeout = cfg.Scrape.Timeout
		opts.UserAgent = cfg.Scrape.UserAgent

		b, err := browser.New(opts, s.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize browser: %w", err)
		}
		s.browser = b
		return b, nil
	}

	if cfg.Scrape.Direct {
		return pages.NewDirect(cfg.Scrape.Timeout, cfg.Scrape.UserAgent, s.logger), nil
	}

	return nil, nil
}

func (s *Services) openDatabase(ctx context.Context, cfg *config.Config) error {
	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	s.DB = db

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Close releases every connection that was opened.
func (s *Services) Close() {
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			s.logger.Warn("failed to close browser", "error", err)
		}
	}
	if s.DB != nil {
		s.DB.Close()
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			s.logger.Warn("failed to close Redis", "error", err)
		}
	}
}
