package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/maltedev/import-cost-control/internal/app"
	"github.com/maltedev/import-cost-control/internal/config"
)

func main() {
	var (
		interval = flag.Duration("interval", 0, "Repeat every interval (overrides REFRESH_INTERVAL; 0 runs once)")
		file     = flag.String("products", "", "JSON products file when no database is configured (overrides PRODUCTS_FILE)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *interval > 0 {
		cfg.Refresh.Interval = *interval
	}
	if *file != "" {
		cfg.Refresh.ProductsFile = *file
	}

	logger := cfg.Logging.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := app.Build(ctx, cfg, true, logger)
	if err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}
	defer services.Close()

	job := services.Refresh

	if cfg.Refresh.Interval <= 0 {
		summary, err := job.Run(ctx)
		if err != nil {
			logger.Error("refresh failed", "error", err)
			services.Close()
			os.Exit(1)
		}
		if summary.Failed > 0 {
			logger.Warn("some products could not be refreshed", "failed", summary.Failed)
		}
		return
	}

	logger.Info("refresh loop starting", "interval", cfg.Refresh.Interval)
	if err := job.Loop(ctx, cfg.Refresh.Interval); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("refresh loop stopped", "error", err)
	}
	logger.Info("refresh loop stopped")
}
