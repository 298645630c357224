package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/metascaler/internal/catalog"
	"github.com/JonMunkholm/metascaler/internal/config"
	"github.com/JonMunkholm/metascaler/internal/core"
	"github.com/JonMunkholm/metascaler/internal/logging"
	"github.com/JonMunkholm/metascaler/internal/store"
	"github.com/JonMunkholm/metascaler/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"catalog_fixture", cfg.Catalog.UsesFixture(),
		"asset_types", cfg.Catalog.AssetTypes,
		"run_max_concurrent", cfg.Run.MaxConcurrent,
		"run_workers", cfg.Run.Workers,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)
	slog.Debug("effective configuration", "config", cfg.String())

	ctx := context.Background()

	reports, closeStore, err := openReportStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open report store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	cat, err := openCatalog(cfg)
	if err != nil {
		slog.Error("failed to open catalog", "error", err)
		os.Exit(1)
	}

	service := core.NewService(cat, reports, cfg)
	server := web.NewServer(service, cfg)

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let running batches finish so their reports are saved
		if status := service.LimiterStatus(); status.Active > 0 {
			slog.Info("waiting for runs to complete", "active", status.Active)
			if err := service.WaitForRuns(shutdownCtx); err != nil {
				slog.Warn("runs did not complete in time", "error", err)
			} else {
				slog.Info("all runs completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	<-stopped
	slog.Info("server stopped")
}

// openReportStore uses Postgres when a database URL is configured and keeps
// reports in memory otherwise.
func openReportStore(ctx context.Context, cfg *config.Config) (core.ReportStore, func(), error) {
	if cfg.Database.URL == "" {
		slog.Warn("no database configured, run reports are kept in memory only")
		return store.NewMemory(), func() {}, nil
	}

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}

	pg := store.NewPostgres(pool)
	if err := pg.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pg, pool.Close, nil
}

// openCatalog loads the fixture catalog when one is configured, otherwise
// connects to the remote catalog API.
func openCatalog(cfg *config.Config) (core.Catalog, error) {
	if cfg.Catalog.UsesFixture() {
		m, err := catalog.LoadFixture(cfg.Catalog.Fixture)
		if err != nil {
			return nil, err
		}
		slog.Info("using fixture catalog", "path", cfg.Catalog.Fixture, "sets", m.Sets())
		return m, nil
	}

	c, err := catalog.NewClient(cfg.Catalog, &http.Client{})
	if err != nil {
		return nil, err
	}
	slog.Info("using catalog API", "base_url", cfg.Catalog.BaseURL)
	return c, nil
}
