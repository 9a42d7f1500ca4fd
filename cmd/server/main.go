package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/fleetops/assetpipe/internal/config"
	"github.com/fleetops/assetpipe/internal/core"
	_ "github.com/fleetops/assetpipe/internal/core/sources" // Register all source formats
	"github.com/fleetops/assetpipe/internal/directory"
	"github.com/fleetops/assetpipe/internal/inventory"
	"github.com/fleetops/assetpipe/internal/logging"
	"github.com/fleetops/assetpipe/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"inventory_driver", cfg.Inventory.Driver,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()

	store, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize inventory store", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	if pg, ok := store.(*inventory.PostgresStore); ok {
		sweepCtx, stopSweeper := context.WithCancel(ctx)
		defer stopSweeper()
		go pg.StartRetentionSweeper(sweepCtx, inventory.RetentionConfig{
			RetentionDays: cfg.Inventory.SessionRetentionDays,
			SweepInterval: cfg.Inventory.RetentionSweepInterval,
		}, slog.Default())
	}

	dir := directory.NewClient(cfg.Directory.BaseURL, cfg.Directory.Token, cfg.Directory.Timeout)

	service := core.NewService(dir, store, slog.Default(), core.ServiceOptions{
		MaxConcurrent: cfg.Import.MaxConcurrent,
		MaxWaitTime:   cfg.Import.MaxWaitTime,
		WaitCeiling:   cfg.Import.WaitCeiling,
	})

	slog.Info("source formats registered", "count", core.SourceCount())

	server := web.NewServer(service, cfg)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Wait for active imports to complete (with timeout)
		if active := service.ActiveImports(); active > 0 {
			slog.Info("waiting for imports to complete", "active", active)
			if err := service.Drain(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			} else {
				slog.Info("all imports completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}

// buildStore constructs the configured inventory backend. The returned
// cleanup closes the connection pool when one exists.
func buildStore(ctx context.Context, cfg *config.Config) (core.InventoryStore, func(), error) {
	if strings.ToLower(cfg.Inventory.Driver) == "memory" {
		slog.Info("using in-memory inventory store")
		return inventory.NewMemoryStore(), func() {}, nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	store := inventory.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	return store, pool.Close, nil
}
