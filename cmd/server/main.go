// Package main is the entrypoint for the CodeScope companion server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sebcib/codescope/internal/analysis"
	"github.com/sebcib/codescope/internal/api"
	"github.com/sebcib/codescope/internal/api/handler"
	"github.com/sebcib/codescope/internal/cache"
	"github.com/sebcib/codescope/internal/config"
	"github.com/sebcib/codescope/internal/dedupe"
	"github.com/sebcib/codescope/internal/gateway"
	"github.com/sebcib/codescope/internal/lint"
	"github.com/sebcib/codescope/internal/record"
	"github.com/sebcib/codescope/internal/store"
	"github.com/sebcib/codescope/internal/suggest"
	"github.com/sebcib/codescope/internal/vault"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "data_dir", cfg.Local.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open the local mirror — this one is mandatory
	localStore, err := store.NewSQLiteStore(cfg.Local.DatabasePath())
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer localStore.Close()
	slog.Info("local store opened", "path", cfg.Local.DatabasePath())

	// 3. Connect to the remote backend if configured. Failure here is not
	// fatal; the gateway starts degraded and records accumulate locally.
	var remoteStore store.Store
	if cfg.Remote.URL != "" {
		pool, err := store.Connect(ctx, cfg.Remote)
		if err != nil {
			slog.Warn("remote backend unavailable, starting degraded", "error", err)
		} else {
			defer pool.Close()
			if err := store.RunMigrations(cfg.Remote.URL, "migrations"); err != nil {
				slog.Warn("remote migrations failed, starting degraded", "error", err)
				pool.Close()
			} else {
				remoteStore = store.NewPostgresStore(pool)
				slog.Info("remote backend connected")
			}
		}
	} else {
		slog.Info("no remote backend configured, running local-only")
	}

	// 4. Summary cache: Redis when configured, no-op otherwise
	var summaryCache cache.Cache = cache.NoopCache{}
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer redisCache.Close()
		if err := redisCache.Ping(ctx); err != nil {
			slog.Warn("redis unreachable, summaries uncached", "error", err)
		} else {
			summaryCache = redisCache
			slog.Info("redis connected")
		}
	}

	// 5. Credential vault over the local store
	secret, err := vault.LoadSecret(cfg.Vault, cfg.Local.DataDir)
	if err != nil {
		return fmt.Errorf("load vault secret: %w", err)
	}
	credentialVault := vault.New(localStore, secret)

	// 6. Persistence gateway
	gw := gateway.New(remoteStore, localStore, summaryCache, cfg.Remote, cfg.Redis.SummaryTTL)
	defer gw.Close()

	// 7. Analysis pipeline
	window := dedupe.New(cfg.Dedup.Window, cfg.Dedup.MaxSize)
	defer window.Close()

	builder := record.NewBuilder(window)
	provider := suggest.NewOpenAIProvider(credentialVault, cfg.Suggest)
	svc := analysis.NewService(lint.New(), provider, builder, gw)

	// 8. Build router with dependencies
	deps := api.Dependencies{
		HealthHandler:     handler.Health(gw, localStore),
		AnalyzeHandler:    handler.Analyze(svc),
		ListAnalyses:      handler.ListAnalyses(gw),
		GetAnalysis:       handler.GetAnalysis(gw),
		DeleteAnalysis:    handler.DeleteAnalysis(gw),
		StatisticsHandler: handler.Statistics(gw),
		ReconcileHandler:  handler.Reconcile(gw),

		StoreCredential:  handler.StoreCredential(credentialVault),
		CredentialStatus: handler.CredentialStatus(credentialVault),
		ClearCredential:  handler.ClearCredential(credentialVault),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
