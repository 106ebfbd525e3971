// Command server starts the gold analysis HTTP API.
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

	"github.com/goldnightmare/analysis-api/internal/adapter/ai"
	"github.com/goldnightmare/analysis-api/internal/adapter/cache"
	"github.com/goldnightmare/analysis-api/internal/adapter/httpserver"
	"github.com/goldnightmare/analysis-api/internal/adapter/price"
	"github.com/goldnightmare/analysis-api/internal/adapter/repo/mongodb"
	"github.com/goldnightmare/analysis-api/internal/app"
	"github.com/goldnightmare/analysis-api/internal/config"
	"github.com/goldnightmare/analysis-api/internal/observability"
	"github.com/goldnightmare/analysis-api/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register all Prometheus metrics once per process so /metrics exposes
	// HTTP, price, LLM and audit instrumentation.
	observability.InitMetrics()

	ctx := context.Background()

	// Infra: document store
	db, closeDB, err := mongodb.Connect(ctx, cfg.MongoURL, cfg.DBName)
	if err != nil {
		slog.Error("mongo connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = closeDB(context.Background()) }()
	if err := mongodb.EnsureIndexes(ctx, db); err != nil {
		slog.Error("index creation failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Repositories
	users := mongodb.NewUserRepo(db)
	logs := mongodb.NewLogRepo(db)
	summaries := mongodb.NewSummaryRepo(db)
	admins := mongodb.NewAdminRepo(db)
	prices := mongodb.NewPriceRepo(db)

	// Cache: Redis when reachable, in-process fallback otherwise.
	kv := cache.Connect(ctx, cfg.RedisAddr, cfg.CacheSweepInterval, logger)
	store := cache.NewStore(kv, cfg.PriceCacheTTL, cfg.AnalysisCacheTTL)

	// Price sources
	providers, err := cfg.GoldProviders()
	if err != nil {
		slog.Error("provider config failed", slog.Any("error", err))
		os.Exit(1)
	}
	// An empty or malformed provider table is a fatal configuration error,
	// same as an unreachable store.
	agg, err := price.NewAggregator(providers, cfg.ProviderTimeout, cfg.ProviderConnectTO, store, prices, logger)
	if err != nil {
		slog.Error("price aggregator init failed", slog.Any("error", err))
		os.Exit(1)
	}
	forex := price.NewForexSource(&http.Client{Timeout: cfg.ProviderTimeout}, store, logger, "")

	// Services
	clock := usecase.SystemClock()
	auth := usecase.NewAuthService(users, clock, logger)
	composer := usecase.NewPromptComposer(cfg)
	llm := ai.NewClaudeClient(cfg, logger)

	audit := usecase.NewAuditRecorder(logs, summaries, clock, logger)
	audit.Start()
	defer audit.Stop()

	analysis := usecase.NewAnalysisService(auth, agg, forex, composer, llm, store, audit, clock, logger)

	tokens := usecase.NewAdminTokenManager(cfg.AdminTokenSecret, cfg.AdminTokenLifetime, clock)
	admin := usecase.NewAdminService(admins, users, logs, summaries, tokens, clock, logger, cfg.MasterUserID)
	if err := admin.Seed(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		slog.Error("admin seed failed", slog.Any("error", err))
		os.Exit(1)
	}

	// HTTP edge
	srv := httpserver.NewServer(cfg, auth, analysis, admin, agg, forex, clock)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
