// ais-server hosts the REST API over the plan/run engine: compiling
// workflow documents, starting runs, and exposing their checkpoints and
// event logs for replay.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smilemakc/ais-go/internal/application/auth"
	appengine "github.com/smilemakc/ais-go/internal/application/engine"
	"github.com/smilemakc/ais-go/internal/config"
	"github.com/smilemakc/ais-go/internal/infrastructure/api/rest"
	"github.com/smilemakc/ais-go/internal/infrastructure/cache"
	"github.com/smilemakc/ais-go/internal/infrastructure/logger"
	"github.com/smilemakc/ais-go/internal/infrastructure/storage"
	"github.com/smilemakc/ais-go/internal/infrastructure/tracing"
	"github.com/smilemakc/ais-go/pkg/executor"
	"github.com/smilemakc/ais-go/pkg/policy"
	"github.com/smilemakc/ais-go/pkg/solver"
	"github.com/smilemakc/ais-go/pkg/trace"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	appLogger := logger.New(cfg.Logging)
	logger.SetDefault(appLogger)
	appLogger.Info("starting ais-server", "port", cfg.Server.Port)

	tracerProvider, err := tracing.NewProvider(context.Background(), tracingConfigFromEnv())
	if err != nil {
		appLogger.Warn("tracing disabled", "error", err)
	} else if tracerProvider != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tracerProvider.Shutdown(ctx)
		}()
	}

	dbConfig := &storage.Config{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MinConnections,
		ConnMaxLifetime: cfg.Database.MaxConnLifetime,
		ConnMaxIdleTime: cfg.Database.MaxIdleTime,
		Debug:           cfg.Logging.Level == "debug",
	}
	db, err := storage.NewDB(dbConfig)
	if err != nil {
		appLogger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer storage.Close(db)
	appLogger.Info("database connected", "max_conns", cfg.Database.MaxConnections)

	var redisCache *cache.RedisCache
	if redisCache, err = cache.NewRedisCache(cfg.Redis); err != nil {
		appLogger.Warn("redis cache unavailable, continuing without it", "error", err)
		redisCache = nil
	} else {
		defer redisCache.Close()
		appLogger.Info("redis cache connected")
	}

	router := executor.NewRouter()
	router.Register("default", "evm:*", &executor.EVMCallExecutor{ChainID: "evm"})
	router.Register("default", "solana:*", &executor.SolanaCallExecutor{Cluster: "solana"})
	router.Register("default", "*", executor.Unsupported("no executor registered for this chain"))

	plans := storage.NewPlanRepository(db)
	runs := storage.NewRunRepository(db)
	policyOptions := policy.EnforcementOptions{
		Chains:                  cfg.Policy.Chains,
		ExecutionTypes:          cfg.Policy.ExecutionTypes,
		ActionRefs:              cfg.Policy.ActionRefs,
		StrictAllowlist:         cfg.Policy.StrictAllowlist,
		MaxRiskLevel:            cfg.Policy.MaxRiskLevel,
		MaxSpendAmount:          cfg.Policy.MaxSpendAmount,
		MaxSlippageBps:          cfg.Policy.MaxSlippageBps,
		ForbidUnlimitedApproval: cfg.Policy.ForbidUnlimitedApproval,
		HardBlockOnMissing:      cfg.Policy.HardBlockOnMissing,
	}
	manager := appengine.NewManager(plans, runs, router, parseRedactionMode(cfg.Policy.RedactionMode), policyOptions, solver.Context{})

	gate := auth.NewGate(cfg.Server.APIKeys)
	if !gate.Enabled() {
		appLogger.Warn("no AIS_API_KEYS configured, mutating endpoints run unauthenticated")
	}

	ginRouter := rest.NewRouter(rest.Dependencies{
		DB:      db,
		Cache:   redisCache,
		Manager: manager,
		Gate:    gate,
		Logger:  appLogger,
		CORS:    true,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      ginRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		appLogger.Info("http server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			appLogger.Error("server error", "error", err)
			os.Exit(1)
		}
	case sig := <-shutdown:
		appLogger.Info("shutdown initiated", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			appLogger.Error("graceful shutdown failed", "error", err)
			os.Exit(1)
		}
		appLogger.Info("server stopped")
	}
}

func tracingConfigFromEnv() tracing.Config {
	cfg := tracing.Config{
		Enabled:     os.Getenv("OTEL_ENABLED") == "true",
		ServiceName: "ais-go",
		Endpoint:    "localhost:4318",
		Insecure:    true,
		SampleRate:  1.0,
	}
	if v := os.Getenv("OTEL_SERVICE_NAME"); v != "" {
		cfg.ServiceName = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "false" {
		cfg.Insecure = false
	}
	return cfg
}

func parseRedactionMode(mode string) trace.Mode {
	switch mode {
	case "audit":
		return trace.Audit
	case "off":
		return trace.Off
	default:
		return trace.Default
	}
}
