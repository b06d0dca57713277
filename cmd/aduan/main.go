// Package main is the entry point for the Aduan chatbot backend server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pitabwire/aduan/internal/config"
	"github.com/pitabwire/aduan/internal/dedupe"
	"github.com/pitabwire/aduan/internal/intent"
	"github.com/pitabwire/aduan/internal/observability"
	"github.com/pitabwire/aduan/internal/openapi"
	"github.com/pitabwire/aduan/internal/session"
	"github.com/pitabwire/aduan/internal/ticket"
	"github.com/pitabwire/aduan/internal/transport"
	"github.com/pitabwire/aduan/internal/workflow"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "aduan", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 4: Load the embedded OpenAPI document.
	schema, err := openapi.Load()
	if err != nil {
		logger.Error("OpenAPI schema load failed", zap.Error(err))
		return 1
	}

	// Step 5: Initialize stores.
	sessionStore, sessionCloser, err := buildSessionStore(ctx, cfg.Session.Store, logger)
	if err != nil {
		logger.Error("session store initialization failed", zap.Error(err))
		return 1
	}
	defer closeIfSet(sessionCloser)

	workflowStore, workflowCloser, err := buildWorkflowStore(ctx, cfg.Workflow.Store, logger)
	if err != nil {
		logger.Error("workflow store initialization failed", zap.Error(err))
		return 1
	}
	defer closeIfSet(workflowCloser)

	// Step 6: Optional Redis, backing ticket sequences and message dedupe.
	redisClient, err := buildRedisClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Error("redis initialization failed", zap.Error(err))
		return 1
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var counter ticket.Counter = ticket.NewMemoryCounter()
	if redisClient != nil {
		counter = ticket.NewRedisCounter(redisClient)
	}

	var dedupeStore dedupe.Store
	if cfg.Dedupe.Enabled {
		if redisClient != nil {
			dedupeStore = dedupe.NewRedisStore(redisClient)
		} else {
			dedupeStore = dedupe.NewMemoryStore()
		}
	}

	// Step 7: Build the core services.
	manager := session.NewManager(sessionStore, cfg.Session, logger, metrics)
	sweeper := session.NewSweeper(sessionStore, cfg.Session, logger, metrics)
	engine := workflow.NewEngine(workflowStore, counter, logger, metrics)
	router := intent.NewRouter(engine, intent.NewStaticResponder(""), logger, metrics)

	handlers := transport.NewHandlers(manager, sweeper, router,
		dedupeStore, cfg.Dedupe.TTL, schema, logger, metrics)

	// Step 8: Build the HTTP router with readiness checks.
	readiness := observability.ReadinessChecks{}
	if hc, ok := sessionStore.(observability.HealthChecker); ok {
		readiness.SessionStore = hc
	}
	if hc, ok := workflowStore.(observability.HealthChecker); ok {
		readiness.WorkflowStore = hc
	}
	if redisClient != nil {
		readiness.Redis = redisChecker{client: redisClient}
	}

	httpHandler := transport.NewRouter(transport.Dependencies{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics,
		Handlers:  handlers,
		Readiness: readiness,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 9: Start the scheduled cleanup sweep.
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()
	go runCleanupLoop(bgCtx, sweeper, cfg.Session.Cleanup.Interval, logger)

	// Step 10: Start the HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Bool("redis", redisClient != nil),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Cancel background tasks.
	bgCancel()

	// Flush telemetry.
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildSessionStore creates the session store based on config.
func buildSessionStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (session.Store, func(), error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory session store")
		return session.NewMemoryStore(), nil, nil
	case "postgres", "":
		pool, err := newPgPool(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("session store: %w", err)
		}
		if pool == nil {
			logger.Warn("session store DSN not configured, using in-memory store")
			return session.NewMemoryStore(), nil, nil
		}
		return session.NewPgStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported session store driver: %q", cfg.Driver)
	}
}

// buildWorkflowStore creates the workflow context store based on config.
func buildWorkflowStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (workflow.Store, func(), error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory workflow store")
		return workflow.NewMemoryStore(), nil, nil
	case "postgres", "":
		pool, err := newPgPool(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("workflow store: %w", err)
		}
		if pool == nil {
			logger.Warn("workflow store DSN not configured, using in-memory store")
			return workflow.NewMemoryStore(), nil, nil
		}
		return workflow.NewPgStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported workflow store driver: %q", cfg.Driver)
	}
}

// newPgPool connects a pgx pool from store config. Returns a nil pool when
// no DSN is configured, letting the caller fall back to memory.
func newPgPool(ctx context.Context, cfg config.StoreConfig) (*pgxpool.Pool, error) {
	dsn := os.Getenv(cfg.DSNEnv)
	if dsn == "" {
		return nil, nil
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// buildRedisClient connects the optional Redis backend. Returns nil when
// Redis is disabled or no address is configured.
func buildRedisClient(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	addr := os.Getenv(cfg.AddrEnv)
	if addr == "" {
		logger.Warn("redis enabled but address not configured, falling back to memory")
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// redisChecker adapts a redis client to observability.HealthChecker.
type redisChecker struct {
	client *redis.Client
}

func (c redisChecker) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// runCleanupLoop runs the session sweeper on a fixed interval until the
// context is cancelled.
func runCleanupLoop(ctx context.Context, sweeper *session.Sweeper, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sweeper.Run(ctx); err != nil {
				logger.Error("scheduled cleanup failed", zap.Error(err))
			}
		}
	}
}

func closeIfSet(closer func()) {
	if closer != nil {
		closer()
	}
}
