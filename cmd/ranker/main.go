package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/searchstack/ranker/internal/analytics"
	"github.com/searchstack/ranker/internal/ranker"
	"github.com/searchstack/ranker/internal/ranker/cache"
	"github.com/searchstack/ranker/internal/ranker/handler"
	"github.com/searchstack/ranker/pkg/config"
	"github.com/searchstack/ranker/pkg/health"
	"github.com/searchstack/ranker/pkg/kafka"
	"github.com/searchstack/ranker/pkg/logger"
	"github.com/searchstack/ranker/pkg/metrics"
	"github.com/searchstack/ranker/pkg/middleware"
	pkgredis "github.com/searchstack/ranker/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting ranker service", "port", cfg.Server.Port)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Engine construction never fails; store outages leave it degraded.
	engine := ranker.New(ctx, cfg, m)
	defer engine.Close()

	var queryCache *cache.QueryCache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, query caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis)
		slog.Info("query cache enabled",
			"addr", cfg.Redis.Addr,
			"ttl", cfg.Redis.CacheTTL,
		)
	}

	var collector *analytics.Collector
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		collector = analytics.NewCollector(producer, 10000)
		collector.Start(ctx)
		defer collector.Close()
		defer producer.Close()
	}

	checker := health.NewChecker()
	checker.Register("engine", func(ctx context.Context) health.ComponentHealth {
		switch engine.Health() {
		case ranker.StatusHealthy:
			return health.ComponentHealth{Status: health.StatusUp}
		case ranker.StatusDegraded:
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "one or more stores unavailable"}
		default:
			return health.ComponentHealth{Status: health.StatusDown, Message: "engine closed"}
		}
	})
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		if engine.IndexLive() {
			return health.ComponentHealth{Status: health.StatusUp}
		}
		return health.ComponentHealth{Status: health.StatusDegraded, Message: "serving stub index"}
	})
	checker.Register("metadata", func(ctx context.Context) health.ComponentHealth {
		if engine.MetadataAvailable() {
			return health.ComponentHealth{Status: health.StatusUp}
		}
		return health.ComponentHealth{Status: health.StatusDegraded, Message: "serving fixed defaults"}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	h := handler.New(engine, queryCache, collector, m, cfg.Search.DefaultLimit, cfg.Search.MaxResults)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Shutdown returns only after in-flight handlers drain, and the
	// deferred collector Close must not run before that: handlers call
	// Track until the last request completes.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("ranker service listening", "addr", server.Addr, "status", engine.Health())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	stop()
	<-shutdownDone
	slog.Info("ranker service stopped")
}
