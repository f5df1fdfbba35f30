// Command cacheproxy runs the semantic chat-completion cache: it wires
// the Embedder, VectorIndex, ContentStore, and UpstreamClient
// collaborators behind CacheDecision, BackgroundWriter, and Responder,
// and serves POST /chat/completions.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/quietloop/semcache/internal/backgroundwriter"
	"github.com/quietloop/semcache/internal/cachedecision"
	"github.com/quietloop/semcache/internal/config"
	"github.com/quietloop/semcache/internal/contentstore"
	"github.com/quietloop/semcache/internal/embedding"
	"github.com/quietloop/semcache/internal/metrics"
	"github.com/quietloop/semcache/internal/responder"
	"github.com/quietloop/semcache/internal/server"
	"github.com/quietloop/semcache/internal/upstream"
	"github.com/quietloop/semcache/internal/vectorindex"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	configPath := "config/config.yaml"
	if p := os.Getenv("SEMCACHE_CONFIG"); p != "" {
		configPath = p
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	embedder := embedding.NewClient(cfg.Embedding.BaseURL, cfg.Embedding.APIKey, cfg.Embedding.Model)

	vectorIndex := vectorindex.NewQdrantIndex(cfg.VectorDB.URL, cfg.VectorDB.APIKey, cfg.VectorDB.Collection)
	ensureCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := vectorIndex.EnsureCollection(ensureCtx, cfg.VectorDB.Dimension); err != nil {
		logger.Warn("failed to ensure vector index collection, continuing anyway", "error", err)
	}
	cancel()

	contentStore := contentstore.NewRedisStore(redis.NewClient(&redis.Options{
		Addr:     cfg.ContentDB.Addr,
		Password: cfg.ContentDB.Password,
	}), cfg.ContentDB.Prefix)

	upstreamClient := upstream.NewHTTPClient(cfg.Upstream.BaseURL, cfg.Upstream.APIKey)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	decider := cachedecision.New(embedder, vectorIndex, contentStore, cfg.Cache.MatchThreshold)
	writer := backgroundwriter.New(contentStore, vectorIndex, m)
	resp := responder.New(cfg.Cache.DefaultModel)

	background := &sync.WaitGroup{}

	handler := server.NewHandler(
		decider, upstreamClient, writer, resp, m, logger,
		cfg.Cache.CaptureMaxBytes, cfg.Server.BackgroundDeadline, cfg.Cache.DefaultModel,
		background,
	)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	srv := server.New(cfg.Server.Port, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, mux, background, logger)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsMux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	go func() {
		logger.Info("starting semantic cache proxy", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.BackgroundDeadline+30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	metricsSrv.Shutdown(shutdownCtx)
	logger.Info("server stopped")
}
