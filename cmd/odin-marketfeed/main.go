// Command odin-marketfeed runs the market-data fan-out service: it wires
// configuration, logging, metrics, the shared Redis client, the tiered
// cache, leader election, the broadcast bus, the stream publisher, the
// dashboard aggregator, the periodic driver, and the transport server, then
// blocks until SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"odin-marketfeed/internal/aggregator"
	"odin-marketfeed/internal/broadcast"
	"odin-marketfeed/internal/cache"
	"odin-marketfeed/internal/config"
	"odin-marketfeed/internal/driver"
	"odin-marketfeed/internal/election"
	"odin-marketfeed/internal/fetch"
	"odin-marketfeed/internal/logging"
	"odin-marketfeed/internal/metrics"
	"odin-marketfeed/internal/store"
	"odin-marketfeed/internal/stream"
	"odin-marketfeed/internal/transport"
	"odin-marketfeed/internal/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() // nolint:errcheck

	metricsRegistry := metrics.NewRegistry()

	redisClient, err := store.NewClient(cfg.Redis)
	if err != nil {
		logger.Fatal("redis client construction failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	if err := store.Ping(pingCtx, redisClient); err != nil {
		cancelPing()
		logger.Fatal("redis ping failed", zap.Error(err))
	}
	cancelPing()

	dataCache := cache.New(redisClient, logger, metricsRegistry)
	fetchers := fetch.New(upstream.New(), cfg.Upstream)
	agg := aggregator.New(dataCache, fetchers, logger, metricsRegistry)
	publisher := stream.New(dataCache, logger)
	bus := broadcast.New(metricsRegistry)

	elector := election.New(redisClient, cfg.NodeID, logger, metricsRegistry)
	logger.Info("leader election starting", zap.String("node_id", elector.NodeID()))
	var isLeader atomic.Bool
	go elector.Monitor(ctx, &isLeader)

	tickInterval := time.Duration(cfg.Fetch.IntervalSeconds) * time.Second
	periodicDriver := driver.New(tickInterval, agg, dataCache, publisher, bus, &isLeader, logger)
	go periodicDriver.Run(ctx)

	cacheHealthy := func() bool {
		checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return store.Ping(checkCtx, redisClient) == nil
	}
	upstreamHealthy := func() bool { return true }
	transportServer := transport.NewServer(cfg.Server, logger, bus, metricsRegistry, cacheHealthy, upstreamHealthy)
	if err := transportServer.Start(ctx); err != nil {
		logger.Fatal("transport start failed", zap.Error(err))
	}

	metricsErrCh := make(chan error, 1)
	go func() {
		metricsErrCh <- runMetricsServer(ctx, cfg.Metrics, metricsRegistry, logger)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-metricsErrCh:
		if err != nil {
			logger.Error("metrics server error", zap.Error(err))
		}
		stop()
	}

	transportServer.Stop()
	bus.Close()

	releaseCtx, cancelRelease := context.WithTimeout(context.Background(), 3*time.Second)
	if err := elector.Release(releaseCtx); err != nil {
		logger.Warn("leader release failed", zap.Error(err))
	}
	cancelRelease()

	logger.Info("odin-marketfeed stopped")
}

func runMetricsServer(ctx context.Context, cfg config.MetricsConfig, metricsRegistry *metrics.Registry, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(cfg.Endpoint, metricsRegistry.Handler())

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics http server starting", zap.String("addr", cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics http server shutdown error", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
