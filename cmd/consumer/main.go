// Package main starts the price feed consumer daemon.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ibs-source/pricefeed-consumer/internal/config"
	"github.com/ibs-source/pricefeed-consumer/internal/hotpath"
	"github.com/ibs-source/pricefeed-consumer/internal/log"
	"github.com/ibs-source/pricefeed-consumer/internal/metrics"
	"github.com/ibs-source/pricefeed-consumer/internal/mqtt"
	"github.com/ibs-source/pricefeed-consumer/internal/redis"
)

const metricsNamespace = "pricefeed"

// services holds everything closed on shutdown
type services struct {
	redis   *redis.Client
	mqtt    *mqtt.Pool
	store   *store
	hp      *hotpath.HotPath
	metrics *metrics.Metrics
}

func run() int {
	logger := log.New()
	logger.Info("Starting price feed consumer")

	cfg, err := loadAndLogConfig(logger)
	if err != nil {
		return 1
	}

	svc, err := initializeServices(cfg, logger)
	if err != nil {
		return 1
	}
	defer closeServices(svc, logger)

	return runMainLoop(svc, cfg, logger)
}

func loadAndLogConfig(logger *log.Logger) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		return nil, err
	}

	logger.Info("Configuration loaded successfully")
	logger.Info("Redis: %s, Stream: %s (group: group-%s)", cfg.Redis.Address, cfg.Redis.Stream, cfg.Redis.Stream)
	logger.Info("MQTT: %s, Results: %s, Transactions: %s", cfg.MQTT.Broker, cfg.MQTT.ResultTopic, orDisabled(cfg.MQTT.TxTopic))
	logger.Info("Feed: %d on %s, scheme %s, %d trusted signers", cfg.Feed.FeedID, cfg.Feed.Channel, cfg.Feed.Scheme, len(cfg.Feed.TrustedSigners))
	logger.Info("Program: %s (%s)", cfg.Feed.ProgramID, cfg.Feed.ProgramName)
	logger.Info("Store: %s, Pipeline: Buffer=%d Workers=%d", cfg.Store.Backend, cfg.Pipeline.BufferCapacity, cfg.Pipeline.ExecuteWorkers)
	return cfg, nil
}

func orDisabled(s string) string {
	if s == "" {
		return "disabled"
	}
	return s
}

func initializeServices(cfg *config.Config, logger *log.Logger) (*services, error) {
	svc := &services{metrics: metrics.NopMetrics()}
	if cfg.Metrics.Address != "" {
		svc.metrics = metrics.PrometheusMetrics(metricsNamespace, "feed_id", strconv.FormatUint(uint64(cfg.Feed.FeedID), 10))
	}

	var err error
	svc.redis, err = redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Error("Failed to create Redis client: %v", err)
		return nil, err
	}
	logger.Info("Connected to Redis")

	svc.store, err = openStore(cfg, svc.redis.Redis())
	if err != nil {
		logger.Error("Failed to open %s record store: %v", cfg.Store.Backend, err)
		closeServices(svc, logger)
		return nil, err
	}

	rt, err := newRuntime(cfg, svc.store.backend, logger)
	if err != nil {
		logger.Error("Failed to build runtime: %v", err)
		closeServices(svc, logger)
		return nil, err
	}

	svc.mqtt, err = mqtt.NewPool(&cfg.MQTT, cfg.MQTT.PoolSize, logger)
	if err != nil {
		logger.Error("Failed to create MQTT pool: %v", err)
		closeServices(svc, logger)
		return nil, err
	}
	logger.Info("Connected to MQTT broker with %d connections", cfg.MQTT.PoolSize)

	svc.hp, err = hotpath.New(svc.redis, svc.mqtt, rt, cfg, svc.metrics, logger)
	if err != nil {
		logger.Error("Failed to create hot path: %v", err)
		closeServices(svc, logger)
		return nil, err
	}
	return svc, nil
}

func closeServices(svc *services, logger *log.Logger) {
	if svc.hp != nil {
		if err := svc.hp.Close(); err != nil {
			logger.Error("Error closing hot path: %v", err)
		}
	}
	if svc.mqtt != nil {
		if err := svc.mqtt.Close(); err != nil {
			logger.Error("Error closing MQTT pool: %v", err)
		}
	}
	if svc.store != nil {
		if err := svc.store.Close(); err != nil {
			logger.Error("Error closing record store: %v", err)
		}
	}
	if svc.redis != nil {
		if err := svc.redis.Close(); err != nil {
			logger.Error("Error closing Redis client: %v", err)
		}
	}
}

func runMainLoop(svc *services, cfg *config.Config, logger *log.Logger) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 2)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := svc.hp.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- err
		}
	}()
	if cfg.Metrics.Address != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Address, cfg.Metrics.Path, logger); err != nil {
				errChan <- err
			}
		}()
	}

	logger.Info("Hot path orchestrator started")

	select {
	case sig := <-sigChan:
		logger.Info("Received signal %v, initiating graceful shutdown", sig)
		cancel()
		return handleGracefulShutdown(done, cfg, logger)

	case err := <-errChan:
		logger.Error("Consumer error: %v", err)
		cancel()
		_ = handleGracefulShutdown(done, cfg, logger)
		return 1
	}
}

// handleGracefulShutdown waits for in-flight transactions to settle
func handleGracefulShutdown(done <-chan struct{}, cfg *config.Config, logger *log.Logger) int {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Pipeline.ShutdownTimeout)
	defer shutdownCancel()

	select {
	case <-done:
		logger.Info("Graceful shutdown completed")
		logger.Info("Consumer stopped")
		return 0
	case <-shutdownCtx.Done():
		logger.Error("Shutdown timeout exceeded")
		return 1
	}
}

func main() {
	// Keep main minimal to ensure defers in run() execute correctly.
	os.Exit(run())
}
