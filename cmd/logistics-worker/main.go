package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"agri-mesh-go/internal/config"
	"agri-mesh-go/internal/consumer"
	appCoreLogger "agri-mesh-go/internal/logger"
	"agri-mesh-go/internal/logistics"
	"agri-mesh-go/internal/storage"
	"agri-mesh-go/internal/tracing"
)

var serviceName = "logistics-worker" //nolint:gochecknoglobals

func main() {
	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	zerolog.TimeFieldFormat = time.RFC3339
	logger := zerolog.New(consoleWriter).With().Timestamp().Caller().Logger()
	appCoreLogger.Logger = logger
	zlog.Logger = logger

	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "", "Path to config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Info().Msg("config loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Tracing.Enabled {
		shutdownTracing, err := tracing.Setup(ctx, serviceName, cfg.Tracing)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to set up tracing")
		}
		defer func() {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			if err := shutdownTracing(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("tracing shutdown")
			}
		}()
		logger.Info().Msg("tracing initialized")
	}

	// Deduplication is best-effort. A missing Redis leaves the worker
	// running as a plain at-least-once consumer.
	var dedup consumer.Deduper
	redisAdapter, err := storage.NewRedisAdapter(&cfg.Redis)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, message deduplication disabled")
	} else {
		defer redisAdapter.Close()
		dedup = consumer.NewRedisDeduper(redisAdapter.Client())
		logger.Info().Msg("redis deduplication enabled")
	}

	eventsHandler := logistics.NewProcurementEventsHandler(logger)
	c := consumer.NewConsumer(&cfg.RabbitMQ, eventsHandler, dedup, logger)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info().Msg("termination signal received, shutting down")
		cancel()
	}()

	logger.Info().
		Str("queue", cfg.RabbitMQ.LogisticsQueue).
		Int("prefetch", cfg.RabbitMQ.PrefetchCount).
		Msg("logistics worker starting")

	if err := c.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("consumer terminated")
	}
	logger.Info().Msg("shutdown complete")
}
