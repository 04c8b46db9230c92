package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"agri-mesh-go/internal/api/handler"
	"agri-mesh-go/internal/api/router"
	"agri-mesh-go/internal/config"
	appCoreLogger "agri-mesh-go/internal/logger"
	"agri-mesh-go/internal/outbox"
	"agri-mesh-go/internal/storage"
	"agri-mesh-go/internal/tracing"
)

var serviceName = "procurement-api" //nolint:gochecknoglobals

func main() {
	initLogger()

	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "", "Path to config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		glog.Fatalf("failed to load config: %v", err)
	}
	glog.Info("config loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Tracing.Enabled {
		shutdownTracing, err := tracing.Setup(ctx, serviceName, cfg.Tracing)
		if err != nil {
			glog.Fatalf("failed to set up tracing: %v", err)
		}
		defer func() {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			if err := shutdownTracing(shutdownCtx); err != nil {
				glog.Warnf("tracing shutdown: %v", err)
			}
		}()
		glog.Info("tracing initialized")
	}

	storageManager, err := storage.NewStorage(cfg)
	if err != nil {
		glog.Fatalf("failed to initialize storage: %v", err)
	}
	defer storageManager.Close()
	if storageManager.MySQL == nil {
		glog.Fatal("MySQL is required but failed to initialize")
	}
	if storageManager.RabbitMQ == nil {
		glog.Fatal("RabbitMQ is required but failed to initialize")
	}
	glog.Info("storage initialized")

	outboxRepo := storage.NewOutboxRepository(storageManager.MySQL.DB())
	rfqRepo := storage.NewRfqRepository(storageManager.MySQL.DB(), outboxRepo)

	relayLogger := log.New(appCoreLogger.Logger, "[MessageRelay] ", log.LstdFlags|log.Lshortfile)
	messageRelay := outbox.NewMessageRelay(outboxRepo, storageManager.RabbitMQ, relayLogger, &cfg.Outbox)
	messageRelay.Start()
	glog.Info("message relay started")

	rfqHandler := handler.NewRfqHandler(rfqRepo)

	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
	)
	h.Use(func(c context.Context, ctx *app.RequestContext) {
		glog.CtxInfof(c, "Request: %s %s", string(ctx.Method()), string(ctx.Path()))
		ctx.Next(c)
		glog.CtxInfof(c, "Response: status %d", ctx.Response.StatusCode())
	})

	router.RegisterRoutes(h, rfqHandler)
	glog.Info("routes registered")

	glog.Infof("HTTP server starting on %s", cfg.Server.Address)
	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("failed to start HTTP server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("termination signal received, shutting down")

	// Stop the relay before closing its storage.
	messageRelay.Stop()
	glog.Info("message relay stopped")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("server shutdown: %v", err)
	}
	glog.Info("shutdown complete")
}

func initLogger() {
	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(consoleWriter).With().Timestamp().Caller().Logger()

	appCoreLogger.Logger = logger
	zlog.Logger = logger

	glog.SetLogger(hertzadapter.From(appCoreLogger.Logger))
	glog.SetLevel(glog.LevelInfo)
}
