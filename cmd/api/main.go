package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/acme/outbound-batch-dialer/internal/api"
	"github.com/acme/outbound-batch-dialer/internal/api/handlers"
	"github.com/acme/outbound-batch-dialer/internal/app"
	"github.com/acme/outbound-batch-dialer/internal/telemetry"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := flag.String("config", getEnv("CONFIG_FILE", "configs/config.yaml"), "path to configuration file")
	flag.Parse()

	log.Printf("Using config file: %s", *configPath)

	container, err := app.Build(ctx, *configPath)
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer func() {
		closeCtx, done := context.WithTimeout(context.Background(), 30*time.Second)
		defer done()
		if err := container.Close(closeCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	cfg := container.Config
	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry, cfg.App.Name+"-api", cfg.App.Env)
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	if err := container.EnsureTopics(ctx); err != nil {
		log.Fatalf("failed to ensure kafka topics: %v", err)
	}

	repos := container.Repositories()
	handlerSet := handlers.NewHandlerSet(handlers.Deps{
		Sessions: container.Services().Sessions,
		Results:  repos.Results,
		Stats:    repos.Stats,
		Groups:   repos.Groups,
		Agents:   repos.Agents,
		HealthChecks: map[string]handlers.HealthCheck{
			"postgres": container.Postgres.Ping,
			"redis":    container.Redis.Ping,
			"scylla":   container.Scylla.Ping,
		},
		Logger: container.Logger.Named("http"),
	})
	server := api.NewServer(cfg.HTTP, handlerSet)

	container.Logger.Info("api server listening",
		zap.Int("port", cfg.HTTP.Port),
		zap.String("gateway_provider", cfg.Gateway.Provider),
		zap.Duration("inter_call_delay", cfg.Dialer.InterCallDelay),
	)
	if err := server.Start(ctx); err != nil {
		container.Logger.Error("server terminated", zap.Error(err))
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
