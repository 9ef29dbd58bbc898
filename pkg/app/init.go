package app

import (
	"context"
	"log"
	"log/slog"

	"skirmish/pkg/config"
	"skirmish/pkg/database"
	"skirmish/pkg/logging"

	"github.com/joho/godotenv"
)

// AppContext holds the shared application context and dependencies
type AppContext struct {
	Postgres         *database.Postgres
	Redis            *database.Redis
	TelemetryManager *logging.TelemetryManager
	ServiceName      string
	shutdownFuncs    []func(context.Context) error
}

// InitializeApp initializes common application dependencies: telemetry,
// Postgres, Redis. It does not fail hard on a missing connection here —
// callers decide whether a nil dependency is fatal (cmd/skirmish/main.go
// exits 1 if either is unavailable at startup).
func InitializeApp(serviceName string) (*AppContext, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found or error loading it: %v", err)
	}

	ctx := context.Background()

	telemetryManager := logging.NewTelemetryManager(serviceName)
	if err := telemetryManager.Initialize(ctx); err != nil {
		log.Printf("warning: failed to initialize telemetry: %v", err)
	}

	postgres, err := database.NewPostgres(ctx)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
	} else {
		slog.Info("connected to postgres")
	}

	redis, err := database.NewRedis(ctx)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
	} else {
		slog.Info("connected to redis")
	}

	appCtx := &AppContext{
		Postgres:         postgres,
		Redis:            redis,
		TelemetryManager: telemetryManager,
		ServiceName:      serviceName,
	}

	if postgres != nil {
		appCtx.shutdownFuncs = append(appCtx.shutdownFuncs, postgres.Close)
	}
	if redis != nil {
		appCtx.shutdownFuncs = append(appCtx.shutdownFuncs, func(ctx context.Context) error {
			return redis.Close()
		})
	}
	if telemetryManager != nil {
		appCtx.shutdownFuncs = append(appCtx.shutdownFuncs, telemetryManager.Shutdown)
	}

	return appCtx, nil
}

// Shutdown gracefully shuts down all application dependencies
func (a *AppContext) Shutdown(ctx context.Context) error {
	slog.Info("shutting down application", "service", a.ServiceName)

	for _, shutdown := range a.shutdownFuncs {
		if err := shutdown(ctx); err != nil {
			slog.Error("error during shutdown", "error", err)
		}
	}

	slog.Info("application shutdown completed", "service", a.ServiceName)
	return nil
}

// GetPort returns the port from environment or default
func GetPort(defaultPort string) string {
	return config.GetEnv("PORT", defaultPort)
}

// IsProduction returns true if running in production environment
func IsProduction() bool {
	return config.GetEnv("NODE_ENV", "development") == "production"
}

// IsDevelopment returns true if running in development environment
func IsDevelopment() bool {
	return !IsProduction()
}
