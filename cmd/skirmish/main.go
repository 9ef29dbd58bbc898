// Command skirmish is the monolith entrypoint: it wires every component
// (C1-C10) into one process, the way cmd/falcon/main.go wires go-falcon's
// modules into one router, minus the module registry — this service is
// one cohesive pipeline, not a set of independently-owned feature modules.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "go.uber.org/automaxprocs"

	"skirmish/internal/clustering/service"
	"skirmish/internal/enrichment"
	"skirmish/internal/feed"
	"skirmish/internal/killmail/ingestion"
	killmodels "skirmish/internal/killmail/models"
	"skirmish/internal/killmail/source"
	"skirmish/internal/nameenricher"
	"skirmish/internal/ruleset"
	"skirmish/pkg/app"
	"skirmish/pkg/config"
	"skirmish/pkg/esigateway"
	"skirmish/pkg/handlers"
)

// workChanDepth bounds the backlog between ingestion's emitter and the
// enrichment worker. A slow enrichment fetch backs up ingest's emit call
// rather than growing memory unboundedly.
const workChanDepth = 1000

func main() {
	displayBanner()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appCtx, err := app.InitializeApp("skirmish")
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}
	defer appCtx.Shutdown(context.Background())

	if appCtx.Postgres == nil || appCtx.Redis == nil {
		slog.Error("store connectivity unavailable at startup, refusing to start")
		os.Exit(1)
	}

	numCPU := runtime.NumCPU()
	slog.Info("runtime configured", "cpus", numCPU, "gomaxprocs", runtime.GOMAXPROCS(0))

	esiClient := esigateway.NewClient(esigateway.Config{
		BaseURL:   config.GetEnv("ESI_BASE_URL", ""),
		UserAgent: config.GetEnv("ESI_USER_AGENT", "skirmish/1.0"),
		Timeout:   config.GetDurationEnv("ESI_TIMEOUT", 10*time.Second),
	}, appCtx.Redis)

	rulesetStore := ruleset.NewStore(appCtx.Postgres, appCtx.Redis)
	rulesetWatcher, err := ruleset.NewWatcher(ctx, rulesetStore, appCtx.Redis)
	if err != nil {
		slog.Error("failed to start ruleset watcher", "error", err)
		os.Exit(1)
	}

	classifier := killmodels.NewDefaultClassifier()

	redisQSource := source.NewRedisQSource(source.Config{
		Endpoint:      config.GetEnv("REDISQ_ENDPOINT", ""),
		QueueID:       config.GetEnv("REDISQ_QUEUE_ID", ""),
		UserAgent:     config.GetEnv("REDISQ_USER_AGENT", "skirmish/1.0"),
		TTWMin:        config.GetIntEnv("REDISQ_TTW_MIN", 0),
		TTWMax:        config.GetIntEnv("REDISQ_TTW_MAX", 0),
		NullThreshold: config.GetIntEnv("REDISQ_NULL_THRESHOLD", 0),
		HTTPTimeout:   config.GetDurationEnv("REDISQ_HTTP_TIMEOUT", 30*time.Second),
	})

	workCh := make(chan int64, workChanDepth)
	emitter := ingestion.NewChannelEmitter(workCh)

	ingestStore := ingestion.NewStore(appCtx.Postgres.Pool)
	ingestSvc := ingestion.NewService(redisQSource, ingestStore, rulesetWatcher, classifier, emitter, ingestion.Config{
		ResweepInterval: config.GetDurationEnv("INGESTION_RESWEEP_INTERVAL", 0),
		ResweepAge:      config.GetDurationEnv("INGESTION_RESWEEP_AGE", 0),
		ResweepBatch:    config.GetIntEnv("INGESTION_RESWEEP_BATCH", 0),
	})

	enrichStore := enrichment.NewStore(appCtx.Postgres.Pool)
	fetcher := enrichment.NewHTTPFetcher()
	enrichWorker := enrichment.NewWorker(enrichStore, fetcher, emitter, enrichment.Config{
		ResweepSchedule: config.GetEnv("ENRICHMENT_RESWEEP_SCHEDULE", ""),
		ResweepAge:      config.GetDurationEnv("ENRICHMENT_RESWEEP_AGE", 0),
		ResweepBatch:    config.GetIntEnv("ENRICHMENT_RESWEEP_BATCH", 0),
	})

	clusterStore := service.NewStore(appCtx.Postgres.Pool)
	clusterSvc := service.NewService(clusterStore, classifier, rulesetWatcher, service.Config{
		TickInterval: config.GetDurationEnv("CLUSTER_TICK_INTERVAL", 0),
		DelayMinutes: config.GetIntEnv("CLUSTER_DELAY_MINUTES", 0),
		BatchSize:    config.GetIntEnv("CLUSTER_BATCH_SIZE", 0),
	})

	nameEnricher := nameenricher.New(esiClient)
	feedStore := feed.NewStore(appCtx.Postgres.Pool)
	feedSvc := feed.NewService(feedStore, rulesetWatcher, nameEnricher)
	feedRoutes := feed.NewRoutes(feedSvc, feedStore, rulesetStore, clusterSvc, ingestSvc, enrichWorker)

	r := chi.NewRouter()
	r.Use(handlers.TracingMiddleware("skirmish"))
	r.Use(customLoggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.HasPrefix(req.URL.Path, "/killmails/stream") {
				next.ServeHTTP(w, req)
				return
			}
			middleware.Timeout(60 * time.Second)(next).ServeHTTP(w, req)
		})
	})
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsAllowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", handlers.HealthHandler("skirmish"))
	r.Handle("/metrics", promhttp.Handler())

	humaConfig := huma.DefaultConfig("Skirmish Battle Reconstruction API", "1.0.0")
	humaConfig.Info.Description = "Battle reconstruction pipeline: killmail ingestion, enrichment, clustering and the public feed"
	humaConfig.DocsPath = "/docs"
	humaConfig.Tags = []*huma.Tag{
		{Name: "Feed", Description: "Recent killmails and the live stream"},
		{Name: "Rulesets", Description: "The singleton filter ruleset"},
		{Name: "Battles", Description: "Reconstructed battle reads and operator-initiated reclustering"},
		{Name: "Ingestion", Description: "Killmail ingestion consumer status"},
		{Name: "Enrichment", Description: "Enrichment worker status"},
	}

	api := humachi.New(r, humaConfig)
	feedRoutes.RegisterUnifiedRoutes(api)
	feedRoutes.RegisterRoutes(r)

	runLoop(ctx, "ingestion", ingestSvc.Run)
	go func() {
		if err := enrichWorker.Run(ctx, workCh); err != nil && err != context.Canceled {
			slog.Error("enrichment worker stopped", "error", err)
		}
	}()
	runLoop(ctx, "clustering", clusterSvc.Run)

	go watchStoreConnectivity(ctx, appCtx)

	port := app.GetPort("8080")
	host := config.GetHost()

	srv := &http.Server{
		Addr:        host + ":" + port,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout is left unset (0): the SSE stream endpoint holds its
		// response open indefinitely, and a fixed write deadline would cut
		// every subscriber off after one tick.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		slog.Info("starting skirmish HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("received shutdown signal, initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced to shutdown", "error", err)
	}

	appCtx.Shutdown(shutdownCtx)
	slog.Info("skirmish shutdown completed")
}

// runLoop starts a long-running component loop in the background and logs
// its terminal error, if any, once ctx is cancelled or the loop fails on
// its own.
func runLoop(ctx context.Context, name string, run func(context.Context) error) {
	go func() {
		if err := run(ctx); err != nil && err != context.Canceled {
			slog.Error(name+" loop stopped", "error", err)
		}
	}()
}

// watchStoreConnectivity polls Postgres and Redis on a fixed interval and
// exits with code 2 if connectivity cannot be re-established within a
// bounded retry window, per spec §6's exit code contract.
func watchStoreConnectivity(ctx context.Context, appCtx *app.AppContext) {
	const (
		checkInterval = 10 * time.Second
		retryWindow   = 2 * time.Minute
	)

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	var unhealthySince time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pgErr := appCtx.Postgres.HealthCheck(ctx)
			redisErr := appCtx.Redis.HealthCheck(ctx)

			if pgErr == nil && redisErr == nil {
				unhealthySince = time.Time{}
				continue
			}

			if unhealthySince.IsZero() {
				unhealthySince = time.Now()
			}
			slog.Warn("store connectivity check failed", "postgres_error", pgErr, "redis_error", redisErr)

			if time.Since(unhealthySince) >= retryWindow {
				slog.Error("store connectivity not re-established within retry window, exiting")
				os.Exit(2)
			}
		}
	}
}

// corsAllowedOrigins mirrors the teacher's subdomain allowlist shape via a
// real middleware package (github.com/go-chi/cors) instead of a hand-rolled
// header-setting closure; defaults to permissive localhost development
// origins plus anything CORS_ALLOWED_ORIGINS names explicitly.
func corsAllowedOrigins() []string {
	if raw := config.GetEnv("CORS_ALLOWED_ORIGINS", ""); raw != "" {
		return splitAndTrim(raw)
	}
	return []string{"http://localhost:*", "https://localhost:*"}
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func customLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		middleware.Logger(next).ServeHTTP(w, r)
	})
}

func displayBanner() {
	fmt.Print("\033[38;5;33m")
	fmt.Print("SKIRMISH — battle reconstruction service\n")
	fmt.Print("\033[0m\n")
}
