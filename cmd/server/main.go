package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tcbb-predictions/internal/config"
	"github.com/tcbb-predictions/internal/domain"
	"github.com/tcbb-predictions/internal/handler"
	"github.com/tcbb-predictions/internal/kafka"
	"github.com/tcbb-predictions/internal/memstore"
	"github.com/tcbb-predictions/internal/metrics"
	"github.com/tcbb-predictions/internal/postgres"
	"github.com/tcbb-predictions/internal/redis"
	"github.com/tcbb-predictions/internal/service"
	"github.com/tcbb-predictions/internal/websocket"
	"github.com/tcbb-predictions/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before the config is expanded")
	seedUsers := flag.String("seed-users", "", "Comma-separated participant names to create (memory driver only)")
	flag.Parse()

	// existing environment variables win over the file
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "reading %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg = config.DefaultConfig()
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)
	if err != nil {
		logger.Warn("config file not found, using defaults", "path", *configPath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewRecorder(registry)

	checks := map[string]handler.ReadinessCheck{}

	// Storage
	var repo domain.Repository
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		pg, err := postgres.NewRepository(&cfg.Postgres, logger)
		if err != nil {
			logger.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		if cfg.Storage.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				logger.Error("failed to run migrations", "error", err)
				os.Exit(1)
			}
		}
		checks["postgres"] = pg.Ping
		repo = pg
	default:
		store := memstore.New()
		for _, name := range strings.Split(*seedUsers, ",") {
			if name = strings.TrimSpace(name); name == "" {
				continue
			}
			if err := store.AddUser(ctx, &domain.User{ID: strings.ToLower(name), Name: name}); err != nil {
				logger.Error("failed to seed user", "name", name, "error", err)
				os.Exit(1)
			}
		}
		logger.Warn("using in-memory storage; data is lost on exit")
		repo = store
	}

	// Services
	rankings := service.NewRankingService(repo, logger)
	notifier := service.NewNotifier(rankings, recorder, logger)
	agg := service.NewAggregator(repo, recorder, logger)
	results := service.NewResultService(repo, agg, notifier, recorder, logger)
	predictions := service.NewPredictionService(repo, agg, notifier, recorder, logger)

	httpHandler := handler.NewHandler(results, predictions, rankings, cfg.Ranking, logger)
	httpHandler.SetAllowedOrigins(cfg.Server.AllowedOrigins)
	httpHandler.SetMetrics(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	// Standings mirror
	var standings *redis.StandingsCache
	if cfg.Redis.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		standings, err = redis.NewStandingsCache(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("failed to connect to Redis, continuing without standings mirror", "error", err)
		} else {
			defer standings.Close()
			notifier.SetMirror(standings)
			httpHandler.SetStandings(standings)
			checks["redis"] = standings.Ping
		}
	}

	// Event stream
	if cfg.Kafka.Enabled {
		publisher, err := kafka.NewPublisher(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create Kafka publisher, continuing without events", "error", err)
		} else {
			defer func() {
				if err := publisher.Close(); err != nil {
					logger.Error("failed to close Kafka publisher", "error", err)
				}
			}()
			notifier.SetPublisher(publisher)
		}
	}

	// Realtime
	var hub *websocket.Hub
	if cfg.Realtime.Enabled {
		hub = websocket.NewHub(cfg.Realtime, recorder, logger)
		go hub.Run()
		notifier.SetBroadcaster(hub)
		httpHandler.SetRealtime(hub)
	}

	// Reconcile
	var mirror worker.StandingsReplacer
	if standings != nil {
		mirror = standings
	}
	reconciler := worker.NewReconcileWorker(repo, agg, notifier, mirror, &cfg.Reconcile, logger)
	httpHandler.SetReconciler(reconciler)
	if standings != nil {
		// the mirror may be stale after downtime
		if _, err := reconciler.RunOnce(ctx); err != nil {
			logger.Warn("startup reconcile failed", "error", err)
		}
	}
	if cfg.Reconcile.Enabled {
		if err := reconciler.Start(ctx); err != nil {
			logger.Error("failed to start reconcile worker", "error", err)
			os.Exit(1)
		}
	}

	for name, check := range checks {
		httpHandler.AddReadinessCheck(name, check)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port, "storage", cfg.Storage.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}
	if hub != nil {
		hub.Stop()
	}
	if err := reconciler.Stop(); err != nil {
		logger.Error("failed to stop reconcile worker", "error", err)
	}

	logger.Info("server stopped")
}
