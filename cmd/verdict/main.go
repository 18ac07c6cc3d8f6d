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
	"time"

	"github.com/LimmatCapital/Verdict/internal/api"
	"github.com/LimmatCapital/Verdict/internal/calibration"
	"github.com/LimmatCapital/Verdict/internal/config"
	"github.com/LimmatCapital/Verdict/internal/datahub"
	"github.com/LimmatCapital/Verdict/internal/herald"
	"github.com/LimmatCapital/Verdict/internal/refresher"
	"github.com/LimmatCapital/Verdict/internal/scoring"
	"github.com/LimmatCapital/Verdict/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	migrate := flag.Bool("migrate", false, "run database migrations before serving")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.Logging.Level)}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Migrations
	if *migrate || cfg.Database.AutoMigrate {
		if err := store.Migrate(ctx, cfg.Database.URL); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	// Database
	db, err := store.NewPostgresStore(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database")

	// Events (optional)
	var events herald.Client = herald.Noop{}
	if cfg.NATS.Enabled {
		hc, err := herald.NewNATSClient(ctx, cfg.NATS.URL, logger)
		if err != nil {
			logger.Warn("failed to connect to nats, running without events", "error", err)
		} else {
			events = hc
			defer hc.Close()
			logger.Info("connected to nats")
		}
	}

	// Published model snapshot
	registry := calibration.NewRegistry(db, logger)
	if err := registry.Reload(ctx); err != nil {
		logger.Error("failed to load published model", "error", err)
		os.Exit(1)
	}

	engine := scoring.NewEngine(registry, logger)
	service := calibration.NewService(db, registry, events, logger)

	// Dealer metrics batch
	warehouse := datahub.NewHTTPClient(cfg.Datahub.URL, cfg.Datahub.Token)
	ref := refresher.New(db, warehouse, events, cfg, logger)
	if cfg.Refresher.Enabled {
		ref.Start(ctx)
		defer ref.Stop()
		ref.SetupSubscriptions()
		logger.Info("dealer refresher started", "interval", cfg.RefreshInterval())
	}

	// API server
	router := api.NewRouter(db, engine, service, ref, events, cfg, logger)
	apiServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Metrics server
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: api.NewMetricsRouter(),
	}

	go func() {
		logger.Info("API server starting", "port", cfg.Server.Port)
		if err := apiServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("API server error", "error", err)
		}
	}()

	go func() {
		logger.Info("metrics server starting", "port", cfg.Server.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = apiServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)

	logger.Info("shutdown complete")
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
