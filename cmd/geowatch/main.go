// Package main is the entry point for the GeoWatch threat monitoring
// service. It initializes all components and starts the HTTP server and
// the real-time monitor.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"geowatch-go/internal/api"
	"geowatch-go/internal/banner"
	"geowatch-go/internal/config"
	"geowatch-go/internal/monitor"
	"geowatch-go/internal/notify"
	"geowatch-go/internal/queue"
	kafkaqueue "geowatch-go/internal/queue/kafka"
	memoryqueue "geowatch-go/internal/queue/memory"
	"geowatch-go/internal/rules"
	"geowatch-go/internal/scoring"
	"geowatch-go/internal/store"
	memorystor "geowatch-go/internal/store/memory"
	postgresstor "geowatch-go/internal/store/postgres"
	redisstor "geowatch-go/internal/store/redis"
)

func main() {
	banner.Print()

	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err, "path", *configPath)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logger)

	logger.Info("configuration loaded",
		"path", *configPath,
		"storage_mode", cfg.Storage.Mode,
	)

	deps, cleanup, err := initDependencies(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// Create context that listens for shutdown signals
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Start monitor consumer loop
	deps.monitor.Start()

	// Start HTTP server
	go func() {
		if err := deps.server.Start(); err != nil {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	logger.Info("GeoWatch started",
		"address", cfg.Server.Address(),
		"storage_mode", cfg.Storage.Mode,
	)

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("shutdown signal received")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := deps.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	deps.monitor.Stop()

	logger.Info("GeoWatch stopped")
}

// dependencies holds all initialized service dependencies.
type dependencies struct {
	server  *api.Server
	monitor *monitor.Monitor
}

// initDependencies creates and wires all service dependencies based on config.
// Returns the dependencies and a cleanup function.
func initDependencies(cfg *config.Config, logger *slog.Logger) (*dependencies, func(), error) {
	var (
		stateStore   store.StateStore
		alertRepo    store.AlertRepository
		producer     queue.Producer
		consumer     queue.Consumer
		cleanupFuncs []func()
	)

	if cfg.Storage.UseMemory() {
		logger.Info("initializing in-memory storage")

		memStateStore := memorystor.NewStateStore()
		stateStore = memStateStore
		cleanupFuncs = append(cleanupFuncs, func() { _ = memStateStore.Close() })

		alertRepo = memorystor.NewAlertRepository()

		memQueue := memoryqueue.NewQueue(cfg.Monitor.QueueSize)
		producer = memQueue
		consumer = memQueue
		cleanupFuncs = append(cleanupFuncs, func() { _ = memQueue.Close() })
	} else {
		logger.Info("initializing production storage (Kafka, Redis, PostgreSQL)")

		ctx := context.Background()
		db, err := postgresstor.NewDB(ctx, &cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		cleanupFuncs = append(cleanupFuncs, db.Close)

		if err := db.RunMigrations(ctx); err != nil {
			return nil, nil, err
		}
		logger.Info("database migrations completed")

		alertRepo = postgresstor.NewAlertRepository(db)

		redisStore, err := redisstor.NewStateStore(&cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		stateStore = redisStore
		cleanupFuncs = append(cleanupFuncs, func() { _ = redisStore.Close() })

		kafkaProducer := kafkaqueue.NewProducer(&cfg.Kafka)
		producer = kafkaProducer
		cleanupFuncs = append(cleanupFuncs, func() { _ = kafkaProducer.Close() })

		kafkaConsumer := kafkaqueue.NewConsumer(&cfg.Kafka, logger)
		consumer = kafkaConsumer
		cleanupFuncs = append(cleanupFuncs, func() { _ = kafkaConsumer.Close() })
	}

	// Initialize scoring and rule engine
	scorer := scoring.NewScorer(cfg.Scoring)
	generator := rules.NewGenerator(cfg.Rules, logger)

	// Initialize notification manager
	notifier := notify.NewManager(cfg.Notifications, logger)

	// Initialize the real-time monitor
	mon := monitor.New(monitor.Deps{
		Producer:   producer,
		Consumer:   consumer,
		Scorer:     scorer,
		Generator:  generator,
		Notifier:   notifier,
		AlertRepo:  alertRepo,
		StateStore: stateStore,
		Routing:    cfg.Routing,
		Config:     cfg.Monitor,
		Logger:     logger,
	})

	// Initialize API handlers
	eventHandler := api.NewEventHandler(mon, logger)
	alertHandler := api.NewAlertHandler(alertRepo, logger)

	// Initialize HTTP server
	server := api.NewServer(api.ServerDeps{
		Config:       &cfg.Server,
		Logger:       logger,
		EventHandler: eventHandler,
		AlertHandler: alertHandler,
	})

	// Build cleanup function
	cleanup := func() {
		for i := len(cleanupFuncs) - 1; i >= 0; i-- {
			cleanupFuncs[i]()
		}
	}

	return &dependencies{
		server:  server,
		monitor: mon,
	}, cleanup, nil
}

// initLogger creates and configures the application logger.
func initLogger(cfg config.LoggerConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}
