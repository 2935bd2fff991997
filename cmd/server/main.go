package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nexusduel/duel-server-go/internal/config"
	"github.com/nexusduel/duel-server-go/internal/game"
	"github.com/nexusduel/duel-server-go/internal/game/rules"
	"github.com/nexusduel/duel-server-go/internal/monitor"
	"github.com/nexusduel/duel-server-go/internal/outbox"
	"github.com/nexusduel/duel-server-go/internal/repository"
	"github.com/nexusduel/duel-server-go/internal/server"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting duel server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	// Create context that listens for termination signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize database
	db, err := repository.NewDB(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	stats := db.Stats()
	logger.Info("database connection pool initialized",
		zap.Int32("total_conns", stats.TotalConns()),
		zap.Int32("idle_conns", stats.IdleConns()),
	)

	// Initialize stores
	matchStore := repository.NewMatchStore(db, logger)
	outboxStore := repository.NewOutboxStore(db)

	// Initialize match engine
	bus := rules.NewEventBus()
	engine := game.NewEngine(matchStore, bus, logger)
	logger.Info("match engine initialized")

	// Initialize disconnect monitor
	mon := monitor.New(matchStore, outboxStore, cfg.Monitor, logger)
	go mon.Run(ctx)

	// Initialize outbox worker delivering forfeit intents to the engine
	worker := outbox.NewWorker(outboxStore, engine.Forfeit, cfg.Monitor.OutboxInterval, logger)
	go worker.Run(ctx)

	// Start heartbeat websocket server
	heartbeatSrv := server.NewHeartbeatServer(engine, logger)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- heartbeatSrv.Run(ctx, cfg.Server.WebSocketAddress, cfg.Server.ShutdownTimeout)
	}()

	logger.Info("duel server initialized",
		zap.String("websocket_address", cfg.Server.WebSocketAddress),
		zap.Duration("monitor_interval", cfg.Monitor.Interval),
	)

	// Wait for termination signal or server failure
	serverDown := false
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serverErr:
		serverDown = true
		if err != nil {
			logger.Error("heartbeat server error", zap.Error(err))
		}
	}

	// Graceful shutdown
	logger.Info("shutting down gracefully...")
	cancel()
	if !serverDown {
		if err := <-serverErr; err != nil {
			logger.Error("heartbeat server shutdown error", zap.Error(err))
		}
	}

	logger.Info("duel server stopped")
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
