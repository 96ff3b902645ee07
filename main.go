package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/wfunc/coupserver/config"
	"github.com/wfunc/coupserver/deck"
	"github.com/wfunc/coupserver/logger"
	"github.com/wfunc/coupserver/persistence"
	"github.com/wfunc/coupserver/room"
	"github.com/wfunc/coupserver/server"
	"github.com/wfunc/coupserver/state"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	// Initialize logger
	logger.Init(cfg.Log.Level, cfg.Log.Development)
	defer logger.Sync()

	db, err := openDatabase(cfg.Database)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	gameServer := server.NewGameServer(serverOptions(cfg), db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Log.Infow("starting game server", "http", cfg.Server.HTTPAddress, "metrics", cfg.Server.MetricsAddress,
		"rpc", cfg.Server.RPCAddress, "health", cfg.Server.HealthAddress)
	if err := gameServer.Start(ctx); err != nil {
		logger.Log.Fatalf("Server stopped: %v", err)
	}
	logger.Log.Info("server stopped")
}

func openDatabase(cfg config.DatabaseConfig) (persistence.Database, error) {
	if !cfg.Enabled {
		logger.Log.Info("database disabled, keeping match history in memory")
		return persistence.NewMemory(), nil
	}
	var (
		db  persistence.Database
		err error
	)
	switch cfg.Driver {
	case "sql":
		db, err = persistence.NewPostgreSQL(cfg.Postgres.DSN())
	default:
		db, err = persistence.NewGormPostgreSQL(cfg.Postgres.DSN())
	}
	if err != nil {
		return nil, err
	}
	logger.Log.Infow("Database connection successful.", "driver", cfg.Driver, "host", cfg.Postgres.Host)
	return db, nil
}

func serverOptions(cfg *config.Config) server.Options {
	return server.Options{
		HTTPAddress:       cfg.Server.HTTPAddress,
		MetricsAddress:    cfg.Server.MetricsAddress,
		RPCAddress:        cfg.Server.RPCAddress,
		HealthAddress:     cfg.Server.HealthAddress,
		PublicURL:         cfg.Server.PublicURL,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		HeartbeatInterval: cfg.Server.HeartbeatInterval,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		SweepInterval:     cfg.Room.SweepInterval,
		TimerResolution:   cfg.Room.TimerResolution,
		Room: room.Options{
			Timing: state.Timing{
				ChallengeWindow: cfg.Room.ChallengeWindow,
				BlockWindow:     cfg.Room.BlockWindow,
				ChoiceWindow:    cfg.Room.ChoiceWindow,
			},
			DisconnectGrace: cfg.Room.DisconnectGrace,
			TeardownGrace:   cfg.Room.TeardownGrace,
			IdleTimeout:     cfg.Room.IdleTimeout,
			InboxSize:       cfg.Room.InboxSize,
			NewRand:         deck.NewRand,
		},
	}
}
