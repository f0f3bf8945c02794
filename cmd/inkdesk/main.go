package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tkilaker/inkdesk/internal/config"
	"github.com/tkilaker/inkdesk/internal/database"
	"github.com/tkilaker/inkdesk/internal/logging"
	"github.com/tkilaker/inkdesk/internal/server"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logs, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	logger := logs.Get("main")
	logger.Info("starting inkdesk", "api", cfg.APIBaseURL)

	// Drafts and the publish log live in Postgres when configured
	var store database.Store
	if cfg.DatabaseURL != "" {
		db, err := database.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		store = db
		logger.Info("connected to database")
	} else {
		store = database.NewMemory()
		logger.Warn("DATABASE_URL not set, drafts are kept in memory")
	}
	defer store.Close()

	// Create server
	srv := server.New(cfg, store, logs)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("server starting", "url", "http://localhost"+addr)
	return srv.Start(ctx, addr)
}
