package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"clinic-portal/clinic-portal-backend/internal/config"
	"clinic-portal/clinic-portal-backend/internal/sessions"
	"clinic-portal/clinic-portal-backend/pkg/database"
	"clinic-portal/clinic-portal-backend/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Connect to database
	db, err := database.OpenSQLx(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	log.Info("Connected to database")

	repo := sessions.NewRepository(db)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		log.Fatal("Failed to migrate sessions schema", zap.Error(err))
	}

	// Create worker
	workerConfig := sessions.DefaultNoShowWorkerConfig()
	if d := cfg.Sessions.NoShowGrace.Std(); d > 0 {
		workerConfig.Grace = d
	}
	if d := cfg.Sessions.NoShowPollInterval.Std(); d > 0 {
		workerConfig.PollInterval = d
	}
	if cfg.Sessions.NoShowBatchSize > 0 {
		workerConfig.BatchSize = cfg.Sessions.NoShowBatchSize
	}
	worker := sessions.NewNoShowWorker(sessions.NewService(repo, log), repo, log, workerConfig)

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("Shutdown signal received")
		cancel()
	}()

	if err := worker.Start(ctx); err != nil {
		log.Error("Worker error", zap.Error(err))
	}

	log.Info("No-show worker stopped")
}
