// Package main implements the entry point for the biblioteca background
// service, which runs the durable task queue behind the music library
// manager and exposes a local HTTP surface for the frontend.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nuevabiblioteca/biblioteca/internal/api"
	"github.com/nuevabiblioteca/biblioteca/internal/config"
	"github.com/nuevabiblioteca/biblioteca/internal/library"
	"github.com/nuevabiblioteca/biblioteca/internal/metadata"
	"github.com/nuevabiblioteca/biblioteca/internal/platform/logger"
	"github.com/nuevabiblioteca/biblioteca/internal/platform/sqlite"
	"github.com/nuevabiblioteca/biblioteca/internal/taskqueue"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("biblioteca: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	appLogger.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"max_concurrent", cfg.Queue.MaxConcurrent)

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open task database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			appLogger.Error("failed to close database", "error", err)
		}
	}()

	taskStore := sqlite.NewTaskStore(db)

	queue := taskqueue.New(taskStore, taskqueue.NewRegistry(), taskqueue.Config{
		MaxConcurrent:     cfg.Queue.MaxConcurrent,
		DefaultMaxRetries: cfg.Queue.DefaultMaxRetries,
		DefaultRetryDelay: cfg.Queue.DefaultRetryDelay,
	}, appLogger)

	extractor := metadata.NewExtractor(appLogger)
	scanner := library.NewScanner(cfg.Library, cfg.Batch, extractor, appLogger)
	queue.RegisterHandler(metadata.TaskType, extractor.Handler())
	queue.RegisterHandler(library.TaskType, scanner.Handler())

	reaper := taskqueue.NewReaper(taskStore, taskqueue.ReaperConfig{
		Interval:  cfg.Queue.ReapInterval,
		Retention: cfg.Queue.Retention,
		StaleAge:  cfg.Queue.StaleAge,
	}, appLogger, queue.Wake)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Sweep before the queue starts so rows stranded running by a crash
	// are pending again when the supervisor takes its first pass.
	reaper.Sweep(ctx)

	if err := queue.Start(ctx); err != nil {
		return fmt.Errorf("failed to start task queue: %w", err)
	}
	reaper.Start()

	server := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
		Handler:           api.NewRouter(api.NewTaskHandler(queue)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		appLogger.Info("shutdown signal received")
	case err := <-serverErr:
		stop()
		appLogger.Error("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("http server shutdown failed", "error", err)
	}

	reaper.Stop()
	queue.Stop()

	appLogger.Info("biblioteca stopped")
	return nil
}
