package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/rajeshbanoth/backend-call/internal/config"
	"github.com/rajeshbanoth/backend-call/internal/pubsub"
	"github.com/rajeshbanoth/backend-call/internal/server"
	"github.com/rajeshbanoth/backend-call/internal/signaling"
	"github.com/rajeshbanoth/backend-call/internal/websocket"
)

func main() {
	// Structured logging from the start
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Lifecycle event stream (in-memory for single instance, Redis when
	// external observers need the stream)
	var events pubsub.PubSub
	if cfg.PubSubType == "redis" {
		events, err = pubsub.NewRedisPubSub(cfg.RedisURL)
		if err != nil {
			slog.Error("failed to connect event stream", "error", err)
			os.Exit(1)
		}
	} else {
		events = pubsub.NewMemoryPubSub()
	}
	defer events.Close()

	// Session manager and its sweeper
	manager := signaling.NewManager(clock.New(), events, logger, signaling.DefaultOptions())

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go manager.Run(sweepCtx)

	// WebSocket hub and handler
	hub := websocket.NewHub(manager, logger)
	wsHandler := websocket.NewHandler(hub, logger)

	deps := &server.Dependencies{
		Manager:   manager,
		WSHandler: wsHandler,
		Logger:    logger,
	}

	srv := server.New(cfg, deps)

	// Graceful shutdown setup
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-shutdownCtx.Done()
	slog.Info("shutting down gracefully...")

	// Give active connections 10 seconds to finish
	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer timeoutCancel()

	if err := srv.Shutdown(timeoutCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
