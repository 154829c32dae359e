package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/rajeshbanoth/backend-call/internal/config"
	"github.com/rajeshbanoth/backend-call/internal/middleware"
	"github.com/rajeshbanoth/backend-call/internal/signaling"
	"github.com/rajeshbanoth/backend-call/internal/websocket"
)

// Dependencies holds all service dependencies for the server
type Dependencies struct {
	Manager   *signaling.Manager
	WSHandler *websocket.Handler
	Logger    *slog.Logger
}

// New creates an HTTP server with all routes configured.
func New(cfg *config.Config, deps *Dependencies) *http.Server {
	mux := http.NewServeMux()

	registerRoutes(mux, deps)

	middlewares := []Middleware{
		requestIDMiddleware,
		corsMiddleware(cfg),
	}
	if cfg.RateLimitPerMin > 0 {
		middlewares = append(middlewares, middleware.NewRateLimiter(cfg.RateLimitPerMin).Middleware)
	}
	middlewares = append(middlewares,
		loggingMiddleware(deps.Logger),
		recoverMiddleware(deps.Logger),
	)

	handler := chainMiddleware(mux, middlewares...)

	return &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// corsMiddleware wraps rs/cors with our configured origins
func corsMiddleware(cfg *config.Config) Middleware {
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           86400,
	})
	return c.Handler
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies) {
	// Health snapshot: connected users, registered calls, presence map.
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		snap := deps.Manager.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			deps.Logger.Error("failed to encode health snapshot", "error", err)
		}
	})

	// Liveness for docker, k8s, load balancers.
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// WebSocket route.
	mux.Handle("GET /ws", deps.WSHandler)

	// Static liveness string at the root.
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("backend-call signaling server is running"))
	})
}
