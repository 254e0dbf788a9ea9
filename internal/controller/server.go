// Package controller contains the controller-specific logic for the HTTP API.
package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"jobqueue/internal/controller/handlers"
	"jobqueue/internal/controller/middleware"
)

// Options configure the controller server.
type Options struct {
	Logger *slog.Logger
	// AdminTokenHash is the hex SHA-256 of the admin bearer token. Empty
	// leaves admin routes open.
	AdminTokenHash string
	// EnqueueRate and EnqueueBurst limit POST /jobs per client address.
	// A zero rate disables the limit.
	EnqueueRate  float64
	EnqueueBurst int
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
}

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new controller server.
func New(addr string, q handlers.Queue, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger.With("component", "controller")

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      NewHandler(q, opts),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed handler without a listener.
func NewHandler(q handlers.Queue, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h := handlers.New(q, opts.Logger)
	adminMW := middleware.RequireAdminToken(opts.AdminTokenHash)
	rateMW := middleware.NewRateLimiter(opts.EnqueueRate, opts.EnqueueBurst).Middleware()

	mux := http.NewServeMux()

	mux.Handle("POST /jobs", rateMW(http.HandlerFunc(h.EnqueueJob)))
	mux.HandleFunc("GET /jobs", h.ListJobs)
	mux.HandleFunc("GET /jobs/{id}", h.GetJob)
	mux.HandleFunc("GET /stats", h.Stats)

	// Admin endpoints
	mux.Handle("DELETE /jobs/{id}", adminMW(http.HandlerFunc(h.DeleteJob)))
	mux.Handle("POST /jobs/{id}/retry", adminMW(http.HandlerFunc(h.RetryJob)))
	mux.Handle("POST /jobs/purge", adminMW(http.HandlerFunc(h.PurgeCompleted)))

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	return middleware.RequestLogger(opts.Logger)(mux)
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		s.logger.Info("http server shutting down")
		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
