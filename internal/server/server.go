package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"flood-alerts/internal/alerting"
	"flood-alerts/internal/config"
	"flood-alerts/internal/service"
	"flood-alerts/internal/storage"
)

// Ingester accepts raw reading payloads.
type Ingester interface {
	IngestPayload(ctx context.Context, body []byte) (service.Result, error)
}

// Server exposes the ingestion endpoint, dashboard and query API.
type Server struct {
	ingester  Ingester
	readings  storage.ReadingStore
	alerts    storage.AlertStore
	registry  *alerting.Registry
	ws        http.HandlerFunc
	clients   func() int
	apiKeys   []string
	staticDir string
	cfg       config.ServerConfig
	logger    zerolog.Logger
}

// Options wires the optional collaborators of a Server.
type Options struct {
	Repository storage.Repository
	Registry   *alerting.Registry
	// WebSocket serves /ws; the route is omitted when nil.
	WebSocket http.HandlerFunc
	Clients   func() int
}

// New constructs a Server.
func New(cfg config.ServerConfig, ingester Ingester, opts Options, logger zerolog.Logger) *Server {
	s := &Server{
		ingester:  ingester,
		registry:  opts.Registry,
		ws:        opts.WebSocket,
		clients:   opts.Clients,
		apiKeys:   cfg.APIKeys,
		staticDir: cfg.StaticDir,
		cfg:       cfg,
		logger:    logger.With().Str("component", "http").Logger(),
	}
	if opts.Repository != nil {
		s.readings = opts.Repository
		s.alerts = opts.Repository
	}
	return s
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.With(apiKeyAuth(s.apiKeys)).Post("/data", s.handleIngest)
		r.Get("/readings", s.handleReadings)
		r.Get("/alerts", s.handleAlerts)
		r.Get("/status", s.handleStatus)
	})

	if s.ws != nil {
		r.Get("/ws", s.ws)
	}

	if s.staticDir != "" {
		if info, err := os.Stat(s.staticDir); err == nil && info.IsDir() {
			r.Handle("/*", http.FileServer(http.Dir(s.staticDir)))
		} else {
			s.logger.Warn().Str("dir", s.staticDir).Msg("static directory missing, dashboard disabled")
		}
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	s.logger.Info().Msg("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
