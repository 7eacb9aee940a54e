// Package server wires the admission gate, ingestion queue, persistence
// worker, store, and admin surface into one HTTP process.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reportsink/internal/admin"
	"reportsink/internal/auth"
	"reportsink/internal/config"
	"reportsink/internal/handlers"
	"reportsink/internal/health"
	"reportsink/internal/logger"
	"reportsink/internal/metrics"
	"reportsink/internal/middleware"
	"reportsink/internal/queue"
	"reportsink/internal/store"
	"reportsink/internal/worker"
)

// Server is the high-level coordinator for ingestion, persistence, and the
// admin surface.
type Server struct {
	cfg        *config.Config
	store      *store.Store
	queue      *queue.Queue
	worker     *worker.Worker
	monitor    *health.Monitor
	httpServer *http.Server
	wg         sync.WaitGroup
}

// New constructs a Server: opens the store, builds the queue and the single
// worker, and assembles the routes.
func New(cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	q := queue.New(cfg.QueueCapacity)
	metrics.QueueCapacity.Set(float64(q.Capacity()))

	s := &Server{
		cfg:     cfg,
		store:   st,
		queue:   q,
		monitor: health.NewMonitor(q),
		worker: worker.New(worker.Config{
			Store:   st,
			Queue:   q,
			Backoff: cfg.PersistBackoff.Duration,
		}),
	}

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler assembles the route table.
func (s *Server) Handler() http.Handler {
	gate := auth.NewGate(s.cfg.IngestKey, s.cfg.AdminKey)

	ingest := handlers.NewIngestHandler(handlers.IngestConfig{
		Gate:           gate,
		Queue:          s.queue,
		EnqueueTimeout: s.cfg.EnqueueTimeout.Duration,
		MaxBodySize:    s.cfg.MaxBodyBytes,
	})

	adminH := handlers.NewAdminHandler(handlers.AdminConfig{
		Gate:  gate,
		Store: s.store,
		Bounds: admin.Bounds{
			DefaultPageSize: s.cfg.DefaultPageSize,
			MaxPageSize:     s.cfg.MaxPageSize,
		},
		MaxExportItems: s.cfg.MaxExportItems,
	})

	wrap := func(h http.Handler) http.Handler {
		return middleware.Chain(h, middleware.Recovery, middleware.Logging)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/reports", wrap(ingest))

	mux.Handle("GET /api/admin/envelopes", wrap(http.HandlerFunc(adminH.List)))
	mux.Handle("GET /api/admin/envelopes/{id}", wrap(http.HandlerFunc(adminH.Detail)))
	mux.Handle("POST /api/admin/envelopes/{id}/acknowledge", wrap(http.HandlerFunc(adminH.Acknowledge)))
	mux.Handle("POST /api/admin/envelopes/{id}/archive", wrap(http.HandlerFunc(adminH.Archive)))
	mux.Handle("DELETE /api/admin/envelopes/{id}", wrap(http.HandlerFunc(adminH.Delete)))
	mux.Handle("GET /api/admin/export", wrap(http.HandlerFunc(adminH.Export)))

	// Probes stay unauthenticated and unlogged.
	mux.HandleFunc("GET /healthz", s.healthHandler)
	mux.HandleFunc("GET /stats", s.statsHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

// Run starts background goroutines and blocks until context cancelled.
func (s *Server) Run(ctx context.Context) error {
	log := logger.WithComponent("server")
	log.Info().Msg("server starting")

	s.worker.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Info().Str("addr", s.cfg.ListenAddr).Msg("starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reportStats(ctx)
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	return s.shutdown()
}

// shutdown drains in order: stop accepting HTTP, close the queue, let the
// worker finish whatever was already accepted, then close the store.
func (s *Server) shutdown() error {
	log := logger.WithComponent("server")
	log.Info().Msg("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info().Msg("stopping HTTP server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Int("depth", s.queue.Depth()).Msg("closing ingestion queue")
	s.queue.Close()

	select {
	case <-s.worker.Done():
		log.Info().Msg("worker drained and stopped")
	case <-time.After(15 * time.Second):
		log.Warn().Msg("worker drain timeout, forcing stop")
		s.worker.Stop()
	}

	if err := s.store.Close(); err != nil {
		log.Error().Err(err).Msg("store close error")
	}

	s.wg.Wait()
	log.Info().Msg("server stopped gracefully")
	return nil
}

// reportStats periodically logs statistics and refreshes the queue gauges.
func (s *Server) reportStats(ctx context.Context) {
	log := logger.WithComponent("server")
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.worker.Stats()
			depth := s.queue.Depth()
			metrics.QueueDepth.Set(float64(depth))

			log.Info().
				Uint64("persisted", stats.Processed).
				Uint64("failed", stats.Failed).
				Int("queue_depth", depth).
				Int("queue_capacity", s.queue.Capacity()).
				Msg("stats")
		}
	}
}

// healthHandler reports queue-pressure classification for readiness probes.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.Check()
	metrics.QueueDepth.Set(float64(report.Depth))

	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(report)
}

// statsHandler returns current worker and queue statistics.
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats := s.worker.Stats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"worker": stats,
		"queue": map[string]int{
			"depth":    s.queue.Depth(),
			"capacity": s.queue.Capacity(),
		},
	})
}
