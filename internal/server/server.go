package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/headline-goat/janus/internal/experiment"
	"github.com/headline-goat/janus/internal/store"
)

// maxUploadBytes bounds CSV uploads and JSON bodies.
const maxUploadBytes = 64 << 20

type Server struct {
	store     *store.SQLiteStore
	port      int
	token     string
	defaults  experiment.Config
	log       *slog.Logger
	validate  *validator.Validate
	router    *http.ServeMux
	startTime time.Time
}

// New builds a server over s. defaults are the engine options every
// analysis starts from; requests may override the baseline, metrics, sample
// size, seed and bootstrap.
func New(s *store.SQLiteStore, port int, defaults experiment.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	srv := &Server{
		store:     s,
		port:      port,
		defaults:  defaults,
		log:       logger,
		validate:  validator.New(),
		router:    http.NewServeMux(),
		startTime: time.Now(),
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.instrument("health", s.handleHealth))
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.HandleFunc("/api/analyze", s.instrument("analyze", s.handleAnalyze))
	s.router.HandleFunc("/api/analyze/csv", s.instrument("analyze_csv", s.handleAnalyzeCSV))
	s.router.HandleFunc("/api/experiments", s.instrument("experiments", s.handleExperiments))
	s.router.HandleFunc("/api/experiments/", s.instrument("experiment", s.authMiddleware(s.handleExperiment)))
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	s.log.Info("server listening", "port", s.port)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.log.Info("server shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

func (s *Server) Store() *store.SQLiteStore {
	return s.store
}

func (s *Server) StartTime() time.Time {
	return s.startTime
}

func (s *Server) Handler() http.Handler {
	return s.router
}
