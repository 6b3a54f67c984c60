// Package status serves a small operational HTTP API: liveness and the most
// recent story turns.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/edgard/narratorbot/internal/story"
)

const (
	defaultTurnLimit = 10
	maxTurnLimit     = 100
	shutdownTimeout  = 5 * time.Second
)

// Turns is the read side of the event log.
type Turns interface {
	Last(n int) []story.Turn
	Len() int
}

// Server exposes the status endpoints.
type Server struct {
	addr   string
	turns  Turns
	logger *slog.Logger
}

// NewServer creates a status server listening on addr.
func NewServer(addr string, turns Turns, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:   addr,
		turns:  turns,
		logger: logger.With("component", "status_server"),
	}
}

type healthResponse struct {
	Status string `json:"status"`
	Turns  int    `json:"turns"`
}

type turnsResponse struct {
	Turns []story.Turn `json:"turns"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Router creates and configures the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Get("/turns", s.recentTurns)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Status server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("status server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Error shutting down status server", "error", err)
		return fmt.Errorf("failed to shut down status server: %w", err)
	}
	s.logger.Info("Status server stopped.")
	return nil
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Turns: s.turns.Len()})
}

func (s *Server) recentTurns(w http.ResponseWriter, r *http.Request) {
	limit := defaultTurnLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxTurnLimit)
	}

	turns := s.turns.Last(limit)
	if turns == nil {
		turns = []story.Turn{}
	}
	s.writeJSON(w, http.StatusOK, turnsResponse{Turns: turns})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}
