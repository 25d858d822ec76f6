// Package api exposes the thin HTTP control surface: starting cycles,
// querying cycle status, and resolving review items.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fechamento/internal/cycle"
	"fechamento/internal/review"
	"fechamento/internal/service"
)

// Server hosts the control surface.
type Server struct {
	httpServer   *http.Server
	storage      service.Storage
	orchestrator *cycle.Orchestrator
	gate         *review.Gate
}

// NewServer creates the HTTP server on addr.
func NewServer(addr string, storage service.Storage, orchestrator *cycle.Orchestrator, gate *review.Gate) *Server {
	s := &Server{
		storage:      storage,
		orchestrator: orchestrator,
		gate:         gate,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/cycles", s.handleStartCycle)
		r.Get("/cycles/{cycleID}", s.handleGetCycle)
		r.Post("/authorizations/{id}/approve", s.handleApproveAuthorization)
		r.Post("/authorizations/{id}/reject", s.handleRejectAuthorization)
		r.Post("/doubts/{id}/resolve", s.handleResolveDoubt)
		r.Post("/doubts/{id}/skip", s.handleSkipDoubt)
	})

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
