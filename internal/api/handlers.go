package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"fechamento/internal/common"
	"fechamento/internal/cycle"
	"fechamento/internal/model"
)

type startCycleRequest struct {
	ClientID string `json:"clientId,omitempty"`
	Date     string `json:"date,omitempty"`
	Force    bool   `json:"force,omitempty"`
}

type startCycleResponse struct {
	CycleID    string `json:"cycleId"`
	InstanceID string `json:"instanceId"`
	Status     string `json:"status"`
	Clients    int    `json:"clients"`
}

type cycleResponse struct {
	*model.Cycle
	EngineStatus string `json:"engineStatus"`
}

type resolveDoubtRequest struct {
	CategoryID   string `json:"categoryId"`
	CategoryName string `json:"categoryName"`
}

type resolveAuthRequest struct {
	ResolvedBy string `json:"resolvedBy"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleStartCycle(w http.ResponseWriter, r *http.Request) {
	var req startCycleRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	opts := cycle.StartOptions{ClientID: req.ClientID, Force: req.Force}
	if req.Date != "" {
		date, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		opts.Date = date
	}

	started, clients, err := s.orchestrator.Start(r.Context(), opts)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrNoActiveClients):
			writeError(w, http.StatusConflict, err.Error())
		case common.IsValidation(err):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	// The run outlives the request; detach it from the request context.
	go func() {
		if err := s.orchestrator.Run(context.Background(), started, clients); err != nil {
			slog.Error("cycle run failed",
				"cycle_id", started.ID,
				"instance_id", started.InstanceID,
				"error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, startCycleResponse{
		CycleID:    started.ID,
		InstanceID: started.InstanceID,
		Status:     string(started.Status),
		Clients:    len(clients),
	})
}

func (s *Server) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	cycleID := chi.URLParam(r, "cycleID")
	instanceID := r.URL.Query().Get("instance")

	var c *model.Cycle
	var err error
	if instanceID != "" {
		c, err = s.storage.GetCycle(r.Context(), cycleID, instanceID)
	} else {
		c, err = s.storage.GetLatestCycle(r.Context(), cycleID)
	}
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, cycleResponse{
		Cycle:        c,
		EngineStatus: s.orchestrator.EngineStatus(c.ID, c.InstanceID),
	})
}

func (s *Server) handleApproveAuthorization(w http.ResponseWriter, r *http.Request) {
	var req resolveAuthRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.resolve(w, r, s.gate.ApproveAuthorization(r.Context(), chi.URLParam(r, "id"), req.ResolvedBy))
}

func (s *Server) handleRejectAuthorization(w http.ResponseWriter, r *http.Request) {
	var req resolveAuthRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.resolve(w, r, s.gate.RejectAuthorization(r.Context(), chi.URLParam(r, "id"), req.ResolvedBy))
}

func (s *Server) handleResolveDoubt(w http.ResponseWriter, r *http.Request) {
	var req resolveDoubtRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.CategoryID == "" || req.CategoryName == "" {
		writeError(w, http.StatusBadRequest, "categoryId and categoryName are required")
		return
	}
	category := model.CategoryAssignment{ID: req.CategoryID, Name: req.CategoryName}
	s.resolve(w, r, s.gate.ResolveDoubt(r.Context(), chi.URLParam(r, "id"), category))
}

func (s *Server) handleSkipDoubt(w http.ResponseWriter, r *http.Request) {
	s.resolve(w, r, s.gate.SkipDoubt(r.Context(), chi.URLParam(r, "id")))
}

func (s *Server) resolve(w http.ResponseWriter, _ *http.Request, err error) {
	if err != nil {
		if common.IsValidation(err) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
