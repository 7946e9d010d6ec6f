package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// handleHealth reports server liveness and uptime.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

// handleListRuns returns recorded runs, most recent first. Supports ?limit=N.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, reqID, http.StatusBadRequest, "bad_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs", "error", err)
		respondError(w, reqID, http.StatusInternalServerError, "store_error", "failed to list runs")
		return
	}
	respondOK(w, reqID, runs)
}

// handleGetRun returns one run by ID.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		s.logger.Error("get run", "run_id", id, "error", err)
		respondError(w, reqID, http.StatusInternalServerError, "store_error", "failed to get run")
		return
	}
	if run == nil {
		respondError(w, reqID, http.StatusNotFound, "not_found", "run "+id+" not found")
		return
	}
	respondOK(w, reqID, run)
}

// handleListEvents returns a run's events in sequence order.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		s.logger.Error("get run for events", "run_id", id, "error", err)
		respondError(w, reqID, http.StatusInternalServerError, "store_error", "failed to get run")
		return
	}
	if run == nil {
		respondError(w, reqID, http.StatusNotFound, "not_found", "run "+id+" not found")
		return
	}

	events, err := s.store.ListEvents(r.Context(), id)
	if err != nil {
		s.logger.Error("list events", "run_id", id, "error", err)
		respondError(w, reqID, http.StatusInternalServerError, "store_error", "failed to list events")
		return
	}
	respondOK(w, reqID, events)
}
