// Package server exposes the review queue and the committed dataset over
// HTTP for internal dashboards.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/ta-tracker/internal/refdata"
	"github.com/sells-group/ta-tracker/internal/report"
	"github.com/sells-group/ta-tracker/internal/review"
	"github.com/sells-group/ta-tracker/internal/store"
	"github.com/sells-group/ta-tracker/internal/timeseries"
)

// Server wires the HTTP handlers over an open store.
type Server struct {
	store  store.Store
	agents *refdata.Table
	queue  *review.Queue
	merger *timeseries.Merger
	log    *zap.Logger
}

func New(st store.Store, agents *refdata.Table) *Server {
	return &Server{
		store:  st,
		agents: agents,
		queue:  review.NewQueue(st, agents),
		merger: timeseries.NewMerger(st),
		log:    zap.L().With(zap.String("component", "server")),
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/agents", s.handleAgents)
	r.Get("/snapshots", s.handleSnapshots)
	r.Get("/transitions", s.handleTransitions)
	r.Get("/reports/share", s.handleShare)
	r.Route("/review", func(r chi.Router) {
		r.Get("/pending", s.handlePending)
		r.Post("/{cik}/{period}/resolve", s.handleResolve)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agents.Agents())
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.store.ListSnapshots(r.Context(), store.SnapshotFilter{
		CIK:    r.URL.Query().Get("cik"),
		Period: r.URL.Query().Get("period"),
	})
	if err != nil {
		s.internalError(w, "list snapshots", err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handleTransitions(w http.ResponseWriter, r *http.Request) {
	if cik := r.URL.Query().Get("cik"); cik != "" {
		transitions, err := s.merger.Transitions(r.Context(), cik)
		if err != nil {
			s.internalError(w, "derive transitions", err)
			return
		}
		writeJSON(w, http.StatusOK, transitions)
		return
	}
	transitions, err := s.merger.AllTransitions(r.Context())
	if err != nil {
		s.internalError(w, "derive transitions", err)
		return
	}
	writeJSON(w, http.StatusOK, transitions)
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	rows, err := report.MarketShare(r.Context(), s.store, s.agents)
	if err != nil {
		s.internalError(w, "market share", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	items, err := s.queue.ListPending(r.Context())
	if err != nil {
		s.internalError(w, "list pending", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID string `json:"agent_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AgentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "agent_id is required"})
		return
	}

	cik := chi.URLParam(r, "cik")
	period := chi.URLParam(r, "period")
	snap, err := s.queue.Resolve(r.Context(), cik, period, req.AgentID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no pending review item"})
	case errors.Is(err, review.ErrUnknownAgent):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown agent id"})
	case err != nil:
		s.internalError(w, "resolve review item", err)
	default:
		writeJSON(w, http.StatusOK, snap)
	}
}

func (s *Server) internalError(w http.ResponseWriter, action string, err error) {
	s.log.Error(action, zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
