// Package api exposes the broker's ops surface over HTTP: health, a plain
// text metrics page, and JSON views of broker stats and the task history
// journal.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"taskbridge/internal/broker"
	"taskbridge/internal/history"
)

// StatsFunc snapshots the broker state; injected so the server is testable
// without a running broker.
type StatsFunc func() broker.Stats

type Server struct {
	r     *chi.Mux
	stats StatsFunc
	repo  history.Repository
}

func NewServer(stats StatsFunc, repo history.Repository) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, stats: stats, repo: repo}

	r.Get("/health", s.health)
	r.Get("/metrics", s.metrics)
	r.Get("/api/stats", s.getStats)
	r.Get("/api/tasks/recent", s.recentTasks)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	st := s.stats()
	w.Header().Set("content-type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "taskbridge_up 1\n")
	fmt.Fprintf(w, "taskbridge_executors %d\n", st.Executors)
	fmt.Fprintf(w, "taskbridge_executors_idle %d\n", st.IdleExecutors)
	fmt.Fprintf(w, "taskbridge_tasks_pending %d\n", st.PendingTasks)
	fmt.Fprintf(w, "taskbridge_tasks_accepted_total %d\n", st.TasksAccepted)
	fmt.Fprintf(w, "taskbridge_tasks_dispatched_total %d\n", st.TasksDispatched)
	fmt.Fprintf(w, "taskbridge_results_delivered_total %d\n", st.ResultsDelivered)
	fmt.Fprintf(w, "taskbridge_tasks_failed_total %d\n", st.TasksFailed)
	fmt.Fprintf(w, "taskbridge_tasks_requeued_total %d\n", st.TasksRequeued)
	fmt.Fprintf(w, "taskbridge_tasks_duplicate_total %d\n", st.DuplicateTasks)
	fmt.Fprintf(w, "taskbridge_protocol_errors_total %d\n", st.ProtocolErrors)
	fmt.Fprintf(w, "taskbridge_executors_evicted_total %d\n", st.ExecutorsEvicted)
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stats())
}

func (s *Server) recentTasks(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		http.Error(w, "history disabled", http.StatusNotFound)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	entries, err := s.repo.Recent(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
