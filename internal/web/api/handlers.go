// Package api serves read access to jobs and run history, plus a trigger for
// an extra scheduler cycle.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"dircrawl/internal/config"
	"dircrawl/internal/database"
	"dircrawl/internal/metrics"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 500
	defaultStatDays = 30
)

// ErrorResponse represents error message
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Handlers holds what the endpoints read from. DB, Trigger and Health may be
// nil; the endpoints that need them then answer 503.
type Handlers struct {
	Config  *config.Config
	DB      *database.RunDB
	Trigger chan<- os.Signal
	Health  *metrics.HealthChecker
}

type healthResponse struct {
	Status     string                             `json:"status"`
	Healthy    bool                               `json:"healthy"`
	UptimeSecs float64                            `json:"uptime_seconds,omitempty"`
	Components map[string]metrics.ComponentHealth `json:"components,omitempty"`
}

// HealthHandler answers liveness probes without authentication.
func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy", Healthy: true}
	if h.Health != nil {
		resp.Healthy = h.Health.IsHealthy()
		resp.UptimeSecs = h.Health.Uptime().Seconds()
		if !resp.Healthy {
			resp.Status = "unhealthy"
		}
	}

	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusServiceUnavailable
	}
	if r.Method == http.MethodHead {
		w.WriteHeader(status)
		return
	}
	respondJSON(w, resp, status)
}

// ComponentsHandler reports every registered health check.
func (h *Handlers) ComponentsHandler(w http.ResponseWriter, _ *http.Request) {
	if h.Health == nil {
		respondError(w, "health checks are not running", http.StatusServiceUnavailable)
		return
	}
	resp := healthResponse{
		Status:     "healthy",
		Healthy:    h.Health.IsHealthy(),
		UptimeSecs: h.Health.Uptime().Seconds(),
		Components: h.Health.GetHealth(),
	}
	if !resp.Healthy {
		resp.Status = "unhealthy"
	}
	respondJSON(w, resp, http.StatusOK)
}

func (h *Handlers) ListJobsHandler(w http.ResponseWriter, _ *http.Request) {
	jobs := h.Config.Jobs
	if jobs == nil {
		jobs = []config.Job{}
	}
	respondJSON(w, jobs, http.StatusOK)
}

func (h *Handlers) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	job, ok := h.Config.Job(name)
	if !ok {
		respondError(w, "no job named "+name, http.StatusNotFound)
		return
	}
	respondJSON(w, job, http.StatusOK)
}

// ListRunsHandler returns recent runs, newest first; ?job= and ?limit= filter.
func (h *Handlers) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}
	limit, ok := intParam(w, r, "limit", defaultRunLimit, maxRunLimit)
	if !ok {
		return
	}

	runs, err := h.DB.GetRecentRuns(r.URL.Query().Get("job"), limit)
	if err != nil {
		respondError(w, "failed to query runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []database.Run{}
	}
	respondJSON(w, runs, http.StatusOK)
}

type runResponse struct {
	Run          *database.Run  `json:"run"`
	ActionCounts map[string]int `json:"action_counts"`
}

func (h *Handlers) GetRunHandler(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}
	id := mux.Vars(r)["id"]

	run, err := h.DB.GetRun(id)
	if errors.Is(err, database.ErrRunNotFound) {
		respondError(w, "no run with id "+id, http.StatusNotFound)
		return
	}
	if err != nil {
		respondError(w, "failed to query run", http.StatusInternalServerError)
		return
	}
	counts, err := h.DB.GetActionCounts(id)
	if err != nil {
		respondError(w, "failed to query action counts", http.StatusInternalServerError)
		return
	}
	respondJSON(w, runResponse{Run: run, ActionCounts: counts}, http.StatusOK)
}

// GetRunEntriesHandler returns a run's statistics entries; ?action= filters.
func (h *Handlers) GetRunEntriesHandler(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}
	id := mux.Vars(r)["id"]

	if _, err := h.DB.GetRun(id); err != nil {
		if errors.Is(err, database.ErrRunNotFound) {
			respondError(w, "no run with id "+id, http.StatusNotFound)
			return
		}
		respondError(w, "failed to query run", http.StatusInternalServerError)
		return
	}

	entries, err := h.DB.GetEntries(id, r.URL.Query().Get("action"))
	if err != nil {
		respondError(w, "failed to query entries", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []database.Entry{}
	}
	respondJSON(w, entries, http.StatusOK)
}

func (h *Handlers) GetStatsHandler(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}
	days, ok := intParam(w, r, "days", defaultStatDays, 3650)
	if !ok {
		return
	}
	stats, err := h.DB.GetRunStats(days)
	if err != nil {
		respondError(w, "failed to query stats", http.StatusInternalServerError)
		return
	}
	respondJSON(w, stats, http.StatusOK)
}

// TriggerHandler asks the scheduler for an extra cycle. A trigger already
// pending absorbs the request.
func (h *Handlers) TriggerHandler(w http.ResponseWriter, _ *http.Request) {
	if h.Trigger == nil {
		respondError(w, "scheduler is not running", http.StatusServiceUnavailable)
		return
	}

	status := "queued"
	select {
	case h.Trigger <- syscall.SIGUSR1:
	default:
		status = "already queued"
	}
	respondJSON(w, map[string]interface{}{
		"status":       status,
		"requested_at": time.Now().UTC(),
	}, http.StatusAccepted)
}

func (h *Handlers) requireDB(w http.ResponseWriter) bool {
	if h.DB == nil {
		respondError(w, "run history is disabled", http.StatusServiceUnavailable)
		return false
	}
	return true
}

// intParam reads a positive integer query parameter, writing a 400 when it
// is malformed. Values above max are clamped.
func intParam(w http.ResponseWriter, r *http.Request, name string, def, max int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		respondError(w, name+" must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	if n > max {
		n = max
	}
	return n, true
}

// Helper functions
func respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, ErrorResponse{
		Error:   http.StatusText(status),
		Code:    status,
		Message: message,
	}, status)
}
