package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arcflow-dev/powerpool/internal/dispatcher"
	"github.com/arcflow-dev/powerpool/internal/logger"
)

// statsHandler exposes the dispatcher's read-only state surface
// (internal/dispatcher/stats.go) as JSON.
type statsHandler struct {
	pool *dispatcher.Dispatcher
}

func newStatsHandler(pool *dispatcher.Dispatcher) *statsHandler {
	return &statsHandler{pool: pool}
}

// Overview handles GET /stats: a snapshot of worker counts, pool state,
// and aggregate timing.
func (h *statsHandler) Overview(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"state":                h.pool.State().String(),
		"idle_workers":         h.pool.IdleWorkerCount(),
		"running_workers":      h.pool.RunningWorkerCount(),
		"alive_workers":        h.pool.AliveWorkerCount(),
		"long_running":         h.pool.LongRunningWorkerCount(),
		"waiting_work":         h.pool.WaitingWorkCount(),
		"total_queue_time":     h.pool.TotalQueueTime().String(),
		"total_execute_time":   h.pool.TotalExecuteTime().String(),
		"total_elapsed_time":   h.pool.TotalElapsedTime().String(),
		"average_queue_time":   h.pool.AverageQueueTime().String(),
		"average_exec_time":    h.pool.AverageExecuteTime().String(),
		"average_elapsed_time": h.pool.AverageElapsedTime().String(),
	})
}

// WaitingWork handles GET /work/waiting.
func (h *statsHandler) WaitingWork(w http.ResponseWriter, r *http.Request) {
	ids := h.pool.WaitingWorkList()
	respondJSON(w, http.StatusOK, map[string]interface{}{"ids": ids, "count": len(ids)})
}

// FailedWork handles GET /work/failed.
func (h *statsHandler) FailedWork(w http.ResponseWriter, r *http.Request) {
	ids := h.pool.FailedWorkList()
	respondJSON(w, http.StatusOK, map[string]interface{}{"ids": ids, "count": len(ids)})
}

// GetWork handles GET /work/{id}.
func (h *statsHandler) GetWork(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	item, ok := h.pool.Work(id)
	if !ok {
		respondError(w, http.StatusNotFound, "work not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"id":            item.ID,
		"state":         item.State().String(),
		"execute_count": item.ExecuteCount(),
		"outstanding":   item.Outstanding(),
		"queue_time":    item.QueueTime(),
		"start_time":    item.StartTime(),
		"end_time":      item.EndTime(),
	})
}

// CancelWork handles POST /work/{id}/cancel.
func (h *statsHandler) CancelWork(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.pool.Cancel(id); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"id": id, "cancelled": true})
}

// GroupMembers handles GET /groups/{name}.
func (h *statsHandler) GroupMembers(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	members := h.pool.GroupMembers(name)
	respondJSON(w, http.StatusOK, map[string]interface{}{"group": name, "members": members})
}

// Pause handles POST /pool/pause.
func (h *statsHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.pool.Pause()
	respondJSON(w, http.StatusOK, map[string]interface{}{"paused": true})
}

// Resume handles POST /pool/resume.
func (h *statsHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.pool.Resume()
	respondJSON(w, http.StatusOK, map[string]interface{}{"paused": false})
}

// Stop handles POST /pool/stop.
func (h *statsHandler) Stop(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := h.pool.Stop(ctx); err != nil && err != context.Canceled && err != context.DeadlineExceeded {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"stopped": true})
}

// Health handles GET /health.
func Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error().Err(err).Msg("failed to encode monitor response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{"error": message})
}
