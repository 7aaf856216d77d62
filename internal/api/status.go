package api

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-edge/internal/application"
	"github.com/nerrad567/gray-logic-edge/internal/audit"
	"github.com/nerrad567/gray-logic-edge/internal/work"
)

// healthCheckTimeout bounds all dependency checks of one /healthz call.
const healthCheckTimeout = 3 * time.Second

const bytesPerMB = 1024 * 1024

// StatusResponse is the /v1/status body.
type StatusResponse struct {
	Timestamp     string              `json:"timestamp"`
	Version       string              `json:"version"`
	BootID        string              `json:"boot_id"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	Orchestrator  work.Status         `json:"orchestrator"`
	Application   *application.Status `json:"application,omitempty"`
	Runtime       RuntimeMetrics      `json:"runtime"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// handleHealth reports ok, or 503 with the failing checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	failed := make(map[string]string)
	for name, check := range s.checks {
		if err := check.HealthCheck(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":  "degraded",
			"version": s.version,
			"checks":  failed,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleStatus returns the orchestrator and application snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := StatusResponse{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		BootID:        s.bootID,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Orchestrator:  s.orchestrator.Status(),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(mem.Alloc) / bytesPerMB,
			MemoryTotalMB: float64(mem.Sys) / bytesPerMB,
			NumGC:         mem.NumGC,
		},
	}
	if s.application != nil {
		app := s.application.Status()
		resp.Application = &app
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRetry asks a parked orchestrator to start over. The request is
// queued; the orchestrator ignores it unless parked.
func (s *Server) handleRetry(w http.ResponseWriter, _ *http.Request) {
	err := s.orchestrator.Retry()
	switch {
	case err == nil:
		s.logger.Info("retry requested via API")
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
	case errors.Is(err, work.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "orchestrator queue full, try again")
	default:
		s.logger.Error("retry request failed", "error", err)
		writeInternalError(w, "retry failed")
	}
}

// handleListSessions lists recorded session transitions.
//
// Query parameters: boot_id, phase, limit, offset. boot_id=current selects
// this process's entries.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeNotFound(w, "session log not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		BootID: q.Get("boot_id"),
		Phase:  q.Get("phase"),
	}
	if filter.BootID == "current" {
		filter.BootID = s.bootID
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be an integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be an integer")
		return
	}

	res, err := s.sessions.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing session log failed", "error", err)
		writeInternalError(w, "failed to list session log")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// intParam parses an optional integer query parameter.
func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
