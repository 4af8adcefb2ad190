package api

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/inkframe/internal/ledger"
)

// healthCheckTimeout bounds dependency checks in /health.
const healthCheckTimeout = 2 * time.Second

// HealthResponse is the /api/v1/health body.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// StatusResponse is the /api/v1/status body.
type StatusResponse struct {
	Timestamp        string         `json:"timestamp"`
	DeviceID         string         `json:"device_id"`
	Version          string         `json:"version"`
	Mode             string         `json:"mode"`
	UptimeSeconds    int64          `json:"uptime_seconds"`
	ChannelConnected bool           `json:"channel_connected"`
	Display          DisplayInfo    `json:"display"`
	LastRender       *RenderInfo    `json:"last_render"`
	Runtime          RuntimeMetrics `json:"runtime"`
}

// RenderInfo describes the frame currently on the panel.
type RenderInfo struct {
	ContentDigest string `json:"content_digest"`
	SourceURL     string `json:"source_url"`
	RenderedAt    string `json:"rendered_at"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// handleHealth reports ok, or 503 when the database check fails.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Version: s.deps.Version}

	if s.deps.Database != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		resp.Checks = map[string]string{"database": "ok"}
		if err := s.deps.Database.HealthCheck(ctx); err != nil {
			resp.Status = "degraded"
			resp.Checks["database"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleStatus returns mode, connectivity and the current render.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	resp := StatusResponse{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		DeviceID:      s.deps.DeviceID,
		Version:       s.deps.Version,
		Mode:          s.deps.State.Mode().String(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Display:       s.deps.Display,
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
	}
	if s.deps.Channel != nil {
		resp.ChannelConnected = s.deps.Channel.ChannelConnected()
	}

	if s.deps.Ledger != nil {
		cur, err := s.deps.Ledger.Current(r.Context(), s.deps.DeviceID)
		switch {
		case err == nil:
			resp.LastRender = &RenderInfo{
				ContentDigest: cur.ContentDigest,
				SourceURL:     cur.SourceURL,
				RenderedAt:    cur.RenderedAt.UTC().Format(time.RFC3339),
			}
		case errors.Is(err, ledger.ErrNotFound):
		default:
			s.logger.Warn("ledger lookup failed", "error", err)
			s.writeError(w, r, http.StatusInternalServerError, codeLedgerUnavailable, "failed to read display ledger")
			return
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
