package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-fastcon/internal/bridges/fastcon"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string                `json:"timestamp"`
	Version       string                `json:"version"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	Runtime       RuntimeMetrics        `json:"runtime"`
	WebSocket     WSMetrics             `json:"websocket"`
	Bridge        fastcon.BridgeMetrics `json:"bridge"`
	Lights        LightMetrics          `json:"lights"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// LightMetrics summarises the light registry.
type LightMetrics struct {
	Total  int `json:"total"`
	Paired int `json:"paired"`
}

// handleMetrics returns a snapshot of process, bridge and registry metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: bytesToMB(mem.Alloc),
			MemoryTotalMB: bytesToMB(mem.Sys),
			NumGC:         mem.NumGC,
		},
		WebSocket: WSMetrics{ConnectedClients: s.Hub().ClientCount()},
		Bridge:    s.mesh.GetMetrics(),
	}

	if list, err := s.lights.List(r.Context()); err != nil {
		s.logger.Warn("metrics: failed to list lights", "error", err)
	} else {
		metrics.Lights.Total = len(list)
		for _, l := range list {
			if l.Paired() {
				metrics.Lights.Paired++
			}
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}

func bytesToMB(b uint64) float64 {
	return float64(b) / (1024 * 1024)
}
