package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Unauthenticated
		r.Get("/health", s.handleHealth)
		r.Post("/auth/token", s.handleToken)

		// WebSocket authenticates with a ticket or bearer token in the handler
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)
			r.Get("/metrics", s.handleMetrics)

			r.Route("/lights", func(r chi.Router) {
				r.Get("/", s.handleListLights)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetLight)
					r.Patch("/", s.handleRenameLight)
					r.Delete("/", s.handleDeleteLight)
					r.Post("/pair", s.handlePairLight)
					r.Post("/factory-reset", s.handleFactoryReset)
					r.Put("/state", s.handleSetState)
				})
			})

			r.Get("/queue", s.handleGetQueue)
			r.Delete("/queue", s.handleClearQueue)

			r.Get("/journal", s.handleJournal)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	m := s.mesh.GetMetrics()
	status := "ok"
	if !m.Connected {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"version":        s.version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"mqtt_connected": m.Connected,
		"scheduler":      m.Stats.State,
		"queue_depth":    m.Stats.QueueDepth,
	})
}
