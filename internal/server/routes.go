package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes wires the REST + SSE surface.
func (s *Server) setupRoutes() {
	r := s.router

	// SSE plane
	r.Get("/events", s.events)

	// Sessions
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Patch("/", s.updateSession)
			r.Delete("/", s.deleteSession)

			r.Get("/messages", s.listMessages)
			r.Post("/prompt", s.prompt)
			r.Post("/interrupt", s.interrupt)

			r.Get("/children", s.listChildren)
			r.Post("/fork", s.forkSession)
			r.Get("/diff", s.sessionDiff)
			r.Get("/todos", s.sessionTodos)
		})
	})

	// Providers and models
	r.Get("/providers", s.listProviders)
	r.Get("/models", s.listModels)
	r.Post("/models/select", s.selectModel)

	// Environment
	r.Get("/config", s.getConfig)
	r.Post("/environment/switch", s.switchEnvironment)
	r.Get("/mcp", s.mcpStatus)
	r.Get("/tools", s.listTools)
	r.Get("/tools/metrics", s.toolMetrics)
}
