package server

import (
	"github.com/go-chi/chi/v5"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)
		r.Get("/count", s.countSessions)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Patch("/", s.renameSession)
			r.Delete("/", s.deleteSession)

			r.Get("/message", s.getMessages)
			r.Post("/message", s.sendMessage)

			r.Post("/switch", s.switchSession)
			r.Post("/branch", s.branchSession)
			r.Post("/label", s.labelEntry)
			r.Get("/label", s.findByLabel)
			r.Post("/compact", s.compactSession)
			r.Get("/compaction", s.latestCompaction)
		})
	})

	// SSE: the foreground observer's state_changed signal.
	r.Get("/event", s.stateChangedEvents)
}
