package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-video/internal/auth"
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

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// No auth: probes and monitoring
		r.Get("/health", s.handleHealth)
		r.Get("/system", s.handleSystem)

		r.Route("/video", func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/schema", s.handleSchema)
			r.Get("/encoding", s.handleEncoding)
			r.Get("/status", s.handleStatus)
			r.Get("/latest", s.handleLatest)
			r.Get("/latest/record", s.handleLatestRecord)
			r.Get("/stream.mjpg", s.handleMJPEGStream)
			r.Get("/sessions", s.handleListSessions)
			r.Get("/sessions/{id}", s.handleGetSession)
			r.Get(s.wsPath(), s.handleWebSocket)

			r.With(s.requireScope(auth.ScopeControl)).Put("/streaming", s.handleSetStreaming)
		})
	})

	return r
}

// wsPath is the WebSocket route under /api/v1/video. Default: "/ws".
func (s *Server) wsPath() string {
	p := s.wsCfg.Path
	if p == "" {
		return "/ws"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	return p
}
