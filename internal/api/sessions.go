package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-video/internal/session"
)

// handleListSessions returns the most recent stream sessions, newest first.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeUnavailable(w, "session history not configured")
		return
	}

	limit := session.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	sessions, err := s.sessions.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing sessions", "error", err)
		writeInternalError(w, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeUnavailable(w, "session history not configured")
		return
	}

	sess, err := s.sessions.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeNotFound(w, "session not found")
			return
		}
		s.logger.Error("getting session", "error", err)
		writeInternalError(w, "failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
