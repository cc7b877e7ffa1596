package server

import (
	"encoding/json"
	"net/http"

	"github.com/evmts/smithers/internal/domain"
)

// getMessages handles GET /session/{sessionID}/message.
func (s *Server) getMessages(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid session id")
		return
	}
	msgs, err := s.sessions.Messages(id)
	if err != nil {
		writeError(w, storeErrorStatus(err), ErrCodeInternalError, err.Error())
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// SendMessageRequest is the request body for POST /session/{id}/message.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// sendMessage handles POST /session/{sessionID}/message: it only enqueues
// the message as pending and returns immediately — the background worker
// picks it up on its own poll cycle and runs the engine. A client observes
// the reply via GET /session/{id}/message or the /event SSE endpoint's
// state_changed signal.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid session id")
		return
	}
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "content is required")
		return
	}

	msgID, err := s.sessions.EnqueueMessage(id, req.Content)
	if err != nil {
		writeError(w, storeErrorStatus(err), ErrCodeInternalError, err.Error())
		return
	}
	s.wrk.SetSession(id)
	writeJSON(w, http.StatusAccepted, map[string]int64{"id": msgID})
}
