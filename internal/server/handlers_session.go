package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/evmts/smithers/internal/domain"
	"github.com/evmts/smithers/internal/errs"
)

func sessionIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
}

func storeErrorStatus(err error) int {
	if errs.OfKind(err, errs.KindInvariantViolation) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// CreateSessionRequest is the request body for POST /session.
type CreateSessionRequest struct {
	Name string `json:"name"`
}

// RenameSessionRequest is the request body for PATCH /session/{id}.
type RenameSessionRequest struct {
	Name string `json:"name"`
}

// listSessions handles GET /session.
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.ListSessions()
	if err != nil {
		writeError(w, storeErrorStatus(err), ErrCodeInternalError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// createSession handles POST /session.
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		req.Name = "session"
	}

	id, err := s.sessions.NewSession(req.Name)
	if err != nil {
		writeError(w, storeErrorStatus(err), ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}

// countSessions handles GET /session/count.
func (s *Server) countSessions(w http.ResponseWriter, r *http.Request) {
	count, err := s.sessions.CountSessions()
	if err != nil {
		writeError(w, storeErrorStatus(err), ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

// getSession handles GET /session/{sessionID}.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid session id")
		return
	}
	sess, err := s.store.GetSession(id)
	if err != nil {
		writeError(w, storeErrorStatus(err), ErrCodeNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// renameSession handles PATCH /session/{sessionID}.
func (s *Server) renameSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid session id")
		return
	}
	var req RenameSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if err := s.sessions.RenameSession(id, req.Name); err != nil {
		writeError(w, storeErrorStatus(err), ErrCodeInternalError, err.Error())
		return
	}
	writeSuccess(w)
}

// deleteSession handles DELETE /session/{sessionID}.
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid session id")
		return
	}
	if err := s.sessions.DeleteSession(id); err != nil {
		writeError(w, storeErrorStatus(err), ErrCodeInternalError, err.Error())
		return
	}
	writeSuccess(w)
}

// switchSession handles POST /session/{sessionID}/switch: makes this
// session current and redirects the worker to service it.
func (s *Server) switchSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid session id")
		return
	}
	if err := s.sessions.SwitchSession(id); err != nil {
		writeError(w, storeErrorStatus(err), ErrCodeNotFound, err.Error())
		return
	}
	s.wrk.SetSession(id)
	writeSuccess(w)
}

// BranchRequest is the request body for POST /session/{id}/branch.
type BranchRequest struct {
	EntryID string `json:"entryId"`
}

func (s *Server) branchSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid session id")
		return
	}
	var req BranchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if err := s.sessions.BranchFrom(id, req.EntryID); err != nil {
		writeError(w, storeErrorStatus(err), ErrCodeNotFound, err.Error())
		return
	}
	writeSuccess(w)
}

// LabelRequest is the request body for POST /session/{id}/label.
type LabelRequest struct {
	EntryID string `json:"entryId"`
	Name    string `json:"name"`
}

func (s *Server) labelEntry(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid session id")
		return
	}
	var req LabelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if err := s.sessions.Label(id, req.EntryID, req.Name); err != nil {
		writeError(w, storeErrorStatus(err), ErrCodeInternalError, err.Error())
		return
	}
	writeSuccess(w)
}

func (s *Server) findByLabel(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid session id")
		return
	}
	name := r.URL.Query().Get("name")
	entryID, found, err := s.sessions.FindByLabel(id, name)
	if err != nil {
		writeError(w, storeErrorStatus(err), ErrCodeInternalError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "label not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"entryId": entryID})
}

// CompactRequest is the request body for POST /session/{id}/compact.
type CompactRequest struct {
	Summary        string `json:"summary"`
	FirstKeptMsgID int64  `json:"firstKeptMsgId"`
	TokensBefore   int    `json:"tokensBefore"`
	Details        string `json:"details,omitempty"`
}

func (s *Server) compactSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid session id")
		return
	}
	var req CompactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	compactionID, err := s.sessions.Compact(id, req.Summary, req.FirstKeptMsgID, req.TokensBefore, req.Details)
	if err != nil {
		writeError(w, storeErrorStatus(err), ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": compactionID})
}

func (s *Server) latestCompaction(w http.ResponseWriter, r *http.Request) {
	id, err := sessionIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid session id")
		return
	}
	compaction, found, err := s.sessions.LatestCompaction(id)
	if err != nil {
		writeError(w, storeErrorStatus(err), ErrCodeInternalError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no compaction found")
		return
	}
	writeJSON(w, http.StatusOK, compaction)
}
