// Package session implements transactional session/branch/label/compaction
// helpers layered over internal/store. It does not run the agentic loop
// itself — that lives in internal/engine and internal/worker; this package
// only manages which session is addressed and its branch/label/compaction
// bookkeeping.
//
// Grounded on the teacher's internal/session/service.go for the CRUD shape
// (Create/Get/Delete/List/rename), with the flat-file `internal/storage`
// backing replaced entirely by `internal/store`'s relational schema, and
// the directory-hashed multi-project session model dropped in favor of a
// single flat session list.
package session

import (
	"sync"

	"github.com/evmts/smithers/internal/domain"
	"github.com/evmts/smithers/internal/errs"
	"github.com/evmts/smithers/internal/event"
	"github.com/evmts/smithers/internal/store"
)

// Service is the session surface: new_session/switch_session/delete_session/
// rename_session/count_sessions/branch_from/label/find_by_label/compact/
// latest_compaction, plus tracking of the single "current session" that new
// messages and the background worker address.
type Service struct {
	store *store.Store

	mu      sync.RWMutex
	current int64
}

// New constructs a Service. currentSessionID seeds the initially-current
// session (the caller typically passes the most recently used session, or
// the store's default "main" session).
func New(st *store.Store, currentSessionID int64) *Service {
	return &Service{store: st, current: currentSessionID}
}

// CurrentSessionID returns the session currently addressed by new
// messages and the background worker.
func (s *Service) CurrentSessionID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// NewSession creates a session and returns its id, without making it
// current (callers call SwitchSession explicitly to adopt it).
func (s *Service) NewSession(name string) (int64, error) {
	id, err := s.store.CreateSession(name)
	if err != nil {
		return 0, err
	}
	sess, err := s.store.GetSession(id)
	if err == nil {
		event.Publish(event.Event{Type: event.SessionCreated, Data: event.SessionCreatedData{Info: sess}})
	}
	return id, nil
}

// SwitchSession makes id the current session, validating it exists first.
func (s *Service) SwitchSession(id int64) error {
	if _, err := s.store.GetSession(id); err != nil {
		return err
	}
	s.mu.Lock()
	s.current = id
	s.mu.Unlock()
	return nil
}

// DeleteSession removes a session, cascading to its messages, labels and
// compactions (internal/store.DeleteSession already does this inside one
// transaction). If the deleted session was current, the caller must
// SwitchSession elsewhere before processing further messages.
func (s *Service) DeleteSession(id int64) error {
	if err := s.store.DeleteSession(id); err != nil {
		return err
	}
	event.Publish(event.Event{Type: event.SessionDeleted, Data: event.SessionDeletedData{SessionID: id}})
	return nil
}

// RenameSession updates a session's display name.
func (s *Service) RenameSession(id int64, name string) error {
	if err := s.store.RenameSession(id, name); err != nil {
		return err
	}
	if sess, err := s.store.GetSession(id); err == nil {
		event.Publish(event.Event{Type: event.SessionUpdated, Data: event.SessionUpdatedData{Info: sess}})
	}
	return nil
}

// CountSessions returns the total number of sessions.
func (s *Service) CountSessions() (int, error) {
	return s.store.CountSessions()
}

// ListSessions returns every session.
func (s *Service) ListSessions() ([]domain.Session, error) {
	return s.store.ListSessions()
}

// BranchFrom validates entryID exists in the session and resets its leaf
// to a new branch rooted there.
func (s *Service) BranchFrom(sessionID int64, entryID string) error {
	return s.store.CreateBranch(sessionID, entryID)
}

// Label attaches a session-scoped bookmark name to an entry.
func (s *Service) Label(sessionID int64, entryID, name string) error {
	return s.store.SetLabel(sessionID, entryID, name)
}

// FindByLabel resolves a bookmark name back to its entry id.
func (s *Service) FindByLabel(sessionID int64, name string) (string, bool, error) {
	return s.store.GetEntryByLabel(sessionID, name)
}

// DeleteLabel removes a bookmark: set_label then find_by_label resolves
// it, delete_label then find_by_label returns none.
func (s *Service) DeleteLabel(sessionID int64, name string) error {
	return s.store.DeleteLabel(sessionID, name)
}

// ListLabels returns every bookmark in a session.
func (s *Service) ListLabels(sessionID int64) ([]domain.Label, error) {
	return s.store.ListLabels(sessionID)
}

// MinMessagesKept gates when a caller (the engine's host, not this
// package) should trigger a compaction, grounded on the teacher's
// CompactionConfig policy constants but narrowed to a single knob: a
// minimum number of recent messages always kept uncompacted.
const MinMessagesKept = 4

// Compact records a previously-generated summary as the session's new
// compaction point. Generating the summary text itself is the caller's
// concern (it requires a model round-trip through the engine) — this
// method only persists the result.
func (s *Service) Compact(sessionID int64, summary string, firstKeptMsgID int64, tokensBefore int, details string) (int64, error) {
	return s.store.CreateCompaction(sessionID, summary, firstKeptMsgID, tokensBefore, details)
}

// LatestCompaction returns the most recent compaction for a session, if
// any.
func (s *Service) LatestCompaction(sessionID int64) (domain.Compaction, bool, error) {
	return s.store.LatestCompaction(sessionID)
}

// EnqueueMessage queues a user message for the worker to pick up on its
// next idle poll. FIFO consumption holds by construction: the store always
// dequeues in ascending id order.
func (s *Service) EnqueueMessage(sessionID int64, content string) (int64, error) {
	return s.store.EnqueuePending(sessionID, domain.RoleUser, content)
}

// Messages returns the session's full message history in insertion order.
func (s *Service) Messages(sessionID int64) ([]domain.Message, error) {
	return s.store.GetMessages(sessionID)
}

// Branch returns the message history along the path to leaf, the
// conversation the engine sends to the model.
func (s *Service) Branch(sessionID int64, leaf string) ([]domain.Message, error) {
	return s.store.GetBranch(sessionID, leaf)
}

// ValidateEntry reports whether entryID exists in sessionID, surfacing an
// InvariantViolation error kind for branch/label operations against
// unknown entries.
func (s *Service) ValidateEntry(sessionID int64, entryID string) error {
	msgs, err := s.store.GetMessages(sessionID)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if m.EntryID == entryID {
			return nil
		}
	}
	return errs.New(errs.KindInvariantViolation, "validate-entry", nil)
}
