package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/evmts/smithers/internal/domain"
	"github.com/evmts/smithers/internal/errs"
)

// Store is the embedded relational backing for session and run state.
// All mutating operations run inside a single transaction; Store is safe
// for concurrent use from multiple goroutines (sqlite serializes writers
// internally, and every exported method takes the internal mutex around
// its own transaction so callers never observe partial writes).
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Memory is the DSN for an in-memory store, used by tests.
const Memory = ":memory:"

// Open creates the schema if absent, runs additive migrations, and ensures
// a default "main" session exists.
func Open(path string) (*Store, error) {
	dsn := path
	if path != Memory {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errs.New(errs.KindStore, "open", err)
	}
	if path == Memory {
		// A single shared in-memory connection; sqlite's :memory: DSN is
		// per-connection, so the pool must never open a second one.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, errs.New(errs.KindStore, "create-schema", err)
	}
	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, errs.New(errs.KindStore, "migrate", err)
	}

	s := &Store{db: db}
	if err := s.seedDefaultSession(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.purgeEphemeral(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) seedDefaultSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&count); err != nil {
		return errs.New(errs.KindStore, "count-sessions", err)
	}
	if count > 0 {
		return nil
	}
	_, err := s.db.Exec(`INSERT INTO sessions(name, created_at) VALUES(?, ?)`, "main", time.Now().Unix())
	if err != nil {
		return errs.New(errs.KindStore, "seed-session", err)
	}
	return nil
}

// purgeEphemeral deletes ephemeral messages left over from a prior process.
func (s *Store) purgeEphemeral() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM messages WHERE ephemeral = 1`)
	if err != nil {
		return errs.New(errs.KindStore, "purge-ephemeral", err)
	}
	return nil
}

// newEntryID generates a lexicographically sortable opaque identifier;
// callers retry with a fresh one within their transaction on collision.
func (s *Store) newEntryID() string {
	return ulid.Make().String()
}

// --- Sessions -----------------------------------------------------------

// CreateSession inserts a new named session and returns its id.
func (s *Store) CreateSession(name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`INSERT INTO sessions(name, created_at) VALUES(?, ?)`, name, time.Now().Unix())
	if err != nil {
		return 0, errs.New(errs.KindStore, "create-session", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errs.New(errs.KindStore, "create-session", err)
	}
	return id, nil
}

// GetSession loads one session by id.
func (s *Store) GetSession(id int64) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getSessionLocked(id)
}

func (s *Store) getSessionLocked(id int64) (domain.Session, error) {
	var sess domain.Session
	var leaf sql.NullString
	err := s.db.QueryRow(`SELECT id, name, created_at, leaf_id FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.Name, &sess.CreatedAt, &leaf)
	if err == sql.ErrNoRows {
		return domain.Session{}, errs.New(errs.KindInvariantViolation, "get-session", fmt.Errorf("session %d not found", id))
	}
	if err != nil {
		return domain.Session{}, errs.New(errs.KindStore, "get-session", err)
	}
	if leaf.Valid {
		sess.LeafID = leaf.String
	}
	return sess, nil
}

// ListSessions returns all sessions ordered by id.
func (s *Store) ListSessions() ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`SELECT id, name, created_at, leaf_id FROM sessions ORDER BY id`)
	if err != nil {
		return nil, errs.New(errs.KindStore, "list-sessions", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		var sess domain.Session
		var leaf sql.NullString
		if err := rows.Scan(&sess.ID, &sess.Name, &sess.CreatedAt, &leaf); err != nil {
			return nil, errs.New(errs.KindStore, "list-sessions", err)
		}
		if leaf.Valid {
			sess.LeafID = leaf.String
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// CountSessions returns the number of sessions.
func (s *Store) CountSessions() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, errs.New(errs.KindStore, "count-sessions", err)
	}
	return n, nil
}

// RenameSession updates a session's display name.
func (s *Store) RenameSession(id int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE sessions SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return errs.New(errs.KindStore, "rename-session", err)
	}
	return nil
}

// DeleteSession cascades: messages, labels, compactions, agent runs, then
// the session row itself.
func (s *Store) DeleteSession(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return errs.New(errs.KindStore, "delete-session", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM messages WHERE session_id = ?`,
		`DELETE FROM labels WHERE session_id = ?`,
		`DELETE FROM compactions WHERE session_id = ?`,
		`DELETE FROM agent_runs WHERE session_id = ?`,
		`DELETE FROM sessions WHERE id = ?`,
	} {
		if _, err := tx.Exec(stmt, id); err != nil {
			return errs.New(errs.KindStore, "delete-session", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errs.New(errs.KindStore, "delete-session", err)
	}
	return nil
}

// --- Messages -------------------------------------------------------------

// AddMessageOpts configures AddMessage.
type AddMessageOpts struct {
	Ephemeral bool
	// Parent overrides the session's current leaf as the new message's
	// parent; empty means "use current leaf".
	Parent string
}

// AddMessage inserts a message, generates a fresh entry_id, links it to
// the given (or current-leaf) parent, and advances the session leaf.
func (s *Store) AddMessage(sessionID int64, role domain.Role, content string, opts AddMessageOpts) (int64, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, "", errs.New(errs.KindStore, "add-message", err)
	}
	defer tx.Rollback()

	parent := opts.Parent
	if parent == "" {
		sess, err := s.getSessionLocked(sessionID)
		if err != nil {
			return 0, "", err
		}
		parent = sess.LeafID
	}

	var entryID string
	var id int64
	for attempt := 0; attempt < 8; attempt++ {
		entryID = s.newEntryID()
		res, err := tx.Exec(
			`INSERT INTO messages(session_id, role, content, timestamp, ephemeral, status, entry_id, parent_id)
			 VALUES(?, ?, ?, ?, ?, 'sent', ?, ?)`,
			sessionID, role, content, time.Now().Unix(), boolToInt(opts.Ephemeral), entryID, nullableString(parent),
		)
		if err != nil {
			if isUniqueViolation(err) {
				continue
			}
			return 0, "", errs.New(errs.KindStore, "add-message", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, "", errs.New(errs.KindStore, "add-message", err)
		}
		break
	}
	if id == 0 {
		return 0, "", errs.New(errs.KindStore, "add-message", fmt.Errorf("exhausted entry_id retries"))
	}

	if _, err := tx.Exec(`UPDATE sessions SET leaf_id = ? WHERE id = ?`, entryID, sessionID); err != nil {
		return 0, "", errs.New(errs.KindStore, "add-message", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, "", errs.New(errs.KindStore, "add-message", err)
	}
	return id, entryID, nil
}

// ToolNoticeOpts carries the structured tool metadata attached to a system
// message so the conversation can later be replayed onto the wire as
// tool_use/tool_result content blocks instead of plain text.
type ToolNoticeOpts struct {
	ToolCallID        string
	ToolName          string
	ToolInput         string
	ToolPhase         string // "use" or "result"
	ToolSuccess       bool
	ToolResultContent string // untruncated; content stays display-only
}

// AddToolNotice inserts a system message carrying structured tool metadata
// alongside the display string in content. Display content is whatever the
// engine wants printed (e.g. "🔧 Executing: x" or "✓ x:\n..."); the
// structured fields let the conversation be rebuilt as tool_use/tool_result
// blocks for the wire without reparsing that display string.
func (s *Store) AddToolNotice(sessionID int64, content string, opts ToolNoticeOpts) (int64, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, "", errs.New(errs.KindStore, "add-tool-notice", err)
	}
	defer tx.Rollback()

	sess, err := s.getSessionLocked(sessionID)
	if err != nil {
		return 0, "", err
	}

	var entryID string
	var id int64
	for attempt := 0; attempt < 8; attempt++ {
		entryID = s.newEntryID()
		res, err := tx.Exec(
			`INSERT INTO messages(session_id, role, content, timestamp, ephemeral, tool_name, tool_input, status, entry_id, parent_id,
			                      tool_call_id, tool_phase, tool_success, tool_result_content)
			 VALUES(?, 'system', ?, ?, 0, ?, ?, 'sent', ?, ?, ?, ?, ?, ?)`,
			sessionID, content, time.Now().Unix(), opts.ToolName, opts.ToolInput, entryID, nullableString(sess.LeafID),
			opts.ToolCallID, opts.ToolPhase, boolToInt(opts.ToolSuccess), opts.ToolResultContent,
		)
		if err != nil {
			if isUniqueViolation(err) {
				continue
			}
			return 0, "", errs.New(errs.KindStore, "add-tool-notice", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, "", errs.New(errs.KindStore, "add-tool-notice", err)
		}
		break
	}
	if _, err := tx.Exec(`UPDATE sessions SET leaf_id = ? WHERE id = ?`, entryID, sessionID); err != nil {
		return 0, "", errs.New(errs.KindStore, "add-tool-notice", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, "", errs.New(errs.KindStore, "add-tool-notice", err)
	}
	return id, entryID, nil
}

// UpdateMessageContent replaces a message's content in place (used for
// incremental streaming display); role and ids are never touched.
func (s *Store) UpdateMessageContent(id int64, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE messages SET content = ? WHERE id = ?`, content, id)
	if err != nil {
		return errs.New(errs.KindStore, "update-message-content", err)
	}
	return nil
}

// GetMessages returns all messages in a session in insertion order.
func (s *Store) GetMessages(sessionID int64) ([]domain.Message, error) {
	return s.queryMessages(`SELECT `+messageColumns+`
		FROM messages WHERE session_id = ? ORDER BY id`, sessionID)
}

// GetMessagesFrom returns messages in a session from a given id onward
// (inclusive), used to build the compaction-aware feed.
func (s *Store) GetMessagesFrom(sessionID, fromID int64) ([]domain.Message, error) {
	return s.queryMessages(`SELECT `+messageColumns+`
		FROM messages WHERE session_id = ? AND id >= ? ORDER BY id`, sessionID, fromID)
}

func (s *Store) queryMessages(query string, args ...any) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errs.New(errs.KindStore, "get-messages", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, errs.New(errs.KindStore, "get-messages", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

const messageColumns = `id, session_id, role, content, timestamp, ephemeral, tool_name, tool_input, status, entry_id, parent_id,
	tool_call_id, tool_phase, tool_success, tool_result_content`

func scanMessage(row scanner) (domain.Message, error) {
	var m domain.Message
	var ephemeral, toolSuccess int
	var toolName, toolInput, entryID, parentID, toolCallID, toolPhase, toolResultContent sql.NullString
	err := row.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.Timestamp, &ephemeral, &toolName, &toolInput, &m.Status, &entryID, &parentID,
		&toolCallID, &toolPhase, &toolSuccess, &toolResultContent)
	if err != nil {
		return domain.Message{}, err
	}
	m.Ephemeral = ephemeral != 0
	m.ToolName = toolName.String
	m.ToolInput = toolInput.String
	m.EntryID = entryID.String
	m.ParentID = parentID.String
	m.ToolCallID = toolCallID.String
	m.ToolPhase = toolPhase.String
	m.ToolSuccess = toolSuccess != 0
	m.ToolResultContent = toolResultContent.String
	return m, nil
}

// --- Pending queue --------------------------------------------------------

// EnqueuePending inserts a message with status=pending (no entry_id/leaf
// advance yet; it joins the tree only once dequeued and sent).
func (s *Store) EnqueuePending(sessionID int64, role domain.Role, content string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		`INSERT INTO messages(session_id, role, content, timestamp, ephemeral, status) VALUES(?, ?, ?, ?, 0, 'pending')`,
		sessionID, role, content, time.Now().Unix(),
	)
	if err != nil {
		return 0, errs.New(errs.KindStore, "enqueue-pending", err)
	}
	return res.LastInsertId()
}

// NextPending returns the oldest pending message in ascending id order,
// or (Message{}, false, nil) if none exists.
func (s *Store) NextPending(sessionID int64) (domain.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(
		`SELECT `+messageColumns+`
		 FROM messages WHERE session_id = ? AND status = 'pending' ORDER BY id ASC LIMIT 1`, sessionID)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return domain.Message{}, false, nil
	}
	if err != nil {
		return domain.Message{}, false, errs.New(errs.KindStore, "next-pending", err)
	}
	return m, true, nil
}

// MarkSent assigns a fresh entry_id to a previously-pending message, links
// it under the session's current leaf, advances the leaf, and flips its
// status to sent.
func (s *Store) MarkSent(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return errs.New(errs.KindStore, "mark-sent", err)
	}
	defer tx.Rollback()

	var sessionID int64
	if err := tx.QueryRow(`SELECT session_id FROM messages WHERE id = ?`, id).Scan(&sessionID); err != nil {
		return errs.New(errs.KindStore, "mark-sent", err)
	}
	sess, err := s.getSessionLockedTx(tx, sessionID)
	if err != nil {
		return err
	}

	var entryID string
	for attempt := 0; attempt < 8; attempt++ {
		entryID = s.newEntryID()
		_, err := tx.Exec(
			`UPDATE messages SET status = 'sent', entry_id = ?, parent_id = ? WHERE id = ?`,
			entryID, nullableString(sess.LeafID), id,
		)
		if err != nil {
			if isUniqueViolation(err) {
				continue
			}
			return errs.New(errs.KindStore, "mark-sent", err)
		}
		break
	}
	if _, err := tx.Exec(`UPDATE sessions SET leaf_id = ? WHERE id = ?`, entryID, sessionID); err != nil {
		return errs.New(errs.KindStore, "mark-sent", err)
	}
	if err := tx.Commit(); err != nil {
		return errs.New(errs.KindStore, "mark-sent", err)
	}
	return nil
}

func (s *Store) getSessionLockedTx(tx *sql.Tx, id int64) (domain.Session, error) {
	var sess domain.Session
	var leaf sql.NullString
	err := tx.QueryRow(`SELECT id, name, created_at, leaf_id FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.Name, &sess.CreatedAt, &leaf)
	if err != nil {
		return domain.Session{}, errs.New(errs.KindStore, "get-session", err)
	}
	if leaf.Valid {
		sess.LeafID = leaf.String
	}
	return sess, nil
}

// HasPending reports whether a session has any pending messages.
func (s *Store) HasPending(sessionID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE session_id = ? AND status = 'pending'`, sessionID).Scan(&n)
	if err != nil {
		return false, errs.New(errs.KindStore, "has-pending", err)
	}
	return n > 0, nil
}

// --- Branching -------------------------------------------------------------

// GetCurrentLeaf returns the session's current leaf entry_id, or "" if empty.
func (s *Store) GetCurrentLeaf(sessionID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.getSessionLocked(sessionID)
	if err != nil {
		return "", err
	}
	return sess.LeafID, nil
}

// CreateBranch validates that fromEntryID exists in the session and
// rewinds the leaf to it.
func (s *Store) CreateBranch(sessionID int64, fromEntryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE session_id = ? AND entry_id = ?`, sessionID, fromEntryID).Scan(&n)
	if err != nil {
		return errs.New(errs.KindStore, "create-branch", err)
	}
	if n == 0 {
		return errs.New(errs.KindInvariantViolation, "create-branch", fmt.Errorf("unknown entry %q", fromEntryID))
	}
	_, err = s.db.Exec(`UPDATE sessions SET leaf_id = ? WHERE id = ?`, fromEntryID, sessionID)
	if err != nil {
		return errs.New(errs.KindStore, "create-branch", err)
	}
	return nil
}

// GetBranch walks parent_id back to the root from leaf (or the session's
// current leaf if leaf=="") and returns the path root-first.
func (s *Store) GetBranch(sessionID int64, leaf string) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if leaf == "" {
		sess, err := s.getSessionLocked(sessionID)
		if err != nil {
			return nil, err
		}
		leaf = sess.LeafID
	}
	if leaf == "" {
		return nil, nil
	}

	byEntry := map[string]domain.Message{}
	rows, err := s.db.Query(`SELECT `+messageColumns+`
		FROM messages WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, errs.New(errs.KindStore, "get-branch", err)
	}
	defer rows.Close()
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, errs.New(errs.KindStore, "get-branch", err)
		}
		if m.EntryID != "" {
			byEntry[m.EntryID] = m
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errs.New(errs.KindStore, "get-branch", err)
	}

	var path []domain.Message
	cur := leaf
	for cur != "" {
		m, ok := byEntry[cur]
		if !ok {
			return nil, errs.New(errs.KindInvariantViolation, "get-branch", fmt.Errorf("dangling entry %q", cur))
		}
		path = append(path, m)
		cur = m.ParentID
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// HasChildren reports whether two or more messages share entryID as parent.
func (s *Store) HasChildren(sessionID int64, entryID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE session_id = ? AND parent_id = ?`, sessionID, entryID).Scan(&n)
	if err != nil {
		return false, errs.New(errs.KindStore, "has-children", err)
	}
	return n >= 2, nil
}

// --- Labels ------------------------------------------------------------

// SetLabel upserts a session-scoped label pointing at targetID, rejecting
// unknown entries.
func (s *Store) SetLabel(sessionID int64, targetID, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE session_id = ? AND entry_id = ?`, sessionID, targetID).Scan(&n)
	if err != nil {
		return errs.New(errs.KindStore, "set-label", err)
	}
	if n == 0 {
		return errs.New(errs.KindInvariantViolation, "set-label", fmt.Errorf("unknown entry %q", targetID))
	}

	_, err = s.db.Exec(
		`INSERT INTO labels(session_id, target_id, label, created_at) VALUES(?, ?, ?, ?)
		 ON CONFLICT(session_id, label) DO UPDATE SET target_id = excluded.target_id, created_at = excluded.created_at`,
		sessionID, targetID, label, time.Now().Unix(),
	)
	if err != nil {
		return errs.New(errs.KindStore, "set-label", err)
	}
	return nil
}

// GetLabel returns the label attached to an entry, if any.
func (s *Store) GetLabel(sessionID int64, targetID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var label string
	err := s.db.QueryRow(`SELECT label FROM labels WHERE session_id = ? AND target_id = ?`, sessionID, targetID).Scan(&label)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errs.New(errs.KindStore, "get-label", err)
	}
	return label, true, nil
}

// GetEntryByLabel resolves a label to its target entry_id.
func (s *Store) GetEntryByLabel(sessionID int64, label string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var target string
	err := s.db.QueryRow(`SELECT target_id FROM labels WHERE session_id = ? AND label = ?`, sessionID, label).Scan(&target)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errs.New(errs.KindStore, "get-entry-by-label", err)
	}
	return target, true, nil
}

// ListLabels returns all labels for a session.
func (s *Store) ListLabels(sessionID int64) ([]domain.Label, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`SELECT id, session_id, target_id, label, created_at FROM labels WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, errs.New(errs.KindStore, "list-labels", err)
	}
	defer rows.Close()
	var out []domain.Label
	for rows.Next() {
		var l domain.Label
		if err := rows.Scan(&l.ID, &l.SessionID, &l.TargetID, &l.Label, &l.CreatedAt); err != nil {
			return nil, errs.New(errs.KindStore, "list-labels", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteLabel removes a label by name.
func (s *Store) DeleteLabel(sessionID int64, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM labels WHERE session_id = ? AND label = ?`, sessionID, label)
	if err != nil {
		return errs.New(errs.KindStore, "delete-label", err)
	}
	return nil
}

// --- Compactions ---------------------------------------------------------

// CreateCompaction persists a new compaction marker.
func (s *Store) CreateCompaction(sessionID int64, summary string, firstKeptMsgID int64, tokensBefore int, details string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		`INSERT INTO compactions(session_id, summary, first_kept_msg_id, tokens_before, details, created_at) VALUES(?, ?, ?, ?, ?, ?)`,
		sessionID, summary, firstKeptMsgID, tokensBefore, nullableString(details), time.Now().Unix(),
	)
	if err != nil {
		return 0, errs.New(errs.KindStore, "create-compaction", err)
	}
	return res.LastInsertId()
}

// LatestCompaction returns the most recent compaction for a session, if any.
func (s *Store) LatestCompaction(sessionID int64) (domain.Compaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c domain.Compaction
	var details sql.NullString
	err := s.db.QueryRow(
		`SELECT id, session_id, summary, first_kept_msg_id, tokens_before, details, created_at
		 FROM compactions WHERE session_id = ? ORDER BY id DESC LIMIT 1`, sessionID,
	).Scan(&c.ID, &c.SessionID, &c.Summary, &c.FirstKeptMsgID, &c.TokensBefore, &details, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.Compaction{}, false, nil
	}
	if err != nil {
		return domain.Compaction{}, false, errs.New(errs.KindStore, "latest-compaction", err)
	}
	c.Details = details.String
	return c, true, nil
}

// DeleteSessionCompactions removes all compactions for a session.
func (s *Store) DeleteSessionCompactions(sessionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM compactions WHERE session_id = ?`, sessionID)
	if err != nil {
		return errs.New(errs.KindStore, "delete-compactions", err)
	}
	return nil
}

// --- helpers ---------------------------------------------------------------

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}

// WithContext is a convenience no-op hook point for future context-aware
// query variants; kept so callers can thread a context through Store
// without an interface change later.
func (s *Store) WithContext(ctx context.Context) *Store { return s }
