package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/evmts/smithers/internal/domain"
	"github.com/evmts/smithers/internal/errs"
)

// CreateRun inserts a new pending AgentRun for a session. Keeping at most
// one active run per session is the caller's (the engine and worker)
// responsibility to check via ActiveRun before calling this.
func (s *Store) CreateRun(sessionID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().Unix()
	res, err := s.db.Exec(
		`INSERT INTO agent_runs(session_id, status, current_tool_idx, created_at, updated_at) VALUES(?, ?, 0, ?, ?)`,
		sessionID, domain.RunPending, now, now,
	)
	if err != nil {
		return 0, errs.New(errs.KindStore, "create-run", err)
	}
	return res.LastInsertId()
}

// ActiveRun returns the session's non-terminal run, if one exists.
func (s *Store) ActiveRun(sessionID int64) (domain.AgentRun, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRow(
		`SELECT id, session_id, status, pending_tools, current_tool_idx, tool_results, assistant_content, continuation_body, created_at, updated_at
		 FROM agent_runs WHERE session_id = ? AND status NOT IN ('complete', 'error') ORDER BY id DESC LIMIT 1`, sessionID)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return domain.AgentRun{}, false, nil
	}
	if err != nil {
		return domain.AgentRun{}, false, errs.New(errs.KindStore, "active-run", err)
	}
	return run, true, nil
}

// GetRun loads a run by id.
func (s *Store) GetRun(id int64) (domain.AgentRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRow(
		`SELECT id, session_id, status, pending_tools, current_tool_idx, tool_results, assistant_content, continuation_body, created_at, updated_at
		 FROM agent_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		return domain.AgentRun{}, errs.New(errs.KindStore, "get-run", err)
	}
	return run, nil
}

// ListActiveRuns returns every non-terminal run across all sessions, used
// by the worker's startup crash-recovery sweep.
func (s *Store) ListActiveRuns() ([]domain.AgentRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(
		`SELECT id, session_id, status, pending_tools, current_tool_idx, tool_results, assistant_content, continuation_body, created_at, updated_at
		 FROM agent_runs WHERE status NOT IN ('complete', 'error')`)
	if err != nil {
		return nil, errs.New(errs.KindStore, "list-active-runs", err)
	}
	defer rows.Close()
	var out []domain.AgentRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errs.New(errs.KindStore, "list-active-runs", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func scanRun(row scanner) (domain.AgentRun, error) {
	var run domain.AgentRun
	var pendingTools, toolResults sql.NullString
	var assistantContent, continuationBody []byte
	err := row.Scan(&run.ID, &run.SessionID, &run.Status, &pendingTools, &run.CurrentToolIdx,
		&toolResults, &assistantContent, &continuationBody, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return domain.AgentRun{}, err
	}
	if pendingTools.Valid && pendingTools.String != "" {
		if err := json.Unmarshal([]byte(pendingTools.String), &run.PendingTools); err != nil {
			return domain.AgentRun{}, err
		}
	}
	if toolResults.Valid && toolResults.String != "" {
		if err := json.Unmarshal([]byte(toolResults.String), &run.ToolResults); err != nil {
			return domain.AgentRun{}, err
		}
	}
	run.AssistantContent = assistantContent
	run.ContinuationBody = continuationBody
	return run, nil
}

// SetStatus updates a run's status field.
func (s *Store) SetStatus(id int64, status domain.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE agent_runs SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().Unix(), id)
	if err != nil {
		return errs.New(errs.KindStore, "set-status", err)
	}
	return nil
}

// SetTools persists the pending tool-call list and resets current_tool_idx.
func (s *Store) SetTools(id int64, tools []domain.PendingToolCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, err := json.Marshal(tools)
	if err != nil {
		return errs.New(errs.KindStore, "set-tools", err)
	}
	_, err = s.db.Exec(`UPDATE agent_runs SET pending_tools = ?, current_tool_idx = 0, updated_at = ? WHERE id = ?`,
		string(buf), time.Now().Unix(), id)
	if err != nil {
		return errs.New(errs.KindStore, "set-tools", err)
	}
	return nil
}

// AdvanceToolIdx bumps current_tool_idx by one.
func (s *Store) AdvanceToolIdx(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE agent_runs SET current_tool_idx = current_tool_idx + 1, updated_at = ? WHERE id = ?`,
		time.Now().Unix(), id)
	if err != nil {
		return errs.New(errs.KindStore, "advance-tool-idx", err)
	}
	return nil
}

// SetResults persists the accumulated tool-result list.
func (s *Store) SetResults(id int64, results []domain.ToolResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, err := json.Marshal(results)
	if err != nil {
		return errs.New(errs.KindStore, "set-results", err)
	}
	_, err = s.db.Exec(`UPDATE agent_runs SET tool_results = ?, updated_at = ? WHERE id = ?`, string(buf), time.Now().Unix(), id)
	if err != nil {
		return errs.New(errs.KindStore, "set-results", err)
	}
	return nil
}

// SetAssistantContent persists the serialized mixed-content assistant turn.
func (s *Store) SetAssistantContent(id int64, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE agent_runs SET assistant_content = ?, updated_at = ? WHERE id = ?`, content, time.Now().Unix(), id)
	if err != nil {
		return errs.New(errs.KindStore, "set-assistant-content", err)
	}
	return nil
}

// SetContinuationBody persists the serialized continuation request body.
func (s *Store) SetContinuationBody(id int64, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE agent_runs SET continuation_body = ?, updated_at = ? WHERE id = ?`, body, time.Now().Unix(), id)
	if err != nil {
		return errs.New(errs.KindStore, "set-continuation-body", err)
	}
	return nil
}

// CompleteRun clears transient fields and marks the row complete.
// Idempotent: calling it twice leaves the row in `complete`.
func (s *Store) CompleteRun(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`UPDATE agent_runs SET status = ?, pending_tools = NULL, tool_results = NULL,
		 assistant_content = NULL, continuation_body = NULL, current_tool_idx = 0, updated_at = ?
		 WHERE id = ?`,
		domain.RunComplete, time.Now().Unix(), id,
	)
	if err != nil {
		return errs.New(errs.KindStore, "complete-run", err)
	}
	return nil
}

// FailRun marks the row in the terminal error state. Idempotent.
func (s *Store) FailRun(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE agent_runs SET status = ?, updated_at = ? WHERE id = ?`, domain.RunError, time.Now().Unix(), id)
	if err != nil {
		return errs.New(errs.KindStore, "fail-run", err)
	}
	return nil
}
