package store

import (
	"database/sql"
	"strings"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS sessions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	leaf_id    TEXT
);

CREATE TABLE IF NOT EXISTS messages (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  INTEGER NOT NULL,
	role        TEXT NOT NULL,
	content     TEXT NOT NULL,
	timestamp   INTEGER NOT NULL,
	ephemeral   INTEGER NOT NULL DEFAULT 0,
	tool_name   TEXT,
	tool_input  TEXT,
	status      TEXT NOT NULL DEFAULT 'sent',
	entry_id    TEXT,
	parent_id   TEXT,
	tool_call_id         TEXT,
	tool_phase           TEXT,
	tool_success         INTEGER NOT NULL DEFAULT 0,
	tool_result_content  TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_session_entry
	ON messages(session_id, entry_id) WHERE entry_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_messages_session_id ON messages(session_id, id);
CREATE INDEX IF NOT EXISTS idx_messages_parent ON messages(session_id, parent_id);
CREATE INDEX IF NOT EXISTS idx_messages_status ON messages(status, id);

CREATE TABLE IF NOT EXISTS labels (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id INTEGER NOT NULL,
	target_id  TEXT NOT NULL,
	label      TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_labels_session_label ON labels(session_id, label);

CREATE TABLE IF NOT EXISTS compactions (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id        INTEGER NOT NULL,
	summary           TEXT NOT NULL,
	first_kept_msg_id INTEGER NOT NULL,
	tokens_before     INTEGER NOT NULL,
	details           TEXT,
	created_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_compactions_session ON compactions(session_id, id);

CREATE TABLE IF NOT EXISTS agent_runs (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id         INTEGER NOT NULL,
	status             TEXT NOT NULL,
	pending_tools      TEXT,
	current_tool_idx   INTEGER NOT NULL DEFAULT 0,
	tool_results       TEXT,
	assistant_content  BLOB,
	continuation_body  BLOB,
	created_at         INTEGER NOT NULL,
	updated_at         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_agent_runs_session ON agent_runs(session_id, id);
`

// additive migrations applied after schemaDDL. Each is an idempotent
// ALTER TABLE ADD COLUMN; "duplicate column name" is the only tolerated
// failure.
var migrations = []string{
	`ALTER TABLE agent_runs ADD COLUMN continuation_body BLOB`,
	`ALTER TABLE messages ADD COLUMN tool_call_id TEXT`,
	`ALTER TABLE messages ADD COLUMN tool_phase TEXT`,
	`ALTER TABLE messages ADD COLUMN tool_success INTEGER NOT NULL DEFAULT 0`,
	`ALTER TABLE messages ADD COLUMN tool_result_content TEXT`,
}

func applyMigrations(db *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			if isDuplicateColumn(err) {
				continue
			}
			return err
		}
	}
	return nil
}

func isDuplicateColumn(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column name")
}
