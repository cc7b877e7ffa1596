// Package store implements the durable, transactional relational backing
// for sessions, messages, labels, compactions and agent runs. It replaces
// the teacher's flat-file JSON storage (internal/storage, still in the tree
// but imported by no other package — see DESIGN.md) with an embedded sqlite database opened via modernc.org/sqlite,
// since the data model requires cross-entity transactions and tree/FIFO
// queries that a flat key-value JSON layout cannot express cleanly.
//
// Schema creation and migrations are additive and idempotent: ALTER TABLE
// ADD COLUMN statements are issued unconditionally and a "duplicate
// column name" failure is swallowed.
package store
