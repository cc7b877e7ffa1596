// Package session implements the session/branch API: session lifecycle,
// branch/label bookmarking, and compaction bookkeeping over
// internal/store. It intentionally does not run the agentic loop — see
// internal/engine for the per-run state machine and internal/worker for
// the background driver that ticks it.
package session
