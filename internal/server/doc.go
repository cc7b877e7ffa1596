// Package server exposes a small HTTP API over the agent coordination
// core: session CRUD and branch/label/compaction bookkeeping, message
// submission into the pending queue the engine drains, and an SSE endpoint
// streaming the worker's state_changed flag.
//
// There is no provider, tool, or MCP configuration surface here — those
// are wired once at process startup (see cmd/smithers-server) and are not
// mutable over HTTP. A client drives a run by POSTing a message, then
// either polling GET /session/{id}/message or watching /event for
// state_changed before reloading, mirroring the same poll-on-signal
// pattern internal/headless's Printer uses locally.
package server
