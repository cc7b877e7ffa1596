// Package provider abstracts a capability that, given a conversation and a
// tool catalog, returns a handle yielding decoded stream.Event values. The
// teacher's provider package (internal/provider, dropped) wraps
// cloudwego/eino's ChatModel.Stream(), which returns an opaque
// *schema.StreamReader with no observable byte stream — incompatible with
// an owned, independently-testable stream decoder. This package keeps the
// teacher's interface *shape* (ID/Name/Models registry, per-model catalog
// data reused from anthropicModels()) but reimplements the streaming
// mechanism directly over net/http + internal/stream.
package provider

import (
	"github.com/evmts/smithers/internal/domain"
	"github.com/evmts/smithers/internal/stream"
)

// Model describes one selectable chat/completion model.
type Model struct {
	ID                string
	Name              string
	ProviderID        string
	ContextLength      int
	MaxOutputTokens   int
	SupportsTools     bool
	SupportsVision    bool
	SupportsReasoning bool
	InputPrice        float64
	OutputPrice       float64
}

// ToolSpec is the catalog surface for one tool.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Request is the (model, conversation, tool_catalog, options) tuple a Port
// accepts to start a stream.
type Request struct {
	Model     string
	MaxTokens int
	Messages  []domain.Message
	System    string
	Tools     []ToolSpec
	// Body, when non-nil, is a pre-serialized request body (used for
	// continuation turns, built once by the engine and replayed verbatim
	// rather than re-derived from Messages).
	Body []byte
}

// Handle is an opaque, provider-owned stream handle.
type Handle interface {
	// Poll returns the next decoded event, or ok=false if none is
	// currently available. Non-blocking.
	Poll() (ev Event, ok bool)
	// Done reports whether a `done` event has already been delivered.
	Done() bool
	// Cancel discards pending bytes, unblocks any reader, and marks the
	// handle terminal. Idempotent.
	Cancel()
}

// Event re-exports stream.Event's shape so callers of this package don't
// need to import internal/stream directly for the common case.
type Event = stream.Event

// Port is the capability the engine consumes.
type Port interface {
	// Start begins a stream for the given request. Fails with
	// ProviderUnavailable if credentials are missing or the stream cannot be
	// started.
	Start(req Request) (Handle, error)
}
