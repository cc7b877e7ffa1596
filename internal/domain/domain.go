// Package domain defines the core persistent entities shared by the store,
// the agent run state machine, and the session API: sessions, messages,
// labels, compactions and agent runs (see DESIGN.md, store/doc.go).
package domain

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// MessageStatus tracks whether a pending user message has been picked up by
// the agent worker yet.
type MessageStatus string

const (
	StatusSent    MessageStatus = "sent"
	StatusPending MessageStatus = "pending"
)

// RunStatus is the state of an AgentRun as it moves through the ACC phases.
type RunStatus string

const (
	RunPending     RunStatus = "pending"
	RunStreaming   RunStatus = "streaming"
	RunTools       RunStatus = "tools"
	RunContinuing  RunStatus = "continuing"
	RunComplete    RunStatus = "complete"
	RunError       RunStatus = "error"
)

// Terminal reports whether the status represents a finished run.
func (s RunStatus) Terminal() bool {
	return s == RunComplete || s == RunError
}

// Session is a named conversation thread. At least one session always
// exists ("main"); sessions own a tree of messages via LeafID.
type Session struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"createdAt"`
	LeafID    string `json:"leafId,omitempty"`
}

// Message is one turn in a session's message tree. EntryID/ParentID encode
// the tree: each message names its single parent, and two messages sharing
// a parent mark a branch point.
type Message struct {
	ID        int64         `json:"id"`
	SessionID int64         `json:"sessionId"`
	Role      Role          `json:"role"`
	Content   string        `json:"content"`
	Timestamp int64         `json:"timestamp"`
	Ephemeral bool          `json:"ephemeral"`
	ToolName  string        `json:"toolName,omitempty"`
	ToolInput string        `json:"toolInput,omitempty"`
	Status    MessageStatus `json:"status"`
	EntryID   string        `json:"entryId,omitempty"`
	ParentID  string        `json:"parentId,omitempty"`

	// ToolCallID/ToolPhase/ToolSuccess/ToolResultContent carry the
	// structured metadata behind a tool notice message (role=system), so
	// the conversation can be rebuilt into tool_use/tool_result wire
	// blocks instead of replaying Content's display string. ToolPhase is
	// "use" or "result"; it is empty for ordinary system notices (run
	// errors, interruptions) that never reached the provider as a turn.
	ToolCallID        string `json:"toolCallId,omitempty"`
	ToolPhase         string `json:"toolPhase,omitempty"`
	ToolSuccess       bool   `json:"toolSuccess,omitempty"`
	ToolResultContent string `json:"toolResultContent,omitempty"`
}

// Label is a session-scoped bookmark pointing at an entry.
type Label struct {
	ID        int64  `json:"id"`
	SessionID int64  `json:"sessionId"`
	TargetID  string `json:"targetId"`
	Label     string `json:"label"`
	CreatedAt int64  `json:"createdAt"`
}

// Compaction marks a point at which earlier messages are elided from the
// provider-bound conversation in favor of a summary.
type Compaction struct {
	ID             int64  `json:"id"`
	SessionID      int64  `json:"sessionId"`
	Summary        string `json:"summary"`
	FirstKeptMsgID int64  `json:"firstKeptMsgId"`
	TokensBefore   int    `json:"tokensBefore"`
	Details        string `json:"details,omitempty"`
	CreatedAt      int64  `json:"createdAt"`
}

// PendingToolCall is one `tool_use` block accumulated while streaming.
type PendingToolCall struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input []byte `json:"input"`
}

// ToolResultRecord is the outcome of executing one PendingToolCall.
type ToolResultRecord struct {
	ToolUseID string `json:"toolUseId"`
	Name      string `json:"name"`
	Success   bool   `json:"success"`
	Content   string `json:"content"`
	Error     string `json:"error,omitempty"`
}

// AgentRun is the durable record of one agent run's execution through the
// engine's state machine. At most one non-terminal AgentRun may exist per
// session.
type AgentRun struct {
	ID                int64             `json:"id"`
	SessionID         int64             `json:"sessionId"`
	Status            RunStatus         `json:"status"`
	PendingTools      []PendingToolCall `json:"pendingTools,omitempty"`
	CurrentToolIdx    int               `json:"currentToolIdx"`
	ToolResults       []ToolResultRecord `json:"toolResults,omitempty"`
	AssistantContent  []byte            `json:"assistantContent,omitempty"`
	ContinuationBody  []byte            `json:"continuationBody,omitempty"`
	CreatedAt         int64             `json:"createdAt"`
	UpdatedAt         int64             `json:"updatedAt"`
}
