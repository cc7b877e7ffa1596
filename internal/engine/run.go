// Package engine implements the agent run state machine that drives a
// single session's conversation through pending -> streaming -> tools ->
// continuing -> complete/error. It consumes the stream decoder's output via
// the provider port, dispatches tool calls through the single-slot
// executor, and persists every transition to the store.
//
// Grounded on the teacher's internal/session/loop.go (runLoop phase
// structure, retry backoff via cenkalti/backoff/v4) and processor.go (the
// mutex-protected per-session working state that a single worker ticks),
// reworked from Eino's schema.Message/StreamReader types onto
// internal/domain, internal/provider and internal/stream directly, and
// narrowed from "many concurrent sessions" to a single active-run-at-a-time
// model: a single background worker owns the state machine.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/evmts/smithers/internal/domain"
	"github.com/evmts/smithers/internal/errs"
	"github.com/evmts/smithers/internal/executor"
	"github.com/evmts/smithers/internal/logging"
	"github.com/evmts/smithers/internal/provider"
	"github.com/evmts/smithers/internal/store"
	"github.com/evmts/smithers/internal/stream"
	"github.com/evmts/smithers/internal/tool"
)

const cursorGlyph = "▌"

// Config holds the engine's fixed, construction-time settings.
type Config struct {
	Model        string
	MaxTokens    int
	SystemPrompt string
}

// Engine drives at most one AgentRun at a time, matching the spec's
// single-worker coordination model. Safe for concurrent use, though only
// the worker goroutine is expected to call Tick.
type Engine struct {
	store *store.Store
	port  provider.Port
	exec  *executor.Executor
	tools *tool.Registry
	log   *logging.Handle
	cfg   Config

	mu  sync.Mutex
	cur *runState
}

type toolAccum struct {
	id    string
	name  string
	input strings.Builder
}

type runState struct {
	sessionID     int64
	runID         int64
	handle        provider.Handle
	textAcc       strings.Builder
	placeholderID int64
	curTool       *toolAccum
	pendingTools  []domain.PendingToolCall
	results       []domain.ToolResultRecord
	dispatchedIdx int // index into pendingTools already sent to the executor
	toolCtx       *tool.Context
}

// New constructs an Engine.
func New(st *store.Store, port provider.Port, exec *executor.Executor, tools *tool.Registry, log *logging.Handle, cfg Config) *Engine {
	if log == nil {
		log = logging.Nop()
	}
	return &Engine{store: st, port: port, exec: exec, tools: tools, log: log, cfg: cfg}
}

// Busy reports whether a run is currently in progress, independent of
// which session it targets.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cur != nil
}

// SetModel updates the model used for future streams. It takes effect on
// the next stream the engine starts, including the continuation stream of
// a run already in flight; a stream already open is not affected. Used to
// hot-reload a config change without restarting the process.
func (e *Engine) SetModel(model string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Model = model
}

// Tick advances the state machine by one step. If idle, sessionID selects
// which session's pending queue to check for new work; once a run is
// active, sessionID is ignored until that run reaches a terminal state.
// Returns changed=true if observable state was mutated.
func (e *Engine) Tick(ctx context.Context, sessionID int64) (changed bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cur == nil {
		return e.tryBeginLocked(sessionID)
	}

	rs := e.cur
	span := e.log.WithSpan(fmt.Sprintf("run-%d", rs.runID), "tick")

	if rs.handle != nil {
		return e.tickStreamingLocked(ctx, rs, span)
	}
	return e.tickToolsLocked(ctx, rs, span)
}

// tryBeginLocked implements the "pending" state: dequeue one pending
// message, create an AgentRun row, and start the first stream.
func (e *Engine) tryBeginLocked(sessionID int64) (bool, error) {
	msg, ok, err := e.store.NextPending(sessionID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := e.store.MarkSent(msg.ID); err != nil {
		return false, err
	}

	runID, err := e.store.CreateRun(sessionID)
	if err != nil {
		return false, err
	}

	rs := &runState{sessionID: sessionID, runID: runID}
	e.cur = rs

	span := e.log.WithSpan(fmt.Sprintf("run-%d", runID), "streaming")
	if err := e.beginStreamLocked(rs, span, nil); err != nil {
		e.failLocked(rs, span, err)
		return true, nil
	}
	return true, nil
}

// beginStreamLocked starts a provider stream: fresh (first turn) if
// continuationBody is nil, or a continuation turn replaying a previously
// serialized body.
func (e *Engine) beginStreamLocked(rs *runState, span *logging.Span, continuationBody []byte) error {
	if err := e.store.SetStatus(rs.runID, pickStatus(continuationBody)); err != nil {
		return err
	}

	req := provider.Request{
		Model:     e.cfg.Model,
		MaxTokens: e.cfg.MaxTokens,
		Tools:     e.tools.Specs(),
	}
	if continuationBody != nil {
		req.Body = continuationBody
	} else {
		msgs, summary, err := e.conversation(rs.sessionID)
		if err != nil {
			return err
		}
		req.Messages = msgs
		req.System = combineSystem(e.cfg.SystemPrompt, summary)
	}

	handle, err := e.port.Start(req)
	if err != nil {
		return errs.New(errs.KindProviderUnavailable, "start", err)
	}
	rs.handle = handle

	id, _, err := e.store.AddMessage(rs.sessionID, domain.RoleAssistant, cursorGlyph, store.AddMessageOpts{})
	if err != nil {
		handle.Cancel()
		return err
	}
	rs.placeholderID = id
	rs.textAcc.Reset()
	rs.curTool = nil
	rs.pendingTools = nil

	span.Info("stream_start", "engine", "stream started")
	return nil
}

// conversation builds the branch-path message list for the session's
// current leaf, along with the latest compaction summary if one exists.
// The summary is returned separately rather than folded into the message
// list: it belongs in the provider's top-level system field, not as a
// role=system entry in the messages array.
func (e *Engine) conversation(sessionID int64) (msgs []domain.Message, compactionSummary string, err error) {
	leaf, err := e.store.GetCurrentLeaf(sessionID)
	if err != nil {
		return nil, "", err
	}
	if leaf != "" {
		msgs, err = e.store.GetBranch(sessionID, leaf)
		if err != nil {
			return nil, "", err
		}
	}

	comp, ok, err := e.store.LatestCompaction(sessionID)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return msgs, "", nil
	}

	kept := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID >= comp.FirstKeptMsgID {
			kept = append(kept, m)
		}
	}
	return kept, comp.Summary, nil
}

// combineSystem joins the engine's fixed system prompt with a compaction
// summary, when one exists, into the single string the wire format expects.
func combineSystem(systemPrompt, compactionSummary string) string {
	if compactionSummary == "" {
		return systemPrompt
	}
	if systemPrompt == "" {
		return compactionSummary
	}
	return systemPrompt + "\n\n" + compactionSummary
}

// tickStreamingLocked drains whatever events are currently available from
// the active handle.
func (e *Engine) tickStreamingLocked(ctx context.Context, rs *runState, span *logging.Span) (bool, error) {
	changed := false
	for {
		ev, ok := rs.handle.Poll()
		if !ok {
			return changed, nil
		}
		changed = true

		switch ev.Kind {
		case stream.KindTextDelta:
			rs.textAcc.WriteString(ev.Text)
			if err := e.store.UpdateMessageContent(rs.placeholderID, rs.textAcc.String()+cursorGlyph); err != nil {
				return changed, err
			}
		case stream.KindToolBegin:
			rs.curTool = &toolAccum{id: ev.ToolID, name: ev.ToolName}
		case stream.KindToolInputDelta:
			if rs.curTool != nil {
				rs.curTool.input.WriteString(ev.PartialJSON)
			}
		case stream.KindToolEnd:
			if rs.curTool != nil {
				rs.pendingTools = append(rs.pendingTools, domain.PendingToolCall{
					ID:    rs.curTool.id,
					Name:  rs.curTool.name,
					Input: []byte(rs.curTool.input.String()),
				})
				rs.curTool = nil
			}
		case stream.KindStopReason:
			span.Debug("stop_reason", "engine", ev.StopReason)
		case stream.KindDone:
			if err := e.finishStreamLocked(rs, span); err != nil {
				return changed, err
			}
			return changed, nil
		}
	}
}

// finishStreamLocked implements the tail of "streaming"/"continuing": strip
// the cursor, decide whether to enter `tools` or `complete`.
func (e *Engine) finishStreamLocked(rs *runState, span *logging.Span) error {
	text := rs.textAcc.String()
	rs.handle = nil

	if len(rs.pendingTools) == 0 {
		final := text
		if final == "" {
			final = "No response"
		}
		if err := e.store.UpdateMessageContent(rs.placeholderID, final); err != nil {
			return err
		}
		return e.completeLocked(rs, span)
	}

	if err := e.store.UpdateMessageContent(rs.placeholderID, text); err != nil {
		return err
	}

	assistantContent, err := marshalAssistantContent(text, rs.pendingTools)
	if err != nil {
		return err
	}
	if err := e.store.SetAssistantContent(rs.runID, assistantContent); err != nil {
		return err
	}
	if err := e.store.SetTools(rs.runID, rs.pendingTools); err != nil {
		return err
	}
	if err := e.store.SetStatus(rs.runID, domain.RunTools); err != nil {
		return err
	}
	rs.dispatchedIdx = -1
	rs.results = nil
	span.Info("tools_pending", "engine", fmt.Sprintf("%d tool call(s) pending", len(rs.pendingTools)))
	return nil
}

// tickToolsLocked implements the "tools" phase: dispatch the current
// pending tool strictly in wire order, and collect its result once the
// executor finishes. Each dispatch and completion is recorded as a
// role=system message carrying both a human-readable display string and
// the structured tool_use/tool_result metadata the conversation needs to
// replay the turn onto the wire later.
func (e *Engine) tickToolsLocked(ctx context.Context, rs *runState, span *logging.Span) (bool, error) {
	idx := len(rs.results)
	if idx >= len(rs.pendingTools) {
		return e.beginContinuationLocked(rs, span)
	}

	if rs.dispatchedIdx != idx {
		call := rs.pendingTools[idx]
		rs.toolCtx = &tool.Context{
			SessionID: fmt.Sprint(rs.sessionID),
			CallID:    call.ID,
		}
		if _, _, err := e.store.AddToolNotice(rs.sessionID,
			fmt.Sprintf("🔧 Executing: %s", call.Name), store.ToolNoticeOpts{
				ToolCallID: call.ID,
				ToolName:   call.Name,
				ToolInput:  string(call.Input),
				ToolPhase:  "use",
			}); err != nil {
			return true, err
		}
		if err := e.exec.Execute(ctx, call.ID, call.Name, json.RawMessage(call.Input), rs.toolCtx); err != nil {
			if errs.OfKind(err, errs.KindExecutorBusy) {
				return false, nil
			}
			return true, err
		}
		rs.dispatchedIdx = idx
		span.Info("tool_dispatch", "engine", call.Name)
		return true, nil
	}

	completion, ok := e.exec.Poll()
	if !ok {
		return false, nil
	}

	result := completion.Result
	content := result.Output
	if !result.Success && result.ErrorMsg != "" {
		content = result.ErrorMsg
	}
	display := truncateForDisplay(content)
	if _, _, err := e.store.AddToolNotice(rs.sessionID,
		fmt.Sprintf("✓ %s:\n%s", completion.ToolName, display), store.ToolNoticeOpts{
			ToolCallID:        completion.ToolUseID,
			ToolName:          completion.ToolName,
			ToolPhase:         "result",
			ToolSuccess:       result.Success,
			ToolResultContent: content,
		}); err != nil {
		return true, err
	}

	rs.results = append(rs.results, domain.ToolResultRecord{
		ToolUseID: completion.ToolUseID,
		Name:      completion.ToolName,
		Success:   result.Success,
		Content:   content,
		Error:     result.ErrorMsg,
	})
	if err := e.store.SetResults(rs.runID, rs.results); err != nil {
		return true, err
	}
	if err := e.store.AdvanceToolIdx(rs.runID); err != nil {
		return true, err
	}
	span.Info("tool_complete", "engine", completion.ToolName)
	return true, nil
}

// beginContinuationLocked serializes the continuation request body (prior
// history, the assistant's tool_use turn, and a user turn carrying the
// tool_result blocks) and starts the next stream. The current turn's tool
// calls and results are already persisted as structured tool notices, so
// the branch-path history alone is enough to rebuild the wire turns; there
// is no separate assistant-content/results payload to thread through.
func (e *Engine) beginContinuationLocked(rs *runState, span *logging.Span) (bool, error) {
	msgs, summary, err := e.conversation(rs.sessionID)
	if err != nil {
		return true, err
	}

	body, err := buildContinuationBody(e.cfg, combineSystem(e.cfg.SystemPrompt, summary), e.tools.Specs(), msgs)
	if err != nil {
		return true, err
	}
	if err := e.store.SetContinuationBody(rs.runID, body); err != nil {
		return true, err
	}
	if err := e.store.SetStatus(rs.runID, domain.RunContinuing); err != nil {
		return true, err
	}

	if err := e.beginStreamLocked(rs, span, body); err != nil {
		return true, err
	}
	return true, nil
}

// completeLocked clears transient AgentRun fields and frees the run slot.
func (e *Engine) completeLocked(rs *runState, span *logging.Span) error {
	if err := e.store.CompleteRun(rs.runID); err != nil {
		return err
	}
	span.Info("run_complete", "engine", "run complete")
	e.cur = nil
	return nil
}

func (e *Engine) failLocked(rs *runState, span *logging.Span, cause error) {
	if rs.handle != nil {
		rs.handle.Cancel()
	}
	e.exec.Cancel()
	msg := "an error occurred"
	if cause != nil {
		msg = cause.Error()
	}
	_, _, _ = e.store.AddMessage(rs.sessionID, domain.RoleSystem, "Error: "+msg, store.AddMessageOpts{})
	_ = e.store.FailRun(rs.runID)
	span.Error("run_error", "engine", msg)
	e.cur = nil
}

// Cancel aborts the currently active run, if any: cancels the stream
// handle and any in-flight tool, appends an "Interrupted" system message,
// and transitions to `error`.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur == nil {
		return
	}
	rs := e.cur
	span := e.log.WithSpan(fmt.Sprintf("run-%d", rs.runID), "cancel")
	if rs.handle != nil {
		rs.handle.Cancel()
	}
	e.exec.Cancel()
	_, _, _ = e.store.AddMessage(rs.sessionID, domain.RoleSystem, "Interrupted", store.AddMessageOpts{})
	_ = e.store.FailRun(rs.runID)
	span.Info("run_cancelled", "engine", "interrupted by user")
	e.cur = nil
}

func pickStatus(continuationBody []byte) domain.RunStatus {
	if continuationBody != nil {
		return domain.RunContinuing
	}
	return domain.RunStreaming
}

func truncateForDisplay(s string) string {
	const maxDisplay = 2000
	if len(s) <= maxDisplay {
		return s
	}
	return s[:maxDisplay] + "\n\n(truncated)"
}
