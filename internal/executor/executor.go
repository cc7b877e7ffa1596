// Package executor implements a single-slot asynchronous runner that
// dispatches exactly one tool call at a time off the agent worker's
// critical path and exposes non-blocking completion polling. The engine is
// the only intended caller: it dispatches the current pending tool, keeps
// ticking, and polls until a result shows up.
//
// Grounded on the teacher's goroutine-plus-channel dispatch pattern in
// internal/executor/subagent.go (ExecuteSubtask runs the work on its own
// goroutine and the caller observes completion asynchronously), generalized
// here to a single reusable slot with explicit Busy/IsRunning/Poll states
// instead of a one-shot channel return.
package executor

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/evmts/smithers/internal/errs"
	"github.com/evmts/smithers/internal/tool"
)

// Completion is the result of one tool execution, delivered exactly once by
// Poll.
type Completion struct {
	ToolUseID string
	ToolName  string
	Result    *tool.Result
	Err       error
}

// Executor runs at most one tool call at a time. It is safe for concurrent
// use, though the coordination core only ever drives it from the single
// agent worker goroutine.
type Executor struct {
	registry *tool.Registry

	mu        sync.Mutex
	running   bool
	done      chan struct{}
	completed *Completion
	cancel    context.CancelFunc
	abortCh   chan struct{}
}

// New constructs an Executor dispatching tools looked up in registry.
func New(registry *tool.Registry) *Executor {
	return &Executor{registry: registry}
}

// Execute starts a tool call if the slot is idle. It fails with
// ExecutorBusy if a previous call is still running or its result has not
// yet been collected via Poll.
func (e *Executor) Execute(ctx context.Context, toolUseID, toolName string, input json.RawMessage, toolCtx *tool.Context) error {
	e.mu.Lock()
	if e.running || e.completed != nil {
		e.mu.Unlock()
		return errs.New(errs.KindExecutorBusy, "execute", nil)
	}

	runCtx, cancel := context.WithCancel(ctx)
	abortCh := make(chan struct{})
	e.running = true
	e.done = make(chan struct{})
	e.completed = nil
	e.cancel = cancel
	e.abortCh = abortCh
	e.mu.Unlock()

	if toolCtx != nil {
		toolCtx.AbortCh = abortCh
	}

	t, ok := e.registry.Get(toolName)
	if !ok {
		e.finish(&Completion{
			ToolUseID: toolUseID,
			ToolName:  toolName,
			Result:    &tool.Result{Success: false, ErrorMsg: "unknown tool: " + toolName},
		})
		cancel()
		return nil
	}

	go func() {
		result, err := t.Execute(runCtx, input, toolCtx)
		if err != nil {
			result = &tool.Result{Success: false, ErrorMsg: err.Error()}
		}
		e.finish(&Completion{ToolUseID: toolUseID, ToolName: toolName, Result: result})
		cancel()
	}()

	return nil
}

func (e *Executor) finish(c *Completion) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completed = c
	e.running = false
	if e.done != nil {
		close(e.done)
		e.done = nil
	}
}

// IsRunning reports whether a tool call is currently in flight.
func (e *Executor) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Poll returns the pending completion exactly once; subsequent calls return
// ok=false until another Execute/finish cycle produces a new one. Absent
// while running.
func (e *Executor) Poll() (Completion, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.completed == nil {
		return Completion{}, false
	}
	c := *e.completed
	e.completed = nil
	return c, true
}

// Cancel aborts the in-flight tool call, if any: it closes the abort
// channel threaded into the tool's Context (so cooperative tools like bash
// can kill their child process) and cancels the execution context. Discards
// the eventual result rather than delivering it via Poll. Idempotent.
func (e *Executor) Cancel() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	abortCh := e.abortCh
	cancel := e.cancel
	done := e.done
	e.mu.Unlock()

	if abortCh != nil {
		select {
		case <-abortCh:
		default:
			close(abortCh)
		}
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	e.mu.Lock()
	e.completed = nil
	e.mu.Unlock()
}
