package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/evmts/smithers/internal/domain"
	"github.com/evmts/smithers/internal/executor"
	"github.com/evmts/smithers/internal/provider"
	"github.com/evmts/smithers/internal/store"
	"github.com/evmts/smithers/internal/stream"
	"github.com/evmts/smithers/internal/tool"
)

func newTestEngine(t *testing.T, port provider.Port, reg *tool.Registry) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.Open(store.Memory)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if reg == nil {
		reg = tool.NewRegistry(t.TempDir())
	}
	e := New(st, port, executor.New(reg), reg, nil, Config{Model: "claude-test", MaxTokens: 1024})
	return e, st
}

func runUntilIdle(t *testing.T, e *Engine, sessionID int64, maxTicks int) {
	t.Helper()
	for i := 0; i < maxTicks; i++ {
		changed, err := e.Tick(context.Background(), sessionID)
		if err != nil {
			t.Fatalf("Tick: %v", err)
		}
		if !changed && !e.Busy() {
			return
		}
		if !changed {
			time.Sleep(time.Millisecond)
		}
	}
}

// A simple text-only turn completes and leaves a single
// assistant message with the accumulated text, cursor stripped.
func TestEngine_SimpleTextTurn(t *testing.T) {
	port := provider.NewMockPort([]stream.Event{
		{Kind: stream.KindTextDelta, Text: "Hello"},
		{Kind: stream.KindTextDelta, Text: ", world"},
		{Kind: stream.KindDone},
	})
	e, st := newTestEngine(t, port, nil)

	if _, err := st.EnqueuePending(1, domain.RoleUser, "hi"); err != nil {
		t.Fatalf("EnqueuePending: %v", err)
	}

	runUntilIdle(t, e, 1, 200)

	msgs, err := st.GetMessages(1)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	var assistant *domain.Message
	for i := range msgs {
		if msgs[i].Role == domain.RoleAssistant {
			assistant = &msgs[i]
		}
	}
	if assistant == nil {
		t.Fatal("expected an assistant message")
	}
	if assistant.Content != "Hello, world" {
		t.Fatalf("unexpected content: %q", assistant.Content)
	}

	run, ok, err := st.ActiveRun(1)
	if err != nil {
		t.Fatalf("ActiveRun: %v", err)
	}
	if ok {
		t.Fatalf("expected no active run after completion, got %+v", run)
	}
}

// A single tool call is dispatched, its result recorded,
// and a continuation turn produces the final assistant text.
func TestEngine_SingleToolCall(t *testing.T) {
	reg := tool.NewRegistry(t.TempDir())
	reg.Register(tool.NewBaseTool("echo", "echoes input", json.RawMessage(`{}`),
		func(ctx context.Context, input json.RawMessage, toolCtx *tool.Context) (*tool.Result, error) {
			return &tool.Result{Success: true, Output: "echoed"}, nil
		}))

	port := provider.NewMockPort(
		[]stream.Event{
			{Kind: stream.KindToolBegin, ToolID: "call-1", ToolName: "echo"},
			{Kind: stream.KindToolInputDelta, PartialJSON: `{"x":1}`},
			{Kind: stream.KindToolEnd},
			{Kind: stream.KindDone},
		},
		[]stream.Event{
			{Kind: stream.KindTextDelta, Text: "done"},
			{Kind: stream.KindDone},
		},
	)
	e, st := newTestEngine(t, port, reg)

	if _, err := st.EnqueuePending(1, domain.RoleUser, "run echo"); err != nil {
		t.Fatalf("EnqueuePending: %v", err)
	}

	runUntilIdle(t, e, 1, 500)

	msgs, err := st.GetMessages(1)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	var sawResult, sawFinal bool
	for _, m := range msgs {
		if m.Role == domain.RoleSystem && contains(m.Content, "echoed") {
			sawResult = true
		}
		if m.Role == domain.RoleAssistant && m.Content == "done" {
			sawFinal = true
		}
	}
	if !sawResult {
		t.Fatal("expected a system message reporting the tool result")
	}
	if !sawFinal {
		t.Fatal("expected the continuation turn's final assistant text")
	}
}

// A failing tool still produces a tool_result (is_error)
// and the model's continuation recovers with a text response.
func TestEngine_FailingToolRecovers(t *testing.T) {
	reg := tool.NewRegistry(t.TempDir())
	reg.Register(tool.NewBaseTool("boom", "always fails", json.RawMessage(`{}`),
		func(ctx context.Context, input json.RawMessage, toolCtx *tool.Context) (*tool.Result, error) {
			return &tool.Result{Success: false, ErrorMsg: "kaboom"}, nil
		}))

	port := provider.NewMockPort(
		[]stream.Event{
			{Kind: stream.KindToolBegin, ToolID: "call-1", ToolName: "boom"},
			{Kind: stream.KindToolEnd},
			{Kind: stream.KindDone},
		},
		[]stream.Event{
			{Kind: stream.KindTextDelta, Text: "recovered"},
			{Kind: stream.KindDone},
		},
	)
	e, st := newTestEngine(t, port, reg)

	if _, err := st.EnqueuePending(1, domain.RoleUser, "run boom"); err != nil {
		t.Fatalf("EnqueuePending: %v", err)
	}

	runUntilIdle(t, e, 1, 500)

	msgs, err := st.GetMessages(1)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	var sawFinal bool
	for _, m := range msgs {
		if m.Role == domain.RoleAssistant && m.Content == "recovered" {
			sawFinal = true
		}
	}
	if !sawFinal {
		t.Fatal("expected the model's recovery text after a failing tool")
	}
}

// When the provider becomes unavailable, the run
// transitions to error with no active run left behind.
func TestEngine_ProviderUnavailable(t *testing.T) {
	port := provider.NewMockPort()
	port.Unavailable = true
	e, st := newTestEngine(t, port, nil)

	if _, err := st.EnqueuePending(1, domain.RoleUser, "hi"); err != nil {
		t.Fatalf("EnqueuePending: %v", err)
	}

	runUntilIdle(t, e, 1, 50)

	if e.Busy() {
		t.Fatal("expected engine to be idle after a start failure")
	}
	_, ok, err := st.ActiveRun(1)
	if err != nil {
		t.Fatalf("ActiveRun: %v", err)
	}
	if ok {
		t.Fatal("expected no active run after a provider failure")
	}

	msgs, err := st.GetMessages(1)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	var sawError bool
	for _, m := range msgs {
		if m.Role == domain.RoleSystem && contains(m.Content, "Error") {
			sawError = true
		}
	}
	if !sawError {
		t.Fatal("expected an error system message")
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || (len(substr) > 0 && indexOf(s, substr) >= 0))
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
