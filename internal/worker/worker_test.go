package worker

import (
	"context"
	"testing"
	"time"

	"github.com/evmts/smithers/internal/domain"
	"github.com/evmts/smithers/internal/engine"
	"github.com/evmts/smithers/internal/executor"
	"github.com/evmts/smithers/internal/provider"
	"github.com/evmts/smithers/internal/store"
	"github.com/evmts/smithers/internal/stream"
	"github.com/evmts/smithers/internal/tool"
)

func TestWorker_ProcessesPendingMessage(t *testing.T) {
	st, err := store.Open(store.Memory)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()

	port := provider.NewMockPort([]stream.Event{
		{Kind: stream.KindTextDelta, Text: "hi there"},
		{Kind: stream.KindDone},
	})
	reg := tool.NewRegistry(t.TempDir())
	eng := engine.New(st, port, executor.New(reg), reg, nil, engine.Config{Model: "claude-test", MaxTokens: 1024})
	w := New(st, eng, nil, 1)

	if _, err := st.EnqueuePending(1, domain.RoleUser, "hello"); err != nil {
		t.Fatalf("EnqueuePending: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		msgs, err := st.GetMessages(1)
		if err != nil {
			t.Fatalf("GetMessages: %v", err)
		}
		found := false
		for _, m := range msgs {
			if m.Role == domain.RoleAssistant && m.Content == "hi there" {
				found = true
			}
		}
		if found {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for assistant reply")
		case <-time.After(time.Millisecond):
		}
	}

	w.Stop()
	cancel()
	<-done
}

func TestWorker_CrashRecovery(t *testing.T) {
	st, err := store.Open(store.Memory)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()

	runID, err := st.CreateRun(1)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	reg := tool.NewRegistry(t.TempDir())
	port := provider.NewMockPort()
	eng := engine.New(st, port, executor.New(reg), reg, nil, engine.Config{})
	w := New(st, eng, nil, 1)

	if err := w.recoverCrashedRuns(); err != nil {
		t.Fatalf("recoverCrashedRuns: %v", err)
	}

	run, err := st.GetRun(runID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != domain.RunError {
		t.Fatalf("expected run to be marked error, got %s", run.Status)
	}

	msgs, err := st.GetMessages(1)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	var count int
	for _, m := range msgs {
		if m.Content == "Previous agent run was interrupted. Starting fresh." {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one interruption notice, got %d", count)
	}

	if err := w.recoverCrashedRuns(); err != nil {
		t.Fatalf("recoverCrashedRuns (second sweep): %v", err)
	}
	msgs, err = st.GetMessages(1)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	count = 0
	for _, m := range msgs {
		if m.Content == "Previous agent run was interrupted. Starting fresh." {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected the sweep to be idempotent once the run is terminal, got %d notices", count)
	}
}
