package session

import (
	"testing"

	"github.com/evmts/smithers/internal/domain"
	"github.com/evmts/smithers/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(store.Memory)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st, 1), st
}

func TestService_NewSwitchRenameDeleteSession(t *testing.T) {
	svc, _ := newTestService(t)

	id, err := svc.NewSession("scratch")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if svc.CurrentSessionID() != 1 {
		t.Fatalf("NewSession must not change current session")
	}

	if err := svc.SwitchSession(id); err != nil {
		t.Fatalf("SwitchSession: %v", err)
	}
	if svc.CurrentSessionID() != id {
		t.Fatalf("expected current session %d, got %d", id, svc.CurrentSessionID())
	}

	if err := svc.RenameSession(id, "renamed"); err != nil {
		t.Fatalf("RenameSession: %v", err)
	}
	sessions, err := svc.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	found := false
	for _, s := range sessions {
		if s.ID == id && s.Name == "renamed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected renamed session in list, got %+v", sessions)
	}

	count, err := svc.CountSessions()
	if err != nil {
		t.Fatalf("CountSessions: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 sessions (default + scratch), got %d", count)
	}

	if err := svc.DeleteSession(id); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	count, err = svc.CountSessions()
	if err != nil {
		t.Fatalf("CountSessions: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 session after delete, got %d", count)
	}
}

func TestService_SwitchSessionRejectsUnknownID(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.SwitchSession(999); err == nil {
		t.Fatal("expected error switching to a nonexistent session")
	}
	if svc.CurrentSessionID() != 1 {
		t.Fatalf("current session must not change on failed switch")
	}
}

func TestService_LabelRoundTrip(t *testing.T) {
	svc, st := newTestService(t)

	_, entryID, err := st.AddMessage(1, domain.RoleUser, "hello", store.AddMessageOpts{})
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	if err := svc.Label(1, entryID, "checkpoint"); err != nil {
		t.Fatalf("Label: %v", err)
	}
	got, ok, err := svc.FindByLabel(1, "checkpoint")
	if err != nil {
		t.Fatalf("FindByLabel: %v", err)
	}
	if !ok || got != entryID {
		t.Fatalf("expected label to resolve to %s, got %s (ok=%v)", entryID, got, ok)
	}

	if err := svc.DeleteLabel(1, "checkpoint"); err != nil {
		t.Fatalf("DeleteLabel: %v", err)
	}
	_, ok, err = svc.FindByLabel(1, "checkpoint")
	if err != nil {
		t.Fatalf("FindByLabel after delete: %v", err)
	}
	if ok {
		t.Fatal("expected label to be gone after DeleteLabel")
	}
}

func TestService_BranchFrom(t *testing.T) {
	svc, st := newTestService(t)

	_, entryID, err := st.AddMessage(1, domain.RoleUser, "first", store.AddMessageOpts{})
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if _, _, err := st.AddMessage(1, domain.RoleAssistant, "second", store.AddMessageOpts{}); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	if err := svc.ValidateEntry(1, entryID); err != nil {
		t.Fatalf("ValidateEntry: %v", err)
	}
	if err := svc.ValidateEntry(1, "does-not-exist"); err == nil {
		t.Fatal("expected ValidateEntry to fail for an unknown entry")
	}

	if err := svc.BranchFrom(1, entryID); err != nil {
		t.Fatalf("BranchFrom: %v", err)
	}
	leaf, err := st.GetCurrentLeaf(1)
	if err != nil {
		t.Fatalf("GetCurrentLeaf: %v", err)
	}
	if leaf != entryID {
		t.Fatalf("expected leaf reset to %s, got %s", entryID, leaf)
	}
}

func TestService_CompactAndLatestCompaction(t *testing.T) {
	svc, st := newTestService(t)

	id1, _, err := st.AddMessage(1, domain.RoleUser, "msg one", store.AddMessageOpts{})
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	if _, ok, _ := svc.LatestCompaction(1); ok {
		t.Fatal("expected no compaction before any Compact call")
	}

	if _, err := svc.Compact(1, "summary of early turns", id1, 4096, ""); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	comp, ok, err := svc.LatestCompaction(1)
	if err != nil {
		t.Fatalf("LatestCompaction: %v", err)
	}
	if !ok {
		t.Fatal("expected a compaction to be present")
	}
	if comp.Summary != "summary of early turns" || comp.FirstKeptMsgID != id1 {
		t.Fatalf("unexpected compaction: %+v", comp)
	}
}

func TestService_EnqueueMessageFIFO(t *testing.T) {
	svc, st := newTestService(t)

	if _, err := svc.EnqueueMessage(1, "first"); err != nil {
		t.Fatalf("EnqueueMessage: %v", err)
	}
	if _, err := svc.EnqueueMessage(1, "second"); err != nil {
		t.Fatalf("EnqueueMessage: %v", err)
	}

	m, ok, err := st.NextPending(1)
	if err != nil {
		t.Fatalf("NextPending: %v", err)
	}
	if !ok || m.Content != "first" {
		t.Fatalf("expected FIFO dequeue of first message, got %+v (ok=%v)", m, ok)
	}
}
