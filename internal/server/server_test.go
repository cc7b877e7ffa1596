package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/evmts/smithers/internal/engine"
	"github.com/evmts/smithers/internal/executor"
	"github.com/evmts/smithers/internal/provider"
	"github.com/evmts/smithers/internal/store"
	"github.com/evmts/smithers/internal/stream"
	"github.com/evmts/smithers/internal/tool"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(store.Memory)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	reg := tool.NewRegistry(t.TempDir())
	port := provider.NewMockPort([]stream.Event{
		{Kind: stream.KindTextDelta, Text: "ack"},
		{Kind: stream.KindDone},
	})
	eng := engine.New(st, port, executor.New(reg), reg, nil, engine.Config{Model: "claude-test", MaxTokens: 512})

	srv := New(DefaultConfig(), st, eng, nil, 1)
	return srv, st
}

func TestServer_CreateAndGetSession(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(CreateSessionRequest{Name: "test session"})
	req := httptest.NewRequest(http.MethodPost, "/session", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("create session: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var created map[string]int64
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	id := created["id"]
	if id == 0 {
		t.Fatalf("expected non-zero session id")
	}

	req = httptest.NewRequest(http.MethodGet, "/session/"+itoa(id), nil)
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("get session: expected 200, got %d", w.Code)
	}
}

func TestServer_GetSessionNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/session/9999", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestServer_SendMessageEnqueuesAndListsMessages(t *testing.T) {
	srv, _ := newTestServer(t)

	body, _ := json.Marshal(CreateSessionRequest{Name: "s"})
	req := httptest.NewRequest(http.MethodPost, "/session", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	var created map[string]int64
	json.Unmarshal(w.Body.Bytes(), &created)
	id := created["id"]

	msgBody, _ := json.Marshal(SendMessageRequest{Content: "hello"})
	req = httptest.NewRequest(http.MethodPost, "/session/"+itoa(id)+"/message", bytes.NewReader(msgBody))
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("send message: expected 202, got %d: %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/session/"+itoa(id)+"/message", nil)
	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("get messages: expected 200, got %d", w.Code)
	}
}

func TestServer_SwitchSessionRejectsUnknown(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/session/9999/switch", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
