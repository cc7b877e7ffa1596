package provider

import (
	"sync"

	"github.com/evmts/smithers/internal/errs"
	"github.com/evmts/smithers/internal/stream"
)

// MockPort is a deterministic Port implementation returning a scripted
// event sequence instead of a real streaming HTTP call. Each call to Start
// consumes the next scripted sequence; once the scripts are used up, Start
// fails with ProviderUnavailable. This lets engine tests drive specific run
// scenarios without a network.
type MockPort struct {
	mu        sync.Mutex
	scripts   [][]stream.Event
	callIndex int
	// Unavailable, while set, makes every Start call fail with
	// ProviderUnavailable instead of returning a scripted stream.
	Unavailable bool
}

// NewMockPort constructs a mock with one scripted event sequence per
// expected Start call, consumed in order.
func NewMockPort(scripts ...[]stream.Event) *MockPort {
	return &MockPort{scripts: scripts}
}

// Script appends one more scripted sequence for a subsequent Start call.
func (p *MockPort) Script(events ...stream.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts = append(p.scripts, events)
}

func (p *MockPort) Start(req Request) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Unavailable {
		return nil, errs.New(errs.KindProviderUnavailable, "start", errUnavailable)
	}
	if p.callIndex >= len(p.scripts) {
		return nil, errs.New(errs.KindProviderUnavailable, "start", errNoScript)
	}
	events := p.scripts[p.callIndex]
	p.callIndex++

	h := &mockHandle{}
	h.events = make([]stream.Event, 0, len(events)+2)
	h.events = append(h.events, stream.Event{Kind: stream.KindStart})
	h.events = append(h.events, events...)
	hasDone := false
	for _, e := range events {
		if e.Kind == stream.KindDone {
			hasDone = true
		}
	}
	if !hasDone {
		h.events = append(h.events, stream.Event{Kind: stream.KindDone})
	}
	return h, nil
}

type mockHandle struct {
	mu     sync.Mutex
	events []stream.Event
	idx    int
	done   bool
	cancel bool
}

func (h *mockHandle) Poll() (stream.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel || h.idx >= len(h.events) {
		return stream.Event{}, false
	}
	ev := h.events[h.idx]
	h.idx++
	if ev.Kind == stream.KindDone {
		h.done = true
	}
	return ev, true
}

func (h *mockHandle) Done() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done || h.cancel
}

func (h *mockHandle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancel = true
}

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

const (
	errUnavailable = sentinelError("mock provider marked unavailable")
	errNoScript    = sentinelError("mock provider has no scripted response for this call")
)
