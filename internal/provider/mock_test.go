package provider

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evmts/smithers/internal/errs"
	"github.com/evmts/smithers/internal/stream"
)

func TestMockPortScriptedSequence(t *testing.T) {
	p := NewMockPort([]stream.Event{
		{Kind: stream.KindTextDelta, Text: "hi"},
		{Kind: stream.KindTextDelta, Text: " there"},
		{Kind: stream.KindStopReason, StopReason: "end_turn"},
	})

	h, err := p.Start(Request{Model: DefaultModel})
	require.NoError(t, err)

	var kinds []stream.Kind
	for {
		ev, ok := h.Poll()
		if !ok {
			if h.Done() {
				break
			}
			continue
		}
		kinds = append(kinds, ev.Kind)
	}
	require.Equal(t, []stream.Kind{
		stream.KindStart, stream.KindTextDelta, stream.KindTextDelta, stream.KindStopReason, stream.KindDone,
	}, kinds)
}

func TestMockPortUnavailable(t *testing.T) {
	p := NewMockPort()
	p.Unavailable = true
	_, err := p.Start(Request{})
	require.True(t, errs.OfKind(err, errs.KindProviderUnavailable))
}

func TestMockPortCancelStopsDelivery(t *testing.T) {
	p := NewMockPort([]stream.Event{
		{Kind: stream.KindTextDelta, Text: "hi"},
	})
	h, err := p.Start(Request{})
	require.NoError(t, err)

	ev, ok := h.Poll()
	require.True(t, ok)
	require.Equal(t, stream.KindStart, ev.Kind)

	h.Cancel()
	_, ok = h.Poll()
	require.False(t, ok)
	require.True(t, h.Done())
}

func TestRegistryModelByID(t *testing.T) {
	r := NewRegistry()
	r.Register("anthropic", NewMockPort(), AnthropicModels())

	m, ok := r.ModelByID("claude-3-5-haiku-20241022")
	require.True(t, ok)
	require.Equal(t, "Claude 3.5 Haiku", m.Name)

	_, ok = r.ModelByID("nonexistent")
	require.False(t, ok)
}
