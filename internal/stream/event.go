// Package stream implements an incremental server-sent-event decoder. It
// is deliberately independent of any HTTP client or LLM SDK — the teacher
// repo's provider package hides the raw SSE bytes behind cloudwego/eino's
// opaque StreamReader, which gives no hook to observe wire bytes and so
// cannot satisfy the requirement that decoding be chunking-invariant and
// independently testable. This package is grounded instead on the raw
// bufio/net-http SSE parsing loop in
// other_examples/1c1d85bd_...anthropic-tool_loop.go.go, reworked from a
// blocking whole-body bufio.Scanner into an incremental chunk-fed
// assembler (see decoder.go).
package stream

// Kind enumerates the decoded event types of the model event grammar:
// {start} · {text_delta | tool_begin | tool_input_delta | tool_end | stop_reason}* · {done}
type Kind int

const (
	KindStart Kind = iota
	KindTextDelta
	KindToolBegin
	KindToolInputDelta
	KindToolEnd
	KindStopReason
	KindDone
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindTextDelta:
		return "text_delta"
	case KindToolBegin:
		return "tool_begin"
	case KindToolInputDelta:
		return "tool_input_delta"
	case KindToolEnd:
		return "tool_end"
	case KindStopReason:
		return "stop_reason"
	case KindDone:
		return "done"
	default:
		return "unknown"
	}
}

// Event is one decoded element of the model event sequence.
type Event struct {
	Kind Kind

	Text string // KindTextDelta

	ToolID   string // KindToolBegin
	ToolName string // KindToolBegin

	PartialJSON string // KindToolInputDelta

	StopReason string // KindStopReason
}
