package stream

import (
	"bytes"
	"encoding/json"
)

// DefaultMaxLine is the bounded line-buffer size (8 KiB suffices for a
// single SSE data line in practice).
const DefaultMaxLine = 8 * 1024

// Decoder incrementally parses a newline-delimited `data: <json>` SSE
// stream fed as opaque byte chunks. It holds no I/O of its own: a Provider
// implementation owns the socket/process and calls Feed as bytes arrive.
// Decoding is chunking-invariant: Feed("ab"); Feed("c") and
// Feed("abc") produce the same event sequence, since state lives entirely
// in the Decoder rather than in how much of the line a single read
// returned.
type Decoder struct {
	maxLine int

	line      []byte // bytes of the current, not-yet-terminated line
	overflow  bool   // current line has exceeded maxLine; discard until \n
	startSent bool
	terminal  bool

	toolOpen bool
	toolID   string
	toolName string
}

// NewDecoder constructs a Decoder with the default bounded line buffer.
func NewDecoder() *Decoder {
	return &Decoder{maxLine: DefaultMaxLine}
}

// Terminal reports whether `done` has already been emitted.
func (d *Decoder) Terminal() bool { return d.terminal }

// Feed appends a chunk of wire bytes and returns any events the chunk
// completed. Safe to call with empty, tiny, or arbitrarily-split chunks.
func (d *Decoder) Feed(chunk []byte) []Event {
	var out []Event
	if !d.startSent {
		out = append(out, Event{Kind: KindStart})
		d.startSent = true
	}
	if d.terminal {
		return out
	}

	for _, b := range chunk {
		if b == '\n' {
			if !d.overflow {
				if ev, ok := d.processLine(d.line); ok {
					out = append(out, ev...)
				}
			}
			d.line = d.line[:0]
			d.overflow = false
			if d.terminal {
				break
			}
			continue
		}
		if d.overflow {
			continue // discard remainder of an over-long line
		}
		if len(d.line) >= d.maxLine {
			d.overflow = true
			continue
		}
		d.line = append(d.line, b)
	}
	return out
}

// Close signals EOF: any buffered partial line is discarded (a trailing
// unterminated line is not a complete record) and a `done` event is
// emitted if one has not already been, matching the `[DONE]` sentinel
// case.
func (d *Decoder) Close() []Event {
	if d.terminal {
		return nil
	}
	d.terminal = true
	return []Event{{Kind: KindDone}}
}

// sseMessage is the subset of Anthropic-style SSE payload shapes the
// decoder understands.
type sseMessage struct {
	Type         string `json:"type"`
	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
}

func (d *Decoder) processLine(line []byte) ([]Event, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	const prefix = "data: "
	if !bytes.HasPrefix(line, []byte(prefix)) {
		return nil, false
	}
	payload := bytes.TrimSpace(line[len(prefix):])
	if string(payload) == "[DONE]" {
		d.terminal = true
		return []Event{{Kind: KindDone}}, true
	}

	var msg sseMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		// Malformed JSON on a single line is skipped; it never advances
		// the state machine.
		return nil, false
	}

	switch msg.Type {
	case "content_block_start":
		if msg.ContentBlock.Type == "tool_use" {
			d.toolOpen = true
			d.toolID = msg.ContentBlock.ID
			d.toolName = msg.ContentBlock.Name
			return []Event{{Kind: KindToolBegin, ToolID: d.toolID, ToolName: d.toolName}}, true
		}
	case "content_block_delta":
		switch msg.Delta.Type {
		case "text_delta":
			return []Event{{Kind: KindTextDelta, Text: msg.Delta.Text}}, true
		case "input_json_delta":
			if d.toolOpen {
				return []Event{{Kind: KindToolInputDelta, PartialJSON: msg.Delta.PartialJSON}}, true
			}
		}
	case "content_block_stop":
		if d.toolOpen {
			d.toolOpen = false
			return []Event{{Kind: KindToolEnd}}, true
		}
	case "message_delta":
		if msg.Delta.StopReason != "" {
			return []Event{{Kind: KindStopReason, StopReason: msg.Delta.StopReason}}, true
		}
	}
	return nil, false
}
