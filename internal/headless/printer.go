package headless

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/evmts/smithers/internal/domain"
)

// Printer renders the agent run's progress as internal/engine appends
// messages to the store. It is a polling observer, not an event
// subscriber: the worker only promises a state_changed flag and the store
// as the source of truth, so the printer's job is to diff what it last saw
// against what GetMessages returns on each call to Observe, the same
// reload-from-the-store pattern the HTTP server's SSE clients follow.
type Printer struct {
	mu        sync.Mutex
	writer    io.Writer
	format    OutputFormat
	quiet     bool
	verbose   bool
	sessionID int64
	startTime time.Time
	result    *Result
	seenLen   map[string]int
	seenMsg   map[string]bool
}

// NewPrinter creates a new progress printer.
func NewPrinter(writer io.Writer, format OutputFormat, quiet, verbose bool) *Printer {
	return &Printer{
		writer:    writer,
		format:    format,
		quiet:     quiet,
		verbose:   verbose,
		startTime: time.Now(),
		result: &Result{
			Status:   "running",
			ExitCode: ExitSuccess,
		},
		seenLen: make(map[string]int),
		seenMsg: make(map[string]bool),
	}
}

// SetSessionID sets the session ID for the printer.
func (p *Printer) SetSessionID(sessionID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionID = sessionID
	p.result.SessionID = sessionID
}

// SetModel updates the model in the result.
func (p *Printer) SetModel(model string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result.Model = model
}

// GetResult returns the current result, finalized with elapsed duration.
func (p *Printer) GetResult() *Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result.DurationMS = time.Since(p.startTime).Milliseconds()
	return p.result
}

// SetResult updates the result with final values.
func (p *Printer) SetResult(status string, exitCode ExitCode, finalMessage string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result.Status = status
	p.result.ExitCode = exitCode
	if finalMessage != "" {
		p.result.FinalMessage = finalMessage
	}
	if err != nil {
		p.result.Error = err.Error()
	}
	p.result.DurationMS = time.Since(p.startTime).Milliseconds()
}

// PrintFinalResult prints the final JSON result (for json format).
func (p *Printer) PrintFinalResult() {
	if p.format != OutputJSON {
		return
	}
	result := p.GetResult()
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintln(p.writer, string(data))
}

// Observe is called after every engine tick with the session's current
// message history; it prints whatever is new since the last call.
func (p *Printer) Observe(msgs []domain.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, m := range msgs {
		switch m.Role {
		case domain.RoleAssistant:
			p.observeAssistant(m)
		case domain.RoleSystem:
			p.observeSystem(m)
		}
	}
}

func (p *Printer) observeAssistant(m domain.Message) {
	key := m.EntryID
	content := strings.TrimSuffix(m.Content, "▌")
	prev := p.seenLen[key]
	if len(content) <= prev {
		return
	}
	delta := content[prev:]
	p.seenLen[key] = len(content)
	p.result.FinalMessage = content

	switch p.format {
	case OutputText:
		fmt.Fprint(p.writer, delta)
	case OutputJSONL:
		p.printJSONL("text_delta", map[string]string{"text": delta})
	}
}

func (p *Printer) observeSystem(m domain.Message) {
	if p.seenMsg[m.EntryID] {
		return
	}
	p.seenMsg[m.EntryID] = true
	if p.quiet || p.format == OutputJSON {
		if p.format == OutputJSONL {
			p.printJSONL("tool", map[string]string{"message": m.Content})
		}
		return
	}
	if !p.verbose && !strings.HasPrefix(m.Content, "Error") && !strings.HasPrefix(m.Content, "Interrupted") {
		return
	}
	switch p.format {
	case OutputText:
		fmt.Fprintf(p.writer, "\n[%s]\n", m.Content)
	case OutputJSONL:
		p.printJSONL("tool", map[string]string{"message": m.Content})
	}
}

func (p *Printer) printJSONL(eventType string, data any) {
	evt := struct {
		Type string `json:"type"`
		Data any    `json:"data"`
	}{Type: eventType, Data: data}
	encoded, err := json.Marshal(evt)
	if err != nil {
		return
	}
	fmt.Fprintln(p.writer, string(encoded))
}
