package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/evmts/smithers/internal/domain"
	"github.com/evmts/smithers/internal/errs"
	"github.com/evmts/smithers/internal/stream"
)

// HTTPConfig configures the real, network-backed Port implementation.
type HTTPConfig struct {
	APIKey     string // falls back to ANTHROPIC_API_KEY
	BaseURL    string // defaults to the public Anthropic API
	HTTPClient *http.Client
}

const defaultBaseURL = "https://api.anthropic.com/v1/messages"

// HTTPPort is the "real" streaming implementation of Port: it opens
// an HTTP POST with stream:true and feeds response bytes through
// internal/stream.Decoder. Grounded on the raw SSE-over-net/http loop in
// other_examples/1c1d85bd_...anthropic-tool_loop.go.go, generalized into
// the Port/Handle abstraction and retried via cenkalti/backoff/v4 (a
// teacher dependency, kept) before a start failure surfaces as
// ProviderUnavailable.
type HTTPPort struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewHTTPPort constructs a Port backed by a real HTTP connection.
func NewHTTPPort(cfg HTTPConfig) *HTTPPort {
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv("ANTHROPIC_API_KEY")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPPort{apiKey: key, baseURL: baseURL, client: client}
}

func (p *HTTPPort) Start(req Request) (Handle, error) {
	if p.apiKey == "" {
		return nil, errs.New(errs.KindProviderUnavailable, "start", fmt.Errorf("no API key configured"))
	}

	body := req.Body
	if body == nil {
		var err error
		body, err = buildRequestBody(req)
		if err != nil {
			return nil, errs.New(errs.KindProviderUnavailable, "build-request", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &httpHandle{
		events: make(chan stream.Event, 256),
		cancel: cancel,
	}

	var resp *http.Response
	op := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		httpReq.Header.Set("content-type", "application/json")
		httpReq.Header.Set("x-api-key", p.apiKey)
		httpReq.Header.Set("anthropic-version", "2023-06-01")

		r, err := p.client.Do(httpReq)
		if err != nil {
			return err // transient: retry
		}
		if r.StatusCode >= 500 {
			r.Body.Close()
			return fmt.Errorf("server error: %d", r.StatusCode)
		}
		if r.StatusCode >= 400 {
			defer r.Body.Close()
			msg, _ := io.ReadAll(io.LimitReader(r.Body, 4096))
			return backoff.Permanent(fmt.Errorf("provider rejected request: %d: %s", r.StatusCode, msg))
		}
		resp = r
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 20 * time.Second

	if err := backoff.Retry(op, bo); err != nil {
		cancel()
		return nil, errs.New(errs.KindProviderUnavailable, "start", err)
	}

	go h.pump(resp.Body)
	return h, nil
}

type httpHandle struct {
	events chan stream.Event
	cancel context.CancelFunc
	done   atomic.Bool

	cancelOnce sync.Once
}

func (h *httpHandle) pump(body io.ReadCloser) {
	defer body.Close()
	defer close(h.events)

	d := stream.NewDecoder()
	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			for _, ev := range d.Feed(buf[:n]) {
				if !h.push(ev) {
					return
				}
			}
		}
		if err != nil {
			if !d.Terminal() {
				for _, ev := range d.Close() {
					h.push(ev)
				}
			}
			h.done.Store(true)
			return
		}
	}
}

func (h *httpHandle) push(ev stream.Event) bool {
	select {
	case h.events <- ev:
		if ev.Kind == stream.KindDone {
			h.done.Store(true)
		}
		return true
	case <-time.After(5 * time.Second):
		// Caller stopped draining (e.g. canceled); give up rather than
		// block the pump goroutine forever.
		return false
	}
}

func (h *httpHandle) Poll() (stream.Event, bool) {
	select {
	case ev, ok := <-h.events:
		if !ok {
			return stream.Event{}, false
		}
		return ev, true
	default:
		return stream.Event{}, false
	}
}

func (h *httpHandle) Done() bool { return h.done.Load() }

func (h *httpHandle) Cancel() {
	h.cancelOnce.Do(func() {
		h.cancel()
		h.done.Store(true)
	})
}

// wireMessage mirrors the model-facing wire format.
type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type wireRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Stream    bool          `json:"stream"`
	System    string        `json:"system,omitempty"`
	Messages  []wireMessage `json:"messages"`
	Tools     []wireTool    `json:"tools,omitempty"`
}

type wireTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// contentBlock mirrors the model-facing content block shapes used once a
// turn carries tool_use/tool_result blocks instead of a plain string.
type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

func contentFromBlocks(blocks []domain.WireBlock) any {
	if len(blocks) == 1 && blocks[0].Kind == "text" {
		return blocks[0].Text
	}
	out := make([]contentBlock, 0, len(blocks))
	for _, b := range blocks {
		switch b.Kind {
		case "text":
			out = append(out, contentBlock{Type: "text", Text: b.Text})
		case "tool_use":
			out = append(out, contentBlock{Type: "tool_use", ID: b.ToolUseID, Name: b.ToolName, Input: b.ToolInput})
		case "tool_result":
			out = append(out, contentBlock{Type: "tool_result", ToolUseID: b.ToolUseID, Content: b.Text, IsError: b.IsError})
		}
	}
	return out
}

// buildRequestBody is the purely-functional conversation serializer: given
// the branch-path messages (plus model/tools), produce the request body
// deterministically. It does not itself read from the store; the engine
// resolves the branch-path list and passes it in. Role=system tool notices
// never appear verbatim in Messages here: domain.ConversationTurns folds
// them into tool_use/tool_result blocks on the surrounding user/assistant
// turns, since only user and assistant belong in the wire messages array.
func buildRequestBody(req Request) ([]byte, error) {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	wr := wireRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Stream:    true,
		System:    req.System,
	}
	for _, t := range domain.ConversationTurns(req.Messages) {
		wr.Messages = append(wr.Messages, wireMessage{Role: string(t.Role), Content: contentFromBlocks(t.Blocks)})
	}
	for _, t := range req.Tools {
		wr.Tools = append(wr.Tools, wireTool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	return json.Marshal(wr)
}
