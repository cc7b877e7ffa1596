package engine

import (
	"encoding/json"

	"github.com/evmts/smithers/internal/domain"
	"github.com/evmts/smithers/internal/provider"
)

// contentBlock mirrors the model-facing content block shapes used once a
// turn carries tool_use/tool_result blocks instead of a plain string:
// {"type":"text","text":...}, {"type":"tool_use","id","name","input"} and
// {"type":"tool_result","tool_use_id","content"}.
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

// marshalAssistantContent serializes the text accumulated so far plus the
// tool_use blocks discovered on the wire, in wire order, for storage as the
// AgentRun's assistant_content.
func marshalAssistantContent(text string, calls []domain.PendingToolCall) ([]byte, error) {
	var blocks []contentBlock
	if text != "" {
		blocks = append(blocks, contentBlock{Type: "text", Text: text})
	}
	for _, c := range calls {
		input := c.Input
		if len(input) == 0 {
			input = []byte("{}")
		}
		blocks = append(blocks, contentBlock{Type: "tool_use", ID: c.ID, Name: c.Name, Input: input})
	}
	return json.Marshal(blocks)
}

// wireMessagesFromTurns renders domain's provider-neutral turns into the
// wire's role/content shape, collapsing a lone text block down to a plain
// string the way a hand-written request body would.
func wireMessagesFromTurns(turns []domain.WireTurn) []wireMessage {
	out := make([]wireMessage, 0, len(turns))
	for _, t := range turns {
		out = append(out, wireMessage{Role: string(t.Role), Content: contentFromBlocks(t.Blocks)})
	}
	return out
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

// buildContinuationBody serializes a full continuation-turn request. The
// branch-path history already holds the finished assistant turn and its
// tool_use/tool_result notices (persisted by the tools phase), so
// domain.ConversationTurns alone reconstructs every message the provider
// needs to see; there is nothing left to append by hand.
func buildContinuationBody(cfg Config, system string, tools []provider.ToolSpec, history []domain.Message) ([]byte, error) {
	model := cfg.Model
	if model == "" {
		model = provider.DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 8192
	}

	wr := wireRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Stream:    true,
		System:    system,
		Messages:  wireMessagesFromTurns(domain.ConversationTurns(history)),
	}
	for _, t := range tools {
		wr.Tools = append(wr.Tools, wireTool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	return json.Marshal(wr)
}
