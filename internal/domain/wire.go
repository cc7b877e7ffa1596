package domain

// WireBlock is one content block of a provider-bound message: plain text,
// a tool invocation, or a tool's result.
type WireBlock struct {
	Kind      string // "text", "tool_use", "tool_result"
	Text      string
	ToolUseID string
	ToolName  string
	ToolInput []byte
	IsError   bool
}

// WireTurn is one message in the provider-facing conversation: a role plus
// its content blocks.
type WireTurn struct {
	Role   Role
	Blocks []WireBlock
}

// ConversationTurns folds a stored message tree's branch path into the
// turns a provider actually expects: user and assistant only, with tool
// dispatch notices translated into tool_use/tool_result blocks rather than
// replayed as role=system text. Tool notices are stored one at a time in
// dispatch order (use, result, use, result, ...) because tools run serially,
// but the wire format groups every tool_use from one assistant turn together
// followed by every tool_result in the next user turn, so this walks the
// run's contiguous notices and buckets them by phase before emitting.
// Plain system notices with no ToolPhase (run failures, interruptions) are
// display-only and are dropped; they never reached the provider as a turn.
func ConversationTurns(msgs []Message) []WireTurn {
	var out []WireTurn
	i := 0
	for i < len(msgs) {
		m := msgs[i]
		switch m.Role {
		case RoleUser:
			out = append(out, WireTurn{Role: RoleUser, Blocks: []WireBlock{{Kind: "text", Text: m.Content}}})
			i++
		case RoleAssistant:
			var blocks []WireBlock
			if m.Content != "" {
				blocks = append(blocks, WireBlock{Kind: "text", Text: m.Content})
			}
			i++

			var useBlocks, resultBlocks []WireBlock
			for i < len(msgs) && msgs[i].Role == RoleSystem && msgs[i].ToolPhase != "" {
				t := msgs[i]
				switch t.ToolPhase {
				case "use":
					input := []byte(t.ToolInput)
					if len(input) == 0 {
						input = []byte("{}")
					}
					useBlocks = append(useBlocks, WireBlock{Kind: "tool_use", ToolUseID: t.ToolCallID, ToolName: t.ToolName, ToolInput: input})
				case "result":
					resultBlocks = append(resultBlocks, WireBlock{Kind: "tool_result", ToolUseID: t.ToolCallID, Text: t.ToolResultContent, IsError: !t.ToolSuccess})
				}
				i++
			}
			blocks = append(blocks, useBlocks...)
			if len(blocks) > 0 {
				out = append(out, WireTurn{Role: RoleAssistant, Blocks: blocks})
			}
			if len(resultBlocks) > 0 {
				out = append(out, WireTurn{Role: RoleUser, Blocks: resultBlocks})
			}
		default: // RoleSystem compaction summaries and run notices never map to a turn
			i++
		}
	}
	return out
}
