// Package executor provides task execution implementations.
package executor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/evmts/smithers/internal/domain"
	"github.com/evmts/smithers/internal/engine"
	"github.com/evmts/smithers/internal/logging"
	"github.com/evmts/smithers/internal/persona"
	"github.com/evmts/smithers/internal/provider"
	"github.com/evmts/smithers/internal/store"
	"github.com/evmts/smithers/internal/tool"
)

// SubagentExecutor implements tool.TaskExecutor: it runs a nested engine
// run against a scratch child session and returns the final assistant text
// as the Task tool's result, exercising the engine and session packages
// recursively.
//
// Grounded on the teacher's internal/executor/subagent.go (spawn a child
// session, run the agentic loop, extract the response text), with the
// Eino-driven `session.Processor.Process` replaced by a dedicated
// `internal/engine.Engine` instance ticked synchronously to completion —
// the subagent run needs its own executor slot since the parent's slot is
// occupied by the very Task-tool call that invoked this one.
type SubagentExecutor struct {
	store        *store.Store
	port         provider.Port
	toolRegistry *tool.Registry
	personas     *persona.Registry
	log          *logging.Handle

	defaultModel     string
	defaultMaxTokens int
}

// SubagentExecutorConfig holds configuration for creating a SubagentExecutor.
type SubagentExecutorConfig struct {
	Store        *store.Store
	Port         provider.Port
	ToolRegistry *tool.Registry
	Personas     *persona.Registry
	Log          *logging.Handle

	DefaultModel     string
	DefaultMaxTokens int
}

// NewSubagentExecutor creates a new SubagentExecutor.
func NewSubagentExecutor(cfg SubagentExecutorConfig) *SubagentExecutor {
	log := cfg.Log
	if log == nil {
		log = logging.Nop()
	}
	maxTokens := cfg.DefaultMaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	return &SubagentExecutor{
		store:            cfg.Store,
		port:             cfg.Port,
		toolRegistry:     cfg.ToolRegistry,
		personas:         cfg.Personas,
		log:              log,
		defaultModel:     cfg.DefaultModel,
		defaultMaxTokens: maxTokens,
	}
}

// maxSubagentTicks bounds the nested run loop so a misbehaving subagent
// cannot stall the parent tool call forever.
const maxSubagentTicks = 2000

// ExecuteSubtask implements tool.TaskExecutor.ExecuteSubtask. It creates a
// child session, runs the subagent to completion, and returns the result.
func (e *SubagentExecutor) ExecuteSubtask(
	ctx context.Context,
	parentSessionID string,
	agentName string,
	prompt string,
	opts tool.TaskOptions,
) (*tool.TaskResult, error) {
	p, err := e.personas.Get(agentName)
	if err != nil {
		return nil, fmt.Errorf("agent not found: %s: %w", agentName, err)
	}
	if !p.IsSubagent() {
		return nil, fmt.Errorf("agent %s cannot be used as subagent (mode: %s)", agentName, p.Mode)
	}

	childID, err := e.createChildSession(agentName, parentSessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to create child session: %w", err)
	}

	if _, err := e.store.EnqueuePending(childID, domain.RoleUser, prompt); err != nil {
		return nil, fmt.Errorf("failed to queue subtask prompt: %w", err)
	}

	model := e.resolveModel(opts.Model)
	childExec := New(e.toolRegistry)
	eng := engine.New(e.store, e.port, childExec, e.toolRegistry, e.log, engine.Config{
		Model:        model,
		MaxTokens:    e.defaultMaxTokens,
		SystemPrompt: p.Prompt,
	})

	if err := e.runToCompletion(ctx, eng, childID); err != nil {
		return &tool.TaskResult{
			Output:    fmt.Sprintf("Error executing subtask: %s", err.Error()),
			SessionID: strconv.FormatInt(childID, 10),
			Error:     err.Error(),
		}, nil
	}

	output, err := e.lastAssistantText(childID)
	if err != nil {
		return nil, fmt.Errorf("failed to read subtask result: %w", err)
	}

	return &tool.TaskResult{
		Output:    output,
		SessionID: strconv.FormatInt(childID, 10),
		AgentID:   agentName,
	}, nil
}

// runToCompletion ticks eng until it goes idle with no active run, bounded
// by maxSubagentTicks and ctx cancellation.
func (e *SubagentExecutor) runToCompletion(ctx context.Context, eng *engine.Engine, sessionID int64) error {
	for i := 0; i < maxSubagentTicks; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		changed, err := eng.Tick(ctx, sessionID)
		if err != nil {
			return err
		}
		if !changed && !eng.Busy() {
			return nil
		}
		if !changed {
			time.Sleep(time.Millisecond)
		}
	}
	return fmt.Errorf("subtask did not complete within %d ticks", maxSubagentTicks)
}

// createChildSession creates a scratch session for the subagent run, named
// for traceability back to the parent session and persona used.
func (e *SubagentExecutor) createChildSession(agentName, parentSessionID string) (int64, error) {
	name := fmt.Sprintf("subtask:%s<-%s", agentName, parentSessionID)
	return e.store.CreateSession(name)
}

// lastAssistantText extracts the final assistant message's content, the
// subtask's answer to its caller.
func (e *SubagentExecutor) lastAssistantText(sessionID int64) (string, error) {
	msgs, err := e.store.GetMessages(sessionID)
	if err != nil {
		return "", err
	}
	var texts []string
	for _, m := range msgs {
		if m.Role == domain.RoleAssistant && strings.TrimSpace(m.Content) != "" {
			texts = append(texts, m.Content)
		}
	}
	if len(texts) == 0 {
		return "", nil
	}
	return texts[len(texts)-1], nil
}

// resolveModel resolves a model id from the Task tool's short aliases.
func (e *SubagentExecutor) resolveModel(modelOption string) string {
	switch modelOption {
	case "sonnet":
		return "claude-sonnet-4-20250514"
	case "opus":
		return "claude-opus-4-20250514"
	case "haiku":
		return "claude-haiku-3-20240307"
	default:
		return e.defaultModel
	}
}
