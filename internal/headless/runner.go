package headless

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/evmts/smithers/internal/config"
	"github.com/evmts/smithers/internal/engine"
	"github.com/evmts/smithers/internal/executor"
	"github.com/evmts/smithers/internal/mcp"
	"github.com/evmts/smithers/internal/persona"
	"github.com/evmts/smithers/internal/provider"
	"github.com/evmts/smithers/internal/session"
	"github.com/evmts/smithers/internal/store"
	"github.com/evmts/smithers/internal/tool"
	"github.com/evmts/smithers/pkg/types"
)

// Runner executes a single prompt against the engine in headless mode, the
// non-interactive CLI front door for `smithers run`.
//
// Grounded on the teacher's internal/headless/runner.go phase structure
// (initialize components, resolve/create session, submit prompt, drive the
// loop, print result), with the Eino-backed session.Processor replaced by
// internal/engine.Engine ticked directly and internal/session.Service
// resolving which session to address, since this module has no concurrent
// multi-session Processor to delegate to.
type Runner struct {
	config    *Config
	appConfig *types.Config
	printer   *Printer
	store     *store.Store

	personas  *persona.Registry
	toolReg   *tool.Registry
	mcpClient *mcp.Client
	port      provider.Port
	sessions  *session.Service
	eng       *engine.Engine
}

// NewRunner creates a new headless runner.
func NewRunner(cfg *Config) *Runner {
	return &Runner{config: cfg}
}

// Run executes the headless session and returns the result.
func (r *Runner) Run(ctx context.Context, writer io.Writer) (*Result, error) {
	r.printer = NewPrinter(writer, r.config.OutputFormat, r.config.Quiet, r.config.Verbose)

	if err := r.initialize(ctx); err != nil {
		r.printer.SetResult("error", ExitError, "", err)
		return r.printer.GetResult(), err
	}
	if r.mcpClient != nil {
		defer r.mcpClient.Close()
	}
	defer r.store.Close()

	prompt, err := r.getPrompt()
	if err != nil {
		r.printer.SetResult("error", ExitInvalidInput, "", err)
		return r.printer.GetResult(), err
	}
	if prompt == "" {
		err := errors.New("prompt is required")
		r.printer.SetResult("error", ExitInvalidInput, "", err)
		return r.printer.GetResult(), err
	}

	sessionID, err := r.getOrCreateSession()
	if err != nil {
		r.printer.SetResult("error", ExitSessionNotFound, "", err)
		return r.printer.GetResult(), err
	}
	r.printer.SetSessionID(sessionID)
	r.printer.SetModel(r.resolveModel())

	if _, err := r.sessions.EnqueueMessage(sessionID, prompt); err != nil {
		r.printer.SetResult("error", ExitError, "", err)
		return r.printer.GetResult(), err
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if r.config.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	err = r.driveToCompletion(runCtx, sessionID)
	finalMessage := r.printer.GetResult().FinalMessage

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			r.printer.SetResult("timeout", ExitTimeout, finalMessage, err)
			return r.printer.GetResult(), err
		}
		r.printer.SetResult("error", ExitError, finalMessage, err)
		return r.printer.GetResult(), err
	}

	r.printer.SetResult("success", ExitSuccess, finalMessage, nil)
	r.printer.PrintFinalResult()
	return r.printer.GetResult(), nil
}

// maxHeadlessTicks bounds the run loop so a stalled provider can't hang
// the CLI forever once its own ctx timeout has already been exhausted.
const maxHeadlessTicks = 100000

// driveToCompletion ticks the engine for sessionID until it goes idle,
// printing newly observed messages after every tick.
func (r *Runner) driveToCompletion(ctx context.Context, sessionID int64) error {
	for i := 0; i < maxHeadlessTicks; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		changed, err := r.eng.Tick(ctx, sessionID)
		if err != nil {
			return err
		}

		msgs, merr := r.sessions.Messages(sessionID)
		if merr == nil {
			r.printer.Observe(msgs)
		}

		if !changed && !r.eng.Busy() {
			return nil
		}
		if !changed {
			time.Sleep(time.Millisecond)
		}
	}
	return fmt.Errorf("run did not complete within %d ticks", maxHeadlessTicks)
}

// initialize sets up all required components.
func (r *Runner) initialize(ctx context.Context) error {
	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return fmt.Errorf("failed to ensure paths: %w", err)
	}

	appConfig, err := config.Load(r.config.WorkDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	r.appConfig = appConfig
	if r.config.Model != "" {
		r.appConfig.Model = r.config.Model
	}

	dsn := store.Memory
	if !r.config.NoSave {
		dsn = paths.StoragePath() + "/smithers.db"
	}
	st, err := store.Open(dsn)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	r.store = st
	r.sessions = session.New(st, 1)

	r.port = provider.NewHTTPPort(provider.HTTPConfig{})

	r.toolReg = tool.DefaultRegistry(r.config.WorkDir)
	r.personas = persona.NewRegistry()
	if err := r.personas.LoadFromDir(filepath.Join(r.config.WorkDir, ".smithers", "personas")); err != nil {
		return fmt.Errorf("failed to load personas: %w", err)
	}
	r.toolReg.RegisterTaskTool(r.personas)

	if len(r.appConfig.MCP) > 0 {
		r.mcpClient = mcp.NewClient()
		for name, cfg := range r.appConfig.MCP {
			enabled := cfg.Enabled == nil || *cfg.Enabled
			mcpCfg := &mcp.Config{
				Enabled:     enabled,
				Type:        mcp.TransportType(cfg.Type),
				URL:         cfg.URL,
				Headers:     cfg.Headers,
				Command:     cfg.Command,
				Environment: cfg.Environment,
				Timeout:     cfg.Timeout,
			}
			if err := r.mcpClient.AddServer(ctx, name, mcpCfg); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: MCP server %s failed: %v\n", name, err)
				continue
			}
		}
		mcp.RegisterMCPTools(r.mcpClient, r.toolReg)
	}

	subagentExecutor := executor.NewSubagentExecutor(executor.SubagentExecutorConfig{
		Store:        r.store,
		Port:         r.port,
		ToolRegistry: r.toolReg,
		Personas:     r.personas,
		DefaultModel: r.resolveModel(),
	})
	r.toolReg.SetTaskExecutor(subagentExecutor)

	p, err := r.personas.Get(r.personaName())
	if err != nil {
		return fmt.Errorf("unknown persona %q: %w", r.personaName(), err)
	}
	systemPrompt := p.Prompt
	if r.config.SystemPrompt != "" {
		data, err := os.ReadFile(r.config.SystemPrompt)
		if err == nil {
			systemPrompt = string(data)
		}
	}

	r.eng = engine.New(r.store, r.port, executor.New(r.toolReg), r.toolReg, nil, engine.Config{
		Model:        r.resolveModel(),
		MaxTokens:    4096,
		SystemPrompt: systemPrompt,
	})

	return nil
}

func (r *Runner) personaName() string {
	if r.config.Persona != "" {
		return r.config.Persona
	}
	return "build"
}

// resolveModel extracts the model id from the "provider/model" config
// string, defaulting to the engine's built-in default.
func (r *Runner) resolveModel() string {
	model := r.appConfig.Model
	if model == "" {
		return provider.DefaultModel
	}
	parts := strings.SplitN(model, "/", 2)
	if len(parts) == 2 {
		return parts[1]
	}
	return model
}

// getPrompt retrieves the prompt from stdin, the --prompt flag, and any
// attached files, composed as the --prompt text first, then the stdin text,
// then the attached files.
func (r *Runner) getPrompt() (string, error) {
	var prompt string

	if r.config.ReadStdin {
		scanner := bufio.NewScanner(os.Stdin)
		var lines []string
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		if err := scanner.Err(); err != nil && err != io.EOF {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		prompt = strings.Join(lines, "\n")
	}

	if r.config.Prompt != "" {
		if prompt != "" {
			prompt = r.config.Prompt + "\n\n" + prompt
		} else {
			prompt = r.config.Prompt
		}
	}

	if len(r.config.Files) > 0 {
		var fileContent strings.Builder
		for _, file := range r.config.Files {
			content, err := os.ReadFile(file)
			if err != nil {
				return "", fmt.Errorf("failed to read file %s: %w", file, err)
			}
			fileContent.WriteString(fmt.Sprintf("\n\n--- File: %s ---\n%s", file, string(content)))
		}
		prompt += fileContent.String()
	}

	return strings.TrimSpace(prompt), nil
}

// getOrCreateSession resolves which session to address per the Config's
// SessionID/ContinueLast/default-new-session precedence.
func (r *Runner) getOrCreateSession() (int64, error) {
	if r.config.SessionID != 0 {
		if _, err := r.store.GetSession(r.config.SessionID); err != nil {
			return 0, fmt.Errorf("session not found: %d", r.config.SessionID)
		}
		return r.config.SessionID, nil
	}

	if r.config.ContinueLast {
		sessions, err := r.sessions.ListSessions()
		if err != nil {
			return 0, fmt.Errorf("failed to list sessions: %w", err)
		}
		if len(sessions) > 0 {
			return sessions[len(sessions)-1].ID, nil
		}
	}

	title := r.config.Title
	if title == "" {
		title = "Headless Session"
	}
	return r.sessions.NewSession(title)
}
