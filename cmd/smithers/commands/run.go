package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/evmts/smithers/internal/headless"
	"github.com/spf13/cobra"
)

var (
	runModel        string
	runPersona      string
	runContinue     bool
	runSession      string
	runOutputFormat string
	runFiles        []string
	runTitle        string
	runPromptFlag   string
	runStdin        bool
	runNoSave       bool
	runSystemPrompt string
	runQuiet        bool
	runVerbose      bool
	runTimeout      string
	runDir          string
)

var runCmd = &cobra.Command{
	Use:   "run [message...]",
	Short: "Run a single prompt against a persona and print the result",
	Long: `Run submits a prompt to the agent run state machine and streams the
result to stdout. There is no TUI: progress is printed as it is produced
and the command exits once the run goes idle.

Examples:
  smithers run "Fix the bug in main.go"
  smithers run --model claude-sonnet-4-20250514 "Explain this code"
  smithers run --continue "Now add tests for what you just implemented"
  smithers run --file main.go "Review this file"
  smithers run -o jsonl "Implement feature X" | jq -r '.type'`,
	RunE: runInteractive,
}

func init() {
	runCmd.Flags().StringVarP(&runModel, "model", "m", "", "Model to use (provider/model format)")
	runCmd.Flags().StringVar(&runPersona, "persona", "", "Persona to use (default: build)")
	runCmd.Flags().BoolVarP(&runContinue, "continue", "c", false, "Continue the last session")
	runCmd.Flags().StringVarP(&runSession, "session", "s", "", "Session ID to continue")
	runCmd.Flags().StringVarP(&runOutputFormat, "output-format", "o", "text", "Output format: text, json, jsonl")
	runCmd.Flags().StringArrayVarP(&runFiles, "file", "f", nil, "File(s) to attach to message")
	runCmd.Flags().StringVar(&runTitle, "title", "", "Session title")
	runCmd.Flags().StringVarP(&runPromptFlag, "prompt", "p", "", "Prompt/instruction to execute")
	runCmd.Flags().BoolVar(&runStdin, "stdin", false, "Read prompt from stdin")
	runCmd.Flags().BoolVar(&runNoSave, "no-save", false, "Don't persist session (memory-only store)")
	runCmd.Flags().StringVar(&runSystemPrompt, "system-prompt", "", "Custom system prompt file, overriding the persona's own prompt")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Suppress progress output, only show the final result")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Show tool activity as it happens")
	runCmd.Flags().StringVarP(&runTimeout, "timeout", "t", "30m", "Maximum execution time (e.g., 5m, 1h)")
	runCmd.Flags().StringVar(&runDir, "directory", "", "Working directory")
}

func runInteractive(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(runDir)
	if err != nil {
		return err
	}

	timeout, err := time.ParseDuration(runTimeout)
	if err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}

	var outputFormat headless.OutputFormat
	switch strings.ToLower(runOutputFormat) {
	case "text", "":
		outputFormat = headless.OutputText
	case "json":
		outputFormat = headless.OutputJSON
	case "jsonl":
		outputFormat = headless.OutputJSONL
	default:
		return fmt.Errorf("invalid output format: %s (must be text, json, or jsonl)", runOutputFormat)
	}

	prompt := runPromptFlag
	if prompt == "" && len(args) > 0 {
		prompt = strings.Join(args, " ")
	}
	if prompt == "" && !runStdin && !runContinue && runSession == "" {
		return fmt.Errorf("message required. Usage: smithers run \"your message\"")
	}

	var sessionID int64
	if runSession != "" {
		id, err := strconv.ParseInt(runSession, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid --session id %q: %w", runSession, err)
		}
		sessionID = id
	}

	model := runModel
	if model == "" {
		model = GetGlobalModel()
	}

	cfg := &headless.Config{
		Prompt:       prompt,
		WorkDir:      workDir,
		OutputFormat: outputFormat,
		Timeout:      timeout,
		ReadStdin:    runStdin,
		NoSave:       runNoSave,
		SessionID:    sessionID,
		ContinueLast: runContinue,
		Files:        runFiles,
		SystemPrompt: runSystemPrompt,
		Quiet:        runQuiet,
		Verbose:      runVerbose,
		Model:        model,
		Persona:      runPersona,
		Title:        runTitle,
	}

	runner := headless.NewRunner(cfg)
	result, err := runner.Run(cmd.Context(), os.Stdout)
	if result != nil && result.ExitCode != headless.ExitSuccess {
		os.Exit(int(result.ExitCode))
	}
	return err
}
