// Package commands provides the CLI commands for smithers.
package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/evmts/smithers/internal/config"
	"github.com/evmts/smithers/internal/logging"
	"github.com/spf13/cobra"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs   bool
	logLevel    string
	showConfig  bool
	globalModel string
)

// logHandle is the process-wide observability handle, built once in
// PersistentPreRun and shared by every subcommand that needs to pass a
// *logging.Handle into internal/engine or internal/worker. There is no
// package-level logger singleton here: the handle is constructed
// explicitly, never a global, so commands that run the agent loop fetch
// it via GetLogHandle instead of calling package-level logging functions.
var logHandle *logging.Handle

var rootCmd = &cobra.Command{
	Use:   "smithers",
	Short: "smithers - agent coordination core",
	Long: `smithers drives a single coding agent through a session-scoped,
tool-using run loop: submit a prompt, stream its reasoning and tool
calls, and branch/compact the transcript as it grows.

Run 'smithers run' to execute a single prompt, or 'smithers serve'
to start the HTTP coordination server.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logging.LevelOff
		if printLogs {
			level = logging.ParseLevel(logLevel)
		}
		logHandle = logging.New(logging.Config{
			Level:  level,
			Output: os.Stderr,
		})

		// Handle --show-config flag
		if showConfig {
			dir, err := os.Getwd()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error getting working directory: %v\n", err)
				os.Exit(1)
			}

			cfg, err := config.Load(dir)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
				os.Exit(1)
			}

			jsonData, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling config: %v\n", err)
				os.Exit(1)
			}

			fmt.Println(string(jsonData))
			os.Exit(0)
		}
	},
	// Show help when no subcommand is specified
	Run: func(cmd *cobra.Command, args []string) {
		// If no subcommand, show help
		cmd.Help()
	},
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().BoolVar(&showConfig, "show-config", false, "Print merged configuration as JSON and exit")
	rootCmd.PersistentFlags().StringVarP(&globalModel, "model", "m", "", "Model to use (provider/model format)")

	// Version template
	rootCmd.SetVersionTemplate(fmt.Sprintf("smithers %s (%s)\n", Version, BuildTime))

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(debugCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}

// GetGlobalModel returns the global model flag value.
func GetGlobalModel() string {
	return globalModel
}

// GetLogHandle returns the process-wide observability handle set up in
// PersistentPreRun.
func GetLogHandle() *logging.Handle {
	if logHandle == nil {
		return logging.Nop()
	}
	return logHandle
}
