package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/evmts/smithers/internal/config"
	"github.com/evmts/smithers/internal/engine"
	"github.com/evmts/smithers/internal/executor"
	"github.com/evmts/smithers/internal/persona"
	"github.com/evmts/smithers/internal/provider"
	"github.com/evmts/smithers/internal/server"
	"github.com/evmts/smithers/internal/store"
	"github.com/evmts/smithers/internal/tool"
	"github.com/evmts/smithers/pkg/types"
	"github.com/spf13/cobra"
)

var (
	servePort     int
	serveHostname string
	serveDir      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agent coordination server",
	Long: `Start the HTTP API server that exposes session CRUD, message
submission, and a state_changed SSE stream. The server owns a single
background worker that drives the agent run state machine against
whichever session is current.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "127.0.0.1", "Hostname shown in the startup message (the server listens on all interfaces)")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Starting smithers server (%s)\n", Version)
	fmt.Fprintf(os.Stderr, "Working directory: %s\n", workDir)

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if model := GetGlobalModel(); model != "" {
		appConfig.Model = model
	}

	st, err := store.Open(paths.StoragePath() + "/smithers.db")
	if err != nil {
		return err
	}

	toolReg := tool.DefaultRegistry(workDir)
	personas := persona.NewRegistry()
	if err := personas.LoadFromDir(filepath.Join(workDir, ".smithers", "personas")); err != nil {
		return fmt.Errorf("failed to load personas: %w", err)
	}
	toolReg.RegisterTaskTool(personas)

	httpPort := provider.NewHTTPPort(provider.HTTPConfig{})
	model := resolveServeModel(appConfig.Model)

	subagentExecutor := executor.NewSubagentExecutor(executor.SubagentExecutorConfig{
		Store:        st,
		Port:         httpPort,
		ToolRegistry: toolReg,
		Personas:     personas,
		DefaultModel: model,
	})
	toolReg.SetTaskExecutor(subagentExecutor)

	buildPersona, err := personas.Get("build")
	if err != nil {
		return err
	}

	log := GetLogHandle()
	eng := engine.New(st, httpPort, executor.New(toolReg), toolReg, log, engine.Config{
		Model:        model,
		MaxTokens:    4096,
		SystemPrompt: buildPersona.Prompt,
	})

	serverConfig := server.DefaultConfig()
	serverConfig.Port = servePort

	srv := server.New(serverConfig, st, eng, log, 1)
	srv.StartWorker()

	cfgWatcher, err := config.NewWatcher(workDir, func(cfg *types.Config) {
		model := resolveServeModel(cfg.Model)
		eng.SetModel(model)
		fmt.Fprintf(os.Stderr, "Config changed, reloaded model: %s\n", model)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config watcher disabled: %v\n", err)
	} else {
		cfgWatcher.Start()
		defer cfgWatcher.Stop()
	}

	serveErr := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "Server listening on http://%s:%d\n", serveHostname, servePort)
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	fmt.Fprintln(os.Stderr, "Shutting down server...")
	srv.StopWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Server shutdown error: %v\n", err)
	}

	st.Close()
	fmt.Fprintln(os.Stderr, "Server stopped")
	return nil
}

func resolveServeModel(model string) string {
	if model == "" {
		return provider.DefaultModel
	}
	parts := strings.SplitN(model, "/", 2)
	if len(parts) == 2 {
		return parts[1]
	}
	return model
}
