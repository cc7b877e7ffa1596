// Package main provides the entry point for the standalone agent
// coordination server (session CRUD, message submission, state_changed
// SSE — see internal/server).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
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
	"github.com/evmts/smithers/internal/logging"
	"github.com/evmts/smithers/internal/persona"
	"github.com/evmts/smithers/internal/provider"
	"github.com/evmts/smithers/internal/server"
	"github.com/evmts/smithers/internal/store"
	"github.com/evmts/smithers/internal/tool"
)

var (
	port      = flag.Int("port", 8080, "Server port")
	directory = flag.String("directory", "", "Working directory")
	version   = flag.Bool("version", false, "Print version and exit")
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("smithers-server %s (%s)\n", Version, BuildTime)
		os.Exit(0)
	}

	workDir := *directory
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			log.Fatalf("Failed to get working directory: %v", err)
		}
	}

	log.Printf("Starting smithers-server v%s", Version)
	log.Printf("Working directory: %s", workDir)

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		log.Fatalf("Failed to create data directories: %v", err)
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	st, err := store.Open(paths.StoragePath() + "/smithers.db")
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	toolReg := tool.DefaultRegistry(workDir)
	personas := persona.NewRegistry()
	if err := personas.LoadFromDir(filepath.Join(workDir, ".smithers", "personas")); err != nil {
		log.Fatalf("Failed to load personas: %v", err)
	}
	toolReg.RegisterTaskTool(personas)

	httpPort := provider.NewHTTPPort(provider.HTTPConfig{})

	model := resolveModel(appConfig.Model)
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
		log.Fatalf("Failed to load default persona: %v", err)
	}

	logHandle := logging.New(logging.DefaultConfig())
	eng := engine.New(st, httpPort, executor.New(toolReg), toolReg, logHandle, engine.Config{
		Model:        model,
		MaxTokens:    4096,
		SystemPrompt: buildPersona.Prompt,
	})

	serverConfig := server.DefaultConfig()
	serverConfig.Port = *port

	srv := server.New(serverConfig, st, eng, logHandle, 1)
	srv.StartWorker()

	go func() {
		fmt.Printf("Server listening on http://localhost:%d\n", *port)
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logHandle.WithSpan("main", "http").Error("listen_error", "main", err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("Shutting down server...")
	srv.StopWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		fmt.Printf("Server shutdown error: %v\n", err)
	}

	fmt.Println("Server stopped")
}

func resolveModel(model string) string {
	if model == "" {
		return provider.DefaultModel
	}
	parts := strings.SplitN(model, "/", 2)
	if len(parts) == 2 {
		return parts[1]
	}
	return model
}
