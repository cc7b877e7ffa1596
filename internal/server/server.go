// Package server provides the HTTP API for the agent coordination core: a
// thin chi-based surface over internal/session, internal/engine, and
// internal/worker — session CRUD, message submission, and an SSE endpoint
// streaming the state_changed flag and session/message bus events so a
// remote UI can reload from the store the same way internal/headless does
// locally.
//
// Grounded on the teacher's internal/server/server.go for the chi
// middleware stack (RequestID/Logger/Recoverer/CORS) and graceful
// start/shutdown shape; trimmed from its ~20-route, multi-subsystem
// surface (projects, files, LSP, formatter, TUI control, client tools) to
// just the session/message/event routes SPEC_FULL.md describes, since
// those other subsystems have no counterpart in this spec.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/evmts/smithers/internal/engine"
	"github.com/evmts/smithers/internal/logging"
	"github.com/evmts/smithers/internal/session"
	"github.com/evmts/smithers/internal/store"
	"github.com/evmts/smithers/internal/worker"
)

// Config holds server configuration.
type Config struct {
	Port         int
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // no write timeout, the SSE endpoint stays open
	}
}

// Server is the HTTP server. It owns the worker goroutine that drives the
// engine against whichever session is current.
type Server struct {
	config  *Config
	router  *chi.Mux
	httpSrv *http.Server

	store    *store.Store
	sessions *session.Service
	eng      *engine.Engine
	wrk      *worker.Worker
	log      *logging.Handle

	workerCancel context.CancelFunc
}

// New creates a new Server instance wired to an already-constructed
// store/engine/worker stack. currentSessionID is the session the worker
// starts servicing.
func New(cfg *Config, st *store.Store, eng *engine.Engine, log *logging.Handle, currentSessionID int64) *Server {
	if log == nil {
		log = logging.Nop()
	}
	r := chi.NewRouter()

	s := &Server{
		config:   cfg,
		router:   r,
		store:    st,
		sessions: session.New(st, currentSessionID),
		eng:      eng,
		wrk:      worker.New(st, eng, log, currentSessionID),
		log:      log,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Link", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// StartWorker launches the background worker loop that drives the engine.
// It must be called once before the server starts accepting traffic that
// expects assistant replies to materialize.
func (s *Server) StartWorker() {
	ctx, cancel := context.WithCancel(context.Background())
	s.workerCancel = cancel
	go func() {
		if err := s.wrk.Run(ctx); err != nil && ctx.Err() == nil {
			s.log.WithSpan("server", "worker").Error("worker_exit", "server", err.Error())
		}
	}()
}

// StopWorker stops the background worker loop.
func (s *Server) StopWorker() {
	if s.workerCancel != nil {
		s.workerCancel()
	}
	s.wrk.Stop()
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
