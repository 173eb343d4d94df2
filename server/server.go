// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

// Package server is the HTTP gateway in front of the task lifecycle
// streaming engine: it creates remote agent tasks, registers polling
// sessions for them, and binds session event queues to SSE and WebSocket
// client connections.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	cpr "github.com/Zeeeepa/CPR"
	"github.com/Zeeeepa/CPR/client"
	"github.com/Zeeeepa/CPR/config"
	"github.com/Zeeeepa/CPR/server/task"
	"github.com/Zeeeepa/CPR/server/thread"
)

// Version is reported by the health endpoint.
const Version = "2.0.0"

// agentCacheSize bounds the per-credential client cache.
const agentCacheSize = 128

// RemoteTask is a created remote task: the poll handle plus its
// service-assigned identifier (which may be empty).
type RemoteTask interface {
	cpr.TaskHandle
	ID() string
}

// AgentClient creates tasks on the remote agent service.
type AgentClient interface {
	CreateTask(ctx context.Context, prompt string) (RemoteTask, error)
}

// AgentFactory builds an AgentClient for one set of credentials.
type AgentFactory func(orgID, token, baseURL string) AgentClient

// Server is the HTTP gateway.
type Server struct {
	cfg      config.Config
	registry *task.Registry
	store    thread.Store
	agents   *lru.Cache[string, AgentClient]
	factory  AgentFactory
	logger   *slog.Logger
	tracer   trace.Tracer

	baseCtx context.Context
	handler http.Handler
}

// New creates a Server. The registry is shared with every session the
// gateway spawns; the thread store backs the conversation endpoints.
func New(cfg config.Config, registry *task.Registry, store thread.Store, opts ...ServerOption) *Server {
	agents, _ := lru.New[string, AgentClient](agentCacheSize)

	s := &Server{
		cfg:      cfg,
		registry: registry,
		store:    store,
		agents:   agents,
		logger:   slog.Default(),
		tracer:   otel.GetTracerProvider().Tracer("github.com/Zeeeepa/CPR/server"),
		baseCtx:  context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.factory == nil {
		s.factory = s.defaultFactory
	}

	s.handler = chain(s.routes(),
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
		corsMiddleware(cfg.Server.CORSOrigins),
	)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// routes builds the endpoint table.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/run-task", s.handleRunTask)
	mux.HandleFunc("GET /api/v1/tasks", s.handleListTasks)
	mux.HandleFunc("GET /api/v1/task/{id}/status", s.handleTaskStatus)
	mux.HandleFunc("GET /api/v1/task/{id}/debug", s.handleTaskDebug)
	mux.HandleFunc("GET /api/v1/task/{id}/stream", s.handleTaskStream)
	mux.HandleFunc("GET /api/v1/task/{id}/ws", s.handleTaskWebSocket)
	mux.HandleFunc("DELETE /api/v1/task/{id}", s.handleCancelTask)

	mux.HandleFunc("POST /api/v1/threads", s.handleCreateThread)
	mux.HandleFunc("GET /api/v1/threads", s.handleListThreads)
	mux.HandleFunc("GET /api/v1/threads/{id}", s.handleGetThread)
	mux.HandleFunc("POST /api/v1/threads/{id}/messages", s.handleCreateMessage)
	mux.HandleFunc("GET /api/v1/threads/{id}/messages", s.handleListMessages)
	mux.HandleFunc("GET /api/v1/threads/{id}/messages/{mid}", s.handleGetMessage)

	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/config", s.handleConfig)

	return mux
}

// Run serves until the context is cancelled, then drains with a grace
// period. Sessions outlive individual requests but not the server: the base
// context handed to every session is derived from ctx.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx

	srv := &http.Server{
		Addr:              s.cfg.Server.Addr(),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", srv.Addr, "version", Version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// engineConfig translates the loaded configuration into session knobs.
func (s *Server) engineConfig() task.Config {
	cfg := task.Config{
		PollInterval:      s.cfg.Engine.PollInterval(),
		MaxTicks:          s.cfg.Engine.MaxTicks,
		HeartbeatInterval: s.cfg.Engine.HeartbeatInterval(),
		QueueSize:         s.cfg.Engine.QueueSize,
	}
	if len(s.cfg.Engine.InFlightStatuses) > 0 {
		cfg.Classifier = &cpr.Classifier{InFlight: s.cfg.Engine.InFlightStatuses}
	}
	return cfg
}

// agentFor returns a cached client for the credentials, creating one on
// first use.
func (s *Server) agentFor(orgID, token, baseURL string) AgentClient {
	key := orgID + ":" + token + ":" + baseURL
	if agent, ok := s.agents.Get(key); ok {
		return agent
	}
	agent := s.factory(orgID, token, baseURL)
	s.agents.Add(key, agent)
	return agent
}

// defaultFactory builds real remote service clients.
func (s *Server) defaultFactory(orgID, token, baseURL string) AgentClient {
	opts := []client.Option{client.WithLogger(s.logger)}
	if baseURL != "" {
		opts = append(opts, client.WithBaseURL(baseURL))
	}
	return &clientAdapter{agent: client.New(orgID, token, opts...)}
}

// clientAdapter narrows *client.Client to the AgentClient interface.
type clientAdapter struct {
	agent *client.Client
}

func (a *clientAdapter) CreateTask(ctx context.Context, prompt string) (RemoteTask, error) {
	t, err := a.agent.CreateTask(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return t, nil
}
