// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithTracer sets the tracer used for session spans.
func WithTracer(tracer trace.Tracer) ServerOption {
	return func(s *Server) {
		s.tracer = tracer
	}
}

// WithAgentFactory replaces the remote client constructor. Tests use this
// to substitute fake agents.
func WithAgentFactory(factory AgentFactory) ServerOption {
	return func(s *Server) {
		s.factory = factory
	}
}
