// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads gateway configuration from the environment.
//
// All knobs are prefixed CPR_ (for example CPR_PORT, CPR_ORG_ID,
// CPR_POLL_INTERVAL_SECONDS). Defaults mirror the agent service's documented
// behavior: a 5 second poll cadence with a 120 tick budget bounds every
// session to ten minutes.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config is the root configuration for the gateway process.
type Config struct {
	Server ServerConfig `koanf:"server"`
	Agent  AgentConfig  `koanf:"agent"`
	Engine EngineConfig `koanf:"engine"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host        string   `koanf:"host"`
	Port        int      `koanf:"port"`
	CORSOrigins []string `koanf:"cors_origins"`
	LogLevel    string   `koanf:"log_level"`
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AgentConfig holds default credentials for the remote agent service.
// Per-request headers override these; the gateway never validates them
// locally, it only forwards them.
type AgentConfig struct {
	OrgID   string `koanf:"org_id"`
	Token   string `koanf:"token"`
	BaseURL string `koanf:"base_url"`
}

// EngineConfig tunes the task lifecycle streaming engine.
type EngineConfig struct {
	PollIntervalSeconds int `koanf:"poll_interval_seconds"`
	MaxTicks            int `koanf:"max_ticks"`
	HeartbeatSeconds    int `koanf:"heartbeat_seconds"`
	QueueSize           int `koanf:"queue_size"`
	SyncWaitSeconds     int `koanf:"sync_wait_seconds"`

	// InFlightStatuses overrides the defensive-completion guard set. Empty
	// means the engine defaults.
	InFlightStatuses []string `koanf:"in_flight_statuses"`
}

// PollInterval returns the engine-wide poll cadence.
func (e EngineConfig) PollInterval() time.Duration {
	return time.Duration(e.PollIntervalSeconds) * time.Second
}

// HeartbeatInterval returns the transport keepalive cadence.
func (e EngineConfig) HeartbeatInterval() time.Duration {
	return time.Duration(e.HeartbeatSeconds) * time.Second
}

// SyncWait returns the maximum wall-clock wait for non-streaming task runs.
func (e EngineConfig) SyncWait() time.Duration {
	return time.Duration(e.SyncWaitSeconds) * time.Second
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8887,
			CORSOrigins: []string{"*"},
			LogLevel:    "info",
		},
		Engine: EngineConfig{
			PollIntervalSeconds: 5,
			MaxTicks:            120,
			HeartbeatSeconds:    15,
			QueueSize:           256,
			SyncWaitSeconds:     300,
		},
	}
}

// envPaths maps environment variables onto config paths. List-valued
// variables are comma-separated.
var envPaths = map[string]string{
	"CPR_HOST":                  "server.host",
	"CPR_PORT":                  "server.port",
	"CPR_CORS_ORIGINS":          "server.cors_origins",
	"CPR_LOG_LEVEL":             "server.log_level",
	"CPR_ORG_ID":                "agent.org_id",
	"CPR_TOKEN":                 "agent.token",
	"CPR_BASE_URL":              "agent.base_url",
	"CPR_POLL_INTERVAL_SECONDS": "engine.poll_interval_seconds",
	"CPR_MAX_TICKS":             "engine.max_ticks",
	"CPR_HEARTBEAT_SECONDS":     "engine.heartbeat_seconds",
	"CPR_QUEUE_SIZE":            "engine.queue_size",
	"CPR_SYNC_WAIT_SECONDS":     "engine.sync_wait_seconds",
	"CPR_IN_FLIGHT_STATUSES":    "engine.in_flight_statuses",
}

var listValued = map[string]bool{
	"CPR_CORS_ORIGINS":       true,
	"CPR_IN_FLIGHT_STATUSES": true,
}

// Load builds the configuration from defaults overlaid with CPR_-prefixed
// environment variables.
func Load() (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: "CPR_",
		TransformFunc: func(key, value string) (string, any) {
			path, ok := envPaths[key]
			if !ok {
				return "", nil
			}
			if listValued[key] {
				return path, splitList(value)
			}
			return path, value
		},
	}), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
