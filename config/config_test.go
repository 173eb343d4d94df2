// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Load() without environment mismatch (-want +got):\n%s", diff)
	}
	if got := cfg.Server.Addr(); got != "0.0.0.0:8887" {
		t.Errorf("Addr() = %q, want 0.0.0.0:8887", got)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("CPR_HOST", "127.0.0.1")
	t.Setenv("CPR_PORT", "9000")
	t.Setenv("CPR_ORG_ID", "org-42")
	t.Setenv("CPR_TOKEN", "tok-42")
	t.Setenv("CPR_POLL_INTERVAL_SECONDS", "2")
	t.Setenv("CPR_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("CPR_IN_FLIGHT_STATUSES", "running,reviewing")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := cfg.Server.Addr(); got != "127.0.0.1:9000" {
		t.Errorf("Addr() = %q, want 127.0.0.1:9000", got)
	}
	if cfg.Agent.OrgID != "org-42" || cfg.Agent.Token != "tok-42" {
		t.Errorf("Agent = %+v", cfg.Agent)
	}
	if got := cfg.Engine.PollInterval(); got != 2*time.Second {
		t.Errorf("PollInterval() = %v, want 2s", got)
	}

	wantOrigins := []string{"https://a.example", "https://b.example"}
	if diff := cmp.Diff(wantOrigins, cfg.Server.CORSOrigins); diff != "" {
		t.Errorf("CORSOrigins mismatch (-want +got):\n%s", diff)
	}
	wantStatuses := []string{"running", "reviewing"}
	if diff := cmp.Diff(wantStatuses, cfg.Engine.InFlightStatuses); diff != "" {
		t.Errorf("InFlightStatuses mismatch (-want +got):\n%s", diff)
	}

	// Untouched knobs keep their defaults.
	if cfg.Engine.MaxTicks != 120 {
		t.Errorf("MaxTicks = %d, want 120", cfg.Engine.MaxTicks)
	}
}

func TestDurationAccessors(t *testing.T) {
	e := EngineConfig{
		PollIntervalSeconds: 5,
		HeartbeatSeconds:    15,
		SyncWaitSeconds:     300,
	}
	if got := e.PollInterval(); got != 5*time.Second {
		t.Errorf("PollInterval() = %v", got)
	}
	if got := e.HeartbeatInterval(); got != 15*time.Second {
		t.Errorf("HeartbeatInterval() = %v", got)
	}
	if got := e.SyncWait(); got != 5*time.Minute {
		t.Errorf("SyncWait() = %v", got)
	}
}
