// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

package cpr

import (
	"testing"

	"github.com/go-json-experiment/json"
	"github.com/google/go-cmp/cmp"
)

func TestValueUnmarshal(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		input    string
		wantStr  string
		wantMap  map[string]any
		wantZero bool
	}{
		"string": {
			input:   `"hello"`,
			wantStr: "hello",
		},
		"object": {
			input:   `{"content":"hi"}`,
			wantMap: map[string]any{"content": "hi"},
		},
		"null": {
			input:    `null`,
			wantZero: true,
		},
		"number degrades to absence": {
			input:    `42`,
			wantZero: true,
		},
		"boolean degrades to absence": {
			input:    `true`,
			wantZero: true,
		},
		"array degrades to absence": {
			input:    `[1,2,3]`,
			wantZero: true,
		},
		"empty string is zero": {
			input:    `""`,
			wantZero: true,
		},
		"empty object is zero": {
			input:    `{}`,
			wantZero: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var v Value
			if err := json.Unmarshal([]byte(tt.input), &v); err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", tt.input, err)
			}

			if got := v.IsZero(); got != tt.wantZero {
				t.Errorf("IsZero() = %v, want %v", got, tt.wantZero)
			}
			if tt.wantStr != "" {
				got, ok := v.AsString()
				if !ok || got != tt.wantStr {
					t.Errorf("AsString() = %q, %v, want %q, true", got, ok, tt.wantStr)
				}
			}
			if tt.wantMap != nil {
				got, ok := v.AsMap()
				if !ok {
					t.Fatalf("AsMap() ok = false, want true")
				}
				if diff := cmp.Diff(tt.wantMap, got); diff != "" {
					t.Errorf("AsMap() mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestValueUnmarshalResets(t *testing.T) {
	t.Parallel()

	v := StringValue("stale")
	if err := json.Unmarshal([]byte(`null`), &v); err != nil {
		t.Fatalf("Unmarshal(null) error = %v", err)
	}
	if !v.IsZero() {
		t.Error("Value not reset by unmarshal of null")
	}
}

func TestSnapshotUnmarshal(t *testing.T) {
	t.Parallel()

	raw := `{
		"status": "running",
		"result": {"content": "partial", "current_step": "linting"},
		"web_url": "https://example.com/t/9",
		"messages": [{"role": "assistant", "content": "working on it"}]
	}`

	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if snap.Status != "running" {
		t.Errorf("Status = %q, want %q", snap.Status, "running")
	}
	if !snap.HasResultData() {
		t.Error("HasResultData() = false, want true")
	}
	if got := ExtractStep(snap); got != "linting" {
		t.Errorf("ExtractStep() = %q, want %q", got, "linting")
	}
	if len(snap.Messages) != 1 || snap.Messages[0].Role != "assistant" {
		t.Errorf("Messages = %v, want one assistant entry", snap.Messages)
	}
}

func TestEventTerminal(t *testing.T) {
	t.Parallel()

	terminal := map[EventKind]bool{
		EventStatus:    false,
		EventStep:      false,
		EventError:     false,
		EventHeartbeat: false,
		EventCompleted: true,
		EventFailed:    true,
		EventTimeout:   true,
	}
	for kind, want := range terminal {
		if got := (Event{Kind: kind}).Terminal(); got != want {
			t.Errorf("Event{Kind: %q}.Terminal() = %v, want %v", kind, got, want)
		}
	}
}
