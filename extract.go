// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

package cpr

import (
	"fmt"
	"strings"
)

// DefaultCompletionMessage is the final fallback for a completed task whose
// snapshot carries no extractable result.
const DefaultCompletionMessage = "Task completed successfully."

// DefaultFailureMessage is the final fallback for a failed task whose
// snapshot carries no extractable error.
const DefaultFailureMessage = "Task failed with unknown error"

// Probe-key tables are ordered; first present non-empty value wins. New
// fallback sources belong here, not in control flow.
var (
	// resultProbeKeys are the keys probed inside structured result-bearing
	// fields.
	resultProbeKeys = []string{"content", "response", "message", "text", "answer"}

	// stepProbeKeys are the keys probed for a "current step" marker.
	stepProbeKeys = []string{"current_step", "step", "stage", "current_action"}
)

// ExtractResult produces a best-effort human-readable result string for a
// completed task. It is total: every completed task yields a non-empty
// string even when the remote representation is malformed or partially
// populated. The fallback chain is, in order: the result field (string form,
// then structured-map probe), the summary field, the output field, the last
// assistant-authored message, a synthesized web_url pointer, and finally
// [DefaultCompletionMessage].
func ExtractResult(s Snapshot) string {
	if text := probeValue(s.Result); text != "" {
		return text
	}
	if text := probeValue(s.Summary); text != "" {
		return text
	}
	if text := strings.TrimSpace(s.Output); text != "" {
		return text
	}
	if text := lastAssistantMessage(s.Messages); text != "" {
		return text
	}
	if s.WebURL != "" {
		return fmt.Sprintf("Task completed successfully. View details at: %s", s.WebURL)
	}
	return DefaultCompletionMessage
}

// ExtractFailure produces a human-readable failure message for a failed
// task, reusing the string-then-map probe over the error and failure_reason
// fields. Like ExtractResult it is total.
func ExtractFailure(s Snapshot) string {
	if text := strings.TrimSpace(s.Error); text != "" {
		return text
	}
	if text := strings.TrimSpace(s.FailureReason); text != "" {
		return text
	}
	if text := probeValue(s.Result); text != "" {
		return text
	}
	if text := probeValue(s.Summary); text != "" {
		return text
	}
	return DefaultFailureMessage
}

// ExtractStep returns the snapshot's "current step" marker, or "" when no
// distinguishable step is present. Steps are probed from the structured
// forms of result and summary.
func ExtractStep(s Snapshot) string {
	if m, ok := s.Result.AsMap(); ok {
		if step := probeKeys(m, stepProbeKeys); step != "" {
			return step
		}
	}
	if m, ok := s.Summary.AsMap(); ok {
		if step := probeKeys(m, stepProbeKeys); step != "" {
			return step
		}
	}
	return ""
}

// probeValue extracts text from a string-or-map field: the plain string
// form wins, otherwise the structured form is probed key by key.
func probeValue(v Value) string {
	if text, ok := v.AsString(); ok {
		return strings.TrimSpace(text)
	}
	if m, ok := v.AsMap(); ok {
		return probeKeys(m, resultProbeKeys)
	}
	return ""
}

// probeKeys returns the first present non-empty string value in probe-key
// order. Non-string values fall through to the next key.
func probeKeys(m map[string]any, keys []string) string {
	for _, key := range keys {
		if raw, ok := m[key]; ok {
			if text, ok := raw.(string); ok {
				if text = strings.TrimSpace(text); text != "" {
					return text
				}
			}
		}
	}
	return ""
}

// lastAssistantMessage scans the message history in reverse for the most
// recent assistant-authored entry.
func lastAssistantMessage(messages []SnapshotMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if strings.EqualFold(messages[i].Role, "assistant") {
			if text := strings.TrimSpace(messages[i].Content); text != "" {
				return text
			}
		}
	}
	return ""
}
