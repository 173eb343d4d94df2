// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

package cpr

import (
	"slices"
	"strings"
)

// Status vocabularies differ across remote task implementations, so each
// rule is an ordered, data-driven table rather than a switch on exact values.
var (
	// CompletedStatuses are status strings that explicitly signal completion.
	CompletedStatuses = []string{"completed", "complete", "finished", "done", "success", "successful"}

	// FailedStatuses are status strings that explicitly signal failure.
	FailedStatuses = []string{"failed", "error", "cancelled"}

	// PendingStatuses are status strings that signal the task has not started.
	PendingStatuses = []string{"pending", "queued"}

	// InFlightStatuses are status strings under which the presence of result
	// data must NOT be read as completion. This set guards the
	// defensive-completion rule; treat it as tunable configuration, not fact.
	InFlightStatuses = []string{"pending", "running", "in_progress", "active", "processing", "executing"}
)

// Classifier maps raw status strings onto lifecycle phases. The zero value
// uses the package-level status vocabularies.
type Classifier struct {
	// InFlight overrides InFlightStatuses when non-nil, narrowing or widening
	// the defensive-completion guard.
	InFlight []string
}

// Classify maps a snapshot onto a Phase. Rules are ordered and the first
// match wins:
//
//  1. an explicit completed status wins over everything else,
//  2. then explicit failure,
//  3. then explicit pending,
//  4. then defensive completion: result data present while the status is not
//     a known in-flight value. Some task implementations populate output
//     before updating status; this rule is a deliberate best-effort guess
//     and a known source of false positives,
//  5. otherwise the task is running, or unknown if the status is empty.
//
// Status matching is case-insensitive and ignores surrounding whitespace.
func (c *Classifier) Classify(s Snapshot) Phase {
	status := strings.ToLower(strings.TrimSpace(s.Status))

	switch {
	case slices.Contains(CompletedStatuses, status):
		return PhaseCompleted
	case slices.Contains(FailedStatuses, status):
		return PhaseFailed
	case slices.Contains(PendingStatuses, status):
		return PhasePending
	case s.HasResultData() && !slices.Contains(c.inFlight(), status):
		return PhaseCompleted
	case status != "":
		return PhaseRunning
	default:
		return PhaseUnknown
	}
}

func (c *Classifier) inFlight() []string {
	if c.InFlight != nil {
		return c.InFlight
	}
	return InFlightStatuses
}

var defaultClassifier Classifier

// Classify maps a snapshot onto a Phase using the default status
// vocabularies. See [Classifier.Classify].
func Classify(s Snapshot) Phase {
	return defaultClassifier.Classify(s)
}
