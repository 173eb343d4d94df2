// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

// Package cpr translates opaque, poll-only remote agent tasks into ordered,
// client-consumable lifecycle event streams.
//
// The root package holds the pieces that are independent of any transport or
// scheduling concern: the loosely-typed remote task snapshot, the phase
// classifier that decides when a task is actually done, the total result
// extractor that guarantees every finished task produces a human-readable
// string, and the wire-level Event record. The polling sessions, registry,
// and HTTP/SSE/WebSocket gateway live under the server packages; the remote
// agent service client lives under client.
package cpr

import (
	"context"
)

// TaskHandle is the opaque capability exposed by the remote agent service
// for one in-flight task. Refresh pulls the latest remote state into the
// handle; Snapshot returns the state observed by the most recent Refresh.
//
// Implementations must allow Snapshot to be called concurrently with
// Refresh, and must never guarantee anything about snapshot field presence
// or shape across refreshes.
type TaskHandle interface {
	Refresh(ctx context.Context) error
	Snapshot() Snapshot
}
