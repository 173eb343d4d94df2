// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

// Package task owns the lifecycle of in-flight agent task sessions.
//
// A Session is the unit of concurrency: one goroutine polls one remote task
// handle on a fixed cadence, classifies each snapshot into a lifecycle
// phase, and feeds the event emitter. Sessions share no mutable state with
// each other; the Registry is the only cross-session structure, and every
// session exit path removes its own entry from it.
package task
