// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

// Package event carries a task session's lifecycle events from the polling
// loop to a stream consumer.
//
// Each session owns one bounded Queue, so a slow consumer applies
// backpressure to its own session only and can never stall another
// session's polling. The Emitter serializes phase transitions, step changes
// and poll errors into the wire Event sequence, keeps the transport alive
// with heartbeats on an independent timer, and enforces the
// single-terminal-event contract: emitting a second terminal event for the
// same session is a programming error, not a recoverable condition.
package event
