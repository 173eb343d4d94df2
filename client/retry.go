// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryConfig controls retry behavior for remote service calls.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns the retry policy used when none is configured:
// three attempts with exponential backoff from 500ms.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// retryable reports whether an error is worth retrying: transport failures
// and retryable status codes are, client errors are not.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.retryable
	}
	return true
}

// withRetry executes fn with exponential backoff and jitter.
func withRetry(ctx context.Context, config *RetryConfig, operation string, fn func(context.Context) error) error {
	if config == nil || config.MaxAttempts <= 1 {
		return fn(ctx)
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) {
			return err
		}
		if attempt == config.MaxAttempts-1 {
			break
		}

		// 10% jitter keeps concurrent sessions from retrying in lockstep.
		jitter := time.Duration(rand.Float64() * float64(delay) * 0.1)
		select {
		case <-time.After(delay + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay = time.Duration(float64(delay) * config.Multiplier)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, config.MaxAttempts, lastErr)
}
