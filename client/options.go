// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"log/slog"
	"net/http"
)

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL overrides the remote agent service endpoint.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithHTTPClient sets the underlying *http.Client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithRetryConfig sets the retry policy. A nil config disables retries.
func WithRetryConfig(config *RetryConfig) Option {
	return func(c *Client) {
		c.retry = config
	}
}

// WithLogger sets the [*slog.Logger] for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}
