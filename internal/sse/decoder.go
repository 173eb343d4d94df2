// Copyright 2026 The CPR Authors
// SPDX-License-Identifier: Apache-2.0

// Package sse implements a minimal decoder for the text/event-stream wire
// format, used by the Go client and the gateway tests.
package sse

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/go-json-experiment/json"
)

// Event represents a single decoded Server-Sent Event.
type Event struct {
	Type string
	Data string
	ID   string
}

// Decoder decodes Server-Sent Events from an io.Reader.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder creates a new SSE decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{scanner: bufio.NewScanner(r)}
}

// Decode returns the next event from the stream, or io.EOF when the stream
// ends. Comment lines are skipped.
func (d *Decoder) Decode() (*Event, error) {
	event := &Event{}

	for d.scanner.Scan() {
		line := d.scanner.Text()

		// Blank line terminates an event.
		if line == "" {
			if event.Data != "" || event.Type != "" {
				return event, nil
			}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			event.Type = value
		case "data":
			if event.Data != "" {
				event.Data += "\n"
			}
			event.Data += value
		case "id":
			event.ID = value
		}
	}

	if err := d.scanner.Err(); err != nil {
		return nil, fmt.Errorf("sse: scanner error: %w", err)
	}
	if event.Data != "" || event.Type != "" {
		return event, nil
	}
	return nil, io.EOF
}

// DecodeJSON decodes the next event and unmarshals its data into v.
// The "[DONE]" sentinel is reported as io.EOF.
func (d *Decoder) DecodeJSON(v any) error {
	event, err := d.Decode()
	if err != nil {
		return err
	}
	if event.Data == "[DONE]" {
		return io.EOF
	}
	if event.Data == "" {
		return fmt.Errorf("sse: event has no data")
	}
	if err := json.Unmarshal([]byte(event.Data), v); err != nil {
		return fmt.Errorf("sse: unmarshal event data: %w", err)
	}
	return nil
}
