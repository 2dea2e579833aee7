// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// EventClient provides access to the NoClap event log.
//
// Events track panel activity such as routing starts and stops, backend
// restarts and crashes, device refreshes and script changes.
//
// Access this client through [Client.Events]:
//
//	events, err := client.Events.List(ctx, &client.ListOptions{Limit: 50})
type EventClient struct {
	c *Client
}

// ListOptions configures event listing.
type ListOptions struct {
	// Limit is the maximum number of events to return.
	Limit int

	// Types filters to only these event types (e.g., "routing.started").
	Types []string

	// Source filters to events from this component (e.g., "session").
	Source string

	// Since filters to events after this time.
	Since time.Time

	// Until filters to events before this time.
	Until time.Time
}

// List returns recent events from the event log.
func (e *EventClient) List(ctx context.Context, opts *ListOptions) ([]Event, error) {
	path := "/api/v1/events"

	if opts != nil {
		params := url.Values{}
		if opts.Limit > 0 {
			params.Set("limit", strconv.Itoa(opts.Limit))
		}
		for _, t := range opts.Types {
			params.Add("type", t)
		}
		if opts.Source != "" {
			params.Set("source", opts.Source)
		}
		if !opts.Since.IsZero() {
			params.Set("since", opts.Since.Format(time.RFC3339))
		}
		if !opts.Until.IsZero() {
			params.Set("until", opts.Until.Format(time.RFC3339))
		}
		if len(params) > 0 {
			path += "?" + params.Encode()
		}
	}

	data, err := e.c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("failed to parse events: %w", err)
	}
	return events, nil
}

// Watch streams state snapshots and events matching pattern until ctx is
// cancelled or fn returns an error. The first message is always the current
// state.
//
// Patterns match event types: "*" for all, "routing.*" for a prefix, or an
// exact type. An empty pattern means "*"; "none" streams snapshots only.
func (e *EventClient) Watch(ctx context.Context, pattern string, fn func(StreamMessage) error) error {
	path := "/api/v1/state/ws"
	if pattern != "" {
		path += "?events=" + url.QueryEscape(pattern)
	}

	return e.c.stream(ctx, path, func(raw []byte) error {
		var msg StreamMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return fmt.Errorf("failed to parse stream message: %w", err)
		}
		return fn(msg)
	})
}
