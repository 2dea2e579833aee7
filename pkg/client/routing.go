// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// RoutingClient reads the routing session and changes the routing intent.
//
// Every method returns the session state after the request. When the panel
// refuses a request or the backend fails, the error is an *APIError and the
// returned state (if the panel sent one) reflects where the session ended up:
//
//	state, err := client.Routing.Enable(ctx)
//	if err != nil && state != nil {
//	    fmt.Println(state.State, state.LastError)
//	}
//
// Access this client through [Client.Routing].
type RoutingClient struct {
	c *Client
}

// State returns the current session state.
func (r *RoutingClient) State(ctx context.Context) (*State, error) {
	data, err := r.c.get(ctx, "/api/v1/state")
	return parseState(data, err)
}

// Enable turns routing on using the current selection and waits until the
// backend confirms or refuses.
func (r *RoutingClient) Enable(ctx context.Context) (*State, error) {
	data, err := r.c.post(ctx, "/api/v1/routing/enable")
	return parseState(data, err)
}

// Disable turns routing off. Disabling while idle is not an error.
func (r *RoutingClient) Disable(ctx context.Context) (*State, error) {
	data, err := r.c.post(ctx, "/api/v1/routing/disable")
	return parseState(data, err)
}

// Toggle turns routing on if it is off and off if it is on.
func (r *RoutingClient) Toggle(ctx context.Context) (*State, error) {
	data, err := r.c.post(ctx, "/api/v1/routing/toggle")
	return parseState(data, err)
}

// Select changes the input, output or delay. While routing is on, a change
// restarts the session with the new settings.
func (r *RoutingClient) Select(ctx context.Context, sel Selection) (*State, error) {
	data, err := r.c.putJSON(ctx, "/api/v1/routing/selection", sel)
	return parseState(data, err)
}

func parseState(data json.RawMessage, err error) (*State, error) {
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return decodeState(apiErr.data), err
		}
		return nil, err
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse state: %w", err)
	}
	return &s, nil
}
