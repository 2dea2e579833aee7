// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
)

// BackendClient inspects the supervised backend process.
//
// Access this client through [Client.Backend]:
//
//	b, err := client.Backend.Get(ctx)
//	fmt.Println(b.Status.State, b.Status.PID)
type BackendClient struct {
	c *Client
}

// Get returns the process status, and its resource usage while running.
func (b *BackendClient) Get(ctx context.Context) (*Backend, error) {
	data, err := b.c.get(ctx, "/api/v1/backend")
	if err != nil {
		return nil, err
	}
	return parseBackend(data)
}

// Restart stops the backend and launches it again, waiting until it answers.
// The routing session ends; turn it back on with [RoutingClient.Enable].
func (b *BackendClient) Restart(ctx context.Context) (*Backend, error) {
	data, err := b.c.post(ctx, "/api/v1/backend/restart")
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && len(apiErr.data) > 0 {
			if view, perr := parseBackend(apiErr.data); perr == nil {
				return view, err
			}
		}
		return nil, err
	}
	return parseBackend(data)
}

// Logs returns the last n lines of backend output. Zero means the server
// default.
func (b *BackendClient) Logs(ctx context.Context, n int) ([]LogLine, error) {
	path := "/api/v1/backend/logs"
	if n > 0 {
		path += "?lines=" + strconv.Itoa(n)
	}

	data, err := b.c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var result struct {
		Lines []LogLine `json:"lines"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse logs: %w", err)
	}
	return result.Lines, nil
}

// StreamLogs calls fn with recent output and then every new line until ctx
// is cancelled, the connection drops, or fn returns an error.
//
// A cancelled context is not reported as an error.
func (b *BackendClient) StreamLogs(ctx context.Context, fn func(LogLine) error) error {
	return b.c.stream(ctx, "/api/v1/backend/logs/ws", func(raw []byte) error {
		var line LogLine
		if err := json.Unmarshal(raw, &line); err != nil {
			return fmt.Errorf("failed to parse log line: %w", err)
		}
		return fn(line)
	})
}

func parseBackend(data json.RawMessage) (*Backend, error) {
	var view Backend
	if err := json.Unmarshal(data, &view); err != nil {
		return nil, fmt.Errorf("failed to parse backend: %w", err)
	}
	return &view, nil
}

// stream dials a WebSocket endpoint and hands each text frame to fn.
func (c *Client) stream(ctx context.Context, path string, fn func([]byte) error) error {
	header := http.Header{}
	header.Set(VersionHeader, c.version)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL(path), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if _, perr := c.parseResponse(resp); perr != nil {
				return perr
			}
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("websocket read failed: %w", err)
		}
		if err := fn(raw); err != nil {
			return err
		}
	}
}
