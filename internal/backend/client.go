// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package backend is a typed client for the audio backend's local HTTP API.
//
// The backend speaks plain JSON with no envelope:
//
//	GET  /devices  -> [{"id", "name", "type", "channels"}]
//	POST /start    <- {"input_device_id", "output_device_id", "delay_ms"}
//	POST /stop
//	GET  /status   -> {"is_running", "input_device", "output_device", "delay_ms"}
//
// Every failure is a *ClientError whose kind is one of ErrUnreachable,
// ErrDecodeFailed or ErrBackendRejected.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wingedpig/noclap/internal/logging"
)

// DefaultBaseURL is where the backend listens unless configured otherwise.
const DefaultBaseURL = "http://127.0.0.1:8000"

const maxErrorBody = 4 << 10

// Client talks to the backend. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// New creates a backend client. A trailing slash on baseURL is ignored.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.log = logging.OrNop(l).Named(logging.ComponentBackend)
	}
}

// BaseURL returns the backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListDevices returns every device the backend reports, in backend order.
func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	const op = "GET /devices"

	body, err := c.do(ctx, op, http.MethodGet, "/devices", nil)
	if err != nil {
		return nil, err
	}

	var devices []Device
	if err := json.Unmarshal(body, &devices); err != nil {
		return nil, &ClientError{Kind: ErrDecodeFailed, Op: op, Err: err}
	}
	if devices == nil {
		return nil, &ClientError{Kind: ErrDecodeFailed, Op: op, Err: errors.New("expected a device list")}
	}
	return devices, nil
}

// Status returns the backend's routing status.
func (c *Client) Status(ctx context.Context) (Status, error) {
	const op = "GET /status"

	body, err := c.do(ctx, op, http.MethodGet, "/status", nil)
	if err != nil {
		return Status{}, err
	}

	var ws wireStatus
	if err := json.Unmarshal(body, &ws); err != nil {
		return Status{}, &ClientError{Kind: ErrDecodeFailed, Op: op, Err: err}
	}
	if ws.IsRunning == nil {
		return Status{}, &ClientError{Kind: ErrDecodeFailed, Op: op, Err: errors.New("missing is_running")}
	}

	return Status{
		IsRunning:    *ws.IsRunning,
		InputDevice:  ws.InputDevice,
		OutputDevice: ws.OutputDevice,
		DelayMs:      ws.DelayMs,
	}, nil
}

// Start asks the backend to begin routing. Only HTTP 200 counts as success;
// any other status is ErrBackendRejected.
func (c *Client) Start(ctx context.Context, inputID, outputID int, delayMs float64) error {
	const op = "POST /start"

	data, err := json.Marshal(StartRequest{
		InputDeviceID:  inputID,
		OutputDeviceID: outputID,
		DelayMs:        delayMs,
	})
	if err != nil {
		return fmt.Errorf("marshal start request: %w", err)
	}

	_, err = c.do(ctx, op, http.MethodPost, "/start", data)
	return err
}

// Stop asks the backend to stop routing. Callers treat it as best-effort;
// the error is for diagnostics.
func (c *Client) Stop(ctx context.Context) error {
	_, err := c.do(ctx, "POST /stop", http.MethodPost, "/stop", nil)
	return err
}

// WaitReady polls Status until the backend answers or timeout elapses. The
// delay between attempts starts at initial and doubles up to maxBackoff. It returns
// the first status obtained, or the last attempt error.
func (c *Client) WaitReady(ctx context.Context, initial, maxBackoff, timeout time.Duration) (Status, error) {
	if initial <= 0 {
		initial = 250 * time.Millisecond
	}
	if maxBackoff < initial {
		maxBackoff = initial
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	backoff := initial
	attempt := 0
	for {
		attempt++
		status, err := c.Status(ctx)
		if err == nil {
			c.log.Debug("backend ready", zap.Int("attempts", attempt))
			return status, nil
		}
		c.log.Debug("backend not ready", zap.Int("attempt", attempt), zap.Error(err))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Status{}, fmt.Errorf("wait ready after %d attempts: %w", attempt, err)
		case <-timer.C:
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// do performs a request and returns the body of a 200 response.
func (c *Client) do(ctx context.Context, op, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &ClientError{Kind: ErrUnreachable, Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ClientError{Kind: ErrUnreachable, Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.log.Debug("backend request",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &ClientError{
			Kind:   ErrBackendRejected,
			Op:     op,
			Status: resp.StatusCode,
			Detail: errorDetail(raw),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ClientError{Kind: ErrUnreachable, Op: op, Status: resp.StatusCode, Err: err}
	}
	return raw, nil
}

// errorDetail extracts {"detail": "..."} from an error body, falling back
// to the trimmed body text.
func errorDetail(raw []byte) string {
	var payload struct {
		Detail interface{} `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Detail != nil {
		if s, ok := payload.Detail.(string); ok {
			return s
		}
		if b, err := json.Marshal(payload.Detail); err == nil {
			return string(b)
		}
	}
	return strings.TrimSpace(string(raw))
}
