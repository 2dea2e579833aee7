// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package client provides a Go client library for the NoClap control API.
//
// The NoClap panel supervises the audio backend and owns the routing
// session. This client gives typed access to its local HTTP API: routing
// state and intent, the device list, the backend process and the event log.
//
// # Getting Started
//
// Create a client pointing to the panel:
//
//	c := client.New("http://127.0.0.1:8740")
//
// The client provides access to different API resources through sub-clients:
//
//	// Pick devices and a delay
//	state, err := c.Routing.Select(ctx, client.Selection{
//	    Input:   client.String("MacBook Pro Microphone"),
//	    Output:  client.String("BlackHole 2ch"),
//	    DelayMs: client.Float(140),
//	})
//
//	// Turn routing on
//	state, err = c.Routing.Enable(ctx)
//
//	// Restart the backend process
//	backend, err := c.Backend.Restart(ctx)
//
// # API Versioning
//
// The client sends the Noclap-Version header on every request. By default it
// uses the latest version; pin one with [WithVersion].
//
// # Error Handling
//
// API errors are returned as *APIError values, which include an error code
// and message. Routing operations that fail still return the resulting state:
//
//	state, err := c.Routing.Enable(ctx)
//	var apiErr *client.APIError
//	if errors.As(err, &apiErr) && apiErr.Code == client.CodePrecondition {
//	    fmt.Println("pick an input and output first; state is", state.State)
//	}
//
// # Live Updates
//
// [EventClient.Watch] streams state snapshots and events over a WebSocket
// until the context is cancelled.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is where the panel's control API listens by default.
const DefaultBaseURL = "http://127.0.0.1:8740"

// Client is a NoClap control API client.
//
// The Client is safe for concurrent use by multiple goroutines.
type Client struct {
	baseURL    string
	version    string
	httpClient *http.Client

	// Routing reads the session state and changes routing intent.
	Routing *RoutingClient

	// Devices lists and refreshes the backend's audio devices.
	Devices *DeviceClient

	// Backend inspects and restarts the backend process.
	Backend *BackendClient

	// Events reads the event log and streams live updates.
	Events *EventClient
}

// Option configures a [Client]. Options are passed to [New] to customize
// client behavior.
type Option func(*Client)

// New creates a new control API client with the given base URL and options.
//
// An empty baseURL means [DefaultBaseURL]. Any trailing slash is removed.
//
// By default, the client uses:
//   - The latest API version ([LatestVersion])
//   - A 30-second HTTP timeout, long enough for a start request that waits
//     on the backend
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		version: LatestVersion,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	c.Routing = &RoutingClient{c: c}
	c.Devices = &DeviceClient{c: c}
	c.Backend = &BackendClient{c: c}
	c.Events = &EventClient{c: c}

	return c
}

// WithVersion sets the API version to use for all requests.
func WithVersion(v string) Option {
	return func(c *Client) {
		c.version = v
	}
}

// WithHTTPClient sets a custom HTTP client for making requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the HTTP client timeout for all requests.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

// Version returns the API version being used.
func (c *Client) Version() string {
	return c.version
}

// BaseURL returns the base URL of the API.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ServerVersion returns the panel's build and API version.
func (c *Client) ServerVersion(ctx context.Context) (*VersionInfo, error) {
	data, err := c.get(ctx, "/api/v1/version")
	if err != nil {
		return nil, err
	}

	var info VersionInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse version: %w", err)
	}
	return &info, nil
}

// apiResponse is the standard API response envelope.
type apiResponse struct {
	Data  json.RawMessage `json:"data"`
	Error *APIError       `json:"error"`
}

// Error codes returned by the control API.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeBadRequest         = "BAD_REQUEST"
	CodeInternal           = "INTERNAL_ERROR"
	CodeConflict           = "CONFLICT"
	CodePrecondition       = "PRECONDITION_FAILED"
	CodeUnavailable        = "UNAVAILABLE"
	CodeBackendRejected    = "BACKEND_REJECTED"
	CodeBackendUnreachable = "BACKEND_UNREACHABLE"
	CodeBackendMalformed   = "BACKEND_DECODE_FAILED"
	CodeBackendExited      = "BACKEND_EXITED"
	CodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	CodeBackendError       = "BACKEND_ERROR"
	CodeUnsupportedVersion = "UNSUPPORTED_VERSION"
)

// APIError represents an error response from the control API.
type APIError struct {
	// Code is a machine-readable error code (see the Code constants).
	Code string `json:"code"`

	// Message is a human-readable description of the error.
	Message string `json:"message"`

	// Details contains additional error information, if available.
	Details map[string]interface{} `json:"details,omitempty"`

	// StatusCode is the HTTP status of the response.
	StatusCode int `json:"-"`

	// data is the state the server attached to the error, if any.
	data json.RawMessage
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// get performs a GET request to the given path.
func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// post performs a POST request to the given path with no body.
func (c *Client) post(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, nil)
}

// putJSON performs a PUT request with a JSON body.
func (c *Client) putJSON(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPut, path, bytes.NewReader(data))
}

// do performs an HTTP request and parses the response.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (json.RawMessage, error) {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set(VersionHeader, c.version)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp)
}

// parseResponse reads and parses an API response.
func (c *Client) parseResponse(resp *http.Response) (json.RawMessage, error) {
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if apiResp.Error != nil {
		apiResp.Error.StatusCode = resp.StatusCode
		apiResp.Error.data = apiResp.Data
		return nil, apiResp.Error
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			Message:    fmt.Sprintf("request failed with status %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}

	return apiResp.Data, nil
}

// wsURL converts an API path into a WebSocket URL.
func (c *Client) wsURL(path string) string {
	switch {
	case strings.HasPrefix(c.baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.baseURL, "https://") + path
	case strings.HasPrefix(c.baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(c.baseURL, "http://") + path
	default:
		return c.baseURL + path
	}
}

// String returns a pointer to s, for optional request fields.
func String(s string) *string { return &s }

// Float returns a pointer to f, for optional request fields.
func Float(f float64) *float64 { return &f }
