// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"encoding/json"
	"time"
)

// State is the routing session as the panel sees it.
//
// Intent is what the user asked for; Active is what the backend confirmed.
// While a start or stop is in flight, Pending is true and the two may differ.
type State struct {
	// State is one of the RoutingState* constants.
	State string `json:"state"`

	// Running is true when the backend confirmed an active session.
	Running bool `json:"running"`

	// Intent is the latest selection and on/off request.
	Intent Intent `json:"intent"`

	// Active describes the confirmed session, nil when not running.
	Active *Active `json:"active,omitempty"`

	// Pending is true while a start or stop request is in flight.
	Pending bool `json:"pending"`

	// LastError describes the most recent failure, if any.
	LastError string `json:"last_error,omitempty"`

	// ErrorKind classifies LastError, e.g. "rejected", "unreachable",
	// "no_selection", "unresolved_device", "backend_exited".
	ErrorKind string `json:"error_kind,omitempty"`

	// Generation increases with every published change.
	Generation uint64 `json:"generation"`

	// UpdatedAt is when this state was published.
	UpdatedAt time.Time `json:"updated_at"`
}

// RoutingState constants define the possible session states.
const (
	RoutingStateIdle     = "idle"
	RoutingStateStarting = "starting"
	RoutingStateRunning  = "running"
	RoutingStateStopping = "stopping"
)

// Intent is the user's requested routing configuration.
type Intent struct {
	Input   string  `json:"input"`
	Output  string  `json:"output"`
	DelayMs float64 `json:"delay_ms"`
	Enabled bool    `json:"enabled"`
}

// Active is a routing session the backend confirmed.
type Active struct {
	SessionID string    `json:"session_id"`
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	InputID   int       `json:"input_id"`
	OutputID  int       `json:"output_id"`
	DelayMs   float64   `json:"delay_ms"`
	StartedAt time.Time `json:"started_at"`
}

// Selection changes part of the routing intent. Nil fields are left
// unchanged; an empty string clears a device.
type Selection struct {
	Input   *string  `json:"input,omitempty"`
	Output  *string  `json:"output,omitempty"`
	DelayMs *float64 `json:"delay_ms,omitempty"`
}

// Device is one audio device reported by the backend.
type Device struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Kind     string `json:"type"` // "input" or "output"
	Channels int    `json:"channels"`
}

// Devices is the panel's latest device list, split by kind.
type Devices struct {
	Inputs    []Device  `json:"inputs"`
	Outputs   []Device  `json:"outputs"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Backend describes the supervised backend process.
type Backend struct {
	Status BackendStatus `json:"status"`

	// Alive is true while the process is present in the process table.
	Alive bool `json:"alive"`

	// Stats is present while the process is running.
	Stats *ProcessStats `json:"stats,omitempty"`

	// BaseURL is where the backend's own HTTP API listens.
	BaseURL string `json:"base_url"`
}

// BackendState constants define the possible process states.
const (
	BackendStateStopped  = "stopped"
	BackendStateRunning  = "running"
	BackendStateStopping = "stopping"
	BackendStateExited   = "exited"
	BackendStateCrashed  = "crashed"

	// BackendStateUnavailable means the backend could not be located or
	// spawned; BackendStatus.Error says why.
	BackendStateUnavailable = "unavailable"
)

// BackendStatus is the supervisor's view of the backend process.
type BackendStatus struct {
	// State is one of the BackendState* constants.
	State     string    `json:"state"`
	PID       int       `json:"pid,omitempty"`
	ExitCode  int       `json:"exit_code"`
	StartedAt time.Time `json:"started_at,omitempty"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`

	// Restarts counts explicit restarts since the panel started.
	Restarts int    `json:"restarts"`
	Runtime  string `json:"runtime,omitempty"`
	Script   string `json:"script,omitempty"`

	// Crash is the analysis of the last unexpected exit.
	Crash *Crash `json:"crash,omitempty"`

	// Error explains an unavailable backend.
	Error string `json:"error,omitempty"`
}

// Crash summarizes why the backend died.
type Crash struct {
	// Reason is e.g. "exception", "missing_module", "port_in_use", "signal".
	Reason     string   `json:"reason"`
	Details    string   `json:"details,omitempty"`
	Location   string   `json:"location,omitempty"`
	StackTrace []string `json:"stack_trace,omitempty"`
	ExitCode   int      `json:"exit_code"`
}

// ProcessStats is resource usage of the backend process.
type ProcessStats struct {
	PID        int     `json:"pid"`
	Executable string  `json:"executable"`
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
	NumThreads int32   `json:"num_threads"`
}

// LogLine is one line of backend output.
type LogLine struct {
	Line     string    `json:"line"`
	Sequence int64     `json:"seq"`
	Time     time.Time `json:"time"`
}

// Event is an entry in the panel's event log.
type Event struct {
	ID        string                 `json:"id"`
	Version   string                 `json:"version"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Payload   map[string]interface{} `json:"payload"`
}

// StreamMessage is one message from [EventClient.Watch]. Exactly one of
// State and Event is set.
type StreamMessage struct {
	Type  string `json:"type"` // "snapshot" or "event"
	State *State `json:"snapshot,omitempty"`
	Event *Event `json:"event,omitempty"`
}

// VersionInfo describes the running panel.
type VersionInfo struct {
	Version    string `json:"version"`
	APIVersion string `json:"api_version"`
}

func decodeState(data json.RawMessage) *State {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	return &s
}
