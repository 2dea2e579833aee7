// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wingedpig/noclap/internal/backend"
)

var (
	// ErrNoSelection refuses Enable while an input or output is unselected.
	ErrNoSelection = errors.New("input and output must both be selected")
	// ErrUnresolvedDevice refuses Enable when a selected name is not in the
	// latest device list.
	ErrUnresolvedDevice = errors.New("selected device is not available")
	// ErrInvalidDelay rejects a delay outside [0, 300] ms.
	ErrInvalidDelay = errors.New("delay out of range")
	// ErrClosed is returned once the controller loop has stopped.
	ErrClosed = errors.New("session controller closed")
	// ErrBackendExited records that the backend process went away.
	ErrBackendExited = errors.New("backend process exited")
	// ErrBackendStopped records that the backend reported routing stopped on
	// its own.
	ErrBackendStopped = errors.New("backend stopped routing")
	// ErrBackendUnavailable refuses Enable while no backend could be
	// located or launched.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrSuperseded is returned by Enable when a later request disabled
	// routing before it came up.
	ErrSuperseded = errors.New("request superseded")
)

// State is the controller's view of the routing session.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler to output the string representation.
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for the string representation.
func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for _, st := range []State{StateIdle, StateStarting, StateRunning, StateStopping} {
		if st.String() == name {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", name)
}

// Intent is what the user asked for.
type Intent struct {
	Input   string  `json:"input"`
	Output  string  `json:"output"`
	DelayMs float64 `json:"delay_ms"`
	Enabled bool    `json:"enabled"`
}

// Active describes the session the backend confirmed.
type Active struct {
	SessionID string    `json:"session_id"`
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	InputID   int       `json:"input_id"`
	OutputID  int       `json:"output_id"`
	DelayMs   float64   `json:"delay_ms"`
	StartedAt time.Time `json:"started_at"`
}

// Snapshot is an immutable copy of controller state.
type Snapshot struct {
	State      State     `json:"state"`
	Running    bool      `json:"running"`
	Intent     Intent    `json:"intent"`
	Active     *Active   `json:"active,omitempty"`
	Pending    bool      `json:"pending"` // a start or stop is in flight
	LastError  string    `json:"last_error,omitempty"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Generation uint64    `json:"generation"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Selection changes part of the intent. Nil fields are left alone; an empty
// string clears a device.
type Selection struct {
	Input   *string  `json:"input,omitempty"`
	Output  *string  `json:"output,omitempty"`
	DelayMs *float64 `json:"delay_ms,omitempty"`
}

// Backend is the subset of the backend client the controller drives.
type Backend interface {
	Start(ctx context.Context, inputID, outputID int, delayMs float64) error
	Stop(ctx context.Context) error
	Status(ctx context.Context) (backend.Status, error)
}

// Resolver maps device names to backend ids and back.
type Resolver interface {
	ResolveInput(name string) (int, bool)
	ResolveOutput(name string) (int, bool)
	InputName(id int) (string, bool)
	OutputName(id int) (string, bool)
}

// ErrorKind classifies err for display.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, backend.ErrBackendRejected):
		return "rejected"
	case errors.Is(err, backend.ErrUnreachable):
		return "unreachable"
	case errors.Is(err, backend.ErrDecodeFailed):
		return "decode_failed"
	case errors.Is(err, ErrNoSelection):
		return "no_selection"
	case errors.Is(err, ErrUnresolvedDevice):
		return "unresolved_device"
	case errors.Is(err, ErrBackendExited):
		return "backend_exited"
	case errors.Is(err, ErrBackendStopped):
		return "backend_stopped"
	case errors.Is(err, ErrBackendUnavailable):
		return "backend_unavailable"
	default:
		return "error"
	}
}
