// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAlreadyRunning is returned by Launch while a child is alive.
	ErrAlreadyRunning = errors.New("backend already running")
	// ErrNotLaunched is returned by Restart before any successful Launch.
	ErrNotLaunched = errors.New("backend has not been launched")
	// ErrNotRunning is returned by operations that need a live child.
	ErrNotRunning = errors.New("backend not running")
)

// LaunchError is returned when the child process could not be spawned.
type LaunchError struct {
	Runtime string
	Script  string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s %s: %v", e.Runtime, e.Script, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// State represents the lifecycle state of the backend child.
type State int

const (
	StateStopped State = iota // never launched, or terminated on request
	StateRunning
	StateStopping
	StateExited  // exited with status 0 without being asked to
	StateCrashed     // exited non-zero or was killed without being asked to
	StateUnavailable // could not be located or spawned
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateExited:
		return "exited"
	case StateCrashed:
		return "crashed"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler to output the string representation.
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Status is a point-in-time view of the supervised child.
type Status struct {
	State     State        `json:"state"`
	PID       int          `json:"pid,omitempty"`
	ExitCode  int          `json:"exit_code"`
	StartedAt time.Time    `json:"started_at,omitempty"`
	StoppedAt time.Time    `json:"stopped_at,omitempty"`
	Restarts  int          `json:"restarts"`
	Runtime   string       `json:"runtime,omitempty"`
	Script    string       `json:"script,omitempty"`
	Crash     *CrashResult `json:"crash,omitempty"`
	Error     string       `json:"error,omitempty"` // why the backend is unavailable
}

// ExitInfo is passed to exit callbacks.
type ExitInfo struct {
	PID       int
	ExitCode  int
	Requested bool // Terminate or Restart asked for the exit
	Crash     *CrashResult
}

// Stats holds resource usage of the running child.
type Stats struct {
	PID        int     `json:"pid"`
	Executable string  `json:"executable"`
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
	NumThreads int32   `json:"num_threads"`
}

// CrashReason categorizes why the backend died.
type CrashReason int

const (
	CrashReasonNone CrashReason = iota
	CrashReasonException
	CrashReasonMissingModule
	CrashReasonPortInUse
	CrashReasonOOM
	CrashReasonSignal
	CrashReasonError
	CrashReasonUnknown
)

func (r CrashReason) String() string {
	switch r {
	case CrashReasonNone:
		return "none"
	case CrashReasonException:
		return "exception"
	case CrashReasonMissingModule:
		return "missing_module"
	case CrashReasonPortInUse:
		return "port_in_use"
	case CrashReasonOOM:
		return "oom"
	case CrashReasonSignal:
		return "signal"
	case CrashReasonError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler to output the string representation.
func (r CrashReason) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}

// CrashResult contains the analysis of a backend crash.
type CrashResult struct {
	Reason     CrashReason `json:"reason"`
	Details    string      `json:"details,omitempty"`
	Location   string      `json:"location,omitempty"`
	StackTrace []string    `json:"stack_trace,omitempty"`
	ExitCode   int         `json:"exit_code"`
}

// Summary returns a human-readable summary of the crash.
func (r *CrashResult) Summary() string {
	summary := r.Reason.String()
	if r.Details != "" {
		summary += ": " + r.Details
	}
	if r.Location != "" {
		summary += " at " + r.Location
	}
	return summary
}
