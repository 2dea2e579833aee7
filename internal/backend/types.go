// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package backend

// Device kinds reported by the backend.
const (
	KindInput  = "input"
	KindOutput = "output"
)

// Device is one audio device as listed by GET /devices.
type Device struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Kind     string `json:"type"`
	Channels int    `json:"channels"`
}

// Status is the backend's view of the routing session (GET /status).
// The device and delay fields are absent when no session has been started.
type Status struct {
	IsRunning    bool     `json:"is_running"`
	InputDevice  *int     `json:"input_device,omitempty"`
	OutputDevice *int     `json:"output_device,omitempty"`
	DelayMs      *float64 `json:"delay_ms,omitempty"`
}

// StartRequest is the body of POST /start.
type StartRequest struct {
	InputDeviceID  int     `json:"input_device_id"`
	OutputDeviceID int     `json:"output_device_id"`
	DelayMs        float64 `json:"delay_ms"`
}

// wireStatus distinguishes a missing is_running from false.
type wireStatus struct {
	IsRunning    *bool    `json:"is_running"`
	InputDevice  *int     `json:"input_device"`
	OutputDevice *int     `json:"output_device"`
	DelayMs      *float64 `json:"delay_ms"`
}
