// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"net/http"

	"github.com/wingedpig/noclap/internal/devices"
)

// Devices is the device registry as used by the API.
type Devices interface {
	Snapshot() devices.Snapshot
	Refresh(ctx context.Context) (devices.Snapshot, error)
}

// DeviceHandler handles device listing requests.
type DeviceHandler struct {
	registry Devices
}

// NewDeviceHandler creates a new device handler.
func NewDeviceHandler(registry Devices) *DeviceHandler {
	return &DeviceHandler{registry: registry}
}

// List returns the latest device snapshot without contacting the backend.
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.registry.Snapshot())
}

// Refresh re-reads the device list from the backend. On failure the
// previous snapshot is returned alongside the error.
func (h *DeviceHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	snap, err := h.registry.Refresh(r.Context())
	if err != nil {
		status, code := sessionErrorStatus(err)
		WriteErrorWithData(w, status, code, err.Error(), snap)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}
