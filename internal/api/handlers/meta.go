// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"net/http"

	"github.com/wingedpig/noclap/internal/api/version"
)

// VersionInfo describes the running panel.
type VersionInfo struct {
	Version    string `json:"version"`
	APIVersion string `json:"api_version"`
}

// VersionHandler reports build and API versions.
type VersionHandler struct {
	version string
}

// NewVersionHandler creates a new version handler.
func NewVersionHandler(v string) *VersionHandler {
	return &VersionHandler{version: v}
}

// Get returns the version info.
func (h *VersionHandler) Get(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, VersionInfo{
		Version:    h.version,
		APIVersion: version.FromContext(r.Context()),
	})
}
