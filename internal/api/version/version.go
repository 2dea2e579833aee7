// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package version implements date-based versioning for the control API.
//
// Clients send the Noclap-Version header. When it is absent the latest
// version is used; an unknown version is rejected so that a newer client
// never silently talks to an older panel.
package version

import "context"

// Version constants. Add new versions here when making breaking changes.
const (
	// Version20261001 is the initial control API version.
	Version20261001 = "2026-10-01"
)

// LatestVersion is the current default API version.
var LatestVersion = Version20261001

// Header is the HTTP header used to specify the API version.
const Header = "Noclap-Version"

var supported = map[string]bool{
	Version20261001: true,
}

// Supported reports whether the server understands v.
func Supported(v string) bool {
	return supported[v]
}

type contextKey string

const versionKey contextKey = "api-version"

// FromContext returns the API version from the context.
// Returns LatestVersion if not set.
func FromContext(ctx context.Context) string {
	v, ok := ctx.Value(versionKey).(string)
	if !ok || v == "" {
		return LatestVersion
	}
	return v
}

// WithContext returns a new context with the API version set.
func WithContext(ctx context.Context, version string) context.Context {
	return context.WithValue(ctx, versionKey, version)
}
