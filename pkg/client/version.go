// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

// API version constants.
//
// NoClap uses date-based API versioning. Each version represents the control
// API as it existed on that date. Clients can pin to a specific version; a
// panel that does not know the requested version rejects the request with
// UNSUPPORTED_VERSION instead of guessing.
const (
	// LatestVersion is the current API version.
	// New clients should use this unless they need to pin to an older version.
	LatestVersion = "2026-10-01"

	// Version20261001 is the initial API version.
	Version20261001 = "2026-10-01"
)

// VersionHeader is the HTTP header used to specify the API version.
const VersionHeader = "Noclap-Version"
