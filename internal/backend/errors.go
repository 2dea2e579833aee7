// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrUnreachable means the request never produced an HTTP response.
	ErrUnreachable = errors.New("backend unreachable")
	// ErrDecodeFailed means the response body was not what the endpoint promises.
	ErrDecodeFailed = errors.New("backend response malformed")
	// ErrBackendRejected means the backend answered with a non-success status.
	ErrBackendRejected = errors.New("backend rejected request")
)

// ClientError is returned by every Client operation. Use errors.Is with the
// package sentinels to branch on the failure kind.
type ClientError struct {
	Kind   error  // ErrUnreachable, ErrDecodeFailed or ErrBackendRejected
	Op     string // e.g. "GET /devices"
	Status int    // HTTP status, zero when unreachable
	Detail string // Backend-provided reason, if any
	Err    error  // Underlying transport or decode error
}

func (e *ClientError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the error's kind sentinel.
func (e *ClientError) Is(target error) bool {
	return target == e.Kind
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// IsUnreachable reports whether err is a transport failure.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}
