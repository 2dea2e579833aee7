// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

// Response is the standard API response wrapper.
type Response struct {
	Data  interface{} `json:"data,omitempty"`
	Error *ErrorInfo  `json:"error,omitempty"`
	Meta  *MetaInfo   `json:"meta,omitempty"`
}

// ErrorInfo contains error details.
type ErrorInfo struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// MetaInfo contains response metadata.
type MetaInfo struct {
	Timestamp time.Time `json:"timestamp"`
}

// Common error codes
const (
	ErrNotFound           = "NOT_FOUND"
	ErrMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	ErrBadRequest         = "BAD_REQUEST"
	ErrInternalError      = "INTERNAL_ERROR"
	ErrConflict           = "CONFLICT"
	ErrPrecondition       = "PRECONDITION_FAILED"
	ErrUnavailable        = "UNAVAILABLE"
	ErrBackendRejected    = "BACKEND_REJECTED"
	ErrBackendUnreachable = "BACKEND_UNREACHABLE"
	ErrBackendMalformed   = "BACKEND_DECODE_FAILED"
	ErrBackendExited      = "BACKEND_EXITED"
	ErrBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrBackendError       = "BACKEND_ERROR"
)

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	write(w, status, Response{Data: data})
}

// WriteError writes an error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	write(w, status, Response{Error: &ErrorInfo{Code: code, Message: message}})
}

// WriteErrorWithDetails writes an error response with details.
func WriteErrorWithDetails(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	write(w, status, Response{Error: &ErrorInfo{Code: code, Message: message, Details: details}})
}

// WriteErrorWithData writes an error response that still carries the
// resulting state, so callers can render it without a second request.
func WriteErrorWithData(w http.ResponseWriter, status int, code, message string, data interface{}) {
	write(w, status, Response{Data: data, Error: &ErrorInfo{Code: code, Message: message}})
}

// NotFound answers requests no route matches.
func NotFound(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, ErrNotFound, "no such endpoint: "+r.URL.Path)
}

// MethodNotAllowed answers requests whose path matches a route but not its
// method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusMethodNotAllowed, ErrMethodNotAllowed, r.Method+" not allowed on "+r.URL.Path)
}

func write(w http.ResponseWriter, status int, resp Response) {
	resp.Meta = &MetaInfo{Timestamp: time.Now()}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
