// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/wingedpig/noclap/internal/backend"
	"github.com/wingedpig/noclap/internal/session"
)

// Session is the routing controller as used by the API.
type Session interface {
	Snapshot() session.Snapshot
	Enable(ctx context.Context) (session.Snapshot, error)
	Disable(ctx context.Context) (session.Snapshot, error)
	Toggle(ctx context.Context) (session.Snapshot, error)
	Select(ctx context.Context, sel session.Selection) (session.Snapshot, error)
	Subscribe() chan session.Snapshot
	Unsubscribe(ch chan session.Snapshot)
}

// RoutingHandler handles routing state and intent requests.
type RoutingHandler struct {
	ctrl Session
}

// NewRoutingHandler creates a new routing handler.
func NewRoutingHandler(ctrl Session) *RoutingHandler {
	return &RoutingHandler{ctrl: ctrl}
}

// State returns the current session snapshot.
func (h *RoutingHandler) State(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

// Enable turns routing on and waits for the backend's answer.
func (h *RoutingHandler) Enable(w http.ResponseWriter, r *http.Request) {
	snap, err := h.ctrl.Enable(r.Context())
	writeSessionResult(w, snap, err)
}

// Disable turns routing off.
func (h *RoutingHandler) Disable(w http.ResponseWriter, r *http.Request) {
	snap, err := h.ctrl.Disable(r.Context())
	writeSessionResult(w, snap, err)
}

// Toggle flips routing.
func (h *RoutingHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	snap, err := h.ctrl.Toggle(r.Context())
	writeSessionResult(w, snap, err)
}

// Select updates the input, output and delay. Omitted fields are unchanged.
func (h *RoutingHandler) Select(w http.ResponseWriter, r *http.Request) {
	var sel session.Selection
	if err := json.NewDecoder(r.Body).Decode(&sel); err != nil && !errors.Is(err, io.EOF) {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid request body: "+err.Error())
		return
	}

	snap, err := h.ctrl.Select(r.Context(), sel)
	writeSessionResult(w, snap, err)
}

// writeSessionResult writes the snapshot, with an error block when the
// controller refused or the backend failed.
func writeSessionResult(w http.ResponseWriter, snap session.Snapshot, err error) {
	if err == nil {
		WriteJSON(w, http.StatusOK, snap)
		return
	}
	status, code := sessionErrorStatus(err)
	WriteErrorWithData(w, status, code, err.Error(), snap)
}

func sessionErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrInvalidDelay):
		return http.StatusBadRequest, ErrBadRequest
	case errors.Is(err, session.ErrNoSelection), errors.Is(err, session.ErrUnresolvedDevice):
		return http.StatusPreconditionFailed, ErrPrecondition
	case errors.Is(err, session.ErrSuperseded):
		return http.StatusConflict, ErrConflict
	case errors.Is(err, session.ErrBackendUnavailable):
		return http.StatusServiceUnavailable, ErrBackendUnavailable
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable, ErrUnavailable
	case errors.Is(err, backend.ErrBackendRejected):
		return http.StatusBadGateway, ErrBackendRejected
	case errors.Is(err, backend.ErrUnreachable):
		return http.StatusServiceUnavailable, ErrBackendUnreachable
	case errors.Is(err, backend.ErrDecodeFailed):
		return http.StatusBadGateway, ErrBackendMalformed
	case errors.Is(err, session.ErrBackendExited), errors.Is(err, session.ErrBackendStopped):
		return http.StatusBadGateway, ErrBackendExited
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, ErrBackendError
	default:
		return http.StatusInternalServerError, ErrInternalError
	}
}
