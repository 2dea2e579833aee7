// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wingedpig/noclap/internal/events"
	"github.com/wingedpig/noclap/internal/supervisor"
)

const defaultLogLines = 100

// Process is the backend supervisor as used by the API.
type Process interface {
	Status() supervisor.Status
	Alive() bool
	Stats() (supervisor.Stats, error)
	Restart(ctx context.Context, trigger events.RestartTrigger) error
	LogEntries(n int) []supervisor.LogLine
	SubscribeLogs() chan supervisor.LogLine
	UnsubscribeLogs(ch chan supervisor.LogLine)
}

// BackendView is the backend process as reported by the API.
type BackendView struct {
	Status  supervisor.Status `json:"status"`
	Alive   bool              `json:"alive"` // PID present in the process table
	Stats   *supervisor.Stats `json:"stats,omitempty"`
	BaseURL string            `json:"base_url"`
}

// BackendHandler handles backend process requests.
type BackendHandler struct {
	proc    Process
	baseURL string
}

// NewBackendHandler creates a new backend handler.
func NewBackendHandler(proc Process, baseURL string) *BackendHandler {
	return &BackendHandler{proc: proc, baseURL: baseURL}
}

// Get returns the supervisor status and, while running, resource usage.
func (h *BackendHandler) Get(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.view())
}

// Restart terminates the backend and launches it again.
func (h *BackendHandler) Restart(w http.ResponseWriter, r *http.Request) {
	// Background context: the relaunch should not die with the request.
	if err := h.proc.Restart(context.Background(), events.RestartTriggerManual); err != nil {
		WriteErrorWithData(w, http.StatusInternalServerError, ErrBackendError, err.Error(), h.view())
		return
	}
	WriteJSON(w, http.StatusOK, h.view())
}

// Logs returns the most recent backend output lines.
func (h *BackendHandler) Logs(w http.ResponseWriter, r *http.Request) {
	lines := parseLines(r, defaultLogLines)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"lines": h.proc.LogEntries(lines),
	})
}

// StreamLogs sends recent output and then every new line over a WebSocket.
func (h *BackendHandler) StreamLogs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Subscribe before reading history so no line falls in between.
	ch := h.proc.SubscribeLogs()
	defer h.proc.UnsubscribeLogs(ch)

	var lastSeq int64
	for _, line := range h.proc.LogEntries(parseLines(r, defaultLogLines)) {
		if err := conn.WriteJSON(line); err != nil {
			return
		}
		lastSeq = line.Sequence
	}

	done := readUntilClosed(conn)
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case line, ok := <-ch:
			if !ok {
				return
			}
			if line.Sequence <= lastSeq {
				continue
			}
			if err := conn.WriteJSON(line); err != nil {
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *BackendHandler) view() BackendView {
	v := BackendView{
		Status:  h.proc.Status(),
		Alive:   h.proc.Alive(),
		BaseURL: h.baseURL,
	}
	if v.Status.State == supervisor.StateRunning {
		if stats, err := h.proc.Stats(); err == nil {
			v.Stats = &stats
		}
	}
	return v
}

func parseLines(r *http.Request, def int) int {
	if s := r.URL.Query().Get("lines"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}
