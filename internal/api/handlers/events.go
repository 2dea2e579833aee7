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
	"github.com/wingedpig/noclap/internal/session"
)

const (
	pingInterval = 54 * time.Second
	pongWait     = 60 * time.Second
	streamBuffer = 100
)

// The control API only listens on loopback.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamMessage is one frame on the state WebSocket.
type StreamMessage struct {
	Type     string            `json:"type"` // "snapshot" or "event"
	Snapshot *session.Snapshot `json:"snapshot,omitempty"`
	Event    *events.Event     `json:"event,omitempty"`
}

// Stream message types.
const (
	MessageSnapshot = "snapshot"
	MessageEvent    = "event"
)

// EventHandler handles event history and the live state stream.
type EventHandler struct {
	bus  events.EventBus
	ctrl Session
}

// NewEventHandler creates a new event handler.
func NewEventHandler(bus events.EventBus, ctrl Session) *EventHandler {
	return &EventHandler{bus: bus, ctrl: ctrl}
}

// History returns the event history.
func (h *EventHandler) History(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := events.EventFilter{}

	if types := query["type"]; len(types) > 0 {
		filter.Types = types
	}
	filter.Source = query.Get("source")

	if limitStr := query.Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			filter.Limit = n
		}
	}

	if sinceStr := query.Get("since"); sinceStr != "" {
		if t, err := time.Parse(time.RFC3339, sinceStr); err == nil {
			filter.Since = t
		}
	}

	if untilStr := query.Get("until"); untilStr != "" {
		if t, err := time.Parse(time.RFC3339, untilStr); err == nil {
			filter.Until = t
		}
	}

	eventList, err := h.bus.History(filter)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, eventList)
}

// StateStream pushes every session snapshot, starting with the current one,
// and events matching the "events" query pattern (default "*"; "none"
// disables events).
func (h *EventHandler) StateStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	snapshots := h.ctrl.Subscribe()
	defer h.ctrl.Unsubscribe(snapshots)

	done := readUntilClosed(conn)

	eventCh := make(chan events.Event, streamBuffer)
	pattern := r.URL.Query().Get("events")
	if pattern == "" {
		pattern = "*"
	}
	if pattern != "none" && h.bus != nil {
		subID, err := h.bus.SubscribeAsync(pattern, func(_ context.Context, event events.Event) error {
			select {
			case eventCh <- event:
			case <-done:
			default:
				// Drop if the client is slow
			}
			return nil
		}, streamBuffer)
		if err != nil {
			conn.WriteJSON(map[string]string{"error": err.Error()})
			return
		}
		defer h.bus.Unsubscribe(subID)
	}

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		var msg StreamMessage
		select {
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			msg = StreamMessage{Type: MessageSnapshot, Snapshot: &snap}
		case event := <-eventCh:
			msg = StreamMessage{Type: MessageEvent, Event: &event}
		case <-pingTicker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		case <-done:
			return
		}
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// readUntilClosed drains client frames and closes the returned channel when
// the connection goes away.
func readUntilClosed(conn *websocket.Conn) <-chan struct{} {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return done
}
