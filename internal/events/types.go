// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package events provides the in-process event bus for the panel.
package events

import (
	"context"
	"time"
)

// Event represents an immutable event record.
type Event struct {
	ID        string                 `json:"id"`
	Version   string                 `json:"version"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"` // Component that emitted the event
	Payload   map[string]interface{} `json:"payload"`
}

// EventHandler processes received events.
type EventHandler func(ctx context.Context, event Event) error

// SubscriptionID uniquely identifies a subscription.
type SubscriptionID string

// EventFilter for querying event history.
type EventFilter struct {
	Types  []string  // Event types to match (supports wildcards)
	Source string    // Filter by emitting component
	Since  time.Time // Events after this time
	Until  time.Time // Events before this time
	Limit  int       // Maximum events to return
}

// EventBus is the core event pub/sub system.
type EventBus interface {
	// Publish emits an event to all matching subscribers.
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a synchronous handler for events matching pattern.
	Subscribe(pattern string, handler EventHandler) (SubscriptionID, error)

	// SubscribeAsync registers an async handler with buffered channel.
	SubscribeAsync(pattern string, handler EventHandler, bufferSize int) (SubscriptionID, error)

	// Unsubscribe removes a subscription.
	Unsubscribe(id SubscriptionID) error

	// History retrieves past events matching filter.
	History(filter EventFilter) ([]Event, error)

	// Close shuts down the event bus gracefully.
	Close() error
}

// Event types
const (
	// Backend process events
	EventBackendLaunched  = "backend.launched"
	EventBackendReady     = "backend.ready"
	EventBackendExited    = "backend.exited"
	EventBackendCrashed   = "backend.crashed"
	EventBackendRestarted = "backend.restarted"

	// Script watcher
	EventScriptChanged = "script.changed"

	// Device registry
	EventDevicesRefreshed = "devices.refreshed"

	// Routing session
	EventRoutingStarting = "routing.starting"
	EventRoutingStarted  = "routing.started"
	EventRoutingStopped  = "routing.stopped"
	EventRoutingFailed   = "routing.failed"
	EventRoutingRefused  = "routing.refused"
)

// RestartTrigger indicates why the backend was restarted.
type RestartTrigger string

const (
	RestartTriggerManual       RestartTrigger = "manual"
	RestartTriggerScriptChange RestartTrigger = "script_change"
)

// Emit publishes an event built from its parts. A nil bus is a no-op.
func Emit(ctx context.Context, bus EventBus, eventType, source string, payload map[string]interface{}) {
	if bus == nil {
		return
	}
	bus.Publish(ctx, Event{
		Type:    eventType,
		Source:  source,
		Payload: payload,
	})
}
