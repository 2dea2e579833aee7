// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package devices holds the panel's snapshot of the backend's audio devices
// and resolves user-facing names to backend ids.
package devices

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wingedpig/noclap/internal/backend"
	"github.com/wingedpig/noclap/internal/events"
	"github.com/wingedpig/noclap/internal/logging"
)

// Lister is the backend operation the registry needs.
type Lister interface {
	ListDevices(ctx context.Context) ([]backend.Device, error)
}

// Snapshot is an immutable view of the device list. Names within each
// sequence are unique; when the backend reports a name twice for the same
// kind, the first occurrence wins.
type Snapshot struct {
	Inputs    []backend.Device `json:"inputs"`
	Outputs   []backend.Device `json:"outputs"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Registry stores the latest successful snapshot. Readers never observe a
// partially applied refresh.
type Registry struct {
	lister Lister
	bus    events.EventBus
	log    *zap.Logger

	snap atomic.Pointer[Snapshot]
}

// NewRegistry creates an empty registry.
func NewRegistry(lister Lister, bus events.EventBus, logger *zap.Logger) *Registry {
	r := &Registry{
		lister: lister,
		bus:    bus,
		log:    logging.OrNop(logger).Named(logging.ComponentDevices),
	}
	r.snap.Store(&Snapshot{Inputs: []backend.Device{}, Outputs: []backend.Device{}})
	return r
}

// Refresh replaces the snapshot with the backend's current list. On failure
// the previous snapshot is kept and the backend error returned.
func (r *Registry) Refresh(ctx context.Context) (Snapshot, error) {
	list, err := r.lister.ListDevices(ctx)
	if err != nil {
		r.log.Warn("device refresh failed", zap.Error(err))
		return r.Snapshot(), err
	}

	snap := Build(list)
	r.snap.Store(&snap)

	r.log.Info("devices refreshed", zap.Int("inputs", len(snap.Inputs)), zap.Int("outputs", len(snap.Outputs)))
	events.Emit(ctx, r.bus, events.EventDevicesRefreshed, logging.ComponentDevices, map[string]interface{}{
		"inputs":  len(snap.Inputs),
		"outputs": len(snap.Outputs),
	})
	return snap, nil
}

// Snapshot returns the current snapshot.
func (r *Registry) Snapshot() Snapshot {
	return *r.snap.Load()
}

// Inputs returns the current input devices in backend order.
func (r *Registry) Inputs() []backend.Device {
	return r.Snapshot().Inputs
}

// Outputs returns the current output devices in backend order.
func (r *Registry) Outputs() []backend.Device {
	return r.Snapshot().Outputs
}

// Resolve returns the id of the device with the given name and kind
// ("input" or "output"). A name missing from the latest refresh is stale.
func (r *Registry) Resolve(name, kind string) (int, bool) {
	snap := r.Snapshot()
	switch kind {
	case backend.KindInput:
		return resolve(snap.Inputs, name)
	case backend.KindOutput:
		return resolve(snap.Outputs, name)
	default:
		return 0, false
	}
}

// ResolveInput returns the id of the input device with the given name.
func (r *Registry) ResolveInput(name string) (int, bool) {
	return r.Resolve(name, backend.KindInput)
}

// ResolveOutput returns the id of the output device with the given name.
func (r *Registry) ResolveOutput(name string) (int, bool) {
	return r.Resolve(name, backend.KindOutput)
}

// InputName returns the name of the input device with the given id.
func (r *Registry) InputName(id int) (string, bool) {
	return name(r.Snapshot().Inputs, id)
}

// OutputName returns the name of the output device with the given id.
func (r *Registry) OutputName(id int) (string, bool) {
	return name(r.Snapshot().Outputs, id)
}

// Build partitions a backend list by kind, preserving order, dropping
// unknown kinds and repeated names.
func Build(list []backend.Device) Snapshot {
	snap := Snapshot{
		Inputs:    []backend.Device{},
		Outputs:   []backend.Device{},
		UpdatedAt: time.Now(),
	}
	seenIn := make(map[string]bool)
	seenOut := make(map[string]bool)

	for _, d := range list {
		switch d.Kind {
		case backend.KindInput:
			if !seenIn[d.Name] {
				seenIn[d.Name] = true
				snap.Inputs = append(snap.Inputs, d)
			}
		case backend.KindOutput:
			if !seenOut[d.Name] {
				seenOut[d.Name] = true
				snap.Outputs = append(snap.Outputs, d)
			}
		}
	}
	return snap
}

func resolve(list []backend.Device, name string) (int, bool) {
	for _, d := range list {
		if d.Name == name {
			return d.ID, true
		}
	}
	return 0, false
}

func name(list []backend.Device, id int) (string, bool) {
	for _, d := range list {
		if d.ID == id {
			return d.Name, true
		}
	}
	return "", false
}
