// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/noclap/internal/backend"
	"github.com/wingedpig/noclap/internal/config"
	"github.com/wingedpig/noclap/internal/events"
)

type startCall struct {
	inputID, outputID int
	delayMs           float64
}

type fakeBackend struct {
	mu        sync.Mutex
	calls     []string
	starts    []startCall
	startErr  error
	stopErr   error
	status    backend.Status
	statusErr error
	startGate chan struct{}
}

func (f *fakeBackend) Start(ctx context.Context, inputID, outputID int, delayMs float64) error {
	f.mu.Lock()
	f.calls = append(f.calls, "start")
	f.starts = append(f.starts, startCall{inputID, outputID, delayMs})
	gate := f.startGate
	err := f.startErr
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return err
}

func (f *fakeBackend) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "stop")
	return f.stopErr
}

func (f *fakeBackend) Status(ctx context.Context) (backend.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.statusErr
}

func (f *fakeBackend) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) startLog() []startCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]startCall(nil), f.starts...)
}

type fakeResolver struct {
	inputs  map[string]int
	outputs map[string]int
}

func (r fakeResolver) ResolveInput(name string) (int, bool) {
	id, ok := r.inputs[name]
	return id, ok
}

func (r fakeResolver) ResolveOutput(name string) (int, bool) {
	id, ok := r.outputs[name]
	return id, ok
}

func (r fakeResolver) InputName(id int) (string, bool) {
	return nameOf(r.inputs, id)
}

func (r fakeResolver) OutputName(id int) (string, bool) {
	return nameOf(r.outputs, id)
}

func nameOf(m map[string]int, id int) (string, bool) {
	for name, v := range m {
		if v == id {
			return name, true
		}
	}
	return "", false
}

var testDevices = fakeResolver{
	inputs:  map[string]int{"Mic": 1, "USB Mic": 4},
	outputs: map[string]int{"Cable": 2, "BlackHole 2ch": 5},
}

func newTestController(t *testing.T, b Backend, mutate func(*Options)) (*Controller, *events.MemoryEventBus) {
	t.Helper()
	bus := events.NewMemoryEventBus(events.MemoryBusConfig{})
	opts := Options{
		Backend:        b,
		Resolver:       testDevices,
		Bus:            bus,
		DefaultDelayMs: 140,
		RequestTimeout: 2 * time.Second,
	}
	if mutate != nil {
		mutate(&opts)
	}
	c := NewController(opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		bus.Close()
	})
	return c, bus
}

func strp(s string) *string { return &s }

func fp(f float64) *float64 { return &f }

func intp(i int) *int { return &i }

func ctxT() context.Context { return context.Background() }

func pick(in, out string) Selection {
	return Selection{Input: strp(in), Output: strp(out)}
}

func eventTypes(t *testing.T, bus *events.MemoryEventBus, pattern string) []string {
	t.Helper()
	history, err := bus.History(events.EventFilter{Types: []string{pattern}})
	require.NoError(t, err)
	var types []string
	for _, e := range history {
		types = append(types, e.Type)
	}
	return types
}

func TestController_InitialState(t *testing.T) {
	c, _ := newTestController(t, &fakeBackend{}, nil)

	snap := c.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.False(t, snap.Running)
	assert.False(t, snap.Intent.Enabled)
	assert.Equal(t, 140.0, snap.Intent.DelayMs)
	assert.Nil(t, snap.Active)
}

func TestController_EnableWithoutSelectionRefused(t *testing.T) {
	fb := &fakeBackend{}
	c, bus := newTestController(t, fb, nil)

	_, err := c.Select(ctxT(), Selection{Input: strp("Mic")})
	require.NoError(t, err)

	snap, err := c.Enable(ctxT())
	assert.ErrorIs(t, err, ErrNoSelection)
	assert.Equal(t, StateIdle, snap.State)
	assert.False(t, snap.Intent.Enabled)
	assert.Equal(t, "no_selection", snap.ErrorKind)
	assert.Empty(t, fb.callLog())
	assert.Equal(t, []string{events.EventRoutingRefused}, eventTypes(t, bus, "routing.*"))
}

func TestController_EnableWithStaleNameNeverStarts(t *testing.T) {
	fb := &fakeBackend{}
	c, _ := newTestController(t, fb, nil)

	_, err := c.Select(ctxT(), pick("Mic", "Unplugged Headset"))
	require.NoError(t, err)

	snap, err := c.Enable(ctxT())
	assert.ErrorIs(t, err, ErrUnresolvedDevice)
	assert.Contains(t, err.Error(), "Unplugged Headset")
	assert.Equal(t, StateIdle, snap.State)
	assert.False(t, snap.Intent.Enabled)
	assert.Empty(t, fb.callLog())
}

func TestController_EnableStartsRouting(t *testing.T) {
	fb := &fakeBackend{}
	c, bus := newTestController(t, fb, nil)

	_, err := c.Select(ctxT(), pick("Mic", "Cable"))
	require.NoError(t, err)

	snap, err := c.Enable(ctxT())
	require.NoError(t, err)
	assert.Equal(t, StateRunning, snap.State)
	assert.True(t, snap.Running)
	assert.True(t, snap.Intent.Enabled)
	assert.False(t, snap.Pending)
	require.NotNil(t, snap.Active)
	assert.NotEmpty(t, snap.Active.SessionID)
	assert.Equal(t, 1, snap.Active.InputID)
	assert.Equal(t, 2, snap.Active.OutputID)

	assert.Equal(t, []startCall{{1, 2, 140}}, fb.startLog())
	assert.Equal(t, []string{events.EventRoutingStarting, events.EventRoutingStarted}, eventTypes(t, bus, "routing.*"))

	// Enabling again is a no-op.
	_, err = c.Enable(ctxT())
	require.NoError(t, err)
	assert.Len(t, fb.startLog(), 1)
}

func TestController_AgainstHTTPBackend(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantState State
		wantErr   error
	}{
		{"accepted", http.StatusOK, StateRunning, nil},
		{"rejected", http.StatusInternalServerError, StateIdle, backend.ErrBackendRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/start" {
					w.WriteHeader(tt.status)
					w.Write([]byte(`{"detail": "Failed to start audio engine"}`))
					return
				}
				w.Write([]byte(`{"status": "ok"}`))
			}))
			defer server.Close()

			c, _ := newTestController(t, backend.New(server.URL), nil)
			c.Select(ctxT(), pick("Mic", "Cable"))

			snap, err := c.Enable(ctxT())
			assert.Equal(t, tt.wantState, snap.State)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, "rejected", snap.ErrorKind)
				assert.False(t, snap.Intent.Enabled)
				assert.Contains(t, snap.LastError, "Failed to start audio engine")
			} else {
				assert.NoError(t, err)
				assert.Empty(t, snap.LastError)
			}
		})
	}
}

func TestController_StartUnreachableRevertsToIdle(t *testing.T) {
	fb := &fakeBackend{startErr: &backend.ClientError{Kind: backend.ErrUnreachable, Op: "POST /start"}}
	c, bus := newTestController(t, fb, nil)
	c.Select(ctxT(), pick("Mic", "Cable"))

	snap, err := c.Enable(ctxT())
	assert.ErrorIs(t, err, backend.ErrUnreachable)
	assert.Equal(t, StateIdle, snap.State)
	assert.False(t, snap.Intent.Enabled)
	assert.Contains(t, eventTypes(t, bus, "routing.*"), events.EventRoutingFailed)

	// No automatic retry.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, fb.startLog(), 1)
}

func TestController_Disable(t *testing.T) {
	fb := &fakeBackend{}
	c, bus := newTestController(t, fb, nil)
	c.Select(ctxT(), pick("Mic", "Cable"))
	_, err := c.Enable(ctxT())
	require.NoError(t, err)

	snap, err := c.Disable(ctxT())
	require.NoError(t, err)
	assert.Equal(t, StateIdle, snap.State)
	assert.Nil(t, snap.Active)
	assert.Equal(t, []string{"start", "stop"}, fb.callLog())
	assert.Contains(t, eventTypes(t, bus, "routing.*"), events.EventRoutingStopped)
}

func TestController_DisableWhileIdle(t *testing.T) {
	fb := &fakeBackend{}
	c, _ := newTestController(t, fb, nil)

	snap, err := c.Disable(ctxT())
	require.NoError(t, err)
	assert.Equal(t, StateIdle, snap.State)
	assert.Empty(t, fb.callLog())
}

func TestController_StopFailureStillIdle(t *testing.T) {
	fb := &fakeBackend{}
	c, _ := newTestController(t, fb, nil)
	c.Select(ctxT(), pick("Mic", "Cable"))
	_, err := c.Enable(ctxT())
	require.NoError(t, err)

	fb.mu.Lock()
	fb.stopErr = &backend.ClientError{Kind: backend.ErrUnreachable, Op: "POST /stop"}
	fb.mu.Unlock()

	snap, err := c.Disable(ctxT())
	require.NoError(t, err)
	assert.Equal(t, StateIdle, snap.State)
}

func TestController_DisableDuringStartIsSerialized(t *testing.T) {
	gate := make(chan struct{})
	fb := &fakeBackend{startGate: gate}
	c, _ := newTestController(t, fb, nil)
	c.Select(ctxT(), pick("Mic", "Cable"))

	enableErr := make(chan error, 1)
	go func() {
		_, err := c.Enable(ctxT())
		enableErr <- err
	}()
	require.Eventually(t, func() bool { return c.Snapshot().State == StateStarting }, 2*time.Second, 5*time.Millisecond)

	disableDone := make(chan Snapshot, 1)
	go func() {
		snap, _ := c.Disable(ctxT())
		disableDone <- snap
	}()
	require.Eventually(t, func() bool { return !c.Snapshot().Intent.Enabled }, 2*time.Second, 5*time.Millisecond)

	// The stop must not be issued while the start is outstanding.
	assert.Equal(t, []string{"start"}, fb.callLog())
	close(gate)

	snap := <-disableDone
	assert.Equal(t, StateIdle, snap.State)
	assert.ErrorIs(t, <-enableErr, ErrSuperseded)
	assert.Equal(t, []string{"start", "stop"}, fb.callLog())
}

func TestController_ReselectionRestarts(t *testing.T) {
	fb := &fakeBackend{}
	c, _ := newTestController(t, fb, nil)
	c.Select(ctxT(), pick("Mic", "Cable"))
	_, err := c.Enable(ctxT())
	require.NoError(t, err)

	snap, err := c.Select(ctxT(), Selection{Output: strp("BlackHole 2ch")})
	require.NoError(t, err)
	assert.Equal(t, StateRunning, snap.State)
	require.NotNil(t, snap.Active)
	assert.Equal(t, "BlackHole 2ch", snap.Active.Output)
	assert.Equal(t, 5, snap.Active.OutputID)

	assert.Equal(t, []string{"start", "stop", "start"}, fb.callLog())
	assert.Equal(t, startCall{1, 5, 140}, fb.startLog()[1])
}

func TestController_ReselectionToStaleNameEndsIdle(t *testing.T) {
	fb := &fakeBackend{}
	c, _ := newTestController(t, fb, nil)
	c.Select(ctxT(), pick("Mic", "Cable"))
	_, err := c.Enable(ctxT())
	require.NoError(t, err)

	snap, err := c.Select(ctxT(), Selection{Input: strp("Gone")})
	assert.ErrorIs(t, err, ErrUnresolvedDevice)
	assert.Equal(t, StateIdle, snap.State)
	assert.False(t, snap.Intent.Enabled)
	assert.Equal(t, []string{"start", "stop"}, fb.callLog())
}

func TestController_DelayChangePolicies(t *testing.T) {
	t.Run("restart", func(t *testing.T) {
		fb := &fakeBackend{}
		c, _ := newTestController(t, fb, nil)
		c.Select(ctxT(), pick("Mic", "Cable"))
		c.Enable(ctxT())

		snap, err := c.Select(ctxT(), Selection{DelayMs: fp(200)})
		require.NoError(t, err)
		require.NotNil(t, snap.Active)
		assert.Equal(t, 200.0, snap.Active.DelayMs)
		assert.Equal(t, []startCall{{1, 2, 140}, {1, 2, 200}}, fb.startLog())
	})

	t.Run("deferred", func(t *testing.T) {
		fb := &fakeBackend{}
		c, _ := newTestController(t, fb, func(o *Options) { o.DelayChange = config.DelayChangeDeferred })
		c.Select(ctxT(), pick("Mic", "Cable"))
		c.Enable(ctxT())

		snap, err := c.Select(ctxT(), Selection{DelayMs: fp(200)})
		require.NoError(t, err)
		assert.Equal(t, 200.0, snap.Intent.DelayMs)
		require.NotNil(t, snap.Active)
		assert.Equal(t, 140.0, snap.Active.DelayMs)
		assert.Len(t, fb.startLog(), 1)

		c.Disable(ctxT())
		c.Enable(ctxT())
		assert.Equal(t, startCall{1, 2, 200}, fb.startLog()[1])
	})
}

func TestController_InvalidDelay(t *testing.T) {
	c, _ := newTestController(t, &fakeBackend{}, nil)

	for _, d := range []float64{-1, 300.5, 1000, math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := c.Select(ctxT(), Selection{DelayMs: fp(d)})
		assert.ErrorIs(t, err, ErrInvalidDelay)
	}
	assert.Equal(t, 140.0, c.Snapshot().Intent.DelayMs)

	snap, err := c.Select(ctxT(), Selection{DelayMs: fp(0)})
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.Intent.DelayMs)
}

func TestController_Toggle(t *testing.T) {
	fb := &fakeBackend{}
	c, _ := newTestController(t, fb, nil)
	c.Select(ctxT(), pick("Mic", "Cable"))

	snap, err := c.Toggle(ctxT())
	require.NoError(t, err)
	assert.Equal(t, StateRunning, snap.State)

	snap, err = c.Toggle(ctxT())
	require.NoError(t, err)
	assert.Equal(t, StateIdle, snap.State)
}

func TestController_PollUnreachableKeepsState(t *testing.T) {
	fb := &fakeBackend{}
	c, _ := newTestController(t, fb, nil)

	fb.mu.Lock()
	fb.statusErr = &backend.ClientError{Kind: backend.ErrUnreachable, Op: "GET /status"}
	fb.mu.Unlock()

	before := c.Snapshot()
	snap, err := c.Poll(ctxT())
	assert.ErrorIs(t, err, backend.ErrUnreachable)
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, before.Generation, snap.Generation)

	c.Select(ctxT(), pick("Mic", "Cable"))
	_, err = c.Enable(ctxT())
	require.NoError(t, err)

	snap, err = c.Poll(ctxT())
	assert.ErrorIs(t, err, backend.ErrUnreachable)
	assert.Equal(t, StateRunning, snap.State)
	assert.True(t, snap.Running)
}

func TestController_PollReconciles(t *testing.T) {
	fb := &fakeBackend{}
	c, bus := newTestController(t, fb, nil)
	c.Select(ctxT(), pick("Mic", "Cable"))
	_, err := c.Enable(ctxT())
	require.NoError(t, err)

	// Backend's audio thread died.
	fb.mu.Lock()
	fb.status = backend.Status{IsRunning: false}
	fb.mu.Unlock()

	snap, err := c.Poll(ctxT())
	require.NoError(t, err)
	assert.Equal(t, StateIdle, snap.State)
	assert.False(t, snap.Intent.Enabled)
	assert.Equal(t, "backend_stopped", snap.ErrorKind)

	// Backend running without us knowing.
	fb.mu.Lock()
	fb.status = backend.Status{IsRunning: true, InputDevice: intp(1), OutputDevice: intp(2), DelayMs: fp(90)}
	fb.mu.Unlock()

	snap, err = c.Poll(ctxT())
	require.NoError(t, err)
	assert.Equal(t, StateRunning, snap.State)
	require.NotNil(t, snap.Active)
	assert.Equal(t, 90.0, snap.Active.DelayMs)
	assert.Equal(t, 2, snap.Active.OutputID)
	assert.Equal(t, 90.0, snap.Intent.DelayMs)
	assert.True(t, snap.Intent.Enabled)

	stopped := eventTypes(t, bus, events.EventRoutingStopped)
	assert.Len(t, stopped, 1)
	assert.Equal(t, []string{"start"}, fb.callLog())
}

func TestController_PollAdoptsRunningSession(t *testing.T) {
	fb := &fakeBackend{status: backend.Status{IsRunning: true, InputDevice: intp(1), OutputDevice: intp(2), DelayMs: fp(90)}}
	c, _ := newTestController(t, fb, nil)

	snap, err := c.Poll(ctxT())
	require.NoError(t, err)
	assert.Equal(t, StateRunning, snap.State)
	assert.False(t, snap.Pending)
	assert.Equal(t, Intent{Input: "Mic", Output: "Cable", DelayMs: 90, Enabled: true}, snap.Intent)
	require.NotNil(t, snap.Active)
	assert.Equal(t, "Mic", snap.Active.Input)
	assert.Equal(t, "Cable", snap.Active.Output)
	assert.Equal(t, 1, snap.Active.InputID)

	// Nothing the user did asks for a stop.
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, fb.callLog())
	assert.Equal(t, StateRunning, c.Snapshot().State)
	assert.Empty(t, c.Snapshot().LastError)
}

func TestController_PollAdoptsUnknownDevices(t *testing.T) {
	fb := &fakeBackend{status: backend.Status{IsRunning: true, InputDevice: intp(7), OutputDevice: intp(8)}}
	c, _ := newTestController(t, fb, nil)

	snap, err := c.Poll(ctxT())
	require.NoError(t, err)
	assert.Equal(t, StateRunning, snap.State)
	assert.Equal(t, 140.0, snap.Intent.DelayMs)
	assert.Empty(t, snap.Intent.Input)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, fb.callLog())

	// A later selection is a user action and restarts onto known devices.
	snap, err = c.Select(ctxT(), pick("USB Mic", "BlackHole 2ch"))
	require.NoError(t, err)
	assert.Equal(t, StateRunning, snap.State)
	assert.Equal(t, []string{"stop", "start"}, fb.callLog())
	assert.Equal(t, []startCall{{4, 5, 140}}, fb.startLog())
}

func TestController_PollDiscardedWhileRequestInFlight(t *testing.T) {
	gate := make(chan struct{})
	fb := &fakeBackend{startGate: gate, status: backend.Status{IsRunning: true}}
	c, _ := newTestController(t, fb, nil)
	c.Select(ctxT(), pick("Mic", "Cable"))

	go c.Enable(ctxT())
	require.Eventually(t, func() bool { return c.Snapshot().State == StateStarting }, 2*time.Second, 5*time.Millisecond)

	snap, err := c.Poll(ctxT())
	require.NoError(t, err)
	assert.Equal(t, StateStarting, snap.State)

	close(gate)
	require.Eventually(t, func() bool { return c.Snapshot().State == StateRunning }, 2*time.Second, 5*time.Millisecond)
}

func TestController_BackendExited(t *testing.T) {
	fb := &fakeBackend{}
	c, _ := newTestController(t, fb, nil)
	c.Select(ctxT(), pick("Mic", "Cable"))
	_, err := c.Enable(ctxT())
	require.NoError(t, err)

	c.BackendExited("exit code 1")

	require.Eventually(t, func() bool { return c.Snapshot().State == StateIdle }, 2*time.Second, 5*time.Millisecond)
	snap := c.Snapshot()
	assert.False(t, snap.Intent.Enabled)
	assert.Equal(t, "backend_exited", snap.ErrorKind)
	assert.Contains(t, snap.LastError, "exit code 1")
	assert.Equal(t, []string{"start"}, fb.callLog())
}

func TestController_BackendExitedDuringStartDiscardsResult(t *testing.T) {
	gate := make(chan struct{})
	fb := &fakeBackend{startGate: gate}
	c, _ := newTestController(t, fb, nil)
	c.Select(ctxT(), pick("Mic", "Cable"))

	enableErr := make(chan error, 1)
	go func() {
		_, err := c.Enable(ctxT())
		enableErr <- err
	}()
	require.Eventually(t, func() bool { return c.Snapshot().State == StateStarting }, 2*time.Second, 5*time.Millisecond)

	c.BackendExited("killed")
	assert.ErrorIs(t, <-enableErr, ErrBackendExited)

	// The late success must not resurrect the session.
	close(gate)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateIdle, c.Snapshot().State)
}

func TestController_PollingWaitsForStartPolling(t *testing.T) {
	fb := &fakeBackend{status: backend.Status{IsRunning: true, InputDevice: intp(1), OutputDevice: intp(2)}}
	c, _ := newTestController(t, fb, func(o *Options) {
		o.StatusInterval = 10 * time.Millisecond
	})

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StateIdle, c.Snapshot().State, "polled before StartPolling")

	c.StartPolling()
	c.StartPolling()
	require.Eventually(t, func() bool { return c.Snapshot().State == StateRunning }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "Mic", c.Snapshot().Intent.Input)
}

func TestController_BackendUnavailable(t *testing.T) {
	fb := &fakeBackend{}
	c, bus := newTestController(t, fb, nil)
	c.Select(ctxT(), pick("Mic", "Cable"))

	c.BackendUnavailable(errors.New("locate backend: backend script not found"))

	snap, err := c.Enable(ctxT())
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Equal(t, StateIdle, snap.State)
	assert.False(t, snap.Intent.Enabled)
	assert.Equal(t, "backend_unavailable", snap.ErrorKind)
	assert.Contains(t, snap.LastError, "backend script not found")
	assert.Empty(t, fb.callLog())
	assert.Equal(t, []string{events.EventRoutingRefused}, eventTypes(t, bus, "routing.*"))

	_, err = c.Toggle(ctxT())
	assert.ErrorIs(t, err, ErrBackendUnavailable)

	c.BackendAvailable()
	snap, err = c.Enable(ctxT())
	require.NoError(t, err)
	assert.Equal(t, StateRunning, snap.State)
	assert.Empty(t, snap.LastError)
}

func TestController_BackendUnavailableEndsSession(t *testing.T) {
	fb := &fakeBackend{}
	c, _ := newTestController(t, fb, nil)
	c.Select(ctxT(), pick("Mic", "Cable"))
	_, err := c.Enable(ctxT())
	require.NoError(t, err)

	c.BackendUnavailable(errors.New("launch backend: exec format error"))
	require.Eventually(t, func() bool { return c.Snapshot().State == StateIdle }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "backend_unavailable", c.Snapshot().ErrorKind)
	assert.False(t, c.Snapshot().Intent.Enabled)
}

func TestController_Subscribe(t *testing.T) {
	fb := &fakeBackend{}
	c, _ := newTestController(t, fb, nil)

	ch := c.Subscribe()
	defer c.Unsubscribe(ch)

	first := <-ch
	assert.Equal(t, StateIdle, first.State)

	c.Select(ctxT(), pick("Mic", "Cable"))
	c.Enable(ctxT())

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-ch:
			if snap.State == StateRunning {
				assert.Greater(t, snap.Generation, first.Generation)
				return
			}
		case <-deadline:
			t.Fatal("never saw running snapshot")
		}
	}
}

func TestController_Closed(t *testing.T) {
	c := NewController(Options{Backend: &fakeBackend{}, Resolver: testDevices})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	cancel()
	require.NoError(t, <-done)

	_, err := c.Enable(ctxT())
	assert.ErrorIs(t, err, ErrClosed)
	assert.Error(t, c.Run(context.Background()))
}

func TestState_JSON(t *testing.T) {
	for _, st := range []State{StateIdle, StateStarting, StateRunning, StateStopping} {
		data, err := json.Marshal(st)
		require.NoError(t, err)

		var got State
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, st, got)
	}

	var snap Snapshot
	require.NoError(t, json.Unmarshal([]byte(`{"state":"running","running":true}`), &snap))
	assert.Equal(t, StateRunning, snap.State)

	var st State
	assert.Error(t, json.Unmarshal([]byte(`"paused"`), &st))
	assert.Error(t, json.Unmarshal([]byte(`2`), &st))
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "", ErrorKind(nil))
	assert.Equal(t, "rejected", ErrorKind(&backend.ClientError{Kind: backend.ErrBackendRejected}))
	assert.Equal(t, "decode_failed", ErrorKind(&backend.ClientError{Kind: backend.ErrDecodeFailed}))
	assert.Equal(t, "unresolved_device", ErrorKind(ErrUnresolvedDevice))
	assert.Equal(t, "error", ErrorKind(context.DeadlineExceeded))
}
