// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package session implements the routing session controller.
//
// All session state is owned by the goroutine running Controller.Run.
// Public methods post a command to that goroutine and wait for the state
// to settle. Backend calls run in their own goroutines and post their
// results back, tagged with a request token; a result whose token is no
// longer current is discarded. At most one start or stop is in flight, and
// the user's latest intent is reconciled once it completes.
package session

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wingedpig/noclap/internal/backend"
	"github.com/wingedpig/noclap/internal/config"
	"github.com/wingedpig/noclap/internal/events"
	"github.com/wingedpig/noclap/internal/logging"
)

const (
	defaultRequestTimeout = 5 * time.Second
	subscriberBuffer      = 16
)

// Options configures a Controller.
type Options struct {
	Backend        Backend
	Resolver       Resolver
	Bus            events.EventBus
	Logger         *zap.Logger
	DefaultDelayMs float64
	DelayChange    string        // config.DelayChangeRestart (default) or config.DelayChangeDeferred
	StatusInterval time.Duration // zero disables periodic polling
	RequestTimeout time.Duration
}

// Controller coordinates routing intent with the backend.
type Controller struct {
	backend        Backend
	resolver       Resolver
	bus            events.EventBus
	log            *zap.Logger
	deferDelay     bool
	statusInterval time.Duration
	requestTimeout time.Duration

	cmds    chan command
	results chan result
	done    chan struct{}
	started atomic.Bool

	current atomic.Pointer[Snapshot]
	subMu   sync.RWMutex
	subs    map[chan Snapshot]struct{}

	// Owned by the Run goroutine.
	loop loopState
}

type command func(c *Controller)

type reply struct {
	snap Snapshot
	err  error
}

// NewController creates a controller in the Idle state. Call Run to start it.
func NewController(opts Options) *Controller {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	c := &Controller{
		backend:        opts.Backend,
		resolver:       opts.Resolver,
		bus:            opts.Bus,
		log:            logging.OrNop(opts.Logger).Named(logging.ComponentSession),
		deferDelay:     opts.DelayChange == config.DelayChangeDeferred,
		statusInterval: opts.StatusInterval,
		requestTimeout: timeout,
		cmds:           make(chan command, 16),
		results:        make(chan result, 4),
		done:           make(chan struct{}),
		subs:           make(map[chan Snapshot]struct{}),
	}
	c.loop.intent.DelayMs = opts.DefaultDelayMs
	c.publish()
	return c
}

// Run owns the session state until ctx is done. It may be called once.
func (c *Controller) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return fmt.Errorf("session controller already running")
	}
	defer close(c.done)

	c.loop.ctx = ctx

	defer func() {
		if c.loop.ticker != nil {
			c.loop.ticker.Stop()
		}
	}()

	c.log.Debug("session controller started",
		zap.Float64("delay_ms", c.loop.intent.DelayMs),
		zap.Bool("deferred_delay", c.deferDelay))

	for {
		var tick <-chan time.Time
		if c.loop.ticker != nil {
			tick = c.loop.ticker.C
		}

		select {
		case <-ctx.Done():
			c.closeWaiters()
			return nil
		case cmd := <-c.cmds:
			cmd(c)
		case r := <-c.results:
			c.handleResult(r)
		case <-tick:
			c.startPoll()
		}
		c.reconcile()
		c.settle()
	}
}

// Snapshot returns the latest published state. It never blocks.
func (c *Controller) Snapshot() Snapshot {
	return *c.current.Load()
}

// Enable asks for routing to be on and waits until the backend confirmed
// it or refused. A missing or stale selection is refused without contacting
// the backend.
func (c *Controller) Enable(ctx context.Context) (Snapshot, error) {
	return c.call(ctx, func(c *Controller, ch chan reply) {
		c.enable(ch)
	})
}

// Disable asks for routing to be off and waits until it is. Stop failures
// are logged; the session still ends Idle.
func (c *Controller) Disable(ctx context.Context) (Snapshot, error) {
	return c.call(ctx, func(c *Controller, ch chan reply) {
		c.disable(ch)
	})
}

// Toggle flips the enabled intent.
func (c *Controller) Toggle(ctx context.Context) (Snapshot, error) {
	return c.call(ctx, func(c *Controller, ch chan reply) {
		if c.loop.intent.Enabled {
			c.disable(ch)
		} else {
			c.enable(ch)
		}
	})
}

// Select updates the selection and delay. While routing is on, a device
// change restarts the session; a delay change does too unless the delay
// policy is deferred.
func (c *Controller) Select(ctx context.Context, sel Selection) (Snapshot, error) {
	if sel.DelayMs != nil && !validDelay(*sel.DelayMs) {
		return c.Snapshot(), fmt.Errorf("%w: %v ms (allowed 0-%d)", ErrInvalidDelay, *sel.DelayMs, config.MaxDelayMs)
	}
	return c.call(ctx, func(c *Controller, ch chan reply) {
		c.selectDevices(sel, ch)
	})
}

func validDelay(d float64) bool {
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return false
	}
	return d >= 0 && d <= config.MaxDelayMs
}

// Poll fetches backend status and reconciles it with local state. The
// returned error is the poll's own error; Unreachable never changes state.
func (c *Controller) Poll(ctx context.Context) (Snapshot, error) {
	return c.call(ctx, func(c *Controller, ch chan reply) {
		c.loop.pollWaiters = append(c.loop.pollWaiters, ch)
		c.startPoll()
	})
}

// BackendExited tells the controller the backend process is gone. It does
// not wait for the state change.
func (c *Controller) BackendExited(info string) {
	c.notify(func(c *Controller) { c.backendExited(info) })
}

// BackendUnavailable records that no backend could be located or launched.
// Enable is refused with ErrBackendUnavailable until BackendAvailable.
func (c *Controller) BackendUnavailable(err error) {
	c.notify(func(c *Controller) { c.backendUnavailable(err) })
}

// BackendAvailable clears a previous BackendUnavailable.
func (c *Controller) BackendAvailable() {
	c.notify(func(c *Controller) { c.backendAvailable() })
}

// StartPolling begins periodic status polls, if a status interval is
// configured. Polls never run before the first call, so the device list can
// be loaded before the session is reconciled. Later calls have no effect.
func (c *Controller) StartPolling() {
	c.notify(func(c *Controller) {
		if c.statusInterval > 0 && c.loop.ticker == nil {
			c.loop.ticker = time.NewTicker(c.statusInterval)
			c.log.Debug("status polling started", zap.Duration("interval", c.statusInterval))
		}
	})
}

// notify posts a command without waiting for it to run.
func (c *Controller) notify(cmd command) {
	select {
	case c.cmds <- cmd:
	case <-c.done:
	}
}

// Subscribe returns a channel receiving every published snapshot. Slow
// subscribers miss intermediate snapshots.
func (c *Controller) Subscribe() chan Snapshot {
	ch := make(chan Snapshot, subscriberBuffer)
	c.subMu.Lock()
	c.subs[ch] = struct{}{}
	c.subMu.Unlock()
	ch <- c.Snapshot()
	return ch
}

// Unsubscribe removes and closes a subscription.
func (c *Controller) Unsubscribe(ch chan Snapshot) {
	c.subMu.Lock()
	if _, ok := c.subs[ch]; ok {
		delete(c.subs, ch)
		close(ch)
	}
	c.subMu.Unlock()
}

func (c *Controller) call(ctx context.Context, fn func(c *Controller, ch chan reply)) (Snapshot, error) {
	ch := make(chan reply, 1)
	cmd := func(c *Controller) { fn(c, ch) }

	select {
	case c.cmds <- cmd:
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	case <-c.done:
		return c.Snapshot(), ErrClosed
	}

	select {
	case r := <-ch:
		return r.snap, r.err
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	case <-c.done:
		return c.Snapshot(), ErrClosed
	}
}

// publish stores a new snapshot and fans it out. Loop goroutine only,
// except for the initial call in NewController.
func (c *Controller) publish() {
	l := &c.loop
	l.generation++

	snap := Snapshot{
		State:      l.state,
		Running:    l.state == StateRunning,
		Intent:     l.intent,
		Pending:    l.inflight != nil,
		ErrorKind:  ErrorKind(l.lastErr),
		Generation: l.generation,
		UpdatedAt:  time.Now(),
	}
	if l.active != nil {
		active := *l.active
		snap.Active = &active
	}
	if l.lastErr != nil {
		snap.LastError = l.lastErr.Error()
	}
	c.current.Store(&snap)

	c.subMu.RLock()
	for ch := range c.subs {
		select {
		case ch <- snap:
		default:
		}
	}
	c.subMu.RUnlock()
}

func (c *Controller) emit(eventType string, payload map[string]interface{}) {
	events.Emit(context.WithoutCancel(c.loop.ctxOrBackground()), c.bus, eventType, logging.ComponentSession, payload)
}

// statusDeviceIDs extracts the ids a backend status reports, if any.
func statusDeviceIDs(s backend.Status) (int, int, float64) {
	var in, out int
	var delay float64
	if s.InputDevice != nil {
		in = *s.InputDevice
	}
	if s.OutputDevice != nil {
		out = *s.OutputDevice
	}
	if s.DelayMs != nil {
		delay = *s.DelayMs
	}
	return in, out, delay
}
