// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wingedpig/noclap/internal/backend"
	"github.com/wingedpig/noclap/internal/events"
)

type op int

const (
	opStart op = iota
	opStop
	opStatus
)

func (o op) String() string {
	switch o {
	case opStart:
		return "start"
	case opStop:
		return "stop"
	default:
		return "status"
	}
}

// request is the single start or stop in flight.
type request struct {
	token    uint64
	op       op
	reason   string // why a stop was issued
	input    string
	output   string
	inputID  int
	outputID int
	delayMs  float64
}

type result struct {
	token  uint64
	op     op
	err    error
	status backend.Status
}

// waiter is a caller blocked until no request is in flight.
type waiter struct {
	ch    chan reply
	check func() error
}

type pendingReply struct {
	ch  chan reply
	err error
}

type loopState struct {
	ctx         context.Context
	state       State
	intent      Intent
	active      *Active
	inflight    *request
	token       uint64 // last issued request token
	transitions uint64 // bumped on every state change; stamps status polls
	lastErr     error
	unavailable error // set while no backend can be launched
	ticker      *time.Ticker
	generation  uint64
	dirty       bool

	waiters         []waiter
	replies         []pendingReply
	pollWaiters     []chan reply
	pollOutstanding bool
}

func (l *loopState) ctxOrBackground() context.Context {
	if l.ctx == nil {
		return context.Background()
	}
	return l.ctx
}

func (l *loopState) transition(s State) {
	l.state = s
	l.transitions++
	l.dirty = true
}

func (c *Controller) enable(ch chan reply) {
	l := &c.loop
	if !l.intent.Enabled {
		if l.unavailable != nil {
			c.refuse(l.unavailable)
			l.replies = append(l.replies, pendingReply{ch: ch, err: l.unavailable})
			return
		}
		if _, _, err := c.resolve(); err != nil {
			c.refuse(err)
			l.replies = append(l.replies, pendingReply{ch: ch, err: err})
			return
		}
		l.intent.Enabled = true
		l.dirty = true
	}
	l.waiters = append(l.waiters, waiter{ch: ch, check: func() error {
		if l.state == StateRunning {
			return nil
		}
		if l.lastErr != nil {
			return l.lastErr
		}
		return ErrSuperseded
	}})
}

func (c *Controller) disable(ch chan reply) {
	l := &c.loop
	if l.intent.Enabled {
		l.intent.Enabled = false
		l.dirty = true
	}
	l.waiters = append(l.waiters, waiter{ch: ch, check: func() error { return nil }})
}

func (c *Controller) selectDevices(sel Selection, ch chan reply) {
	l := &c.loop
	wasEnabled := l.intent.Enabled

	if sel.Input != nil {
		l.intent.Input = *sel.Input
	}
	if sel.Output != nil {
		l.intent.Output = *sel.Output
	}
	if sel.DelayMs != nil {
		l.intent.DelayMs = *sel.DelayMs
	}
	l.dirty = true

	c.log.Debug("selection updated",
		zap.String("input", l.intent.Input),
		zap.String("output", l.intent.Output),
		zap.Float64("delay_ms", l.intent.DelayMs))

	l.waiters = append(l.waiters, waiter{ch: ch, check: func() error {
		if wasEnabled && !l.intent.Enabled && l.lastErr != nil {
			return l.lastErr
		}
		return nil
	}})
}

// reconcile issues the next request needed to move toward the intent.
func (c *Controller) reconcile() {
	l := &c.loop
	if l.inflight != nil {
		return
	}

	switch l.state {
	case StateIdle:
		if l.intent.Enabled {
			c.beginStart()
		}
	case StateRunning:
		if !l.intent.Enabled {
			c.beginStop("disabled")
		} else if c.needsRestart() {
			c.beginStop("reselected")
		}
	}
}

func (c *Controller) needsRestart() bool {
	l := &c.loop
	a := l.active
	if a == nil {
		return false
	}
	if a.Input != l.intent.Input || a.Output != l.intent.Output {
		return true
	}
	return !c.deferDelay && a.DelayMs != l.intent.DelayMs
}

func (c *Controller) resolve() (int, int, error) {
	l := &c.loop
	if l.intent.Input == "" || l.intent.Output == "" {
		return 0, 0, ErrNoSelection
	}
	inputID, ok := c.resolver.ResolveInput(l.intent.Input)
	if !ok {
		return 0, 0, fmt.Errorf("%w: input %q", ErrUnresolvedDevice, l.intent.Input)
	}
	outputID, ok := c.resolver.ResolveOutput(l.intent.Output)
	if !ok {
		return 0, 0, fmt.Errorf("%w: output %q", ErrUnresolvedDevice, l.intent.Output)
	}
	return inputID, outputID, nil
}

// refuse records a failed precondition. State stays Idle and routing off.
func (c *Controller) refuse(err error) {
	l := &c.loop
	l.intent.Enabled = false
	l.lastErr = err
	l.dirty = true

	c.log.Info("routing refused", zap.Error(err))
	c.emit(events.EventRoutingRefused, map[string]interface{}{
		"reason": ErrorKind(err),
		"error":  err.Error(),
		"input":  l.intent.Input,
		"output": l.intent.Output,
	})
}

func (c *Controller) beginStart() {
	l := &c.loop
	inputID, outputID, err := c.resolve()
	if err != nil {
		c.refuse(err)
		return
	}

	l.token++
	req := &request{
		token:    l.token,
		op:       opStart,
		input:    l.intent.Input,
		output:   l.intent.Output,
		inputID:  inputID,
		outputID: outputID,
		delayMs:  l.intent.DelayMs,
	}
	l.inflight = req
	l.lastErr = nil
	l.transition(StateStarting)

	c.log.Info("starting routing",
		zap.Uint64("token", req.token),
		zap.String("input", req.input),
		zap.Int("input_id", inputID),
		zap.String("output", req.output),
		zap.Int("output_id", outputID),
		zap.Float64("delay_ms", req.delayMs))
	c.emit(events.EventRoutingStarting, map[string]interface{}{
		"input":    req.input,
		"output":   req.output,
		"delay_ms": req.delayMs,
	})

	go func() {
		ctx, cancel := context.WithTimeout(l.ctxOrBackground(), c.requestTimeout)
		defer cancel()
		err := c.backend.Start(ctx, req.inputID, req.outputID, req.delayMs)
		c.post(result{token: req.token, op: opStart, err: err})
	}()
}

func (c *Controller) beginStop(reason string) {
	l := &c.loop
	l.token++
	req := &request{token: l.token, op: opStop, reason: reason}
	l.inflight = req
	l.transition(StateStopping)

	c.log.Info("stopping routing", zap.Uint64("token", req.token), zap.String("reason", reason))

	go func() {
		ctx, cancel := context.WithTimeout(l.ctxOrBackground(), c.requestTimeout)
		defer cancel()
		err := c.backend.Stop(ctx)
		c.post(result{token: req.token, op: opStop, err: err})
	}()
}

func (c *Controller) startPoll() {
	l := &c.loop
	if l.pollOutstanding {
		return
	}
	l.pollOutstanding = true
	stamp := l.transitions

	go func() {
		ctx, cancel := context.WithTimeout(l.ctxOrBackground(), c.requestTimeout)
		defer cancel()
		status, err := c.backend.Status(ctx)
		c.post(result{token: stamp, op: opStatus, status: status, err: err})
	}()
}

func (c *Controller) post(r result) {
	select {
	case c.results <- r:
	case <-c.done:
	}
}

func (c *Controller) handleResult(r result) {
	if r.op == opStatus {
		c.applyStatus(r)
		return
	}

	l := &c.loop
	if l.inflight == nil || l.inflight.token != r.token {
		c.log.Debug("discarding stale result", zap.Stringer("op", r.op), zap.Uint64("token", r.token), zap.Error(r.err))
		return
	}
	req := l.inflight
	l.inflight = nil

	switch r.op {
	case opStart:
		if r.err != nil {
			l.intent.Enabled = false
			l.lastErr = r.err
			l.transition(StateIdle)

			c.log.Warn("routing start failed", zap.Uint64("token", req.token), zap.Error(r.err))
			c.emit(events.EventRoutingFailed, map[string]interface{}{
				"kind":  ErrorKind(r.err),
				"error": r.err.Error(),
			})
			return
		}

		l.active = &Active{
			SessionID: uuid.NewString(),
			Input:     req.input,
			Output:    req.output,
			InputID:   req.inputID,
			OutputID:  req.outputID,
			DelayMs:   req.delayMs,
			StartedAt: time.Now(),
		}
		l.transition(StateRunning)

		c.log.Info("routing started", zap.String("session_id", l.active.SessionID))
		c.emit(events.EventRoutingStarted, map[string]interface{}{
			"session_id": l.active.SessionID,
			"input":      req.input,
			"output":     req.output,
			"delay_ms":   req.delayMs,
		})

	case opStop:
		if r.err != nil {
			c.log.Warn("routing stop failed, treating as stopped", zap.Error(r.err))
		}
		c.endSession(req.reason)
	}
}

func (c *Controller) applyStatus(r result) {
	l := &c.loop
	l.pollOutstanding = false
	for _, ch := range l.pollWaiters {
		l.replies = append(l.replies, pendingReply{ch: ch, err: r.err})
	}
	l.pollWaiters = nil

	if r.err != nil {
		if backend.IsUnreachable(r.err) {
			c.log.Debug("status poll: backend unreachable", zap.Error(r.err))
		} else {
			c.log.Warn("status poll failed", zap.Error(r.err))
		}
		return
	}

	if l.inflight != nil || r.token != l.transitions {
		c.log.Debug("discarding stale status", zap.Uint64("stamp", r.token), zap.Uint64("transitions", l.transitions))
		return
	}

	switch {
	case r.status.IsRunning && l.state == StateIdle:
		c.adopt(r.status)

	case !r.status.IsRunning && l.state == StateRunning:
		c.log.Warn("backend reports routing stopped")
		l.intent.Enabled = false
		l.lastErr = ErrBackendStopped
		c.endSession("backend_stopped")
	}
}

// adopt takes over a session the backend is already running. The intent is
// rewritten to match it so reconcile leaves the session alone.
func (c *Controller) adopt(status backend.Status) {
	l := &c.loop
	input, output := l.intent.Input, l.intent.Output
	inputID, outputID, delay := statusDeviceIDs(status)

	if status.InputDevice != nil {
		input, _ = c.resolver.InputName(inputID)
	} else if id, ok := c.resolver.ResolveInput(input); ok {
		inputID = id
	}
	if status.OutputDevice != nil {
		output, _ = c.resolver.OutputName(outputID)
	} else if id, ok := c.resolver.ResolveOutput(output); ok {
		outputID = id
	}
	if status.DelayMs == nil {
		delay = l.intent.DelayMs
	}

	l.intent = Intent{Input: input, Output: output, DelayMs: delay, Enabled: true}
	l.active = &Active{
		SessionID: uuid.NewString(),
		Input:     input,
		Output:    output,
		InputID:   inputID,
		OutputID:  outputID,
		DelayMs:   delay,
		StartedAt: time.Now(),
	}
	l.lastErr = nil
	l.transition(StateRunning)

	c.log.Info("backend reports routing running, adopting session",
		zap.String("session_id", l.active.SessionID),
		zap.String("input", input),
		zap.String("output", output),
		zap.Float64("delay_ms", delay))
	c.emit(events.EventRoutingStarted, map[string]interface{}{
		"session_id": l.active.SessionID,
		"input":      input,
		"output":     output,
		"delay_ms":   delay,
		"adopted":    true,
	})
}

func (c *Controller) backendExited(info string) {
	l := &c.loop
	if l.state == StateIdle && l.inflight == nil {
		return
	}

	// Any in-flight result is now stale.
	l.inflight = nil
	l.intent.Enabled = false
	l.lastErr = fmt.Errorf("%w: %s", ErrBackendExited, info)
	c.log.Warn("backend exited during session", zap.String("info", info))
	c.endSession("backend_exited")
}

func (c *Controller) backendUnavailable(err error) {
	l := &c.loop
	l.unavailable = fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	l.lastErr = l.unavailable
	l.intent.Enabled = false
	l.dirty = true
	c.log.Warn("backend unavailable", zap.Error(err))

	if l.state != StateIdle || l.inflight != nil {
		l.inflight = nil
		c.endSession("backend_unavailable")
	}
}

func (c *Controller) backendAvailable() {
	l := &c.loop
	if l.unavailable == nil {
		return
	}
	if l.lastErr == l.unavailable {
		l.lastErr = nil
	}
	l.unavailable = nil
	l.dirty = true
}

func (c *Controller) endSession(reason string) {
	l := &c.loop
	var sessionID string
	if l.active != nil {
		sessionID = l.active.SessionID
	}
	l.active = nil
	l.transition(StateIdle)

	c.log.Info("routing stopped", zap.String("reason", reason), zap.String("session_id", sessionID))
	c.emit(events.EventRoutingStopped, map[string]interface{}{
		"reason":     reason,
		"session_id": sessionID,
	})
}

// settle publishes pending changes and answers callers whose request is done.
func (c *Controller) settle() {
	l := &c.loop
	if l.dirty {
		c.publish()
		l.dirty = false
	}

	snap := c.Snapshot()
	for _, r := range l.replies {
		r.ch <- reply{snap: snap, err: r.err}
	}
	l.replies = nil

	if l.inflight != nil || len(l.waiters) == 0 {
		return
	}
	for _, w := range l.waiters {
		w.ch <- reply{snap: snap, err: w.check()}
	}
	l.waiters = nil
}

func (c *Controller) closeWaiters() {
	l := &c.loop
	snap := c.Snapshot()
	for _, w := range l.waiters {
		w.ch <- reply{snap: snap, err: ErrClosed}
	}
	for _, r := range l.replies {
		r.ch <- reply{snap: snap, err: r.err}
	}
	for _, ch := range l.pollWaiters {
		ch <- reply{snap: snap, err: ErrClosed}
	}
	l.waiters, l.replies, l.pollWaiters = nil, nil, nil
}
