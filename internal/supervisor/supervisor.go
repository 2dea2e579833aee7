// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package supervisor owns the lifetime of the backend child process.
//
// At most one child exists at a time. The child runs in its own process
// group with stdout and stderr merged into a single pipe; every line is
// kept in a ring buffer and forwarded to the panel's log. Termination
// signals the whole group and escalates to SIGKILL after a timeout.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wingedpig/noclap/internal/events"
	"github.com/wingedpig/noclap/internal/locator"
	"github.com/wingedpig/noclap/internal/logging"
)

const (
	defaultStopTimeout = 5 * time.Second
	outputDrainTimeout = time.Second
	crashContextLines  = 50
	maxLineLen         = 64 * 1024
)

// Options configures a Supervisor.
type Options struct {
	StopSignal  string        // SIGTERM (default), SIGINT or SIGKILL
	StopTimeout time.Duration // Grace period before SIGKILL
	LogBuffer   int           // Lines of output kept in memory
	Env         []string      // Extra KEY=VALUE pairs for the child
	Bus         events.EventBus
	Logger      *zap.Logger
}

// Supervisor launches and terminates the backend child.
type Supervisor struct {
	stopSignal  syscall.Signal
	stopTimeout time.Duration
	env         []string
	bus         events.EventBus
	log         *zap.Logger
	out         *zap.Logger
	logs        *LogBuffer
	analyzer    *CrashAnalyzer
	restartMu   sync.Mutex

	mu            sync.RWMutex
	cmd           *exec.Cmd
	state         State
	paths         locator.Paths
	baseCtx       context.Context
	launched      bool
	pid           int
	exitCode      int
	startedAt     time.Time
	stoppedAt     time.Time
	restarts      int
	crash         *CrashResult
	unavailable   error
	stopRequested bool
	waitDone      chan struct{}
	onExit        []func(ExitInfo)
}

// New creates a supervisor. Nothing is spawned until Launch.
func New(opts Options) *Supervisor {
	logger := logging.OrNop(opts.Logger)

	timeout := opts.StopTimeout
	if timeout <= 0 {
		timeout = defaultStopTimeout
	}

	return &Supervisor{
		stopSignal:  parseSignal(opts.StopSignal),
		stopTimeout: timeout,
		env:         opts.Env,
		bus:         opts.Bus,
		log:         logger.Named(logging.ComponentSupervisor),
		out:         logger.Named(logging.ComponentBackend),
		logs:        NewLogBuffer(opts.LogBuffer),
		analyzer:    NewCrashAnalyzer(),
		state:       StateStopped,
	}
}

// Launch spawns "<runtime> <script>" with the script's directory as working
// directory. Cancelling ctx kills the child's process group; Terminate is
// the orderly path.
func (s *Supervisor) Launch(ctx context.Context, paths locator.Paths) error {
	s.mu.Lock()
	if s.cmd != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}

	if err := s.start(ctx, paths); err != nil {
		s.state = StateUnavailable
		s.unavailable = err
		s.mu.Unlock()
		s.log.Error("backend launch failed",
			zap.String("runtime", paths.Runtime),
			zap.String("script", paths.Script),
			zap.Error(err))
		return err
	}
	pid := s.pid
	s.mu.Unlock()

	s.log.Info("backend launched",
		zap.Int("pid", pid),
		zap.String("runtime", paths.Runtime),
		zap.String("script", paths.Script),
		zap.Bool("packaged", paths.Packaged))
	events.Emit(ctx, s.bus, events.EventBackendLaunched, logging.ComponentSupervisor, map[string]interface{}{
		"pid":     pid,
		"runtime": paths.Runtime,
		"script":  paths.Script,
	})
	return nil
}

// start spawns the child. Caller holds s.mu.
func (s *Supervisor) start(ctx context.Context, paths locator.Paths) error {
	launchErr := func(err error) error {
		s.logs.Write(fmt.Sprintf("[noclap] failed to start: %v", err))
		return &LaunchError{Runtime: paths.Runtime, Script: paths.Script, Err: err}
	}

	if paths.Runtime == "" || paths.Script == "" {
		return launchErr(errors.New("runtime and script are required"))
	}

	r, w, err := os.Pipe()
	if err != nil {
		return launchErr(fmt.Errorf("output pipe: %w", err))
	}

	cmd := exec.CommandContext(ctx, paths.Runtime, paths.Script)
	cmd.Dir = filepath.Dir(paths.Script)
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")
	cmd.Env = append(cmd.Env, s.env...)
	cmd.SysProcAttr = sysProcAttr()
	cmd.Stdout = w
	cmd.Stderr = w
	cmd.Cancel = func() error {
		return signalGroup(cmd.Process.Pid, syscall.SIGKILL)
	}

	s.logs.Write(fmt.Sprintf("[noclap] starting: %s %s (workdir: %s)", paths.Runtime, paths.Script, cmd.Dir))

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return launchErr(err)
	}
	// The child holds its own copy of the write end.
	w.Close()

	s.baseCtx = ctx
	s.cmd = cmd
	s.paths = paths
	s.launched = true
	s.pid = cmd.Process.Pid
	s.exitCode = 0
	s.startedAt = time.Now()
	s.stoppedAt = time.Time{}
	s.crash = nil
	s.unavailable = nil
	s.stopRequested = false
	s.state = StateRunning
	s.waitDone = make(chan struct{})

	outputDone := make(chan struct{})
	go s.captureOutput(r, outputDone)
	go s.waitForExit(ctx, cmd, r, outputDone, s.waitDone)

	return nil
}

// Terminate stops the child if one is running. It signals the process group
// with the stop signal and escalates to SIGKILL after the stop timeout or
// when ctx is done. Calling it again while a termination is in progress
// waits for that termination without signalling again.
func (s *Supervisor) Terminate(ctx context.Context) error {
	s.mu.Lock()
	if s.cmd == nil {
		s.mu.Unlock()
		return nil
	}

	waitDone := s.waitDone
	if s.stopRequested {
		s.mu.Unlock()
		select {
		case <-waitDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.stopRequested = true
	s.state = StateStopping
	pid := s.pid
	s.mu.Unlock()

	s.log.Info("terminating backend", zap.Int("pid", pid), zap.Stringer("signal", s.stopSignal))
	if err := signalGroup(pid, s.stopSignal); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.log.Warn("stop signal failed", zap.Int("pid", pid), zap.Error(err))
	}

	select {
	case <-waitDone:
	case <-time.After(s.stopTimeout):
		s.log.Warn("backend did not exit in time, killing", zap.Int("pid", pid), zap.Duration("timeout", s.stopTimeout))
		signalGroup(pid, syscall.SIGKILL)
		<-waitDone
	case <-ctx.Done():
		signalGroup(pid, syscall.SIGKILL)
		<-waitDone
	}

	return nil
}

// Restart terminates the current child, if any, and launches a new one with
// the paths of the last successful Launch. Concurrent restarts are serialized.
func (s *Supervisor) Restart(ctx context.Context, trigger events.RestartTrigger) error {
	s.restartMu.Lock()
	defer s.restartMu.Unlock()

	s.mu.RLock()
	launched := s.launched
	paths := s.paths
	base := s.baseCtx
	s.mu.RUnlock()

	if !launched {
		return ErrNotLaunched
	}

	if err := s.Terminate(ctx); err != nil {
		return fmt.Errorf("restart: %w", err)
	}

	if err := s.Launch(base, paths); err != nil {
		return fmt.Errorf("restart: %w", err)
	}

	s.mu.Lock()
	s.restarts++
	count := s.restarts
	s.mu.Unlock()

	s.log.Info("backend restarted", zap.String("trigger", string(trigger)), zap.Int("restarts", count))
	events.Emit(ctx, s.bus, events.EventBackendRestarted, logging.ComponentSupervisor, map[string]interface{}{
		"trigger":  string(trigger),
		"restarts": count,
	})
	return nil
}

// MarkUnavailable records that no backend can be launched, e.g. because it
// could not be located. It has no effect while a child is running.
func (s *Supervisor) MarkUnavailable(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil {
		return
	}
	s.state = StateUnavailable
	s.unavailable = err
}

// Running reports whether a child is currently alive.
func (s *Supervisor) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cmd != nil
}

// Done returns a channel closed when the current child exits. With no child
// it returns a closed channel.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cmd == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.waitDone
}

// Status returns the current process status.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		State:     s.state,
		PID:       s.pid,
		ExitCode:  s.exitCode,
		StartedAt: s.startedAt,
		StoppedAt: s.stoppedAt,
		Restarts:  s.restarts,
		Runtime:   s.paths.Runtime,
		Script:    s.paths.Script,
		Crash:     s.crash,
	}
	if s.unavailable != nil {
		st.Error = s.unavailable.Error()
	}
	return st
}

// Logs returns the last n lines of combined output.
func (s *Supervisor) Logs(n int) []string {
	return s.logs.Lines(n)
}

// LogEntries returns the last n lines with sequence numbers and timestamps.
func (s *Supervisor) LogEntries(n int) []LogLine {
	return s.logs.Entries(n)
}

// SubscribeLogs returns a channel that receives new output lines.
func (s *Supervisor) SubscribeLogs() chan LogLine {
	return s.logs.Subscribe()
}

// UnsubscribeLogs removes a log subscription.
func (s *Supervisor) UnsubscribeLogs(ch chan LogLine) {
	s.logs.Unsubscribe(ch)
}

// OnExit registers a callback invoked after every child exit, requested or not.
func (s *Supervisor) OnExit(fn func(ExitInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExit = append(s.onExit, fn)
}

func (s *Supervisor) captureOutput(r io.Reader, done chan<- struct{}) {
	defer close(done)

	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimRight(line, "\r\n")
			if len(line) > maxLineLen {
				line = line[:maxLineLen] + "... [truncated]"
			}
			s.logs.Write(line)
			s.out.Info(line, zap.String("stream", "combined"))
		}
		if err != nil {
			if err != io.EOF && !errors.Is(err, os.ErrClosed) {
				s.logs.Write(fmt.Sprintf("[noclap] output read error: %v", err))
			}
			return
		}
	}
}

func (s *Supervisor) waitForExit(ctx context.Context, cmd *exec.Cmd, r *os.File, outputDone <-chan struct{}, waitDone chan struct{}) {
	err := cmd.Wait()

	// Grandchildren may hold the pipe open; don't wait on them forever.
	select {
	case <-outputDone:
	case <-time.After(outputDrainTimeout):
	}
	r.Close()

	exitCode := exitStatus(err)

	s.mu.Lock()
	requested := s.stopRequested || ctx.Err() != nil
	pid := s.pid

	var crash *CrashResult
	switch {
	case requested:
		s.state = StateStopped
	case exitCode == 0:
		s.state = StateExited
	default:
		s.state = StateCrashed
		crash = s.analyzer.Analyze(s.logs.Lines(crashContextLines), exitCode)
	}
	if err != nil && exitCode == 0 && !requested {
		// Wait failed without an exit status
		s.state = StateCrashed
		exitCode = -1
		crash = &CrashResult{Reason: CrashReasonUnknown, Details: err.Error(), ExitCode: exitCode}
	}

	s.exitCode = exitCode
	s.crash = crash
	s.stoppedAt = time.Now()
	s.cmd = nil
	s.pid = 0
	s.stopRequested = false
	callbacks := make([]func(ExitInfo), len(s.onExit))
	copy(callbacks, s.onExit)
	s.mu.Unlock()

	if requested {
		s.logs.Write("[noclap] backend stopped")
	} else {
		s.logs.Write(fmt.Sprintf("[noclap] backend exited with code %d", exitCode))
	}

	close(waitDone)

	fields := []zap.Field{zap.Int("pid", pid), zap.Int("exit_code", exitCode), zap.Bool("requested", requested)}
	payload := map[string]interface{}{"pid": pid, "exit_code": exitCode, "requested": requested}
	emitCtx := context.WithoutCancel(ctx)

	if crash != nil {
		s.log.Error("backend crashed", append(fields, zap.String("reason", crash.Summary()))...)
		events.Emit(emitCtx, s.bus, events.EventBackendCrashed, logging.ComponentSupervisor, map[string]interface{}{
			"pid":       pid,
			"exit_code": exitCode,
			"reason":    crash.Reason.String(),
			"details":   crash.Details,
			"location":  crash.Location,
		})
	} else {
		s.log.Info("backend exited", fields...)
	}
	events.Emit(emitCtx, s.bus, events.EventBackendExited, logging.ComponentSupervisor, payload)

	info := ExitInfo{PID: pid, ExitCode: exitCode, Requested: requested, Crash: crash}
	for _, fn := range callbacks {
		fn(info)
	}
}

// exitStatus maps a Wait error to a shell-style exit code: the process exit
// status, or 128+n when killed by signal n.
func exitStatus(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return 0
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return exitErr.ExitCode()
}

// signalGroup signals the process group led by pid.
func signalGroup(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return syscall.ESRCH
	}
	return syscall.Kill(-pid, sig)
}

func parseSignal(name string) syscall.Signal {
	switch name {
	case "SIGINT":
		return syscall.SIGINT
	case "SIGKILL":
		return syscall.SIGKILL
	default:
		return syscall.SIGTERM
	}
}
