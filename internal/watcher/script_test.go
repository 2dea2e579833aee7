// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/noclap/internal/events"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

type changeRecorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *changeRecorder) onChange(ctx context.Context, paths []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, paths)
	return nil
}

func (r *changeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *changeRecorder) last() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

func startWatcher(t *testing.T, script string, opts Options) *ScriptWatcher {
	t.Helper()
	w, err := New(script, opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	// Give the event loop a moment to start.
	time.Sleep(20 * time.Millisecond)
	return w
}

func TestScriptWatcher_MissingDirectory(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing", "main.py"), Options{})
	assert.Error(t, err)
}

func TestScriptWatcher_Dir(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "main.py")
	writeFile(t, script, "print('hi')\n")

	w, err := New(script, Options{})
	require.NoError(t, err)
	defer w.fs.Close()

	abs, _ := filepath.Abs(dir)
	assert.Equal(t, abs, w.Dir())
}

func TestScriptWatcher_Relevant(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "main.py")
	writeFile(t, script, "")

	w, err := New(script, Options{})
	require.NoError(t, err)
	defer w.fs.Close()

	tests := []struct {
		name string
		op   fsnotify.Op
		want bool
	}{
		{"main.py", fsnotify.Write, true},
		{"audio.py", fsnotify.Create, true},
		{"main.py", fsnotify.Rename, true},
		{"MAIN.PY", fsnotify.Write, true},
		{"main.py", fsnotify.Chmod, false},
		{"main.py", fsnotify.Remove, false},
		{"notes.txt", fsnotify.Write, false},
		{"main.pyc", fsnotify.Write, false},
		{".main.py.swp", fsnotify.Write, false},
		{".hidden.py", fsnotify.Write, false},
		{"main.py~", fsnotify.Write, false},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.op.String(), func(t *testing.T) {
			ev := fsnotify.Event{Name: filepath.Join(dir, tt.name), Op: tt.op}
			assert.Equal(t, tt.want, w.relevant(ev))
		})
	}
}

func TestScriptWatcher_CustomExtensions(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "main.py")
	writeFile(t, script, "")

	w, err := New(script, Options{Extensions: []string{".py", ".JSON"}})
	require.NoError(t, err)
	defer w.fs.Close()

	assert.True(t, w.relevant(fsnotify.Event{Name: filepath.Join(dir, "settings.json"), Op: fsnotify.Write}))
}

func TestScriptWatcher_FileChange(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "main.py")
	writeFile(t, script, "v = 1\n")

	bus := events.NewMemoryEventBus(events.MemoryBusConfig{HistoryMaxEvents: 100, HistoryMaxAge: time.Hour})
	defer bus.Close()

	var rec changeRecorder
	startWatcher(t, script, Options{
		Debounce: 50 * time.Millisecond,
		OnChange: rec.onChange,
		Bus:      bus,
	})

	// A burst of writes yields one restart.
	for i := 0; i < 5; i++ {
		writeFile(t, script, "v = 2\n")
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, rec.last(), script)

	history, err := bus.History(events.EventFilter{Types: []string{events.EventScriptChanged}})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, events.EventScriptChanged, history[0].Type)

	// Unrelated files are ignored.
	writeFile(t, filepath.Join(dir, "README.md"), "docs\n")
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestScriptWatcher_AtomicReplace(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "main.py")
	writeFile(t, script, "v = 1\n")

	var rec changeRecorder
	startWatcher(t, script, Options{Debounce: 50 * time.Millisecond, OnChange: rec.onChange})

	tmp := filepath.Join(dir, "main.py.tmp")
	writeFile(t, tmp, "v = 2\n")
	require.NoError(t, os.Rename(tmp, script))

	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, rec.last(), script)
}

func TestScriptWatcher_StopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "main.py")
	writeFile(t, script, "")

	var rec changeRecorder
	w, err := New(script, Options{Debounce: time.Hour, OnChange: rec.onChange})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	writeFile(t, script, "v = 3\n")
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// Pending changes are dropped once stopped.
	w.debouncer.Flush()
	assert.Equal(t, 0, rec.count())
}
