// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package watcher restarts the backend when its source changes on disk.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/wingedpig/noclap/internal/events"
	"github.com/wingedpig/noclap/internal/logging"
)

// ChangeFunc is called with the changed files after a debounced burst.
type ChangeFunc func(ctx context.Context, paths []string) error

// Options configures a ScriptWatcher.
type Options struct {
	Debounce   time.Duration
	Extensions []string // default [".py"]
	OnChange   ChangeFunc
	Bus        events.EventBus
	Logger     *zap.Logger
}

// ScriptWatcher watches the directory holding the backend script.
// Editors often replace files by rename, so the directory is watched rather
// than the file itself.
type ScriptWatcher struct {
	script     string
	dir        string
	extensions map[string]bool
	onChange   ChangeFunc
	bus        events.EventBus
	log        *zap.Logger

	fs        *fsnotify.Watcher
	debouncer *Debouncer

	mu  sync.Mutex
	ctx context.Context
}

// New creates a watcher for script's directory. Call Run to start it.
func New(script string, opts Options) (*ScriptWatcher, error) {
	abs, err := filepath.Abs(script)
	if err != nil {
		return nil, fmt.Errorf("resolve script path: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	dir := filepath.Dir(abs)
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	exts := opts.Extensions
	if len(exts) == 0 {
		exts = []string{".py"}
	}

	w := &ScriptWatcher{
		script:     abs,
		dir:        dir,
		extensions: make(map[string]bool, len(exts)),
		onChange:   opts.OnChange,
		bus:        opts.Bus,
		log:        logging.OrNop(opts.Logger).Named(logging.ComponentWatcher),
		fs:         fsWatcher,
		ctx:        context.Background(),
	}
	for _, ext := range exts {
		w.extensions[strings.ToLower(ext)] = true
	}
	w.debouncer = NewDebouncer(opts.Debounce, w.changed)
	return w, nil
}

// Dir returns the watched directory.
func (w *ScriptWatcher) Dir() string {
	return w.dir
}

// Run processes file events until ctx is done, then releases the watcher.
func (w *ScriptWatcher) Run(ctx context.Context) error {
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()

	defer w.fs.Close()
	defer w.debouncer.Stop()

	w.log.Info("watching backend source", zap.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if w.relevant(event) {
				w.log.Debug("source event", zap.String("path", event.Name), zap.Stringer("op", event.Op))
				w.debouncer.Add(event.Name)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))
		}
	}
}

// relevant filters out chmod-only events, editor temporaries and files
// the backend cannot load.
func (w *ScriptWatcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	return w.extensions[strings.ToLower(filepath.Ext(base))]
}

func (w *ScriptWatcher) changed(paths []string) {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	if ctx.Err() != nil {
		return
	}

	w.log.Info("backend source changed", zap.Strings("paths", paths))
	events.Emit(ctx, w.bus, events.EventScriptChanged, logging.ComponentWatcher, map[string]interface{}{
		"script": w.script,
		"paths":  paths,
	})

	if w.onChange == nil {
		return
	}
	if err := w.onChange(ctx, paths); err != nil {
		w.log.Error("restart after source change failed", zap.Error(err))
	}
}
