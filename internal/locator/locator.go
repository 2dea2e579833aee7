// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package locator resolves the backend script and the runtime that executes it.
//
// The script is looked up in the packaged (release) resource directories
// first, then at a single development-tree path. The runtime is the first
// existing entry of a fixed, ordered candidate list. Both lookups are pure
// filesystem lookups: a failure is final for the lifetime of the panel.
package locator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wingedpig/noclap/internal/config"
)

var (
	// ErrScriptNotFound means neither a packaged nor a development script exists.
	ErrScriptNotFound = errors.New("backend script not found")
	// ErrRuntimeNotFound means none of the runtime candidates exists.
	ErrRuntimeNotFound = errors.New("backend runtime not found")
)

// Error describes a failed lookup and every path that was tried.
type Error struct {
	Err      error // ErrScriptNotFound or ErrRuntimeNotFound
	Searched []string
}

func (e *Error) Error() string {
	if len(e.Searched) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (searched: %s)", e.Err, strings.Join(e.Searched, ", "))
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Paths is a fully resolved backend launch target.
type Paths struct {
	Runtime  string `json:"runtime"`
	Script   string `json:"script"`
	Packaged bool   `json:"packaged"` // Script came from a resource directory
}

// Locator searches the filesystem for the backend.
type Locator struct {
	scriptName   string
	resourceDirs []string
	devScript    string
	runtimes     []string

	stat func(string) (os.FileInfo, error)
}

// New creates a locator from backend configuration.
func New(cfg config.BackendConfig) *Locator {
	return &Locator{
		scriptName:   cfg.ScriptName,
		resourceDirs: cfg.ResourceDirs,
		devScript:    cfg.DevScript,
		runtimes:     cfg.Runtimes,
		stat:         os.Stat,
	}
}

// Locate resolves both the script and the runtime. Either failure is returned
// as an *Error; no partial result is returned.
func (l *Locator) Locate() (Paths, error) {
	script, packaged, err := l.Script()
	if err != nil {
		return Paths{}, err
	}

	runtime, err := l.Runtime()
	if err != nil {
		return Paths{}, err
	}

	return Paths{Runtime: runtime, Script: script, Packaged: packaged}, nil
}

// Script returns the backend script path and whether it came from a packaged
// resource directory.
func (l *Locator) Script() (string, bool, error) {
	var searched []string

	if l.scriptName != "" {
		for _, dir := range l.resourceDirs {
			if dir == "" {
				continue
			}
			candidate := filepath.Join(dir, l.scriptName)
			searched = append(searched, candidate)
			if l.isFile(candidate) {
				return absOrSelf(candidate), true, nil
			}
		}
	}

	if l.devScript != "" {
		searched = append(searched, l.devScript)
		if l.isFile(l.devScript) {
			return absOrSelf(l.devScript), false, nil
		}
	}

	return "", false, &Error{Err: ErrScriptNotFound, Searched: searched}
}

// Runtime returns the first runtime candidate that exists.
func (l *Locator) Runtime() (string, error) {
	for _, candidate := range l.runtimes {
		if l.isFile(candidate) {
			return candidate, nil
		}
	}
	return "", &Error{Err: ErrRuntimeNotFound, Searched: append([]string(nil), l.runtimes...)}
}

func (l *Locator) isFile(path string) bool {
	info, err := l.stat(path)
	return err == nil && !info.IsDir()
}

func absOrSelf(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
