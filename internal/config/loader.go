// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hjson/hjson-go/v4"
)

// ErrConfigNotFound is returned by FindConfig when no config file exists.
var ErrConfigNotFound = errors.New("config file not found (looked for noclap.hjson, noclap.json)")

// Loader handles configuration file loading.
type Loader struct{}

// NewLoader creates a new config loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load reads and parses the configuration from the given path.
func (l *Loader) Load(ctx context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Parse HJSON to intermediate map
	var raw map[string]interface{}
	if err := hjson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse hjson: %w", err)
	}

	// Convert to JSON and unmarshal to struct (for type safety)
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert to json: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config with default values applied.
// An empty path yields the defaults alone.
func (l *Loader) LoadWithDefaults(ctx context.Context, path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	cfg, err := l.Load(ctx, path)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	return cfg, nil
}

// FindConfig searches for a config file in the current directory.
// It looks for noclap.hjson first, then noclap.json.
func (l *Loader) FindConfig() (string, error) {
	candidates := []string{
		"noclap.hjson",
		"noclap.json",
	}

	for _, name := range candidates {
		path := filepath.Join(".", name)
		if _, err := os.Stat(path); err == nil {
			abs, err := filepath.Abs(path)
			if err != nil {
				return path, nil
			}
			return abs, nil
		}
	}

	return "", ErrConfigNotFound
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// DefaultResourceDirs returns the packaged-resource directories relative to
// the running executable: the bundle's Resources directory, then the
// executable's own directory.
func DefaultResourceDirs() []string {
	exe, err := os.Executable()
	if err != nil {
		return nil
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	dir := filepath.Dir(exe)
	return []string{
		filepath.Join(dir, "..", "Resources"),
		dir,
	}
}

// applyDefaults sets default values for missing config fields.
func applyDefaults(cfg *Config) {
	// Backend defaults
	if cfg.Backend.URL == "" {
		cfg.Backend.URL = "http://127.0.0.1:8000"
	}
	if cfg.Backend.RequestTimeout == "" {
		cfg.Backend.RequestTimeout = "5s"
	}
	if cfg.Backend.ScriptName == "" {
		cfg.Backend.ScriptName = "server.py"
	}
	if len(cfg.Backend.ResourceDirs) == 0 {
		cfg.Backend.ResourceDirs = DefaultResourceDirs()
	}
	if cfg.Backend.DevScript == "" {
		cfg.Backend.DevScript = "./server.py"
	}
	if len(cfg.Backend.Runtimes) == 0 {
		cfg.Backend.Runtimes = []string{
			"/opt/homebrew/bin/python3", // Apple Silicon Homebrew
			"/usr/local/bin/python3",    // Intel Homebrew
			"/usr/bin/python3",          // System
		}
	}
	if cfg.Backend.Warmup == "" {
		cfg.Backend.Warmup = "1.5s"
	}
	if cfg.Backend.ReadyTimeout == "" {
		cfg.Backend.ReadyTimeout = "15s"
	}
	if cfg.Backend.ReadyBackoff == "" {
		cfg.Backend.ReadyBackoff = "250ms"
	}
	if cfg.Backend.ReadyBackoffMax == "" {
		cfg.Backend.ReadyBackoffMax = "2s"
	}
	if cfg.Backend.StopSignal == "" {
		cfg.Backend.StopSignal = "SIGTERM"
	}
	if cfg.Backend.StopTimeout == "" {
		cfg.Backend.StopTimeout = "5s"
	}
	if cfg.Backend.LogBuffer == 0 {
		cfg.Backend.LogBuffer = 1000
	}
	if cfg.Backend.WatchDebounce == "" {
		cfg.Backend.WatchDebounce = "500ms"
	}

	// Session defaults
	if cfg.Session.DefaultDelayMs == nil {
		delay := 140.0
		cfg.Session.DefaultDelayMs = &delay
	}
	if cfg.Session.StatusInterval == "" {
		cfg.Session.StatusInterval = "5s"
	}
	if cfg.Session.DelayChange == "" {
		cfg.Session.DelayChange = DelayChangeRestart
	}

	// Server defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8740
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	// Events defaults
	if cfg.Events.MaxEvents == 0 {
		cfg.Events.MaxEvents = 1000
	}
}
