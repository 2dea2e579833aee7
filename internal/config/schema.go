// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config handles HJSON configuration loading for the panel.
package config

import (
	"time"
)

// Config is the root configuration structure for noclap.
type Config struct {
	Backend BackendConfig `json:"backend"`
	Session SessionConfig `json:"session"`
	Server  ServerConfig  `json:"server"`
	Logging LoggingConfig `json:"logging"`
	Events  EventsConfig  `json:"events"`
}

// BackendConfig describes where the audio backend lives and how it is supervised.
type BackendConfig struct {
	URL            string `json:"url"`             // Base address of the backend HTTP API
	RequestTimeout string `json:"request_timeout"` // Per-request timeout for backend calls

	ScriptName   string   `json:"script_name"`   // File name looked up in resource_dirs
	ResourceDirs []string `json:"resource_dirs"` // Packaged (release) resource directories, searched in order
	DevScript    string   `json:"dev_script"`    // Development tree fallback
	Runtimes     []string `json:"runtimes"`      // Runtime executable candidates, tried in order

	Warmup          string `json:"warmup"`            // Fixed wait after launch before the first readiness check
	ReadyTimeout    string `json:"ready_timeout"`     // Give up on the readiness check after this long
	ReadyBackoff    string `json:"ready_backoff"`     // Initial readiness backoff, doubled up to ReadyBackoffMax
	ReadyBackoffMax string `json:"ready_backoff_max"` // Cap for the readiness backoff

	StopSignal  string `json:"stop_signal"`  // SIGTERM, SIGINT or SIGKILL
	StopTimeout string `json:"stop_timeout"` // Escalate to SIGKILL after this long
	LogBuffer   int    `json:"log_buffer"`   // Lines of combined backend output kept in memory

	Watch         bool   `json:"watch"`          // Restart the backend when the script changes
	WatchDebounce string `json:"watch_debounce"` // Debounce window for script changes
}

// SessionConfig configures the routing session controller.
type SessionConfig struct {
	DefaultDelayMs *float64 `json:"default_delay_ms"` // Nil means 140; zero is a valid delay
	StatusInterval string   `json:"status_interval"`  // "0" disables polling
	DelayChange    string   `json:"delay_change"`     // "restart" or "deferred"
}

// ServerConfig configures the local control API.
type ServerConfig struct {
	Port int    `json:"port"`
	Host string `json:"host"`
}

// LoggingConfig configures the panel's own logging.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // console or json
}

// EventsConfig configures the event bus.
type EventsConfig struct {
	MaxEvents int `json:"max_events"`
}

// Delay change policies.
const (
	DelayChangeRestart  = "restart"
	DelayChangeDeferred = "deferred"
)

// Duration parses a duration string, returning fallback if s is empty or invalid.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	if s == "0" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// RequestTimeoutDuration returns the per-request backend timeout.
func (b BackendConfig) RequestTimeoutDuration() time.Duration {
	return Duration(b.RequestTimeout, 5*time.Second)
}

// WarmupDuration returns the post-launch warm-up delay.
func (b BackendConfig) WarmupDuration() time.Duration {
	return Duration(b.Warmup, 1500*time.Millisecond)
}

// ReadyTimeoutDuration returns how long the readiness check may run.
func (b BackendConfig) ReadyTimeoutDuration() time.Duration {
	return Duration(b.ReadyTimeout, 15*time.Second)
}

// ReadyBackoffDurations returns the initial and maximum readiness backoff.
func (b BackendConfig) ReadyBackoffDurations() (time.Duration, time.Duration) {
	return Duration(b.ReadyBackoff, 250*time.Millisecond), Duration(b.ReadyBackoffMax, 2*time.Second)
}

// StopTimeoutDuration returns the grace period before SIGKILL.
func (b BackendConfig) StopTimeoutDuration() time.Duration {
	return Duration(b.StopTimeout, 5*time.Second)
}

// WatchDebounceDuration returns the script watcher debounce window.
func (b BackendConfig) WatchDebounceDuration() time.Duration {
	return Duration(b.WatchDebounce, 500*time.Millisecond)
}

// DefaultDelay returns the initial routing delay in milliseconds.
func (s SessionConfig) DefaultDelay() float64 {
	if s.DefaultDelayMs == nil {
		return 140
	}
	return *s.DefaultDelayMs
}

// StatusIntervalDuration returns the status poll interval. Zero disables polling.
func (s SessionConfig) StatusIntervalDuration() time.Duration {
	return Duration(s.StatusInterval, 5*time.Second)
}
