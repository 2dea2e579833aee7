// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// MaxDelayMs is the largest routing delay the backend accepts.
const MaxDelayMs = 300

// Validator validates configuration against schema rules.
type Validator struct{}

// NewValidator creates a new config validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidationError contains multiple validation failures.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single field validation error.
type FieldError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	var msgs []string
	for _, fe := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return strings.Join(msgs, "; ")
}

// IsEmpty returns true if there are no validation errors.
func (e *ValidationError) IsEmpty() bool {
	return len(e.Errors) == 0
}

// Add adds a field error.
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// Validate checks configuration validity.
func (v *Validator) Validate(cfg *Config) error {
	errs := &ValidationError{}

	v.validateBackend(cfg, errs)
	v.validateSession(cfg, errs)
	v.validateServer(cfg, errs)
	v.validateLogging(cfg, errs)
	v.validateDurations(cfg, errs)

	if errs.IsEmpty() {
		return nil
	}
	return errs
}

func (v *Validator) validateBackend(cfg *Config, errs *ValidationError) {
	if cfg.Backend.URL == "" {
		errs.Add("backend.url", "is required")
	} else {
		u, err := url.Parse(cfg.Backend.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs.Add("backend.url", fmt.Sprintf("invalid url '%s', must be an absolute http(s) address", cfg.Backend.URL))
		}
	}

	if cfg.Backend.ScriptName == "" && cfg.Backend.DevScript == "" {
		errs.Add("backend.script_name", "either script_name or dev_script is required")
	}

	if len(cfg.Backend.Runtimes) == 0 {
		errs.Add("backend.runtimes", "at least one runtime candidate is required")
	}
	for i, rt := range cfg.Backend.Runtimes {
		if strings.TrimSpace(rt) == "" {
			errs.Add(fmt.Sprintf("backend.runtimes[%d]", i), "is empty")
		}
	}

	switch cfg.Backend.StopSignal {
	case "", "SIGTERM", "SIGINT", "SIGKILL":
	default:
		errs.Add("backend.stop_signal", fmt.Sprintf("invalid signal '%s', must be one of: SIGTERM, SIGINT, SIGKILL", cfg.Backend.StopSignal))
	}

	if cfg.Backend.LogBuffer < 0 {
		errs.Add("backend.log_buffer", "must not be negative")
	}
}

func (v *Validator) validateSession(cfg *Config, errs *ValidationError) {
	if d := cfg.Session.DefaultDelayMs; d != nil && (*d < 0 || *d > MaxDelayMs) {
		errs.Add("session.default_delay_ms", fmt.Sprintf("must be between 0 and %d", MaxDelayMs))
	}

	switch cfg.Session.DelayChange {
	case "", DelayChangeRestart, DelayChangeDeferred:
	default:
		errs.Add("session.delay_change", fmt.Sprintf("invalid policy '%s', must be one of: restart, deferred", cfg.Session.DelayChange))
	}
}

func (v *Validator) validateServer(cfg *Config, errs *ValidationError) {
	if cfg.Server.Port != 0 {
		if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
			errs.Add("server.port", "must be between 0 and 65535")
		}
	}
}

func (v *Validator) validateLogging(cfg *Config, errs *ValidationError) {
	if cfg.Logging.Level != "" {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[cfg.Logging.Level] {
			errs.Add("logging.level", fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", cfg.Logging.Level))
		}
	}

	if cfg.Logging.Format != "" && cfg.Logging.Format != "console" && cfg.Logging.Format != "json" {
		errs.Add("logging.format", fmt.Sprintf("invalid format '%s', must be one of: console, json", cfg.Logging.Format))
	}
}

func (v *Validator) validateDurations(cfg *Config, errs *ValidationError) {
	durations := map[string]string{
		"backend.request_timeout":   cfg.Backend.RequestTimeout,
		"backend.warmup":            cfg.Backend.Warmup,
		"backend.ready_timeout":     cfg.Backend.ReadyTimeout,
		"backend.ready_backoff":     cfg.Backend.ReadyBackoff,
		"backend.ready_backoff_max": cfg.Backend.ReadyBackoffMax,
		"backend.stop_timeout":      cfg.Backend.StopTimeout,
		"backend.watch_debounce":    cfg.Backend.WatchDebounce,
		"session.status_interval":   cfg.Session.StatusInterval,
	}

	for field, value := range durations {
		if value == "" || value == "0" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			errs.Add(field, fmt.Sprintf("invalid duration '%s'", value))
			continue
		}
		if d < 0 {
			errs.Add(field, "must not be negative")
		}
	}
}
