// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Load_ValidConfig(t *testing.T) {
	configContent := `{
		backend: {
			url: "http://127.0.0.1:9000"
			dev_script: "/src/noclap/server.py"
			runtimes: ["/usr/bin/python3"]
		}
		session: {
			default_delay_ms: 200
		}
		server: {
			port: 9100
			host: "127.0.0.1"
		}
	}`

	cfg := loadFromString(t, configContent)

	assert.Equal(t, "http://127.0.0.1:9000", cfg.Backend.URL)
	assert.Equal(t, "/src/noclap/server.py", cfg.Backend.DevScript)
	assert.Equal(t, []string{"/usr/bin/python3"}, cfg.Backend.Runtimes)
	require.NotNil(t, cfg.Session.DefaultDelayMs)
	assert.Equal(t, 200.0, cfg.Session.DefaultDelay())
	assert.Equal(t, 9100, cfg.Server.Port)
}

func TestLoader_Load_HJSONFeatures(t *testing.T) {
	// Comments, unquoted strings and trailing commas
	configContent := `{
		// Line comment
		backend: {
			# Hash comment
			url: http://127.0.0.1:8000
			runtimes: [
				"/opt/homebrew/bin/python3",
				"/usr/bin/python3",
			]
		}
		logging: {
			level: "debug",
		}
	}`

	cfg := loadFromString(t, configContent)

	assert.Equal(t, "http://127.0.0.1:8000", cfg.Backend.URL)
	assert.Len(t, cfg.Backend.Runtimes, 2)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoader_Load_InvalidHJSON(t *testing.T) {
	path := writeTestConfig(t, `{ backend: { url: "x" `)

	_, err := NewLoader().Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse hjson")
}

func TestLoader_Load_MissingFile(t *testing.T) {
	_, err := NewLoader().Load(context.Background(), filepath.Join(t.TempDir(), "missing.hjson"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoader_LoadWithDefaults(t *testing.T) {
	path := writeTestConfig(t, `{ server: { port: 9999 } }`)

	cfg, err := NewLoader().LoadWithDefaults(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "http://127.0.0.1:8000", cfg.Backend.URL)
	assert.Equal(t, "server.py", cfg.Backend.ScriptName)
	assert.Equal(t, []string{
		"/opt/homebrew/bin/python3",
		"/usr/local/bin/python3",
		"/usr/bin/python3",
	}, cfg.Backend.Runtimes)
	assert.Equal(t, 140.0, cfg.Session.DefaultDelay())
	assert.Equal(t, DelayChangeRestart, cfg.Session.DelayChange)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, 1000, cfg.Backend.LogBuffer)
	assert.Equal(t, 1000, cfg.Events.MaxEvents)
}

func TestLoader_LoadWithDefaults_ZeroDelayKept(t *testing.T) {
	path := writeTestConfig(t, `{ session: { default_delay_ms: 0 } }`)

	cfg, err := NewLoader().LoadWithDefaults(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 0.0, cfg.Session.DefaultDelay())
}

func TestLoader_LoadWithDefaults_EmptyPath(t *testing.T) {
	cfg, err := NewLoader().LoadWithDefaults(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 8740, cfg.Server.Port)
	assert.NoError(t, NewValidator().Validate(cfg))
}

func TestLoader_FindConfig(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	_, err = NewLoader().FindConfig()
	assert.ErrorIs(t, err, ErrConfigNotFound)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "noclap.json"), []byte(`{}`), 0644))
	found, err := NewLoader().FindConfig()
	require.NoError(t, err)
	assert.Equal(t, "noclap.json", filepath.Base(found))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "noclap.hjson"), []byte(`{}`), 0644))
	found, err = NewLoader().FindConfig()
	require.NoError(t, err)
	assert.Equal(t, "noclap.hjson", filepath.Base(found))
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 1500*time.Millisecond, cfg.Backend.WarmupDuration())
	assert.Equal(t, 15*time.Second, cfg.Backend.ReadyTimeoutDuration())
	initial, maxBackoff := cfg.Backend.ReadyBackoffDurations()
	assert.Equal(t, 250*time.Millisecond, initial)
	assert.Equal(t, 2*time.Second, maxBackoff)
	assert.Equal(t, 5*time.Second, cfg.Backend.StopTimeoutDuration())
	assert.Equal(t, 5*time.Second, cfg.Session.StatusIntervalDuration())

	cfg.Session.StatusInterval = "0"
	assert.Equal(t, time.Duration(0), cfg.Session.StatusIntervalDuration())

	assert.Equal(t, time.Second, Duration("bogus", time.Second))
}

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	path := writeTestConfig(t, content)
	loader := NewLoader()
	cfg, err := loader.Load(context.Background(), path)
	require.NoError(t, err)
	return cfg
}

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "noclap.hjson")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}
