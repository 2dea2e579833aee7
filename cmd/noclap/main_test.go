// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wingedpig/noclap/internal/config"
)

func TestConfigTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noclap.hjson")
	require.NoError(t, os.WriteFile(path, []byte(configTemplate), 0644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	require.NoError(t, config.NewValidator().Validate(cfg))

	defaults := config.Default()
	assert.Equal(t, defaults.Backend.URL, cfg.Backend.URL)
	assert.Equal(t, defaults.Backend.Runtimes, cfg.Backend.Runtimes)
	assert.Equal(t, defaults.Server, cfg.Server)
	assert.Equal(t, 140.0, cfg.Session.DefaultDelay())
	assert.Equal(t, config.DelayChangeRestart, cfg.Session.DelayChange)
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.hjson"))
	assert.Error(t, err)
}

func TestLoadConfig_Defaults(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := loadConfig("")
	require.NoError(t, err)

	loaded, err := config.NewLoader().LoadWithDefaults(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, loaded.Server.Port, cfg.Server.Port)
}
