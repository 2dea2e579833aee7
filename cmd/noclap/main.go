// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// noclap is the panel daemon: it supervises the audio backend and serves the
// local control API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/wingedpig/noclap/internal/app"
	"github.com/wingedpig/noclap/internal/config"
	"github.com/wingedpig/noclap/internal/logging"
)

var (
	version = "0.3"
)

func main() {
	// Check for subcommands before flag parsing
	if len(os.Args) > 1 && os.Args[1] == "init" {
		if err := runInit(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Parse flags
	var (
		configPath  string
		host        string
		port        int
		script      string
		watch       bool
		showVersion bool
		debug       bool
	)

	flag.StringVar(&configPath, "config", "", "Path to config file (default: auto-detect)")
	flag.StringVar(&configPath, "c", "", "Path to config file (short)")
	flag.StringVar(&host, "host", "", "Control API host (overrides config)")
	flag.IntVar(&port, "port", 0, "Control API port (overrides config)")
	flag.StringVar(&script, "script", "", "Backend script for development (overrides config)")
	flag.BoolVar(&watch, "watch", false, "Restart the backend when its source changes")
	flag.BoolVar(&showVersion, "version", false, "Show version")
	flag.BoolVar(&showVersion, "v", false, "Show version (short)")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	if showVersion {
		fmt.Printf("noclap %s\n", version)
		os.Exit(0)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Command line overrides
	if host != "" {
		cfg.Server.Host = host
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	if script != "" {
		cfg.Backend.DevScript = script
	}
	if watch {
		cfg.Backend.Watch = true
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	if err := config.NewValidator().Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting noclap",
		zap.String("version", version),
		zap.String("config", configPath))

	application := app.New(app.Options{
		Config:  cfg,
		Version: version,
		Logger:  logger,
	})

	if err := application.Run(context.Background()); err != nil {
		logger.Error("noclap stopped", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

// loadConfig reads the given config file, or the one found in the current
// directory. With neither, the defaults apply.
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path == "" {
		found, err := loader.FindConfig()
		if err != nil && !errors.Is(err, config.ErrConfigNotFound) {
			return nil, err
		}
		path = found
	}

	cfg, err := loader.LoadWithDefaults(context.Background(), path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// runInit handles the "noclap init" command
func runInit(args []string) error {
	initFlags := flag.NewFlagSet("init", flag.ExitOnError)
	force := initFlags.Bool("force", false, "Overwrite an existing config file")
	initFlags.Parse(args)

	const configFile = "noclap.hjson"

	if _, err := os.Stat(configFile); err == nil && !*force {
		return fmt.Errorf("%s already exists; remove it first or pass -force", configFile)
	}

	if err := os.WriteFile(configFile, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", configFile, err)
	}

	fmt.Printf("Created %s\n", configFile)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Review and edit noclap.hjson as needed")
	fmt.Println("  2. Run: noclap")
	fmt.Println("  3. Control it with: noclap-ctl status")
	return nil
}

const configTemplate = `// NoClap panel configuration
{
  backend: {
    // Base address of the audio backend's HTTP API
    url: "http://127.0.0.1:8000"
    request_timeout: 5s

    // server.py is looked up in the packaged resource directories first,
    // then at dev_script.
    script_name: server.py
    dev_script: ./server.py
    runtimes: [
      /opt/homebrew/bin/python3
      /usr/local/bin/python3
      /usr/bin/python3
    ]

    // Readiness: wait, then poll GET /status with backoff
    warmup: 1.5s
    ready_timeout: 15s
    ready_backoff: 250ms
    ready_backoff_max: 2s

    stop_signal: SIGTERM
    stop_timeout: 5s
    log_buffer: 1000

    // Restart the backend when its source changes
    watch: false
    watch_debounce: 500ms
  }

  session: {
    default_delay_ms: 140
    // "0" disables status polling
    status_interval: 5s
    // restart: a delay change while routing restarts the session
    // deferred: the new delay applies on the next start
    delay_change: restart
  }

  server: {
    host: 127.0.0.1
    port: 8740
  }

  logging: {
    level: info
    format: console
  }

  events: {
    max_events: 1000
  }
}
`
