// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wingedpig/noclap/pkg/client"
)

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the routing session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := c.client.Routing.State(cmd.Context())
			if err != nil {
				return err
			}
			return c.printState(cmd, state)
		},
	}
}

func (c *cli) enableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enable",
		Short: "Turn routing on with the current selection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.routingResult(cmd)(c.client.Routing.Enable(cmd.Context()))
		},
	}
}

func (c *cli) disableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Turn routing off",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.routingResult(cmd)(c.client.Routing.Disable(cmd.Context()))
		},
	}
}

func (c *cli) toggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Turn routing on if off, off if on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.routingResult(cmd)(c.client.Routing.Toggle(cmd.Context()))
		},
	}
}

func (c *cli) selectCmd() *cobra.Command {
	var (
		input  string
		output string
		delay  float64
	)

	cmd := &cobra.Command{
		Use:   "select",
		Short: "Choose the input, output or delay",
		Long: `Choose the input device, output device or delay. Only the flags given
are changed; pass an empty string to clear a device. While routing is on,
a change restarts the session.`,
		Example: `  noclap-ctl select --input "MacBook Pro Microphone" --output "BlackHole 2ch"
  noclap-ctl select --delay 90`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var sel client.Selection
			flags := cmd.Flags()
			if flags.Changed("input") {
				sel.Input = client.String(input)
			}
			if flags.Changed("output") {
				sel.Output = client.String(output)
			}
			if flags.Changed("delay") {
				sel.DelayMs = client.Float(delay)
			}
			if sel.Input == nil && sel.Output == nil && sel.DelayMs == nil {
				return fmt.Errorf("nothing to change: pass --input, --output or --delay")
			}
			return c.routingResult(cmd)(c.client.Routing.Select(cmd.Context(), sel))
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "input device name")
	cmd.Flags().StringVar(&output, "output", "", "output device name")
	cmd.Flags().Float64Var(&delay, "delay", 0, "delay in milliseconds (0-300)")
	return cmd
}

// routingResult prints the state a routing request ended in, even when the
// request failed.
func (c *cli) routingResult(cmd *cobra.Command) func(*client.State, error) error {
	return func(state *client.State, err error) error {
		if state != nil {
			if perr := c.printState(cmd, state); perr != nil {
				return perr
			}
		}
		return err
	}
}

func (c *cli) devicesCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				list *client.Devices
				err  error
			)
			if refresh {
				list, err = c.client.Devices.Refresh(cmd.Context())
			} else {
				list, err = c.client.Devices.List(cmd.Context())
			}
			if list != nil {
				if perr := c.printDevices(cmd, list); perr != nil {
					return perr
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "ask the backend for its devices again")
	return cmd
}

func (c *cli) backendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Show the backend process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := c.client.Backend.Get(cmd.Context())
			if err != nil {
				return err
			}
			return c.printBackend(cmd, b)
		},
	}

	restart := &cobra.Command{
		Use:   "restart",
		Short: "Restart the backend process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := c.client.Backend.Restart(cmd.Context())
			if b != nil {
				if perr := c.printBackend(cmd, b); perr != nil {
					return perr
				}
			}
			return err
		},
	}

	var (
		lines  int
		follow bool
	)
	logs := &cobra.Command{
		Use:   "logs",
		Short: "Show backend output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if follow {
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				return c.client.Backend.StreamLogs(ctx, func(line client.LogLine) error {
					return c.printLogLine(cmd, line)
				})
			}

			entries, err := c.client.Backend.Logs(cmd.Context(), lines)
			if err != nil {
				return err
			}
			if c.jsonOutput {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			for _, line := range entries {
				if err := c.printLogLine(cmd, line); err != nil {
					return err
				}
			}
			return nil
		},
	}
	logs.Flags().IntVarP(&lines, "lines", "n", 100, "number of lines")
	logs.Flags().BoolVarP(&follow, "follow", "f", false, "keep streaming new output")

	cmd.AddCommand(restart, logs)
	return cmd
}

func (c *cli) eventsCmd() *cobra.Command {
	var (
		limit  int
		types  []string
		source string
		since  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent events",
		Example: `  noclap-ctl events --type 'routing.*' --since 10m
  noclap-ctl events --source supervisor`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := &client.ListOptions{Limit: limit, Types: types, Source: source}
			if since > 0 {
				opts.Since = time.Now().Add(-since)
			}

			list, err := c.client.Events.List(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if c.jsonOutput {
				return printJSON(cmd.OutOrStdout(), list)
			}
			for _, e := range list {
				printEvent(cmd.OutOrStdout(), e)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of events")
	cmd.Flags().StringSliceVar(&types, "type", nil, "event type or pattern (repeatable)")
	cmd.Flags().StringVar(&source, "source", "", "only events from this component")
	cmd.Flags().DurationVar(&since, "since", 0, "only events newer than this (e.g. 10m)")
	return cmd
}

func (c *cli) watchCmd() *cobra.Command {
	var pattern string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream state changes and events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return c.client.Events.Watch(ctx, pattern, func(msg client.StreamMessage) error {
				if c.jsonOutput {
					return printJSONLine(cmd.OutOrStdout(), msg)
				}
				switch {
				case msg.State != nil:
					printStateLine(cmd.OutOrStdout(), msg.State)
				case msg.Event != nil:
					printEvent(cmd.OutOrStdout(), *msg.Event)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&pattern, "events", "*", `event pattern to include ("none" for state only)`)
	return cmd
}

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print client and panel versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			out := cmd.OutOrStdout()
			info, err := c.client.ServerVersion(ctx)
			if c.jsonOutput {
				v := map[string]interface{}{"client": version, "api_version": c.client.Version()}
				if info != nil {
					v["panel"] = info
				}
				if perr := printJSON(out, v); perr != nil {
					return perr
				}
				return err
			}

			fmt.Fprintf(out, "noclap-ctl %s (API %s)\n", version, c.client.Version())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "noclap     %s (API %s)\n", info.Version, info.APIVersion)
			return nil
		},
	}
}
