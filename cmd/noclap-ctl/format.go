// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wingedpig/noclap/pkg/client"
)

func printJSON(w io.Writer, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func printJSONLine(w io.Writer, v interface{}) error {
	return json.NewEncoder(w).Encode(v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func (c *cli) printState(cmd *cobra.Command, state *client.State) error {
	out := cmd.OutOrStdout()
	if c.jsonOutput {
		return printJSON(out, state)
	}

	status := state.State
	if state.Pending {
		status += " (pending)"
	}
	fmt.Fprintf(out, "%-10s %s\n", "STATE", status)
	fmt.Fprintf(out, "%-10s %s\n", "INPUT", orDash(state.Intent.Input))
	fmt.Fprintf(out, "%-10s %s\n", "OUTPUT", orDash(state.Intent.Output))
	fmt.Fprintf(out, "%-10s %s ms\n", "DELAY", formatDelay(state.Intent.DelayMs))
	if state.Active != nil {
		fmt.Fprintf(out, "%-10s %s (since %s)\n", "SESSION", state.Active.SessionID,
			state.Active.StartedAt.Local().Format(time.TimeOnly))
		if state.Active.DelayMs != state.Intent.DelayMs {
			fmt.Fprintf(out, "%-10s %s ms\n", "ACTIVE", formatDelay(state.Active.DelayMs))
		}
	}
	if state.LastError != "" {
		fmt.Fprintf(out, "%-10s %s [%s]\n", "ERROR", state.LastError, state.ErrorKind)
	}
	return nil
}

func printStateLine(w io.Writer, state *client.State) {
	line := fmt.Sprintf("%s state=%s input=%q output=%q delay=%sms",
		state.UpdatedAt.Local().Format(time.TimeOnly), state.State,
		state.Intent.Input, state.Intent.Output, formatDelay(state.Intent.DelayMs))
	if state.LastError != "" {
		line += fmt.Sprintf(" error=%q", state.LastError)
	}
	fmt.Fprintln(w, line)
}

func formatDelay(ms float64) string {
	return strconv.FormatFloat(ms, 'f', -1, 64)
}

func (c *cli) printDevices(cmd *cobra.Command, list *client.Devices) error {
	out := cmd.OutOrStdout()
	if c.jsonOutput {
		return printJSON(out, list)
	}

	fmt.Fprintf(out, "%-8s %-5s %-40s %s\n", "KIND", "ID", "NAME", "CHANNELS")
	fmt.Fprintln(out, strings.Repeat("-", 64))
	for _, d := range list.Inputs {
		fmt.Fprintf(out, "%-8s %-5d %-40s %d\n", "input", d.ID, d.Name, d.Channels)
	}
	for _, d := range list.Outputs {
		fmt.Fprintf(out, "%-8s %-5d %-40s %d\n", "output", d.ID, d.Name, d.Channels)
	}
	return nil
}

func (c *cli) printBackend(cmd *cobra.Command, b *client.Backend) error {
	out := cmd.OutOrStdout()
	if c.jsonOutput {
		return printJSON(out, b)
	}

	pid := "-"
	if b.Status.PID > 0 {
		pid = strconv.Itoa(b.Status.PID)
	}
	fmt.Fprintf(out, "%-10s %s\n", "STATE", b.Status.State)
	fmt.Fprintf(out, "%-10s %s\n", "PID", pid)
	fmt.Fprintf(out, "%-10s %s\n", "RUNTIME", orDash(b.Status.Runtime))
	fmt.Fprintf(out, "%-10s %s\n", "SCRIPT", orDash(b.Status.Script))
	fmt.Fprintf(out, "%-10s %s\n", "URL", orDash(b.BaseURL))
	fmt.Fprintf(out, "%-10s %d\n", "RESTARTS", b.Status.Restarts)
	if b.Status.Error != "" {
		fmt.Fprintf(out, "%-10s %s\n", "ERROR", b.Status.Error)
	}
	if b.Stats != nil {
		fmt.Fprintf(out, "%-10s %.1f%%\n", "CPU", b.Stats.CPUPercent)
		fmt.Fprintf(out, "%-10s %.1f MB\n", "MEMORY", float64(b.Stats.RSSBytes)/(1<<20))
	}
	if crash := b.Status.Crash; crash != nil {
		fmt.Fprintf(out, "%-10s %s (exit %d)\n", "CRASH", crash.Reason, crash.ExitCode)
		if crash.Details != "" {
			fmt.Fprintf(out, "%-10s %s\n", "", crash.Details)
		}
		if crash.Location != "" {
			fmt.Fprintf(out, "%-10s at %s\n", "", crash.Location)
		}
	}
	return nil
}

func (c *cli) printLogLine(cmd *cobra.Command, line client.LogLine) error {
	out := cmd.OutOrStdout()
	if c.jsonOutput {
		return printJSONLine(out, line)
	}
	_, err := fmt.Fprintf(out, "%s %s\n", line.Time.Local().Format("15:04:05.000"), line.Line)
	return err
}

func printEvent(w io.Writer, e client.Event) {
	keys := make([]string, 0, len(e.Payload))
	for k := range e.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var fields []string
	for _, k := range keys {
		fields = append(fields, fmt.Sprintf("%s=%v", k, e.Payload[k]))
	}
	fmt.Fprintf(w, "%s %-20s %-10s %s\n", e.Timestamp.Local().Format(time.TimeOnly), e.Type, e.Source, strings.Join(fields, " "))
}
