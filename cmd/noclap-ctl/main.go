// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// noclap-ctl is a command-line tool for controlling a running NoClap panel.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wingedpig/noclap/pkg/client"
)

var version = "0.3"

// cli holds the global flags and the API client shared by every command.
type cli struct {
	apiURL     string
	jsonOutput bool
	client     *client.Client
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	defaultAPI := client.DefaultBaseURL
	if env := os.Getenv("NOCLAP_API"); env != "" {
		defaultAPI = strings.TrimSuffix(env, "/")
	}

	root := &cobra.Command{
		Use:   "noclap-ctl",
		Short: "Control a running NoClap panel",
		Long: `noclap-ctl talks to the NoClap panel's local control API.

It reads and changes the routing session, lists audio devices, inspects
the backend process and streams live state.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.client = client.New(c.apiURL)
		},
	}

	root.PersistentFlags().StringVar(&c.apiURL, "api", defaultAPI, "control API base URL (env NOCLAP_API)")
	root.PersistentFlags().BoolVar(&c.jsonOutput, "json", false, "print JSON instead of text")

	root.AddCommand(
		c.statusCmd(),
		c.enableCmd(),
		c.disableCmd(),
		c.toggleCmd(),
		c.selectCmd(),
		c.devicesCmd(),
		c.backendCmd(),
		c.eventsCmd(),
		c.watchCmd(),
		c.versionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
