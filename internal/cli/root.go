// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli wires together the Osprei root Cobra command and its single
// serve subcommand. Job/stage/execution/schedule management happens over
// the HTTP API, not the CLI, so the command tree here is deliberately thin
// compared to the teacher's multi-command layout.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// ServeFunc runs the daemon given a config path; wired in from cmd/ospreid.
type ServeFunc func(configPath string) error

// NewRootCommand constructs the Osprei root Cobra command.
func NewRootCommand(serve ServeFunc) *cobra.Command {
	version := os.Getenv("OSPREID_VERSION")
	if version == "" {
		version = "0.0.0-dev"
	}

	cmd := &cobra.Command{
		Use:           "ospreid",
		Short:         "Osprei – a self-hosted continuous integration server",
		Long:          "Osprei runs containerised CI jobs on a schedule or on demand, exposing job/stage/execution state over an HTTP API.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("config", "c", "", "path to ospreid.yml")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of Osprei",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Osprei version %s\n", version)
		},
	})

	cmd.AddCommand(newServeCommand(serve))

	return cmd
}

func newServeCommand(serve ServeFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Osprei daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			return serve(configPath)
		},
	}
}
