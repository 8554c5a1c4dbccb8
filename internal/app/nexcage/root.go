// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package nexcage

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "nexcage",
	Short:         "Container runtime and lifecycle controller for Proxmox VE",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return applyLogging()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to config.json")
	pf.BoolVar(&flags.debug, "debug", false, "enable debug logging")
	pf.StringVar(&flags.logPath, "log", "", "log destination (default stderr)")
	pf.StringVar(&flags.logFormat, "log-format", "text", "log format: text|json")
	pf.StringVar(&flags.root, "root", "", "state directory root (default from config, /var/lib/nexcage)")

	rootCmd.AddCommand(createCmd, startCmd, stopCmd, deleteCmd, listCmd, infoCmd, runCmd)
}

// Execute runs the root command, mapping any returned error to the §6 exit
// code table through exitWithError.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		exitWithError(err)
	}
}
