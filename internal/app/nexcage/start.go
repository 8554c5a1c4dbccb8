// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package nexcage

import "github.com/spf13/cobra"

var startCmd = &cobra.Command{
	Use:   "start <id>",
	Short: "Start a created or stopped container",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, _, err := buildOrchestrator()
		if err != nil {
			return err
		}
		return o.Start(cmd.Context(), args[0])
	},
}
