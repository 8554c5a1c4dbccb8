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

	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
)

var runFlags struct {
	name   string
	image  string
	bundle string
}

// run is create followed by start (spec §6).
var runCmd = &cobra.Command{
	Use:   "run [flags] [<image>]",
	Short: "Create and immediately start a container",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if runFlags.name == "" {
			return nexerr.New(nexerr.UsageError, "run requires --name")
		}
		image := runFlags.image
		if len(args) > 0 {
			image = args[0]
		}
		if image == "" && runFlags.bundle == "" {
			return nexerr.New(nexerr.UsageError, "run requires an image label or --bundle")
		}

		cfg, err := newSandboxConfig(runFlags.name, image, runFlags.bundle)
		if err != nil {
			return err
		}

		o, _, err := buildOrchestrator()
		if err != nil {
			return err
		}
		return o.Run(cmd.Context(), cfg)
	},
}

func init() {
	pf := runCmd.Flags()
	pf.StringVar(&runFlags.name, "name", "", "container id (required)")
	pf.StringVar(&runFlags.image, "image", "", "backend-specific image label (existing template or VM image)")
	pf.StringVar(&runFlags.bundle, "bundle", "", "path to an on-disk OCI bundle")
}
