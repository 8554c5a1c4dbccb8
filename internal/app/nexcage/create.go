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
	"github.com/CageForge/nexcage-sub009/pkg/sandbox"
)

var createFlags struct {
	name    string
	image   string
	bundle  string
	command []string
	workdir string
}

// create --name <id> [--image <label>] [--bundle <dir>]
// --image is always taken as a backend label, never as a bundle path; an
// on-disk OCI bundle is given with --bundle.
var createCmd = &cobra.Command{
	Use:   "create [flags] [<image>]",
	Short: "Create a container without starting it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if createFlags.name == "" {
			return nexerr.New(nexerr.UsageError, "create requires --name")
		}
		image := createFlags.image
		if len(args) > 0 {
			image = args[0]
		}
		if image == "" && createFlags.bundle == "" {
			return nexerr.New(nexerr.UsageError, "create requires an image label or --bundle")
		}

		cfg, err := newSandboxConfig(createFlags.name, image, createFlags.bundle)
		if err != nil {
			return err
		}
		cfg.Command = createFlags.command
		cfg.WorkDir = createFlags.workdir

		o, _, err := buildOrchestrator()
		if err != nil {
			return err
		}
		return o.Create(cmd.Context(), cfg)
	},
}

// newSandboxConfig assembles the ImageRef per spec §6: a --bundle directory
// takes precedence over a backend-opaque image label.
func newSandboxConfig(name, image, bundle string) (*sandbox.SandboxConfig, error) {
	ref := &sandbox.ImageRef{Label: image}
	if bundle != "" {
		ref = &sandbox.ImageRef{BundlePath: bundle}
	}
	cfg := &sandbox.SandboxConfig{Name: name, Image: ref}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func init() {
	pf := createCmd.Flags()
	pf.StringVar(&createFlags.name, "name", "", "container id (required)")
	pf.StringVar(&createFlags.image, "image", "", "backend-specific image label (existing template or VM image)")
	pf.StringVar(&createFlags.bundle, "bundle", "", "path to an on-disk OCI bundle")
	pf.StringSliceVar(&createFlags.command, "command", nil, "command to run inside the container")
	pf.StringVar(&createFlags.workdir, "workdir", "", "working directory inside the container")
}
