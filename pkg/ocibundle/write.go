// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package ocibundle

import (
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/CageForge/nexcage-sub009/pkg/sandbox"
)

// MinimalSpec builds the config.json the OCI-runtime backend writes for a
// materialized container, the inverse of ToLXCConfig: it goes from a
// normalized SandboxConfig back to a runtime-spec document instead of
// deriving LXC arguments from one.
func MinimalSpec(cfg *sandbox.SandboxConfig) *specs.Spec {
	args := cfg.Command
	if len(args) == 0 {
		args = []string{"/bin/sh"}
	}

	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}

	spec := &specs.Spec{
		Version: SupportedOCIVersion,
		Root:    &specs.Root{Path: "rootfs"},
		Process: &specs.Process{
			Args: args,
			Cwd:  "/",
			Env:  env,
		},
		Hostname: cfg.Name,
	}
	if cfg.WorkDir != "" {
		spec.Process.Cwd = cfg.WorkDir
	}
	if cfg.Security != nil && cfg.Security.Unprivileged {
		spec.Linux = &specs.Linux{
			Namespaces: []specs.LinuxNamespace{{Type: specs.UserNamespace}},
		}
	}
	for _, v := range cfg.Volumes {
		opts := []string{"bind"}
		if v.ReadOnly {
			opts = append(opts, "ro")
		}
		spec.Mounts = append(spec.Mounts, specs.Mount{
			Destination: v.ContainerPath,
			Type:        "bind",
			Source:      v.HostPath,
			Options:     opts,
		})
	}
	return spec
}
