// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package nexcage wires the CLI surface (spec §6) to the orchestrator. It
// mirrors the teacher's cmd/apptainer/cli.go delegating into
// internal/app/apptainer/*.go, simplified since the spec does not treat the
// argument parser itself as a component to develop in depth.
package nexcage

import (
	"os"
	"path/filepath"

	"github.com/CageForge/nexcage-sub009/internal/pkg/backend"
	"github.com/CageForge/nexcage-sub009/internal/pkg/config"
	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
	"github.com/CageForge/nexcage-sub009/internal/pkg/orchestrator"
	"github.com/CageForge/nexcage-sub009/internal/pkg/proxmox"
	"github.com/CageForge/nexcage-sub009/internal/pkg/router"
	"github.com/CageForge/nexcage-sub009/internal/pkg/sylog"
	"github.com/CageForge/nexcage-sub009/pkg/convert"
	"github.com/CageForge/nexcage-sub009/pkg/layerfs"
	"github.com/CageForge/nexcage-sub009/pkg/sandbox"
)

const defaultCacheSize = 256

// globalFlags holds the persistent flags every subcommand reads, set by
// root.go's PersistentPreRunE before any subcommand body runs.
type globalFlags struct {
	configPath string
	debug      bool
	logPath    string
	logFormat  string
	root       string
}

var flags globalFlags

// buildOrchestrator resolves configuration and assembles every component
// (Proxmox client, Image Converter, LayerFS, the three backends, the
// Router) into a ready-to-use Orchestrator.
func buildOrchestrator() (*orchestrator.Orchestrator, *config.Config, error) {
	cfg, err := config.Resolve(flags.configPath)
	if err != nil {
		return nil, nil, err
	}

	root := flags.root
	if root == "" {
		root = cfg.Runtime.RootPath
	}

	client := proxmox.New(&cfg.Proxmox)
	fs := layerfs.New(filepath.Join(root, "layers"), defaultCacheSize)
	converter := convert.New(client, filepath.Join(os.TempDir(), "nexcage-scratch"))

	backends := map[sandbox.ContainerType]backend.Backend{
		sandbox.LXC: &backend.LXCBackend{
			Client:       client,
			Converter:    converter,
			Storage:      cfg.Proxmox.Storage,
			DefaultImage: "",
		},
		sandbox.VM: &backend.VMBackend{
			Client:  client,
			Storage: cfg.Proxmox.Storage,
		},
		sandbox.OCIRuntime: &backend.OCIRuntimeBackend{
			Root:    root,
			LayerFS: fs,
		},
	}

	r := &router.Router{Backends: backends, Config: cfg.ContainerConfig}
	return &orchestrator.Orchestrator{Router: r, Root: root}, cfg, nil
}

// applyLogging configures sylog per --debug/--log/--log-format before any
// command runs.
func applyLogging() error {
	level := int(sylog.InfoLevel)
	if flags.debug {
		level = int(sylog.DebugLevel)
	}
	sylog.SetLevel(level, true)
	sylog.SetFormat(flags.logFormat)

	if flags.logPath != "" {
		f, err := os.OpenFile(flags.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nexerr.Wrap(nexerr.InternalError, err, "open log file %s", flags.logPath)
		}
		sylog.SetWriter(f)
	}
	return nil
}

// exitWithError maps err to the §6 exit code table and terminates the
// process. It is the only place where a command outcome reaches
// os.Exit.
func exitWithError(err error) {
	if err == nil {
		return
	}
	sylog.Errorf("%s", err)
	os.Exit(nexerr.ExitCode(err))
}
