// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package backend

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
	"github.com/CageForge/nexcage-sub009/internal/pkg/sylog"
	"github.com/CageForge/nexcage-sub009/pkg/layerfs"
	"github.com/CageForge/nexcage-sub009/pkg/ocibundle"
	"github.com/CageForge/nexcage-sub009/pkg/sandbox"
)

// OCIRuntimeBackend drives a crun-like OCI userspace runtime binary
// directly, bypassing Proxmox entirely. Unlike the LXC/VM backends it has
// no Proxmox cluster resource listing, so it tracks its own containers as
// state directories under Root (spec §4.F, §6 State directory layout).
type OCIRuntimeBackend struct {
	RuntimeBin string // e.g. "crun"
	Root       string // default /run/nexcage
	LayerFS    *layerfs.LayerFS
}

func (b *OCIRuntimeBackend) Name() sandbox.ContainerType { return sandbox.OCIRuntime }

func (b *OCIRuntimeBackend) root() string {
	if b.Root != "" {
		return b.Root
	}
	return "/run/nexcage"
}

// Create materializes an OCI bundle on disk for cfg (config.json plus a
// rootfs populated by mounting the requested LayerFS overlay), then runs
// "<binary> create <id> --bundle <dir>".
func (b *OCIRuntimeBackend) Create(ctx context.Context, cfg *sandbox.SandboxConfig) error {
	if cfg.Image == nil || cfg.Image.Label == "" {
		return nexerr.New(nexerr.UsageError, "oci_runtime backend requires an image reference naming a layer digest")
	}

	digests, err := b.LayerFS.ResolveChain(cfg.Image.Label)
	if err != nil {
		return err
	}

	dir := sandbox.StateDir(b.root(), cfg.Name)
	rootfs := filepath.Join(dir, "rootfs")
	upper := filepath.Join(dir, "overlay", "upper")
	work := filepath.Join(dir, "overlay", "work")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nexerr.Wrap(nexerr.InternalError, err, "mkdir %s", dir)
	}

	if _, err := b.LayerFS.MountOverlay(rootfs, digests, upper, work); err != nil {
		return err
	}

	instanceID := uuid.NewString()
	if err := writeBundleConfig(dir, cfg, instanceID); err != nil {
		return err
	}

	if _, err := runtimeExec(ctx, b.binary(), "create", cfg.Name, "--bundle", dir); err != nil {
		_ = b.LayerFS.UnmountOverlay(rootfs)
		return nexerr.Wrap(nexerr.ConversionFailed, err, "%s create %s", b.binary(), cfg.Name)
	}

	rec := &sandbox.StateRecord{
		ID:          cfg.Name,
		Status:      sandbox.StatusCreated,
		Backend:     sandbox.OCIRuntime.String(),
		BundlePath:  dir,
		CreatedUnix: time.Now().Unix(),
	}
	if err := sandbox.WriteState(b.root(), rec); err != nil {
		return err
	}
	sylog.Debugf("backend/oci_runtime: created id=%s bundle=%s", cfg.Name, dir)
	return nil
}

func (b *OCIRuntimeBackend) binary() string {
	if b.RuntimeBin != "" {
		return b.RuntimeBin
	}
	return "crun"
}

func writeBundleConfig(dir string, cfg *sandbox.SandboxConfig, instanceID string) error {
	spec := ocibundle.MinimalSpec(cfg)
	if spec.Annotations == nil {
		spec.Annotations = map[string]string{}
	}
	spec.Annotations["io.nexcage.instance-id"] = instanceID
	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return nexerr.Wrap(nexerr.InternalError, err, "marshal config.json for %s", cfg.Name)
	}
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nexerr.Wrap(nexerr.InternalError, err, "write %s", path)
	}
	return nil
}

func runtimeExec(ctx context.Context, bin string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(bin); err != nil {
		return nil, nexerr.Wrap(nexerr.ToolMissing, err, "%s", bin)
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, err
	}
	return out, nil
}

func (b *OCIRuntimeBackend) transition(ctx context.Context, id, op string, to sandbox.Status) error {
	if _, err := runtimeExec(ctx, b.binary(), op, id); err != nil {
		return nexerr.Wrap(nexerr.ConversionFailed, err, "%s %s %s", b.binary(), op, id)
	}
	rec, err := sandbox.ReadState(b.root(), id)
	if err != nil {
		return err
	}
	rec.Status = to
	return sandbox.WriteState(b.root(), rec)
}

func (b *OCIRuntimeBackend) Start(ctx context.Context, id string) error {
	return b.transition(ctx, id, "start", sandbox.StatusRunning)
}

func (b *OCIRuntimeBackend) Stop(ctx context.Context, id string) error {
	return b.transition(ctx, id, "kill", sandbox.StatusStopped)
}

func (b *OCIRuntimeBackend) Delete(ctx context.Context, id string) error {
	if _, err := runtimeExec(ctx, b.binary(), "delete", id); err != nil {
		return nexerr.Wrap(nexerr.ConversionFailed, err, "%s delete %s", b.binary(), id)
	}
	dir := sandbox.StateDir(b.root(), id)
	rootfs := filepath.Join(dir, "rootfs")
	_ = b.LayerFS.UnmountOverlay(rootfs)
	return sandbox.RemoveState(b.root(), id)
}

func (b *OCIRuntimeBackend) List(ctx context.Context) ([]sandbox.ContainerInfo, error) {
	ids, err := sandbox.ListStateDirs(b.root())
	if err != nil {
		return nil, err
	}
	out := make([]sandbox.ContainerInfo, 0, len(ids))
	for _, id := range ids {
		rec, err := sandbox.ReadState(b.root(), id)
		if err != nil {
			continue
		}
		out = append(out, sandbox.ContainerInfo{
			ID:      rec.ID,
			Type:    sandbox.OCIRuntime,
			Status:  rec.Status,
			Created: time.Unix(rec.CreatedUnix, 0),
		})
	}
	return out, nil
}

func (b *OCIRuntimeBackend) Info(ctx context.Context, id string) (*sandbox.ContainerInfo, error) {
	rec, err := sandbox.ReadState(b.root(), id)
	if err != nil {
		return nil, err
	}
	return &sandbox.ContainerInfo{ID: rec.ID, Type: sandbox.OCIRuntime, Status: rec.Status, Created: time.Unix(rec.CreatedUnix, 0)}, nil
}

// Exec runs argv inside an already-created container via the runtime's own
// exec subcommand (crun exec <id> <argv...>).
func (b *OCIRuntimeBackend) Exec(ctx context.Context, id string, argv []string) (*sandbox.ExecResult, error) {
	args := append([]string{"exec", id}, argv...)
	out, err := runtimeExec(ctx, b.binary(), args...)
	if err != nil {
		return &sandbox.ExecResult{ExitCode: 1, Stdout: out}, nexerr.Wrap(nexerr.ConversionFailed, err, "%s exec %s", b.binary(), id)
	}
	return &sandbox.ExecResult{ExitCode: 0, Stdout: out}, nil
}
