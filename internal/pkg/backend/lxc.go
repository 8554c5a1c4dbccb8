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
	"fmt"
	"os"

	"github.com/docker/go-units"

	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
	"github.com/CageForge/nexcage-sub009/internal/pkg/proxmox"
	"github.com/CageForge/nexcage-sub009/internal/pkg/sylog"
	"github.com/CageForge/nexcage-sub009/pkg/convert"
	"github.com/CageForge/nexcage-sub009/pkg/sandbox"
)

// LXCBackend runs containers as Proxmox LXC containers.
type LXCBackend struct {
	Client       *proxmox.Client
	Converter    *convert.Converter
	Storage      string
	DefaultImage string
	DiskGiB      int
}

func (b *LXCBackend) Name() sandbox.ContainerType { return sandbox.LXC }

// Create resolves cfg.Image to a template name (converting an OCI bundle
// if necessary), allocates a VMID, runs `pct create`, and applies any
// additional volume mounts by editing /etc/pve/lxc/<vmid>.conf.
func (b *LXCBackend) Create(ctx context.Context, cfg *sandbox.SandboxConfig) error {
	template, err := b.resolveTemplate(ctx, cfg)
	if err != nil {
		return err
	}

	memMiB := 512
	cores := 1
	diskGiB := b.DiskGiB
	if diskGiB == 0 {
		diskGiB = 8
	}
	if cfg.Resources != nil {
		if cfg.Resources.MemoryMiB > 0 {
			memMiB = cfg.Resources.MemoryMiB
		}
		if cfg.Resources.CPUCores > 0 {
			cores = int(cfg.Resources.CPUCores)
		}
		if cfg.Resources.DiskGiB > 0 {
			diskGiB = cfg.Resources.DiskGiB
		}
	}
	storage := b.Storage
	if storage == "" {
		storage = "local"
	}

	var net0 string
	if cfg.Network != nil && cfg.Network.Bridge != "" {
		net0 = fmt.Sprintf("name=eth0,bridge=%s", cfg.Network.Bridge)
		if cfg.Network.IP != "" {
			net0 += ",ip=" + cfg.Network.IP
		}
		if cfg.Network.MAC != "" {
			net0 += ",hwaddr=" + cfg.Network.MAC
		}
		warnIfBridgeMissing(cfg.Network.Bridge)
	}

	unprivileged := cfg.Security != nil && cfg.Security.Unprivileged

	vmid, err := b.Client.AllocateVMIDWithRetry(ctx, func(vmid int) error {
		return b.Client.CreateLXC(ctx, proxmox.CreateLXCArgs{
			VMID:         vmid,
			Template:     fmt.Sprintf("%s:vztmpl/%s.tar.zst", storage, template),
			Hostname:     cfg.Name,
			MemoryMiB:    memMiB,
			Cores:        cores,
			Rootfs:       fmt.Sprintf("%s:%d", storage, diskGiB),
			Unprivileged: unprivileged,
			Net0:         net0,
		})
	})
	if err != nil {
		return err
	}

	if len(cfg.Volumes) > 0 {
		if err := appendMountEntries(vmid, cfg.Volumes); err != nil {
			return err
		}
	}
	sylog.Debugf("backend/lxc: created id=%s vmid=%d template=%s mem=%s disk=%s", cfg.Name, vmid, template,
		units.BytesSize(float64(memMiB)*units.MiB), units.BytesSize(float64(diskGiB)*units.GiB))
	return nil
}

func (b *LXCBackend) resolveTemplate(ctx context.Context, cfg *sandbox.SandboxConfig) (string, error) {
	switch {
	case cfg.Image != nil && cfg.Image.IsBundle():
		rec, err := b.Converter.Convert(ctx, cfg.Image.BundlePath, cfg.Name)
		if err != nil {
			return "", err
		}
		return rec.TemplateName, nil
	case cfg.Image != nil && cfg.Image.Label != "":
		return cfg.Image.Label, nil
	case b.DefaultImage != "":
		return b.DefaultImage, nil
	default:
		return "", nexerr.New(nexerr.UsageError, "no image specified and no default configured")
	}
}

// appendMountEntries appends mpN lines to /etc/pve/lxc/<vmid>.conf for
// each extra volume mount, per spec §4.F.
func appendMountEntries(vmid int, volumes []sandbox.VolumeMount) error {
	path := fmt.Sprintf("/etc/pve/lxc/%d.conf", vmid)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nexerr.Wrap(nexerr.InternalError, err, "open %s", path)
	}
	defer f.Close()

	for i, v := range volumes {
		ro := ""
		if v.ReadOnly {
			ro = ",ro=1"
		}
		line := fmt.Sprintf("mp%d: %s,mp=%s%s\n", i, v.HostPath, v.ContainerPath, ro)
		if _, err := f.WriteString(line); err != nil {
			return nexerr.Wrap(nexerr.InternalError, err, "append mount entry to %s", path)
		}
	}
	return nil
}

func (b *LXCBackend) vmidFor(ctx context.Context, id string) (int, error) {
	return b.Client.FindVMIDByName(ctx, id, sandbox.LXC)
}

func (b *LXCBackend) Start(ctx context.Context, id string) error {
	vmid, err := b.vmidFor(ctx, id)
	if err != nil {
		return err
	}
	return b.Client.Start(ctx, vmid, sandbox.LXC)
}

func (b *LXCBackend) Stop(ctx context.Context, id string) error {
	vmid, err := b.vmidFor(ctx, id)
	if err != nil {
		return err
	}
	return b.Client.Stop(ctx, vmid, sandbox.LXC, true)
}

func (b *LXCBackend) Delete(ctx context.Context, id string) error {
	vmid, err := b.vmidFor(ctx, id)
	if err != nil {
		return err
	}
	return b.Client.Destroy(ctx, vmid, sandbox.LXC)
}

func (b *LXCBackend) List(ctx context.Context) ([]sandbox.ContainerInfo, error) {
	return b.Client.ListContainers(ctx, sandbox.LXC)
}

func (b *LXCBackend) Info(ctx context.Context, id string) (*sandbox.ContainerInfo, error) {
	vmid, err := b.vmidFor(ctx, id)
	if err != nil {
		return nil, err
	}
	status, err := b.Client.Status(ctx, vmid, sandbox.LXC)
	if err != nil {
		return nil, err
	}
	return &sandbox.ContainerInfo{ID: id, VMID: &vmid, Type: sandbox.LXC, Status: status}, nil
}

func (b *LXCBackend) Exec(ctx context.Context, id string, argv []string) (*sandbox.ExecResult, error) {
	vmid, err := b.vmidFor(ctx, id)
	if err != nil {
		return nil, err
	}
	code, stdout, stderr, err := b.Client.Exec(ctx, vmid, sandbox.LXC, argv)
	if err != nil {
		return nil, err
	}
	return &sandbox.ExecResult{ExitCode: code, Stdout: stdout, Stderr: stderr}, nil
}
