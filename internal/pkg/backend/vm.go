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

	"github.com/docker/go-units"

	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
	"github.com/CageForge/nexcage-sub009/internal/pkg/proxmox"
	"github.com/CageForge/nexcage-sub009/internal/pkg/sylog"
	"github.com/CageForge/nexcage-sub009/pkg/sandbox"
)

// VMBackend runs containers as Proxmox QEMU VMs, analogous to LXCBackend
// but targeting a VM template/ISO and qm instead of pct.
type VMBackend struct {
	Client  *proxmox.Client
	Storage string
	DiskGiB int
	OSType  string
}

func (b *VMBackend) Name() sandbox.ContainerType { return sandbox.VM }

func (b *VMBackend) Create(ctx context.Context, cfg *sandbox.SandboxConfig) error {
	if cfg.Image == nil || cfg.Image.Label == "" {
		return nexerr.New(nexerr.UsageError, "vm backend requires an existing template or ISO label")
	}

	memMiB := 1024
	cores := 1
	diskGiB := b.DiskGiB
	if diskGiB == 0 {
		diskGiB = 16
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
		net0 = fmt.Sprintf("model=virtio,bridge=%s", cfg.Network.Bridge)
		if cfg.Network.MAC != "" {
			net0 += ",macaddr=" + cfg.Network.MAC
		}
		warnIfBridgeMissing(cfg.Network.Bridge)
	}

	osType := b.OSType
	if osType == "" {
		osType = "l26"
	}

	_, err := b.Client.AllocateVMIDWithRetry(ctx, func(vmid int) error {
		return b.Client.CreateVM(ctx, proxmox.CreateVMArgs{
			VMID:      vmid,
			Name:      cfg.Name,
			MemoryMiB: memMiB,
			Cores:     cores,
			DiskSpec:  fmt.Sprintf("scsi0: %s:%d", storage, diskGiB),
			OSType:    osType,
			Net0:      net0,
		})
	})
	if err != nil {
		return err
	}
	sylog.Debugf("backend/vm: created id=%s mem=%s disk=%s", cfg.Name,
		units.BytesSize(float64(memMiB)*units.MiB), units.BytesSize(float64(diskGiB)*units.GiB))
	return nil
}

func (b *VMBackend) vmidFor(ctx context.Context, id string) (int, error) {
	return b.Client.FindVMIDByName(ctx, id, sandbox.VM)
}

func (b *VMBackend) Start(ctx context.Context, id string) error {
	vmid, err := b.vmidFor(ctx, id)
	if err != nil {
		return err
	}
	return b.Client.Start(ctx, vmid, sandbox.VM)
}

func (b *VMBackend) Stop(ctx context.Context, id string) error {
	vmid, err := b.vmidFor(ctx, id)
	if err != nil {
		return err
	}
	return b.Client.Stop(ctx, vmid, sandbox.VM, true)
}

func (b *VMBackend) Delete(ctx context.Context, id string) error {
	vmid, err := b.vmidFor(ctx, id)
	if err != nil {
		return err
	}
	return b.Client.Destroy(ctx, vmid, sandbox.VM)
}

func (b *VMBackend) List(ctx context.Context) ([]sandbox.ContainerInfo, error) {
	return b.Client.ListContainers(ctx, sandbox.VM)
}

func (b *VMBackend) Info(ctx context.Context, id string) (*sandbox.ContainerInfo, error) {
	vmid, err := b.vmidFor(ctx, id)
	if err != nil {
		return nil, err
	}
	status, err := b.Client.Status(ctx, vmid, sandbox.VM)
	if err != nil {
		return nil, err
	}
	return &sandbox.ContainerInfo{ID: id, VMID: &vmid, Type: sandbox.VM, Status: status}, nil
}

func (b *VMBackend) Exec(ctx context.Context, id string, argv []string) (*sandbox.ExecResult, error) {
	vmid, err := b.vmidFor(ctx, id)
	if err != nil {
		return nil, err
	}
	code, stdout, stderr, err := b.Client.Exec(ctx, vmid, sandbox.VM, argv)
	if err != nil {
		return nil, err
	}
	return &sandbox.ExecResult{ExitCode: code, Stdout: stdout, Stderr: stderr}, nil
}
