// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package proxmox

import (
	"context"

	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
	"github.com/CageForge/nexcage-sub009/internal/pkg/sylog"
	"github.com/CageForge/nexcage-sub009/pkg/sandbox"
)

// ListContainers returns the cluster's containers or VMs of type ct.
func (c *Client) ListContainers(ctx context.Context, ct sandbox.ContainerType) ([]sandbox.ContainerInfo, error) {
	var resources []ClusterResource
	var err error
	if c.useAPI() {
		sylog.Debugf("proxmox: op=list_containers via=api")
		resources, err = c.listResourcesHTTP(ctx)
	} else {
		sylog.Debugf("proxmox: op=list_containers via=cli")
		resources, err = c.listResourcesCLI(ctx, ct)
	}
	if err != nil {
		return nil, err
	}

	out := make([]sandbox.ContainerInfo, 0, len(resources))
	for _, r := range resources {
		if ct != sandbox.Unknown && r.Type != resourceType(ct) {
			continue
		}
		vmid := r.VMID
		out = append(out, sandbox.ContainerInfo{
			ID:     r.Name,
			VMID:   &vmid,
			Type:   ct,
			Status: normalizeStatus(r.Status),
		})
	}
	return out, nil
}

// FindVMIDByName returns the VMID of the single container named name.
func (c *Client) FindVMIDByName(ctx context.Context, name string, ct sandbox.ContainerType) (int, error) {
	resources, err := c.listContainersRaw(ctx, ct)
	if err != nil {
		return 0, err
	}
	var matches []ClusterResource
	for _, r := range resources {
		if r.Name == name {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return 0, nexerr.New(nexerr.NotFound, "no container named %q", name)
	case 1:
		return matches[0].VMID, nil
	default:
		return 0, nexerr.New(nexerr.AmbiguousName, "%d containers named %q", len(matches), name)
	}
}

func (c *Client) listContainersRaw(ctx context.Context, ct sandbox.ContainerType) ([]ClusterResource, error) {
	if c.useAPI() {
		return c.listResourcesHTTP(ctx)
	}
	return c.listResourcesCLI(ctx, ct)
}

// Status returns the current normalized status of vmid.
func (c *Client) Status(ctx context.Context, vmid int, ct sandbox.ContainerType) (sandbox.Status, error) {
	if c.useAPI() {
		sylog.Debugf("proxmox: vmid=%d op=status via=api", vmid)
		return c.statusHTTP(ctx, vmid, ct)
	}
	sylog.Debugf("proxmox: vmid=%d op=status via=cli", vmid)
	return c.statusCLI(ctx, vmid, ct)
}

// Start starts vmid. Idempotent: starting an already-running container is
// not an error at the Proxmox layer.
func (c *Client) Start(ctx context.Context, vmid int, ct sandbox.ContainerType) error {
	if c.useAPI() {
		sylog.Debugf("proxmox: vmid=%d op=start via=api", vmid)
		return c.startHTTP(ctx, vmid, ct)
	}
	sylog.Debugf("proxmox: vmid=%d op=start via=cli", vmid)
	return c.startCLI(ctx, vmid, ct)
}

// Stop stops vmid, gracefully (shutdown) or forcibly, per graceful.
// Idempotent: stopping an already-stopped container is not an error.
func (c *Client) Stop(ctx context.Context, vmid int, ct sandbox.ContainerType, graceful bool) error {
	if c.useAPI() {
		sylog.Debugf("proxmox: vmid=%d op=stop via=api graceful=%v", vmid, graceful)
		return c.stopHTTP(ctx, vmid, ct, graceful)
	}
	sylog.Debugf("proxmox: vmid=%d op=stop via=cli graceful=%v", vmid, graceful)
	return c.stopCLI(ctx, vmid, ct, graceful)
}

// Destroy removes vmid entirely.
func (c *Client) Destroy(ctx context.Context, vmid int, ct sandbox.ContainerType) error {
	if c.useAPI() {
		sylog.Debugf("proxmox: vmid=%d op=destroy via=api", vmid)
		return c.destroyHTTP(ctx, vmid, ct)
	}
	sylog.Debugf("proxmox: vmid=%d op=destroy via=cli", vmid)
	return c.destroyCLI(ctx, vmid, ct)
}

// Exec runs argv inside vmid via `pct exec`/`qm guest exec`. There is no
// HTTP API equivalent for interactive command execution, so this always
// goes through the CLI regardless of useAPI().
func (c *Client) Exec(ctx context.Context, vmid int, ct sandbox.ContainerType, argv []string) (int, []byte, []byte, error) {
	bin, err := c.binFor(ct)
	if err != nil {
		return -1, nil, nil, err
	}
	args := append([]string{"exec", itoa(vmid), "--"}, argv...)
	sylog.Debugf("proxmox: vmid=%d op=exec via=cli", vmid)
	return runCLIFull(ctx, bin, args...)
}
