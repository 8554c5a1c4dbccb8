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
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
	"github.com/CageForge/nexcage-sub009/internal/pkg/sylog"
	"github.com/CageForge/nexcage-sub009/pkg/sandbox"
)

const minVMID = 100

// usedVMIDs lists every VMID currently known to the cluster, via whichever
// transport is active.
func (c *Client) usedVMIDs(ctx context.Context) (map[int]bool, error) {
	used := make(map[int]bool)
	var resources []ClusterResource
	var err error
	if c.useAPI() {
		resources, err = c.listResourcesHTTP(ctx)
		if err != nil {
			return nil, err
		}
	} else {
		lxc, lerr := c.listResourcesCLI(ctx, sandbox.LXC)
		if lerr != nil && nexerr.KindOf(lerr) != nexerr.ToolMissing {
			return nil, lerr
		}
		vms, verr := c.listResourcesCLI(ctx, sandbox.VM)
		if verr != nil && nexerr.KindOf(verr) != nexerr.ToolMissing {
			return nil, verr
		}
		resources = append(resources, lxc...)
		resources = append(resources, vms...)
	}
	for _, r := range resources {
		used[r.VMID] = true
	}
	return used, nil
}

func smallestFree(used map[int]bool) int {
	ids := make([]int, 0, len(used))
	for id := range used {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	candidate := minVMID
	for _, id := range ids {
		if id < candidate {
			continue
		}
		if id == candidate {
			candidate++
			continue
		}
		break
	}
	return candidate
}

// AllocateVMID returns the smallest unused VMID >= 100. If create reports
// the VMID is already taken (a TOCTOU race with another allocator), the
// caller should call AllocateVMIDWithRetry, which retries the whole
// allocate-and-create cycle up to 3 times with a short constant backoff.
func (c *Client) AllocateVMID(ctx context.Context) (int, error) {
	used, err := c.usedVMIDs(ctx)
	if err != nil {
		return 0, err
	}
	vmid := smallestFree(used)
	sylog.Debugf("proxmox: allocate_vmid -> %d via=%s", vmid, transportLabel(c.useAPI()))
	return vmid, nil
}

// AllocateVMIDWithRetry calls create(vmid) with freshly allocated VMIDs,
// retrying up to 3 times when create fails because the VMID raced with
// another allocator ("VMID in use" surfacing as ProxmoxApiError/CLIError).
func (c *Client) AllocateVMIDWithRetry(ctx context.Context, create func(vmid int) error) (int, error) {
	var vmid int
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(200*time.Millisecond), 3)

	op := func() error {
		var err error
		vmid, err = c.AllocateVMID(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		err = create(vmid)
		if err != nil && isVMIDConflict(err) {
			sylog.Debugf("proxmox: vmid=%d in use, retrying allocation", vmid)
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	if err := backoff.Retry(op, b); err != nil {
		return 0, nexerr.Wrap(nexerr.ProxmoxAPIError, err, "allocate_vmid exhausted retries")
	}
	return vmid, nil
}

func isVMIDConflict(err error) bool {
	return strings.Contains(err.Error(), "already exists") || strings.Contains(err.Error(), "VMID in use") || strings.Contains(err.Error(), "config file already exists")
}

func transportLabel(useAPI bool) string {
	if useAPI {
		return "api"
	}
	return "cli"
}
