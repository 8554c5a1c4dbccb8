// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package proxmox is the Proxmox Control Client (spec §4.E): a hybrid
// HTTP-API/CLI client for listing, starting, stopping and destroying LXC
// containers and VMs, allocating VMIDs, and uploading LXC templates.
package proxmox

import (
	"github.com/CageForge/nexcage-sub009/pkg/sandbox"
)

// ClusterResource is one entry of GET /cluster/resources?type=vm.
type ClusterResource struct {
	VMID   int    `json:"vmid"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Type   string `json:"type"` // "lxc" or "qemu"
	Node   string `json:"node"`
}

// normalizeStatus maps a raw Proxmox status string to the nexcage enum.
func normalizeStatus(raw string) sandbox.Status {
	switch raw {
	case "running":
		return sandbox.StatusRunning
	case "stopped":
		return sandbox.StatusStopped
	case "paused":
		return sandbox.StatusPaused
	default:
		return sandbox.StatusUnknown
	}
}

func resourceType(ct sandbox.ContainerType) string {
	if ct == sandbox.VM {
		return "qemu"
	}
	return "lxc"
}
