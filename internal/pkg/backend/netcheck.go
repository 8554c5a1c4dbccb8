// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package backend

import (
	"github.com/vishvananda/netlink"

	"github.com/CageForge/nexcage-sub009/internal/pkg/sylog"
)

// warnIfBridgeMissing looks up bridge by name in the host's link table. It
// is best-effort: nexcage may be driving a remote node entirely through the
// Proxmox HTTP API, in which case the local link table says nothing about
// the target node, so a missing link only ever produces a warning, never a
// create failure.
func warnIfBridgeMissing(bridge string) {
	if bridge == "" {
		return
	}
	if _, err := netlink.LinkByName(bridge); err != nil {
		sylog.Warningf("bridge %q not found in the local link table (ignored if the Proxmox node is remote): %s", bridge, err)
	}
}
