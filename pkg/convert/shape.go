// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package convert

import (
	"os"
	"path/filepath"

	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
	"github.com/CageForge/nexcage-sub009/pkg/ocibundle"
)

var essentialDirs = []string{"dev", "proc", "sys", "tmp", "var", "run"}

const fallbackInit = "#!/bin/sh\nexec /bin/sh\n"

// applyLXCShaping prepares an extracted rootfs for use as an LXC template:
// essential mount-point directories, /etc/hostname, a DHCP
// /etc/network/interfaces when the bundle doesn't already ship one, and an
// executable /sbin/init (falling back to a minimal shell init when absent).
func applyLXCShaping(rootfs string, b *ocibundle.Bundle) error {
	for _, d := range essentialDirs {
		if err := os.MkdirAll(filepath.Join(rootfs, d), 0o755); err != nil {
			return nexerr.Wrap(nexerr.InternalError, err, "mkdir %s", d)
		}
	}

	etc := filepath.Join(rootfs, "etc")
	if err := os.MkdirAll(etc, 0o755); err != nil {
		return nexerr.Wrap(nexerr.InternalError, err, "mkdir %s", etc)
	}

	hostname := "container"
	if b.Spec.Hostname != "" {
		hostname = b.Spec.Hostname
	}
	if err := os.WriteFile(filepath.Join(etc, "hostname"), []byte(hostname+"\n"), 0o644); err != nil {
		return nexerr.Wrap(nexerr.InternalError, err, "write /etc/hostname")
	}

	ifacesPath := filepath.Join(etc, "network", "interfaces")
	if _, err := os.Stat(ifacesPath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(ifacesPath), 0o755); err != nil {
			return nexerr.Wrap(nexerr.InternalError, err, "mkdir %s", filepath.Dir(ifacesPath))
		}
		iface := "auto lo\niface lo inet loopback\n\nauto eth0\niface eth0 inet dhcp\n"
		if err := os.WriteFile(ifacesPath, []byte(iface), 0o644); err != nil {
			return nexerr.Wrap(nexerr.InternalError, err, "write /etc/network/interfaces")
		}
	}

	initPath := filepath.Join(rootfs, "sbin", "init")
	if info, err := os.Stat(initPath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Join(rootfs, "sbin"), 0o755); err != nil {
			return nexerr.Wrap(nexerr.InternalError, err, "mkdir /sbin")
		}
		if err := os.WriteFile(initPath, []byte(fallbackInit), 0o755); err != nil {
			return nexerr.Wrap(nexerr.InternalError, err, "write fallback /sbin/init")
		}
	} else if err == nil {
		if info.Mode()&0o111 == 0 {
			if err := os.Chmod(initPath, info.Mode()|0o111); err != nil {
				return nexerr.Wrap(nexerr.InternalError, err, "chmod /sbin/init executable")
			}
		}
	}

	return nil
}
