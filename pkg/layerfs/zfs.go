// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package layerfs

import (
	"fmt"
	"os/exec"

	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
	"github.com/CageForge/nexcage-sub009/internal/pkg/sylog"
)

// ZFSConfig selects ZFS-backed layer storage: each layer gets its own
// dataset under Pool/Dataset, managed through CreateDataset,
// SnapshotDataset and DestroyDataset. No other store operation (including
// ValidateLayer and GarbageCollect) calls these helpers.
type ZFSConfig struct {
	Pool    string
	Dataset string // parent dataset, layers live at Pool/Dataset/<first 12 hex digits of the digest>
}

// datasetFor returns the ZFS dataset path for a layer digest.
func (z *ZFSConfig) datasetFor(digest string) string {
	return fmt.Sprintf("%s/%s/%s", z.Pool, z.Dataset, shortDigest(digest))
}

func shortDigest(digest string) string {
	if len(digest) >= 71 && digest[:7] == "sha256:" {
		return digest[7:19]
	}
	return digest
}

// CreateDataset provisions a ZFS dataset for a layer blob. Returns
// nexerr.ToolMissing if the zfs binary is not on PATH.
func (fs *LayerFS) CreateDataset(digest string) error {
	if fs.zfs == nil {
		return nexerr.New(nexerr.UnsupportedFormat, "store is not ZFS-backed")
	}
	ds := fs.zfs.datasetFor(digest)
	if _, err := exec.LookPath("zfs"); err != nil {
		return nexerr.Wrap(nexerr.ToolMissing, err, "zfs binary not found")
	}
	cmd := exec.Command("zfs", "create", "-p", ds)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nexerr.Wrap(nexerr.InternalError, err, "zfs create %s: %s", ds, out)
	}
	sylog.Debugf("layerfs: zfs create dataset=%s", ds)
	return nil
}

// SnapshotDataset snapshots a layer's dataset as <dataset>@validated.
func (fs *LayerFS) SnapshotDataset(digest string) error {
	if fs.zfs == nil {
		return nexerr.New(nexerr.UnsupportedFormat, "store is not ZFS-backed")
	}
	ds := fs.zfs.datasetFor(digest)
	snap := fmt.Sprintf("%s@validated", ds)
	cmd := exec.Command("zfs", "snapshot", snap)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nexerr.Wrap(nexerr.InternalError, err, "zfs snapshot %s: %s", snap, out)
	}
	return nil
}

// DestroyDataset removes a layer's dataset and any snapshots of it.
func (fs *LayerFS) DestroyDataset(digest string) error {
	if fs.zfs == nil {
		return nexerr.New(nexerr.UnsupportedFormat, "store is not ZFS-backed")
	}
	ds := fs.zfs.datasetFor(digest)
	cmd := exec.Command("zfs", "destroy", "-r", ds)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nexerr.Wrap(nexerr.InternalError, err, "zfs destroy %s: %s", ds, out)
	}
	sylog.Debugf("layerfs: zfs destroy dataset=%s", ds)
	return nil
}
