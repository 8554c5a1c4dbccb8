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
	"os"
	"strings"

	"github.com/moby/sys/mountinfo"
	"golang.org/x/sys/unix"

	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
	"github.com/CageForge/nexcage-sub009/internal/pkg/sylog"
)

// incompatibleOverlayFs mirrors the teacher's overlay filesystem
// compatibility table: a handful of network/FUSE filesystem types can't
// back an overlay lower or upper directory.
var incompatibleOverlayFs = map[int64]string{
	0x6969:     "NFS",
	0x65735546: "FUSE",
	0xF15F:     "ECRYPT",
	0x0BD00BD0: "LUSTRE",
	0x47504653: "GPFS",
	0xAAD7AAEA: "PANFS",
}

func checkOverlayCompatible(path string) error {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return nexerr.Wrap(nexerr.InternalError, err, "statfs %s", path)
	}
	if name, bad := incompatibleOverlayFs[int64(st.Type)]; bad {
		return nexerr.New(nexerr.InvalidOverlay, "%s is on a %s filesystem, incompatible as an overlay directory", path, name)
	}
	return nil
}

// CreateMountPoint reserves a directory for an overlay mount without
// mounting anything, creating it on disk if absent.
func (fs *LayerFS) CreateMountPoint(path string) error {
	fs.mountMu.Lock()
	defer fs.mountMu.Unlock()

	if _, exists := fs.mountPoints[path]; exists {
		return nexerr.New(nexerr.MountPointExists, "mount point %s already reserved", path)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nexerr.Wrap(nexerr.InternalError, err, "mkdir mount point %s", path)
	}
	fs.mountPoints[path] = ""
	return nil
}

// StackLayers resolves a list of layer digests (ordered bottom-to-top, as
// LayersInOrder would return them for that subset) into overlay lowerdir
// paths, outermost-first as the overlay filesystem expects.
func (fs *LayerFS) StackLayers(digests []string) ([]string, error) {
	dirs := make([]string, 0, len(digests))
	for i := len(digests) - 1; i >= 0; i-- {
		l, err := fs.GetLayer(digests[i])
		if err != nil {
			return nil, err
		}
		if l.StoragePath == "" {
			return nil, nexerr.New(nexerr.InternalError, "layer %s has no storage path", digests[i])
		}
		dirs = append(dirs, l.StoragePath)
	}
	return dirs, nil
}

// MountOverlay mounts an overlay filesystem at mountPoint stacking digests
// (bottom-to-top). When upperDir is non-empty the mount is writable;
// otherwise it is read-only and workDir is ignored.
func (fs *LayerFS) MountOverlay(mountPoint string, digests []string, upperDir, workDir string) (*OverlayMount, error) {
	if upperDir != "" && fs.readonly.Load() {
		return nil, nexerr.New(nexerr.ReadOnly, "store is read-only, cannot create writable overlay")
	}
	if len(digests) == 0 {
		return nil, nexerr.New(nexerr.InvalidOverlay, "at least one layer is required to mount an overlay")
	}

	fs.gcLock.RLock()
	defer fs.gcLock.RUnlock()

	lowers, err := fs.StackLayers(digests)
	if err != nil {
		return nil, err
	}
	for _, d := range lowers {
		if err := checkOverlayCompatible(d); err != nil {
			return nil, err
		}
	}

	fs.mountMu.Lock()
	defer fs.mountMu.Unlock()

	if _, live := fs.overlays[mountPoint]; live {
		return nil, nexerr.New(nexerr.InvalidOverlay, "%s already has a live overlay mount", mountPoint)
	}
	if err := os.MkdirAll(mountPoint, 0o755); err != nil {
		return nil, nexerr.Wrap(nexerr.InternalError, err, "mkdir %s", mountPoint)
	}

	opts := fmt.Sprintf("lowerdir=%s", strings.Join(lowers, ":"))
	readOnly := upperDir == ""
	if !readOnly {
		if err := checkOverlayCompatible(upperDir); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(upperDir, 0o755); err != nil {
			return nil, nexerr.Wrap(nexerr.InternalError, err, "mkdir upperdir %s", upperDir)
		}
		if err := os.MkdirAll(workDir, 0o755); err != nil {
			return nil, nexerr.Wrap(nexerr.InternalError, err, "mkdir workdir %s", workDir)
		}
		opts = fmt.Sprintf("%s,upperdir=%s,workdir=%s", opts, upperDir, workDir)
	}

	if err := unix.Mount("overlay", mountPoint, "overlay", 0, opts); err != nil {
		return nil, nexerr.Wrap(nexerr.InvalidOverlay, err, "mount overlay at %s", mountPoint)
	}

	ov := &OverlayMount{
		MountPoint: mountPoint,
		LowerDirs:  lowers,
		UpperDir:   upperDir,
		WorkDir:    workDir,
		ReadOnly:   readOnly,
		Digests:    append([]string(nil), digests...),
	}
	fs.overlays[mountPoint] = ov
	fs.mountPoints[mountPoint] = digests[len(digests)-1]
	sylog.Debugf("layerfs: mount_overlay point=%s layers=%d readonly=%v", mountPoint, len(digests), readOnly)
	return ov, nil
}

// UnmountOverlay tears down a live overlay at mountPoint. Idempotent: a
// mountPoint with no live overlay (already unmounted, or never mounted) is
// a no-op.
func (fs *LayerFS) UnmountOverlay(mountPoint string) error {
	fs.gcLock.RLock()
	defer fs.gcLock.RUnlock()
	fs.mountMu.Lock()
	defer fs.mountMu.Unlock()

	if _, live := fs.overlays[mountPoint]; !live {
		sylog.Debugf("layerfs: unmount_overlay point=%s not mounted, idempotent no-op", mountPoint)
		return nil
	}
	mounted, err := mountinfo.Mounted(mountPoint)
	if err == nil && mounted {
		if uerr := unix.Unmount(mountPoint, 0); uerr != nil {
			return nexerr.Wrap(nexerr.InternalError, uerr, "unmount %s", mountPoint)
		}
	}
	delete(fs.overlays, mountPoint)
	delete(fs.mountPoints, mountPoint)
	sylog.Debugf("layerfs: unmount_overlay point=%s", mountPoint)
	return nil
}

// MergeLayers flattens a digest stack into a single synthetic layer
// descriptor (no blob is produced; callers that need a real merged blob
// should mount the overlay read-only and pack its merged view with
// pkg/archive). MergeLayers exists for callers that only need the
// resulting dependency/size bookkeeping, e.g. a future squash operation.
func (fs *LayerFS) MergeLayers(digests []string) (*Layer, error) {
	if len(digests) == 0 {
		return nil, nexerr.New(nexerr.InvalidOverlay, "at least one layer is required to merge")
	}
	var total int64
	deps := make([]string, 0, len(digests))
	for _, d := range digests {
		l, err := fs.GetLayer(d)
		if err != nil {
			return nil, err
		}
		total += l.Size
		deps = append(deps, d)
	}
	return &Layer{
		MediaType:    "application/vnd.nexcage.layer.merged",
		Size:         total,
		Dependencies: deps,
	}, nil
}
