// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package layerfs

import (
	"os"
	"sort"

	"github.com/CageForge/nexcage-sub009/internal/pkg/sylog"
)

// GCResult is the outcome of a GarbageCollect pass.
type GCResult struct {
	Reclaimed     []string // digests removed (or that would be removed, if dry_run)
	BytesReclaimed int64
	DryRun        bool
}

// GarbageCollect removes every layer with no remaining reference: not a
// Dependency of another layer, and not backing a live overlay mount. It
// takes gcLock for writing, which blocks behind any AddLayer/RemoveLayer/
// MountOverlay/UnmountOverlay already in flight but never stalls waiting
// for pure readers (GetLayer/ListLayers), since those never touch gcLock.
// With dryRun set, no layer is actually removed; GCResult reports what
// would have been.
func (fs *LayerFS) GarbageCollect(dryRun bool) (*GCResult, error) {
	fs.gcLock.Lock()
	defer fs.gcLock.Unlock()

	fs.writeMu.Lock()
	cur := fs.snapshot()

	referenced := make(map[string]bool, len(cur))
	for _, l := range cur {
		for _, dep := range l.Dependencies {
			referenced[dep] = true
		}
	}
	fs.mountMu.RLock()
	for _, ov := range fs.overlays {
		for _, d := range ov.Digests {
			referenced[d] = true
		}
	}
	fs.mountMu.RUnlock()

	var toRemove []string
	var reclaimed int64
	for d, l := range cur {
		if !referenced[d] {
			toRemove = append(toRemove, d)
			reclaimed += l.Size
		}
	}
	sort.Strings(toRemove)

	if !dryRun && len(toRemove) > 0 {
		fs.replace(func(next map[string]*Layer) {
			for _, d := range toRemove {
				if l, ok := next[d]; ok && l.StoragePath != "" {
					_ = os.Remove(l.StoragePath)
				}
				delete(next, d)
				fs.cache.invalidate(d)
			}
		})
	}
	fs.writeMu.Unlock()

	fs.statsMu.Lock()
	fs.gcRuns++
	if !dryRun {
		fs.gcReclaimed += reclaimed
	}
	fs.statsMu.Unlock()

	sylog.Debugf("layerfs: garbage_collect dry_run=%v reclaimed=%d bytes=%d", dryRun, len(toRemove), reclaimed)
	return &GCResult{Reclaimed: toRemove, BytesReclaimed: reclaimed, DryRun: dryRun}, nil
}
