// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package layerfs

// DetailedStats summarizes the store's current state: layer/mount counts,
// total occupied size, cache hit/miss counters and cumulative GC history.
func (fs *LayerFS) DetailedStats() Stats {
	cur := fs.snapshot()
	var total int64
	for _, l := range cur {
		total += l.Size
	}

	fs.mountMu.RLock()
	mountCount := len(fs.mountPoints)
	overlayCount := len(fs.overlays)
	fs.mountMu.RUnlock()

	hits, misses := fs.cache.counts()

	fs.statsMu.Lock()
	reclaimed, runs := fs.gcReclaimed, fs.gcRuns
	fs.statsMu.Unlock()

	return Stats{
		LayerCount:   len(cur),
		TotalSize:    total,
		MountCount:   mountCount,
		OverlayCount: overlayCount,
		ReadOnly:     fs.readonly.Load(),
		ZFSEnabled:   fs.zfs != nil,
		CacheHits:    hits,
		CacheMisses:  misses,
		GCReclaimed:  reclaimed,
		GCRuns:       runs,
	}
}
