// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package layerfs

import (
	"sync"
	"sync/atomic"

	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
	"github.com/CageForge/nexcage-sub009/internal/pkg/sylog"
)

// LayerFS is the layer store. Reads of layer metadata (GetLayer,
// ListLayers) never take a store lock: they dereference an
// atomic.Pointer[map[string]*Layer] snapshot, which writers replace with a
// clone-and-mutate copy. GetLayer does take the metadata cache's own mutex
// when caching is enabled. Mutating operations serialize against each other
// on writeMu, and take gcLock for reading so GarbageCollect can exclude
// them with a single write lock rather than stopping the world for
// unrelated readers.
type LayerFS struct {
	BaseDir string

	layers  atomic.Pointer[map[string]*Layer]
	writeMu sync.Mutex
	gcLock  sync.RWMutex

	mountMu     sync.RWMutex
	mountPoints map[string]string       // mount point path -> primary digest
	overlays    map[string]*OverlayMount // mount point path -> live overlay

	readonly atomic.Bool

	zfs *ZFSConfig

	cache *lruCache

	statsMu     sync.Mutex
	gcReclaimed int64
	gcRuns      int64
}

// New returns an empty store rooted at baseDir. cacheSize bounds the
// metadata LRU cache (0 disables caching).
func New(baseDir string, cacheSize int) *LayerFS {
	empty := make(map[string]*Layer)
	fs := &LayerFS{
		BaseDir:     baseDir,
		mountPoints: make(map[string]string),
		overlays:    make(map[string]*OverlayMount),
		cache:       newLRUCache(cacheSize),
	}
	fs.layers.Store(&empty)
	return fs
}

// WithZFS enables ZFS-backed storage for layer blobs (spec §4.B ZFS mode).
func (fs *LayerFS) WithZFS(cfg *ZFSConfig) *LayerFS {
	fs.zfs = cfg
	return fs
}

func (fs *LayerFS) snapshot() map[string]*Layer {
	return *fs.layers.Load()
}

// replace installs a new snapshot built from the current one by mutate.
// Callers must hold writeMu.
func (fs *LayerFS) replace(mutate func(next map[string]*Layer)) {
	cur := fs.snapshot()
	next := make(map[string]*Layer, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	mutate(next)
	fs.layers.Store(&next)
}

// AddLayer registers a new layer. The digest must be unique and
// well-formed; dependencies need not be in the store yet, but a layer may
// not list itself as a dependency (nexerr.CircularDependency).
func (fs *LayerFS) AddLayer(l *Layer) error {
	if fs.readonly.Load() {
		return nexerr.New(nexerr.ReadOnly, "store is read-only")
	}
	if l.Digest == "" || l.Digest.Validate() != nil {
		return nexerr.New(nexerr.InvalidArchive, "malformed layer digest %q", l.Digest)
	}

	fs.gcLock.RLock()
	defer fs.gcLock.RUnlock()
	fs.writeMu.Lock()
	defer fs.writeMu.Unlock()

	cur := fs.snapshot()
	if _, exists := cur[string(l.Digest)]; exists {
		return nexerr.New(nexerr.AlreadyExists, "layer %s already exists", l.Digest)
	}
	for _, dep := range l.Dependencies {
		if dep == string(l.Digest) {
			return nexerr.New(nexerr.CircularDependency, "layer %s lists itself as a dependency", l.Digest)
		}
	}

	stored := l.clone()
	fs.replace(func(next map[string]*Layer) {
		next[string(l.Digest)] = stored
	})
	fs.cache.invalidate(string(l.Digest))
	sylog.Debugf("layerfs: add_layer digest=%s size=%d deps=%d", l.Digest, l.Size, len(l.Dependencies))
	return nil
}

// RemoveLayer deletes a layer. Idempotent: an absent digest is a no-op, not
// an error. Refuses to remove a layer that is a dependency of another layer
// or that backs a live overlay mount (nexerr.LayerInUse).
func (fs *LayerFS) RemoveLayer(digest string) error {
	if fs.readonly.Load() {
		return nexerr.New(nexerr.ReadOnly, "store is read-only")
	}

	fs.gcLock.RLock()
	defer fs.gcLock.RUnlock()
	fs.writeMu.Lock()
	defer fs.writeMu.Unlock()

	cur := fs.snapshot()
	if _, ok := cur[digest]; !ok {
		sylog.Debugf("layerfs: remove_layer digest=%s absent, idempotent no-op", digest)
		return nil
	}
	for d, l := range cur {
		if d == digest {
			continue
		}
		for _, dep := range l.Dependencies {
			if dep == digest {
				return nexerr.New(nexerr.LayerInUse, "layer %s is a dependency of %s", digest, d)
			}
		}
	}
	if fs.layerMounted(digest) {
		return nexerr.New(nexerr.LayerInUse, "layer %s backs a live overlay mount", digest)
	}

	fs.replace(func(next map[string]*Layer) {
		delete(next, digest)
	})
	fs.cache.invalidate(digest)
	sylog.Debugf("layerfs: remove_layer digest=%s", digest)
	return nil
}

func (fs *LayerFS) layerMounted(digest string) bool {
	fs.mountMu.RLock()
	defer fs.mountMu.RUnlock()
	for _, ov := range fs.overlays {
		for _, d := range ov.Digests {
			if d == digest {
				return true
			}
		}
	}
	return false
}

// GetLayer returns the layer for digest, consulting the metadata cache
// first. The snapshot lookup is lock-free; the cache lookup and fill take
// the cache's own mutex.
func (fs *LayerFS) GetLayer(digest string) (*Layer, error) {
	if l, ok := fs.cache.get(digest); ok {
		return l, nil
	}
	l, ok := fs.snapshot()[digest]
	if !ok {
		return nil, nexerr.New(nexerr.NotFound, "layer %s not found", digest)
	}
	fs.cache.put(digest, l)
	return l, nil
}

// ListLayers returns every layer in the store, in no particular order.
func (fs *LayerFS) ListLayers() []*Layer {
	cur := fs.snapshot()
	out := make([]*Layer, 0, len(cur))
	for _, l := range cur {
		out = append(out, l)
	}
	return out
}

// SetReadonly toggles the store's read-only flag. A read-only store
// refuses AddLayer, RemoveLayer and MountOverlay(writable).
func (fs *LayerFS) SetReadonly(ro bool) {
	fs.readonly.Store(ro)
}

// IsReadonly reports the current read-only flag.
func (fs *LayerFS) IsReadonly() bool {
	return fs.readonly.Load()
}
