// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package layerfs

import (
	"time"

	godigest "github.com/opencontainers/go-digest"

	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
	"github.com/CageForge/nexcage-sub009/pkg/archive"
)

// ValidateLayer recomputes the digest of the layer's on-disk blob and
// compares it against the declared digest, marking the layer Validated on
// success. It does not hold gcLock: validation only reads the blob, never
// mutates the store's mount state, so it is safe to run concurrently with
// GarbageCollect. If GC reclaims the layer mid-validation, ValidateLayer
// returns an error (the blob can no longer be read, or the layer is
// NotFound) instead of marking it Validated.
func (fs *LayerFS) ValidateLayer(digest string) error {
	l, err := fs.GetLayer(digest)
	if err != nil {
		return err
	}
	want := godigest.Digest(digest)
	if err := archive.ValidateDigest(l.StoragePath, want); err != nil {
		return err
	}

	fs.writeMu.Lock()
	defer fs.writeMu.Unlock()
	cur := fs.snapshot()
	stored, ok := cur[digest]
	if !ok {
		return nexerr.New(nexerr.NotFound, "layer %s not found", digest)
	}
	updated := stored.clone()
	updated.Validated = true
	updated.LastValidated = time.Now()
	fs.replace(func(next map[string]*Layer) {
		next[digest] = updated
	})
	fs.cache.invalidate(digest)
	return nil
}

// ValidateAll validates every layer, returning the digests that failed
// validation mapped to their error. It does not stop at the first failure.
func (fs *LayerFS) ValidateAll() map[string]error {
	failures := make(map[string]error)
	for digest := range fs.snapshot() {
		if err := fs.ValidateLayer(digest); err != nil {
			failures[digest] = err
		}
	}
	return failures
}
