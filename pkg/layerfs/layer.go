// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package layerfs is the content-addressed layer store of the image core
// (spec §4.B): layer metadata, integrity validation, dependency ordering,
// overlay mount management and garbage collection.
package layerfs

import (
	"time"

	godigest "github.com/opencontainers/go-digest"
)

// Layer is one content-addressed filesystem layer.
type Layer struct {
	Digest       godigest.Digest
	MediaType    string
	Size         int64
	Created      time.Time
	Author       string
	Comment      string
	Dependencies []string // parent layer digests, in stack order
	Order        uint32   // tie-break for LayersInOrder among layers with no dependency relation
	StoragePath  string   // path to the packed layer blob on disk
	Compressed   bool
	Validated    bool
	LastValidated time.Time
}

// clone returns a deep-enough copy of l for safe storage in a snapshot map:
// the Dependencies slice is copied so a caller mutating their own slice
// can't reach into store state.
func (l *Layer) clone() *Layer {
	cp := *l
	if l.Dependencies != nil {
		cp.Dependencies = append([]string(nil), l.Dependencies...)
	}
	return &cp
}

// OverlayMount is a live overlay mount stacking one or more layers at
// MountPoint.
type OverlayMount struct {
	MountPoint string
	LowerDirs  []string // lower, read-only, in overlay precedence order
	UpperDir   string   // empty for a read-only stack
	WorkDir    string   // empty for a read-only stack
	ReadOnly   bool
	Digests    []string // layer digests backing LowerDirs, bottom-to-top (the reverse of LowerDirs)
}

// Stats is the detailed_stats() return shape (spec §4.B).
type Stats struct {
	LayerCount     int
	TotalSize      int64
	MountCount     int
	OverlayCount   int
	ReadOnly       bool
	ZFSEnabled     bool
	CacheHits      int64
	CacheMisses    int64
	GCReclaimed    int64
	GCRuns         int64
}
