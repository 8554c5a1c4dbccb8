// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package layerfs

import (
	"sort"

	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
)

// CheckCircularDependencies walks the dependency graph of every layer in
// the store and reports the first cycle found, if any.
func (fs *LayerFS) CheckCircularDependencies() error {
	cur := fs.snapshot()
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(cur))
	var visit func(digest string, path []string) error
	visit = func(digest string, path []string) error {
		switch color[digest] {
		case black:
			return nil
		case gray:
			return nexerr.New(nexerr.CircularDependency, "cycle detected: %v -> %s", path, digest)
		}
		color[digest] = gray
		l, ok := cur[digest]
		if ok {
			for _, dep := range l.Dependencies {
				if err := visit(dep, append(path, digest)); err != nil {
					return err
				}
			}
		}
		color[digest] = black
		return nil
	}
	for digest := range cur {
		if color[digest] == white {
			if err := visit(digest, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// LayersInOrder returns every layer in dependency order: a layer always
// appears after all of its Dependencies. Layers with no ordering relation
// to one another are broken first by ascending Order, then by ascending
// digest, so the result is fully deterministic. Returns
// nexerr.CircularDependency if the graph is not a DAG.
func (fs *LayerFS) LayersInOrder() ([]*Layer, error) {
	if err := fs.CheckCircularDependencies(); err != nil {
		return nil, err
	}
	cur := fs.snapshot()

	digests := make([]string, 0, len(cur))
	for d := range cur {
		digests = append(digests, d)
	}
	sort.Slice(digests, func(i, j int) bool {
		li, lj := cur[digests[i]], cur[digests[j]]
		if li.Order != lj.Order {
			return li.Order < lj.Order
		}
		return digests[i] < digests[j]
	})

	visited := make(map[string]bool, len(cur))
	out := make([]*Layer, 0, len(cur))
	var emit func(digest string)
	emit = func(digest string) {
		if visited[digest] {
			return
		}
		visited[digest] = true
		if l, ok := cur[digest]; ok {
			deps := append([]string(nil), l.Dependencies...)
			sort.Slice(deps, func(i, j int) bool {
				li, lj := cur[deps[i]], cur[deps[j]]
				if li == nil || lj == nil {
					return deps[i] < deps[j]
				}
				if li.Order != lj.Order {
					return li.Order < lj.Order
				}
				return deps[i] < deps[j]
			})
			for _, dep := range deps {
				emit(dep)
			}
			out = append(out, l)
		}
	}
	for _, d := range digests {
		emit(d)
	}
	return out, nil
}

// ResolveChain returns the dependency chain rooted at top, in bottom-to-top
// order (ancestors first, top last) — exactly the digest ordering
// MountOverlay expects. Used by the OCI-runtime backend, which addresses a
// stack of layers by its topmost digest rather than listing every ancestor
// itself.
func (fs *LayerFS) ResolveChain(top string) ([]string, error) {
	cur := fs.snapshot()
	if _, ok := cur[top]; !ok {
		return nil, nexerr.New(nexerr.NotFound, "layer %s not found", top)
	}

	visited := make(map[string]bool)
	var chain []string
	var visit func(digest string, path []string) error
	visit = func(digest string, path []string) error {
		if visited[digest] {
			return nil
		}
		for _, p := range path {
			if p == digest {
				return nexerr.New(nexerr.CircularDependency, "cycle detected: %v -> %s", path, digest)
			}
		}
		l, ok := cur[digest]
		if !ok {
			return nexerr.New(nexerr.NotFound, "layer %s not found", digest)
		}
		deps := append([]string(nil), l.Dependencies...)
		sort.Strings(deps)
		for _, dep := range deps {
			if err := visit(dep, append(path, digest)); err != nil {
				return err
			}
		}
		visited[digest] = true
		chain = append(chain, digest)
		return nil
	}
	if err := visit(top, nil); err != nil {
		return nil, err
	}
	return chain, nil
}
