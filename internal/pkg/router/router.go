// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package router selects a container backend by name pattern and dispatches
// the uniform Backend operation to it, translating backend-native errors
// into the central taxonomy (spec §4.G). This is the single layer where
// that translation happens; every other layer propagates *nexerr.Error
// unchanged.
package router

import (
	"context"

	"github.com/CageForge/nexcage-sub009/internal/pkg/backend"
	"github.com/CageForge/nexcage-sub009/internal/pkg/config"
	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
	"github.com/CageForge/nexcage-sub009/pkg/sandbox"
)

// matchGlob reports whether name matches pattern, where pattern may
// contain '*' wildcards only (no '?' or character classes, unlike
// path.Match, which the spec's "globs with * wildcard" wording does not
// ask for).
func matchGlob(pattern, name string) bool {
	parts := splitStars(pattern)
	if len(parts) == 1 {
		return parts[0] == name
	}

	if !hasPrefix(name, parts[0]) {
		return false
	}
	name = name[len(parts[0]):]
	last := len(parts) - 1

	for i := 1; i < last; i++ {
		idx := indexOf(name, parts[i])
		if idx < 0 {
			return false
		}
		name = name[idx+len(parts[i]):]
	}

	return hasSuffix(name, parts[last])
}

func splitStars(pattern string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '*' {
			parts = append(parts, pattern[start:i])
			start = i + 1
		}
	}
	parts = append(parts, pattern[start:])
	return parts
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func indexOf(s, substr string) int {
	if substr == "" {
		return 0
	}
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

// Route returns the ContainerType that name routes to: OCIRuntime if name
// matches any of cc.CrunNamePatterns, otherwise the configured
// default. Deterministic and dependent only on name and cc, per testable
// property #1.
func Route(name string, cc config.ContainerConfig) sandbox.ContainerType {
	for _, pattern := range cc.CrunNamePatterns {
		if matchGlob(pattern, name) {
			return sandbox.OCIRuntime
		}
	}
	if t := sandbox.ParseContainerType(cc.DefaultContainerType); t != sandbox.Unknown {
		return t
	}
	return sandbox.LXC
}

// Router dispatches the uniform Backend contract to whichever backend
// Route selects for a given container name.
type Router struct {
	Backends map[sandbox.ContainerType]backend.Backend
	Config   config.ContainerConfig
}

func (r *Router) resolve(name string) (backend.Backend, error) {
	t := Route(name, r.Config)
	b, ok := r.Backends[t]
	if !ok {
		return nil, nexerr.New(nexerr.UnsupportedBackend, "no backend registered for container type %s", t)
	}
	return b, nil
}

func (r *Router) Create(ctx context.Context, cfg *sandbox.SandboxConfig) error {
	b, err := r.resolve(cfg.Name)
	if err != nil {
		return err
	}
	return translate(b.Create(ctx, cfg))
}

func (r *Router) Start(ctx context.Context, id string) error {
	b, err := r.resolve(id)
	if err != nil {
		return err
	}
	return translate(b.Start(ctx, id))
}

func (r *Router) Stop(ctx context.Context, id string) error {
	b, err := r.resolve(id)
	if err != nil {
		return err
	}
	return translate(b.Stop(ctx, id))
}

func (r *Router) Delete(ctx context.Context, id string) error {
	b, err := r.resolve(id)
	if err != nil {
		return err
	}
	return translate(b.Delete(ctx, id))
}

func (r *Router) Info(ctx context.Context, id string) (*sandbox.ContainerInfo, error) {
	b, err := r.resolve(id)
	if err != nil {
		return nil, err
	}
	info, err := b.Info(ctx, id)
	return info, translate(err)
}

func (r *Router) Exec(ctx context.Context, id string, argv []string) (*sandbox.ExecResult, error) {
	b, err := r.resolve(id)
	if err != nil {
		return nil, err
	}
	res, err := b.Exec(ctx, id, argv)
	return res, translate(err)
}

// List aggregates every registered backend's List, since a name is not
// available to route by for the list operation.
func (r *Router) List(ctx context.Context) ([]sandbox.ContainerInfo, error) {
	var all []sandbox.ContainerInfo
	for _, b := range r.Backends {
		infos, err := b.List(ctx)
		if err != nil {
			if nexerr.KindOf(err) == nexerr.ToolMissing {
				continue
			}
			return nil, translate(err)
		}
		all = append(all, infos...)
	}
	return all, nil
}

// translate ensures every error the router returns already carries a
// taxonomy Kind; a backend that returned a bare error (an invariant
// violation, since every backend is documented to return *nexerr.Error)
// is surfaced as InternalError rather than silently passed through.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*nexerr.Error); ok {
		return err
	}
	return nexerr.Wrap(nexerr.InternalError, err, "untranslated backend error")
}
