// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package router

import (
	"context"
	"testing"

	"github.com/CageForge/nexcage-sub009/internal/pkg/backend"
	"github.com/CageForge/nexcage-sub009/internal/pkg/config"
	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
	"github.com/CageForge/nexcage-sub009/pkg/sandbox"
)

func TestMatchGlob(t *testing.T) {
	cases := []struct {
		pattern, name string
		want          bool
	}{
		{"kube-ovn-*", "kube-ovn-42", true},
		{"kube-ovn-*", "kube-ovn-", true},
		{"kube-ovn-*", "other", false},
		{"*-worker", "batch-worker", true},
		{"*-worker", "worker", false},
		{"web-01", "web-01", true},
		{"web-01", "web-02", false},
		{"*", "anything", true},
		{"a*b*c", "axxbyyc", true},
		{"a*b*c", "abc", true},
		{"a*b*c", "ac", false},
		{"web-0?", "web-01", false}, // '?' is literal, not a wildcard
	}
	for _, c := range cases {
		if got := matchGlob(c.pattern, c.name); got != c.want {
			t.Errorf("matchGlob(%q, %q) = %v, want %v", c.pattern, c.name, got, c.want)
		}
	}
}

func TestRouteDeterministic(t *testing.T) {
	cc := config.ContainerConfig{
		CrunNamePatterns:     []string{"kube-ovn-*"},
		DefaultContainerType: "lxc",
	}
	if got := Route("kube-ovn-42", cc); got != sandbox.OCIRuntime {
		t.Fatalf("want OCIRuntime, got %v", got)
	}
	if got := Route("web-01", cc); got != sandbox.LXC {
		t.Fatalf("want LXC, got %v", got)
	}
	// Same inputs always produce the same output.
	for i := 0; i < 5; i++ {
		if got := Route("kube-ovn-42", cc); got != sandbox.OCIRuntime {
			t.Fatalf("route is not deterministic: iteration %d got %v", i, got)
		}
	}
}

func TestRouteUnknownDefaultFallsBackToLXC(t *testing.T) {
	cc := config.ContainerConfig{DefaultContainerType: "not-a-real-type"}
	if got := Route("anything", cc); got != sandbox.LXC {
		t.Fatalf("want LXC fallback, got %v", got)
	}
}

type stubBackend struct {
	name sandbox.ContainerType
	err  error
}

func (s *stubBackend) Name() sandbox.ContainerType { return s.name }
func (s *stubBackend) Create(ctx context.Context, cfg *sandbox.SandboxConfig) error { return s.err }
func (s *stubBackend) Start(ctx context.Context, id string) error                  { return s.err }
func (s *stubBackend) Stop(ctx context.Context, id string) error                   { return s.err }
func (s *stubBackend) Delete(ctx context.Context, id string) error                 { return s.err }
func (s *stubBackend) List(ctx context.Context) ([]sandbox.ContainerInfo, error)   { return nil, s.err }
func (s *stubBackend) Info(ctx context.Context, id string) (*sandbox.ContainerInfo, error) {
	return nil, s.err
}
func (s *stubBackend) Exec(ctx context.Context, id string, argv []string) (*sandbox.ExecResult, error) {
	return nil, s.err
}

func TestDispatchUnsupportedBackend(t *testing.T) {
	r := &Router{Config: config.ContainerConfig{DefaultContainerType: "vm"}}
	err := r.Start(context.Background(), "anything")
	if nexerr.KindOf(err) != nexerr.UnsupportedBackend {
		t.Fatalf("want UnsupportedBackend, got %v", err)
	}
}

func TestDispatchTranslatesUntaxonomizedError(t *testing.T) {
	r := &Router{
		Backends: map[sandbox.ContainerType]backend.Backend{
			sandbox.LXC: &stubBackend{name: sandbox.LXC, err: context.DeadlineExceeded},
		},
		Config: config.ContainerConfig{DefaultContainerType: "lxc"},
	}
	err := r.Start(context.Background(), "web-01")
	if nexerr.KindOf(err) != nexerr.InternalError {
		t.Fatalf("want InternalError (untranslated passthrough), got %v", err)
	}
}

func TestDispatchPassesThroughTaxonomyError(t *testing.T) {
	r := &Router{
		Backends: map[sandbox.ContainerType]backend.Backend{
			sandbox.LXC: &stubBackend{name: sandbox.LXC, err: nexerr.New(nexerr.NotFound, "no such container")},
		},
		Config: config.ContainerConfig{DefaultContainerType: "lxc"},
	}
	err := r.Start(context.Background(), "web-01")
	if nexerr.KindOf(err) != nexerr.NotFound {
		t.Fatalf("want NotFound, got %v", err)
	}
}
