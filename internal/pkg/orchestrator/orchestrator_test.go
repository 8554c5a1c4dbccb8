// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package orchestrator

import (
	"context"
	"testing"

	"github.com/CageForge/nexcage-sub009/internal/pkg/backend"
	"github.com/CageForge/nexcage-sub009/internal/pkg/config"
	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
	"github.com/CageForge/nexcage-sub009/internal/pkg/router"
	"github.com/CageForge/nexcage-sub009/pkg/sandbox"
)

type recordingBackend struct {
	calls []string
}

func (b *recordingBackend) Name() sandbox.ContainerType { return sandbox.LXC }
func (b *recordingBackend) Create(ctx context.Context, cfg *sandbox.SandboxConfig) error {
	b.calls = append(b.calls, "create")
	return nil
}
func (b *recordingBackend) Start(ctx context.Context, id string) error {
	b.calls = append(b.calls, "start")
	return nil
}
func (b *recordingBackend) Stop(ctx context.Context, id string) error {
	b.calls = append(b.calls, "stop")
	return nil
}
func (b *recordingBackend) Delete(ctx context.Context, id string) error {
	b.calls = append(b.calls, "delete")
	return nil
}
func (b *recordingBackend) List(ctx context.Context) ([]sandbox.ContainerInfo, error) {
	return nil, nil
}
func (b *recordingBackend) Info(ctx context.Context, id string) (*sandbox.ContainerInfo, error) {
	return nil, nil
}
func (b *recordingBackend) Exec(ctx context.Context, id string, argv []string) (*sandbox.ExecResult, error) {
	return nil, nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *recordingBackend) {
	t.Helper()
	rb := &recordingBackend{}
	r := &router.Router{
		Backends: map[sandbox.ContainerType]backend.Backend{sandbox.LXC: rb},
		Config:   config.ContainerConfig{DefaultContainerType: "lxc"},
	}
	return &Orchestrator{Router: r, Root: t.TempDir()}, rb
}

func TestOrchestratorCreateThenStartThenStop(t *testing.T) {
	o, rb := newTestOrchestrator(t)
	ctx := context.Background()
	cfg := &sandbox.SandboxConfig{Name: "web-01"}

	if err := o.Create(ctx, cfg); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := o.Start(ctx, "web-01"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := o.Stop(ctx, "web-01"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	want := []string{"create", "start", "stop"}
	if len(rb.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", rb.calls, want)
	}
	for i := range want {
		if rb.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", rb.calls, want)
		}
	}
}

func TestOrchestratorDeleteFromRunningRequiresForce(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()
	cfg := &sandbox.SandboxConfig{Name: "web-01"}
	_ = o.Create(ctx, cfg)
	_ = o.Start(ctx, "web-01")

	err := o.Delete(ctx, "web-01", false)
	if nexerr.KindOf(err) != nexerr.LayerInUse {
		t.Fatalf("want LayerInUse (exit 66 conflict), got %v", err)
	}

	if err := o.Delete(ctx, "web-01", true); err != nil {
		t.Fatalf("Delete with force: %v", err)
	}
	if _, err := sandbox.ReadState(o.Root, "web-01"); nexerr.KindOf(err) != nexerr.NotFound {
		t.Fatalf("state should be removed after delete, got %v", err)
	}
}

func TestOrchestratorStartInvalidFromAbsent(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	err := o.Start(context.Background(), "never-created")
	if nexerr.KindOf(err) != nexerr.NotFound {
		t.Fatalf("want NotFound, got %v", err)
	}
}
