// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package backend holds the three concrete container backends (LXC,
// OCI-runtime, VM) behind the uniform contract the Backend Router
// dispatches to (spec §4.F).
package backend

import (
	"context"

	"github.com/CageForge/nexcage-sub009/pkg/sandbox"
)

// Backend is the uniform contract every container backend implements.
type Backend interface {
	Name() sandbox.ContainerType
	Create(ctx context.Context, cfg *sandbox.SandboxConfig) error
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]sandbox.ContainerInfo, error)
	Info(ctx context.Context, id string) (*sandbox.ContainerInfo, error)
	Exec(ctx context.Context, id string, argv []string) (*sandbox.ExecResult, error)
}
