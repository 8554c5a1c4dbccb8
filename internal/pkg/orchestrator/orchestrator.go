// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package orchestrator is the thin shim the CLI calls into (spec §4.H): it
// builds a SandboxConfig, dispatches through the Backend Router, owns the
// state.json transitions, and logs a structured summary of the outcome.
package orchestrator

import (
	"context"
	"time"

	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
	"github.com/CageForge/nexcage-sub009/internal/pkg/router"
	"github.com/CageForge/nexcage-sub009/internal/pkg/sylog"
	"github.com/CageForge/nexcage-sub009/pkg/sandbox"
)

// Orchestrator drives one container's lifecycle through Router, keeping
// <root>/<id>/state.json in sync with the transitions it allows.
type Orchestrator struct {
	Router *router.Router
	Root   string
}

// transitionTable maps (fromState, op) to the resulting state, per the
// diagram in spec §4.H. A (state, op) pair absent from the table is
// invalid and rejected before any backend call is made, except where noted
// idempotent below.
var transitionTable = map[sandbox.Status]map[string]sandbox.Status{
	sandbox.StatusCreated: {
		"start": sandbox.StatusRunning,
		"stop":  sandbox.StatusStopped, // idempotent: already not running
		"delete": "",
	},
	sandbox.StatusRunning: {
		"start": sandbox.StatusRunning, // idempotent
		"stop":  sandbox.StatusStopped,
		// delete from running requires Force; handled explicitly below.
	},
	sandbox.StatusStopped: {
		"start":  sandbox.StatusRunning,
		"stop":   sandbox.StatusStopped, // idempotent
		"delete": "",
	},
}

// Create builds cfg's container through the router. Initial state after a
// successful create is "created".
func (o *Orchestrator) Create(ctx context.Context, cfg *sandbox.SandboxConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := o.Router.Create(ctx, cfg); err != nil {
		sylog.Errorf("orchestrator: create id=%s failed: %s", cfg.Name, err)
		return err
	}

	rec := &sandbox.StateRecord{
		ID:          cfg.Name,
		Status:      sandbox.StatusCreated,
		Backend:     router.Route(cfg.Name, o.Router.Config).String(),
		CreatedUnix: time.Now().Unix(),
	}
	if err := sandbox.WriteState(o.Root, rec); err != nil {
		return err
	}
	sylog.Infof("orchestrator: create id=%s backend=%s status=created", cfg.Name, rec.Backend)
	return nil
}

// transition validates id's current state against op, runs the backend
// call via run when allowed, and persists the resulting state.
func (o *Orchestrator) transition(ctx context.Context, id, op string, run func(context.Context, string) error) error {
	rec, err := sandbox.ReadState(o.Root, id)
	if err != nil {
		return err
	}

	allowed, ok := transitionTable[rec.Status]
	if !ok {
		return nexerr.New(nexerr.InternalError, "unknown current state %q for %q", rec.Status, id)
	}
	to, ok := allowed[op]
	if !ok {
		return nexerr.New(nexerr.UsageError, "%s is not valid from state %q", op, rec.Status)
	}

	if err := run(ctx, id); err != nil {
		sylog.Errorf("orchestrator: %s id=%s failed: %s", op, id, err)
		return err
	}

	if to == "" {
		return sandbox.RemoveState(o.Root, id)
	}
	rec.Status = to
	if err := sandbox.WriteState(o.Root, rec); err != nil {
		return err
	}
	sylog.Infof("orchestrator: %s id=%s status=%s", op, id, to)
	return nil
}

func (o *Orchestrator) Start(ctx context.Context, id string) error {
	return o.transition(ctx, id, "start", o.Router.Start)
}

func (o *Orchestrator) Stop(ctx context.Context, id string) error {
	return o.transition(ctx, id, "stop", o.Router.Stop)
}

// Delete is valid from any non-running state, or from running only when
// force is set (which stops the container first).
func (o *Orchestrator) Delete(ctx context.Context, id string, force bool) error {
	rec, err := sandbox.ReadState(o.Root, id)
	if err != nil {
		return err
	}

	if rec.Status == sandbox.StatusRunning {
		if !force {
			return nexerr.New(nexerr.LayerInUse, "delete is not valid from state \"running\" without force")
		}
		if err := o.Router.Stop(ctx, id); err != nil {
			return err
		}
	}

	if err := o.Router.Delete(ctx, id); err != nil {
		sylog.Errorf("orchestrator: delete id=%s failed: %s", id, err)
		return err
	}
	if err := sandbox.RemoveState(o.Root, id); err != nil {
		return err
	}
	sylog.Infof("orchestrator: delete id=%s status=absent", id)
	return nil
}

func (o *Orchestrator) List(ctx context.Context) ([]sandbox.ContainerInfo, error) {
	return o.Router.List(ctx)
}

func (o *Orchestrator) Info(ctx context.Context, id string) (*sandbox.ContainerInfo, error) {
	return o.Router.Info(ctx, id)
}

func (o *Orchestrator) Exec(ctx context.Context, id string, argv []string) (*sandbox.ExecResult, error) {
	return o.Router.Exec(ctx, id, argv)
}

// Run is create followed by start, per the CLI's "run" command (spec §6).
func (o *Orchestrator) Run(ctx context.Context, cfg *sandbox.SandboxConfig) error {
	if err := o.Create(ctx, cfg); err != nil {
		return err
	}
	return o.Start(ctx, cfg.Name)
}
