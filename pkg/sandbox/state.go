// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package sandbox

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
)

// StateRecord is the on-disk shape of <root>/<id>/state.json (spec §6 State
// directory layout). The Lifecycle Orchestrator writes this file for every
// backend; the OCI-runtime backend also writes, reads and removes it
// itself, and reads it in its list() implementation since, unlike LXC/VM,
// it has no Proxmox cluster resource listing to fall back on.
type StateRecord struct {
	ID          string `json:"id"`
	Status      Status `json:"status"`
	Backend     string `json:"backend"`
	PID         int    `json:"pid,omitempty"`
	BundlePath  string `json:"bundle_path,omitempty"`
	CreatedUnix int64  `json:"created_unix"`
}

// StateDir returns <root>/<id>, the per-container state directory.
func StateDir(root, id string) string {
	return filepath.Join(root, id)
}

// StatePath returns <root>/<id>/state.json.
func StatePath(root, id string) string {
	return filepath.Join(StateDir(root, id), "state.json")
}

// WriteState writes rec to <root>/<id>/state.json, creating the state
// directory if needed.
func WriteState(root string, rec *StateRecord) error {
	dir := StateDir(root, rec.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nexerr.Wrap(nexerr.InternalError, err, "create state dir %s", dir)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nexerr.Wrap(nexerr.InternalError, err, "marshal state for %s", rec.ID)
	}
	path := StatePath(root, rec.ID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nexerr.Wrap(nexerr.InternalError, err, "write %s", path)
	}
	return nil
}

// ReadState reads <root>/<id>/state.json.
func ReadState(root, id string) (*StateRecord, error) {
	path := StatePath(root, id)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nexerr.New(nexerr.NotFound, "no state for %q", id)
	}
	if err != nil {
		return nil, nexerr.Wrap(nexerr.InternalError, err, "read %s", path)
	}
	var rec StateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, nexerr.Wrap(nexerr.InternalError, err, "parse %s", path)
	}
	return &rec, nil
}

// RemoveState deletes <root>/<id> entirely.
func RemoveState(root, id string) error {
	dir := StateDir(root, id)
	if err := os.RemoveAll(dir); err != nil {
		return nexerr.Wrap(nexerr.InternalError, err, "remove state dir %s", dir)
	}
	return nil
}

// ListStateDirs returns the container ids with a state directory under
// root. A missing root directory yields an empty list, not an error.
func ListStateDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, nexerr.Wrap(nexerr.InternalError, err, "read root %s", root)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(root, e.Name(), "state.json")); err == nil {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}
