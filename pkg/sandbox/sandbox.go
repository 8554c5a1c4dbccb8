// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package sandbox holds the SandboxConfig data model shared by the Backend
// Router, the three backend implementations, and the lifecycle
// orchestrator (spec §3).
package sandbox

import (
	"regexp"
	"time"

	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
)

// ContainerType selects one of the three backends.
type ContainerType int

const (
	Unknown ContainerType = iota
	LXC
	OCIRuntime
	VM
)

func (t ContainerType) String() string {
	switch t {
	case LXC:
		return "lxc"
	case OCIRuntime:
		return "oci_runtime"
	case VM:
		return "vm"
	default:
		return "unknown"
	}
}

// ParseContainerType parses the container_config.default_container_type
// string forms.
func ParseContainerType(s string) ContainerType {
	switch s {
	case "lxc":
		return LXC
	case "oci_runtime":
		return OCIRuntime
	case "vm":
		return VM
	default:
		return Unknown
	}
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,62}$`)

// ValidName reports whether name satisfies the container-id grammar shared
// by SandboxConfig.Name and the CLI surface in spec §6.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Protocol is the transport protocol of a PortMapping.
type Protocol string

const (
	TCP Protocol = "tcp"
	UDP Protocol = "udp"
)

// PortMapping is one {protocol, host port, container port, host ip} entry.
type PortMapping struct {
	Protocol      Protocol
	HostPort      int
	ContainerPort int
	HostIP        string // optional, empty means "all interfaces"
}

// VolumeMount is one {host path, container path, read-only} bind mount.
type VolumeMount struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// ResourceLimits bounds memory (MiB), CPU (cores) and disk (GiB).
type ResourceLimits struct {
	MemoryMiB int
	CPUCores  float64
	DiskGiB   int
}

// NetworkConfig describes the container's network attachment.
type NetworkConfig struct {
	Bridge string
	IP     string // optional
	MAC    string // optional
}

// SecurityConfig carries the unprivileged flag and capability set.
type SecurityConfig struct {
	Unprivileged bool
	Capabilities []string
}

// ImageRef is either a path to an OCI bundle directory on disk, or an
// opaque label understood directly by the selected backend (an existing
// Proxmox template name, a VM template, ...).
type ImageRef struct {
	BundlePath string // set iff this is an on-disk OCI bundle
	Label      string // set iff this is an opaque backend-specific label
}

// IsBundle reports whether the image reference names an on-disk bundle.
func (r ImageRef) IsBundle() bool { return r.BundlePath != "" }

// SandboxConfig is the normalized request passed to every backend.
type SandboxConfig struct {
	Name    string
	Image   *ImageRef
	Command []string
	WorkDir string
	Env     map[string]string

	Ports   []PortMapping
	Volumes []VolumeMount

	Resources *ResourceLimits
	Network   *NetworkConfig
	Security  *SecurityConfig

	// Force is not read by delete, which takes its own force argument to
	// stop a running container first.
	Force bool
}

// Validate enforces the invariants of spec §3.
func (c *SandboxConfig) Validate() error {
	if !ValidName(c.Name) {
		return nexerr.New(nexerr.UsageError, "invalid container name %q: must match ^[A-Za-z0-9][A-Za-z0-9_-]{0,62}$", c.Name)
	}
	seen := make(map[string]struct{}, len(c.Env))
	for k := range c.Env {
		if _, dup := seen[k]; dup {
			return nexerr.New(nexerr.UsageError, "duplicate env key %q", k)
		}
		seen[k] = struct{}{}
	}
	for _, p := range c.Ports {
		if p.Protocol != TCP && p.Protocol != UDP {
			return nexerr.New(nexerr.UsageError, "invalid port protocol %q", p.Protocol)
		}
		if p.HostPort < 1 || p.HostPort > 65535 || p.ContainerPort < 1 || p.ContainerPort > 65535 {
			return nexerr.New(nexerr.UsageError, "port out of range: host=%d container=%d", p.HostPort, p.ContainerPort)
		}
	}
	if c.Resources != nil {
		if c.Resources.MemoryMiB <= 0 || c.Resources.CPUCores <= 0 || c.Resources.DiskGiB <= 0 {
			return nexerr.New(nexerr.UsageError, "resource limits must be positive: %+v", c.Resources)
		}
	}
	return nil
}

// ContainerInfo is the normalized shape of list()/info() across backends.
type ContainerInfo struct {
	ID      string
	VMID    *int
	Type    ContainerType
	Status  Status
	Image   string
	Created time.Time
}

// Status is a normalized container runtime status.
type Status string

const (
	StatusCreated Status = "created"
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusPaused  Status = "paused"
	StatusUnknown Status = "unknown"
)

// ExecResult is the outcome of Backend.Exec.
type ExecResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}
