// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package ocibundle

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
)

// maxConfigSize bounds config.json reads per spec §4.C.
const maxConfigSize = 10 << 20 // 10 MiB

var hostnamePattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?$`)

var validMountTypes = map[string]bool{
	"bind": true, "proc": true, "sysfs": true, "tmpfs": true,
	"devpts": true, "devtmpfs": true, "overlay": true,
}

// ParseBundle reads <path>/config.json, validates it against the subset of
// the OCI Runtime Spec the core consumes, and returns the parsed Bundle.
// Both config.json and the rootfs directory must exist.
func ParseBundle(path string) (*Bundle, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, nexerr.Wrap(nexerr.InvalidBundle, err, "resolve bundle path %s", path)
	}

	configPath := filepath.Join(abs, "config.json")
	f, err := os.Open(configPath)
	if err != nil {
		return nil, nexerr.Wrap(nexerr.InvalidBundle, err, "open %s", configPath)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxConfigSize+1))
	if err != nil {
		return nil, nexerr.Wrap(nexerr.InvalidBundle, err, "read %s", configPath)
	}
	if len(data) > maxConfigSize {
		return nil, nexerr.New(nexerr.InvalidBundle, "%s exceeds %d byte limit", configPath, maxConfigSize)
	}

	var spec specs.Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, nexerr.Wrap(nexerr.InvalidBundle, err, "decode %s", configPath)
	}

	if err := validateSpec(&spec); err != nil {
		return nil, err
	}

	rootfsRel := "rootfs"
	if spec.Root != nil && spec.Root.Path != "" {
		rootfsRel = spec.Root.Path
	}
	rootfsPath := filepath.Join(abs, rootfsRel)

	if _, err := os.Stat(rootfsPath); err != nil {
		return nil, nexerr.Wrap(nexerr.InvalidBundle, err, "rootfs %s", rootfsPath)
	}

	b := &Bundle{
		Path:       abs,
		Spec:       &spec,
		RootfsPath: rootfsPath,
	}
	if spec.Annotations != nil {
		b.ImageRef = spec.Annotations[ImageRefAnnotation]
	}

	return b, nil
}

func validateSpec(spec *specs.Spec) error {
	if spec.Version != SupportedOCIVersion {
		return nexerr.New(nexerr.InvalidBundle, "unsupported ociVersion %q, want %q", spec.Version, SupportedOCIVersion)
	}

	if spec.Hostname != "" {
		if len(spec.Hostname) > 63 || !hostnamePattern.MatchString(spec.Hostname) {
			return nexerr.New(nexerr.InvalidBundle, "invalid hostname %q", spec.Hostname)
		}
	}

	if spec.Process != nil {
		if len(spec.Process.Args) == 0 {
			return nexerr.New(nexerr.InvalidBundle, "process.args must be non-empty when process is present")
		}
		if spec.Process.Cwd != "" && !filepath.IsAbs(spec.Process.Cwd) {
			return nexerr.New(nexerr.InvalidBundle, "process.cwd must be absolute, got %q", spec.Process.Cwd)
		}
	}

	if spec.Root != nil && spec.Root.Path != "" {
		if !filepath.IsAbs(spec.Root.Path) {
			return nexerr.New(nexerr.InvalidBundle, "root.path must be absolute, got %q", spec.Root.Path)
		}
		if containsDotDot(spec.Root.Path) {
			return nexerr.New(nexerr.InvalidBundle, "root.path must not contain '..', got %q", spec.Root.Path)
		}
	}

	for _, m := range spec.Mounts {
		if !filepath.IsAbs(m.Destination) {
			return nexerr.New(nexerr.InvalidBundle, "mount destination must be absolute, got %q", m.Destination)
		}
		if m.Type != "" && !validMountTypes[m.Type] {
			return nexerr.New(nexerr.InvalidBundle, "unsupported mount type %q", m.Type)
		}
		if m.Source != "" && m.Type == "bind" && !filepath.IsAbs(m.Source) {
			return nexerr.New(nexerr.InvalidBundle, "bind mount source must be absolute, got %q", m.Source)
		}
	}

	return nil
}

func containsDotDot(p string) bool {
	for _, part := range strings.Split(filepath.ToSlash(p), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

// HasUserNamespace reports whether the bundle's spec declares a Linux user
// namespace, which implies an unprivileged container per spec §3.
func (b *Bundle) HasUserNamespace() bool {
	if b.Spec.Linux == nil {
		return false
	}
	for _, ns := range b.Spec.Linux.Namespaces {
		if ns.Type == specs.UserNamespace {
			return true
		}
	}
	return false
}
