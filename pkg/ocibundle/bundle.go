// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2019, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package ocibundle reads and validates OCI bundles on disk (spec §4.C).
// The parsed spec.Spec shape comes directly from
// github.com/opencontainers/runtime-spec, the teacher's own dependency for
// this exact purpose, rather than a hand-rolled mirror type.
package ocibundle

import (
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// ImageRefAnnotation is the OCI annotation key conventionally holding the
// caller-assigned image reference.
const ImageRefAnnotation = "org.opencontainers.image.ref.name"

// SupportedOCIVersion is the only ociVersion this parser accepts.
const SupportedOCIVersion = "1.0.2"

// Bundle is a parsed OCI bundle: config.json plus the rootfs tree it
// describes.
type Bundle struct {
	// Path is the absolute bundle directory.
	Path string
	// Spec is the parsed and validated config.json.
	Spec *specs.Spec
	// RootfsPath is Path joined with Spec.Root.Path (defaulting to
	// "rootfs" when Root or Root.Path is unset).
	RootfsPath string
	// ImageRef is the value of ImageRefAnnotation if present.
	ImageRef string
}

// ExtractImageRef returns the bundle's declared image reference, or "" if
// none was set via annotation.
func (b *Bundle) ExtractImageRef() string {
	return b.ImageRef
}
