// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package archive provides the digest and archive utilities of the image
// core: streaming content digests, tar/tar.gz/tar.zst extraction and
// packing with path-escape protection, and copy-with-integrity.
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	godigest "github.com/opencontainers/go-digest"

	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
)

// ComputeDigest streams the SHA-256 of the file at path and returns it in
// canonical "sha256:<hex>" form. For tar streams the digest is over the raw
// on-disk bytes, never over the untarred content.
func ComputeDigest(path string) (godigest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", nexerr.Wrap(nexerr.InternalError, err, "open %s for digest", path)
	}
	defer f.Close()

	d, err := godigest.Canonical.FromReader(f)
	if err != nil {
		return "", nexerr.Wrap(nexerr.InternalError, err, "digest %s", path)
	}
	return d, nil
}

// CopyWithDigest copies src to dst computing the digest of the bytes
// copied, writing to a "dst.tmp" file and renaming only on success so a
// partial file is never observable at dst.
func CopyWithDigest(src, dst string) (godigest.Digest, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", nexerr.Wrap(nexerr.InternalError, err, "open %s", src)
	}
	defer in.Close()

	tmp := dst + ".tmp"
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", nexerr.Wrap(nexerr.InternalError, err, "mkdir for %s", dst)
	}
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", nexerr.Wrap(nexerr.InternalError, err, "create %s", tmp)
	}

	digester := godigest.Canonical.Digester()
	if _, err := io.Copy(io.MultiWriter(out, digester.Hash()), in); err != nil {
		out.Close()
		os.Remove(tmp)
		return "", nexerr.Wrap(nexerr.InternalError, err, "copy %s -> %s", src, tmp)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return "", nexerr.Wrap(nexerr.InternalError, err, "close %s", tmp)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return "", nexerr.Wrap(nexerr.InternalError, err, "rename %s -> %s", tmp, dst)
	}

	return digester.Digest(), nil
}

// ValidateDigest compares the declared digest against the SHA-256 of the
// file on disk, returning nexerr.DigestMismatch on inequality.
func ValidateDigest(path string, want godigest.Digest) error {
	got, err := ComputeDigest(path)
	if err != nil {
		return err
	}
	if got != want {
		return nexerr.New(nexerr.DigestMismatch, "%s: declared %s, computed %s", path, want, got)
	}
	return nil
}

// IsWellFormed reports whether d is a well-formed, lower-case canonical
// "sha256:<64 hex>" digest.
func IsWellFormed(d string) bool {
	dd := godigest.Digest(d)
	if dd.Algorithm() != godigest.SHA256 {
		return false
	}
	return dd.Validate() == nil && dd.String() == fmt.Sprintf("sha256:%s", dd.Encoded())
}
