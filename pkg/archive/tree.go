// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package archive

import (
	"io"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
)

// CopyTree recursively copies an already-extracted rootfs directory tree
// from src into dst, preserving mode and symlinks; hardlinked files are
// copied as independent files. It is the
// counterpart to ExtractArchive for bundles whose rootfs is already a
// plain directory rather than a packed archive.
func CopyTree(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return nexerr.Wrap(nexerr.InternalError, err, "mkdir %s", dst)
	}

	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nexerr.Wrap(nexerr.InternalError, err, "walk %s", path)
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return nexerr.Wrap(nexerr.InternalError, err, "relativize %s", path)
		}
		if rel == "." {
			return nil
		}
		joined, err := securejoin.SecureJoin(dst, rel)
		if err != nil {
			return nexerr.Wrap(nexerr.InvalidArchive, err, "entry %q escapes destination", rel)
		}

		switch {
		case info.IsDir():
			if err := os.MkdirAll(joined, info.Mode()); err != nil {
				return nexerr.Wrap(nexerr.InternalError, err, "mkdir %s", joined)
			}
			return nil
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return nexerr.Wrap(nexerr.InternalError, err, "readlink %s", path)
			}
			_ = os.Remove(joined)
			if err := os.Symlink(target, joined); err != nil {
				return nexerr.Wrap(nexerr.InternalError, err, "symlink %s -> %s", joined, target)
			}
			return nil
		case info.Mode().IsRegular():
			return copyRegularFile(path, joined, info.Mode())
		default:
			// Device nodes, sockets, etc. are not part of a bundle rootfs
			// tree; skip rather than fail the whole copy.
			return nil
		}
	})
}

func copyRegularFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return nexerr.Wrap(nexerr.InternalError, err, "open %s", src)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nexerr.Wrap(nexerr.InternalError, err, "mkdir parent of %s", dst)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return nexerr.Wrap(nexerr.InternalError, err, "create %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return nexerr.Wrap(nexerr.InternalError, err, "copy %s -> %s", src, dst)
	}
	if err := out.Close(); err != nil {
		return nexerr.Wrap(nexerr.InternalError, err, "close %s", dst)
	}
	return nil
}
