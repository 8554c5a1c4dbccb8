// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/klauspost/compress/zstd"

	"github.com/CageForge/nexcage-sub009/internal/pkg/sylog"

	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
)

// ExtractReport summarizes a completed extraction.
type ExtractReport struct {
	FilesWritten int
	Warnings     []string
}

// ExtractArchive auto-detects src's codec and unpacks it under dst. Any
// entry whose resolved path would escape dst is refused wholesale with
// nexerr.InvalidArchive. Device nodes are skipped (with a warning) unless
// running as root; mode, mtime and symlink targets are preserved.
func ExtractArchive(src, dst string) (*ExtractReport, error) {
	codec, err := DetectCodec(src)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(src)
	if err != nil {
		return nil, nexerr.Wrap(nexerr.InternalError, err, "open %s", src)
	}
	defer f.Close()

	var r io.Reader = f
	switch codec {
	case CodecGzip:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, nexerr.Wrap(nexerr.InvalidArchive, err, "gzip header in %s", src)
		}
		defer gz.Close()
		r = gz
	case CodecZstd:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, nexerr.Wrap(nexerr.InvalidArchive, err, "zstd header in %s", src)
		}
		defer zr.Close()
		r = zr
	}

	return extractTar(r, dst)
}

func extractTar(r io.Reader, dst string) (*ExtractReport, error) {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return nil, nexerr.Wrap(nexerr.InternalError, err, "mkdir %s", dst)
	}

	report := &ExtractReport{}
	isRoot := os.Geteuid() == 0
	tr := tar.NewReader(r)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return report, nexerr.Wrap(nexerr.InvalidArchive, err, "reading tar stream")
		}

		name := filepath.Clean(hdr.Name)
		if name == "." {
			continue
		}
		if filepath.IsAbs(hdr.Name) || strings.HasPrefix(name, ".."+string(filepath.Separator)) || name == ".." {
			return report, nexerr.New(nexerr.InvalidArchive, "entry %q escapes destination", hdr.Name)
		}

		joined, err := securejoin.SecureJoin(dst, name)
		if err != nil {
			return report, nexerr.Wrap(nexerr.InvalidArchive, err, "entry %q escapes destination", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(joined, os.FileMode(hdr.Mode)); err != nil {
				return report, nexerr.Wrap(nexerr.InternalError, err, "mkdir %s", joined)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(joined), 0o755); err != nil {
				return report, nexerr.Wrap(nexerr.InternalError, err, "mkdir parent of %s", joined)
			}
			out, err := os.OpenFile(joined, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return report, nexerr.Wrap(nexerr.InternalError, err, "create %s", joined)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return report, nexerr.Wrap(nexerr.InternalError, err, "write %s", joined)
			}
			out.Close()
			report.FilesWritten++
		case tar.TypeSymlink:
			_ = os.Remove(joined)
			if err := os.Symlink(hdr.Linkname, joined); err != nil {
				return report, nexerr.Wrap(nexerr.InternalError, err, "symlink %s -> %s", joined, hdr.Linkname)
			}
		case tar.TypeLink:
			target, err := securejoin.SecureJoin(dst, filepath.Clean(hdr.Linkname))
			if err != nil {
				return report, nexerr.Wrap(nexerr.InvalidArchive, err, "hardlink target %q escapes destination", hdr.Linkname)
			}
			_ = os.Remove(joined)
			if err := os.Link(target, joined); err != nil {
				return report, nexerr.Wrap(nexerr.InternalError, err, "hardlink %s -> %s", joined, target)
			}
		case tar.TypeChar, tar.TypeBlock, tar.TypeFifo:
			if !isRoot {
				msg := fmt.Sprintf("skipped device node %s (not running as root)", hdr.Name)
				report.Warnings = append(report.Warnings, msg)
				sylog.Warningf("%s", msg)
				continue
			}
			sylog.Debugf("device node %s preserved (running as root)", hdr.Name)
		default:
			sylog.Debugf("ignoring unsupported tar entry type %d for %s", hdr.Typeflag, hdr.Name)
		}

		if hdr.Typeflag != tar.TypeSymlink {
			_ = os.Chtimes(joined, hdr.ModTime, hdr.ModTime)
		}
	}

	return report, nil
}
