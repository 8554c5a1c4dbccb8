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
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
)

// ZstdDefaultLevel is the default compression level used when packing
// Proxmox templates, per spec §4.A.
const ZstdDefaultLevel = 3

// PackArchive tars srcDir and applies codec, writing the result to dst
// atomically (dst.tmp renamed to dst on success).
func PackArchive(srcDir, dst string, codec Codec) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nexerr.Wrap(nexerr.InternalError, err, "mkdir for %s", dst)
	}

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nexerr.Wrap(nexerr.InternalError, err, "create %s", tmp)
	}

	if err := writePacked(srcDir, out, codec); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return nexerr.Wrap(nexerr.InternalError, err, "close %s", tmp)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return nexerr.Wrap(nexerr.InternalError, err, "rename %s -> %s", tmp, dst)
	}
	return nil
}

func writePacked(srcDir string, out io.Writer, codec Codec) error {
	var w io.WriteCloser
	switch codec {
	case CodecZstd:
		zw, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(ZstdDefaultLevel)))
		if err != nil {
			return nexerr.Wrap(nexerr.InternalError, err, "init zstd writer")
		}
		w = zw
	case CodecGzip:
		w = gzip.NewWriter(out)
	default:
		w = nopWriteCloser{out}
	}

	tw := tar.NewWriter(w)

	walkErr := filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			link, err = os.Readlink(path)
			if err != nil {
				return err
			}
		}

		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			if _, err := io.Copy(tw, f); err != nil {
				return err
			}
		}
		return nil
	})
	if walkErr != nil {
		tw.Close()
		w.Close()
		return nexerr.Wrap(nexerr.InternalError, walkErr, "packing %s", srcDir)
	}

	if err := tw.Close(); err != nil {
		w.Close()
		return nexerr.Wrap(nexerr.InternalError, err, "closing tar writer")
	}
	return w.Close()
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
