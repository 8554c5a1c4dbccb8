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
	"os"
	"path/filepath"
	"testing"

	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
)

func writeTar(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	tw := tar.NewWriter(f)
	defer tw.Close()

	for name, content := range entries {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
}

func TestExtractArchiveRefusesPathEscape(t *testing.T) {
	dir := t.TempDir()
	tarPath := filepath.Join(dir, "evil.tar")
	writeTar(t, tarPath, map[string]string{"../escape.txt": "pwned"})

	dst := filepath.Join(dir, "dst")
	_, err := ExtractArchive(tarPath, dst)
	if err == nil {
		t.Fatal("expected path-escape error, got nil")
	}
	if nexerr.KindOf(err) != nexerr.InvalidArchive {
		t.Fatalf("expected InvalidArchive, got %v", nexerr.KindOf(err))
	}
}

func TestExtractArchiveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tarPath := filepath.Join(dir, "ok.tar")
	writeTar(t, tarPath, map[string]string{
		"etc/hostname": "web01\n",
		"bin/sh":       "#!/bin/sh\n",
	})

	dst := filepath.Join(dir, "dst")
	report, err := ExtractArchive(tarPath, dst)
	if err != nil {
		t.Fatal(err)
	}
	if report.FilesWritten != 2 {
		t.Fatalf("expected 2 files written, got %d", report.FilesWritten)
	}
	content, err := os.ReadFile(filepath.Join(dst, "etc", "hostname"))
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "web01\n" {
		t.Fatalf("unexpected content: %q", content)
	}
}

func TestComputeAndValidateDigest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.bin")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := ComputeDigest(path)
	if err != nil {
		t.Fatal(err)
	}
	if !IsWellFormed(d.String()) {
		t.Fatalf("digest %q not well-formed", d)
	}
	if err := ValidateDigest(path, d); err != nil {
		t.Fatalf("expected validation to succeed: %v", err)
	}

	if err := os.WriteFile(path, []byte("tampered"), 0o644); err != nil {
		t.Fatal(err)
	}
	err = ValidateDigest(path, d)
	if nexerr.KindOf(err) != nexerr.DigestMismatch {
		t.Fatalf("expected DigestMismatch, got %v", err)
	}
}

func TestCopyWithDigestAtomic(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dir, "out", "dst.bin")

	d, err := CopyWithDigest(src, dst)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dst + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("expected .tmp file to be gone after rename")
	}
	if err := ValidateDigest(dst, d); err != nil {
		t.Fatalf("copied file digest mismatch: %v", err)
	}
}
