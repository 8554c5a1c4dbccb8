// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package archive

import (
	"bytes"
	"os"
	"strings"

	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
)

// Codec is a compression codec applied on top of a tar stream.
type Codec int

const (
	CodecNone Codec = iota
	CodecGzip
	CodecZstd
)

func (c Codec) String() string {
	switch c {
	case CodecGzip:
		return "gzip"
	case CodecZstd:
		return "zstd"
	default:
		return "none"
	}
}

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	gzipMagic = []byte{0x1f, 0x8b}
)

// DetectCodec identifies the codec of an archive by file suffix first,
// falling back to a magic-byte sniff of the first four bytes. Returns
// nexerr.UnsupportedFormat when neither recognizes the file.
func DetectCodec(path string) (Codec, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return CodecZstd, nil
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return CodecGzip, nil
	case strings.HasSuffix(lower, ".tar"):
		return CodecNone, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return CodecNone, nexerr.Wrap(nexerr.InternalError, err, "open %s", path)
	}
	defer f.Close()

	head := make([]byte, 4)
	n, _ := f.Read(head)
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, zstdMagic):
		return CodecZstd, nil
	case bytes.HasPrefix(head, gzipMagic):
		return CodecGzip, nil
	}

	// A plain tar has no magic of its own at offset 0 other than the
	// header block; anything else is unrecognized.
	return CodecNone, nexerr.New(nexerr.UnsupportedFormat, "%s: unrecognized archive format", path)
}
