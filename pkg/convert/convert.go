// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package convert turns an OCI bundle into a Proxmox LXC template archive
// (spec §4.D): parse, derive name, dedup, single-flight, extract, shape,
// pack, upload.
package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
	"github.com/CageForge/nexcage-sub009/internal/pkg/sylog"
	"github.com/CageForge/nexcage-sub009/pkg/archive"
	"github.com/CageForge/nexcage-sub009/pkg/ocibundle"
)

// TemplateRecord is the result of a successful conversion (spec §3).
type TemplateRecord struct {
	TemplateName   string
	StorageBackend string
	Path           string
	SourceDigest   string
	Created        time.Time
}

// Uploader is the subset of the Proxmox Control Client the converter
// depends on: existing-template lookup and multipart upload. The concrete
// implementation lives in internal/pkg/proxmox.
type Uploader interface {
	LookupTemplate(ctx context.Context, name string) (*TemplateRecord, bool, error)
	UploadTemplate(ctx context.Context, localPath, name string) (*TemplateRecord, error)
}

// Converter turns OCI bundles into Proxmox LXC templates. The zero value
// is not usable; construct with New.
type Converter struct {
	Uploader    Uploader
	ScratchRoot string

	sf singleflight.Group
}

// New returns a Converter uploading through uploader, using scratchRoot as
// the base directory for rootfs extraction (os.TempDir() if empty).
func New(uploader Uploader, scratchRoot string) *Converter {
	if scratchRoot == "" {
		scratchRoot = os.TempDir()
	}
	return &Converter{Uploader: uploader, ScratchRoot: scratchRoot}
}

// Convert performs the full bundle-to-template pipeline described in spec
// §4.D, returning the resulting template's TemplateRecord.
func (c *Converter) Convert(ctx context.Context, bundlePath, containerName string) (*TemplateRecord, error) {
	b, err := ocibundle.ParseBundle(bundlePath)
	if err != nil {
		return nil, err
	}

	name := deriveTemplateName(b, containerName)

	v, err, shared := c.sf.Do(name, func() (interface{}, error) {
		return c.convertOnce(ctx, b, name)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		sylog.Debugf("convert: %s served from an in-flight build", name)
	}
	return v.(*TemplateRecord), nil
}

func deriveTemplateName(b *ocibundle.Bundle, containerName string) string {
	if ref := b.ExtractImageRef(); ref != "" {
		return ref
	}
	return fmt.Sprintf("%s-%d", containerName, time.Now().Unix())
}

func (c *Converter) convertOnce(ctx context.Context, b *ocibundle.Bundle, name string) (*TemplateRecord, error) {
	if rec, ok, err := c.Uploader.LookupTemplate(ctx, name); err != nil {
		return nil, err
	} else if ok {
		sylog.Debugf("convert: %s already on storage, skipping rebuild", name)
		return rec, nil
	}

	scratch := filepath.Join(c.ScratchRoot, "lxc-rootfs-"+name)
	defer func() {
		if rerr := os.RemoveAll(scratch); rerr != nil {
			sylog.Warningf("convert: cleanup %s failed: %s", scratch, rerr)
		}
	}()

	if err := extractRootfs(b.RootfsPath, scratch); err != nil {
		return nil, nexerr.Wrap(nexerr.ConversionFailed, err, "stage=extract name=%s", name)
	}
	if err := applyLXCShaping(scratch, b); err != nil {
		return nil, nexerr.Wrap(nexerr.ConversionFailed, err, "stage=shape name=%s", name)
	}

	packed := filepath.Join(c.ScratchRoot, name+".tar.zst")
	defer os.Remove(packed)
	if err := archive.PackArchive(scratch, packed, archive.CodecZstd); err != nil {
		return nil, nexerr.Wrap(nexerr.ConversionFailed, err, "stage=pack name=%s", name)
	}

	rec, err := c.Uploader.UploadTemplate(ctx, packed, name)
	if err != nil {
		return nil, err
	}
	sylog.Debugf("convert: %s uploaded to %s", name, rec.Path)
	return rec, nil
}

func extractRootfs(rootfsPath, scratch string) error {
	info, err := os.Stat(rootfsPath)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return archive.CopyTree(rootfsPath, scratch)
	}
	_, err = archive.ExtractArchive(rootfsPath, scratch)
	return err
}
