// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package proxmox

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
	"github.com/CageForge/nexcage-sub009/internal/pkg/sylog"
	"github.com/CageForge/nexcage-sub009/pkg/convert"
)

// ShowProgress enables an mpb progress bar on uploads. It is false by
// default and nothing in this repository sets it, so uploads run without
// a progress bar unless a caller turns it on.
var ShowProgress = false

// LookupTemplate implements convert.Uploader: it reports whether a
// template of that name already exists on cfg.Proxmox.Storage.
func (c *Client) LookupTemplate(ctx context.Context, name string) (*convert.TemplateRecord, bool, error) {
	storage := c.cfg.Storage
	if storage == "" {
		storage = "local"
	}
	volid := fmt.Sprintf("%s:vztmpl/%s.tar.zst", storage, name)

	var names []string
	var err error
	if c.useAPI() {
		names, err = c.storageContentHTTP(ctx, storage)
	} else {
		// No stable CLI equivalent of the storage-content listing exists
		// outside the API; CLI-only deployments always rebuild. This is
		// the one operation this client cannot perform over pct/qm.
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	for _, n := range names {
		if n == volid {
			return &convert.TemplateRecord{
				TemplateName:   name,
				StorageBackend: storage,
				Path:           fmt.Sprintf("/var/lib/vz/template/cache/%s.tar.zst", name),
			}, true, nil
		}
	}
	return nil, false, nil
}

// UploadTemplate implements convert.Uploader: it streams localPath to
// POST /nodes/<node>/storage/<storage>/upload as multipart/form-data,
// never buffering the whole file in memory.
func (c *Client) UploadTemplate(ctx context.Context, localPath, name string) (*convert.TemplateRecord, error) {
	storage := c.cfg.Storage
	if storage == "" {
		storage = "local"
	}

	f, err := os.Open(localPath)
	if err != nil {
		return nil, nexerr.Wrap(nexerr.InternalError, err, "open %s", localPath)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, nexerr.Wrap(nexerr.InternalError, err, "stat %s", localPath)
	}

	filename := filepath.Base(localPath)
	if !strings.HasSuffix(filename, ".tar.zst") {
		filename = name + ".tar.zst"
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		defer pw.Close()
		defer mw.Close()

		if err := mw.WriteField("content", "vztmpl"); err != nil {
			pw.CloseWithError(err)
			return
		}
		part, err := mw.CreateFormFile("filename", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}

		var src io.Reader = f
		if ShowProgress {
			p := mpb.New()
			bar := p.AddBar(info.Size(),
				mpb.PrependDecorators(decor.Counters(decor.SizeB1024(0), "%.1f / %.1f")),
				mpb.AppendDecorators(decor.Percentage(), decor.AverageSpeed(decor.SizeB1024(0), " % .1f ")),
			)
			proxy := bar.ProxyReader(f)
			defer proxy.Close()
			src = proxy
			defer p.Wait()
		}

		if _, err := io.Copy(part, src); err != nil {
			pw.CloseWithError(err)
			return
		}
	}()

	path := fmt.Sprintf("/nodes/%s/storage/%s/upload", c.cfg.Node, storage)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, pr)
	if err != nil {
		return nil, nexerr.Wrap(nexerr.InternalError, err, "build upload request")
	}
	req.Header.Set("Authorization", "PVEAPIToken="+c.authHeader())
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nexerr.Wrap(nexerr.Unreachable, err, "upload %s", filename)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt := string(body)
		if len(excerpt) > 256 {
			excerpt = excerpt[:256]
		}
		return nil, nexerr.New(nexerr.ProxmoxAPIError, "upload %s: status %d: %s", filename, resp.StatusCode, excerpt)
	}

	sylog.Debugf("proxmox: vmid=n/a op=upload_template via=api name=%s size=%d", name, info.Size())
	return &convert.TemplateRecord{
		TemplateName:   name,
		StorageBackend: storage,
		Path:           fmt.Sprintf("/var/lib/vz/template/cache/%s.tar.zst", name),
		Created:        time.Now(),
	}, nil
}
