// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package convert

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeUploader struct {
	mu          sync.Mutex
	templates   map[string]*TemplateRecord
	uploadCount int
	gate        chan struct{}
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{templates: make(map[string]*TemplateRecord)}
}

func (f *fakeUploader) LookupTemplate(ctx context.Context, name string) (*TemplateRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.templates[name]
	return rec, ok, nil
}

func (f *fakeUploader) UploadTemplate(ctx context.Context, localPath, name string) (*TemplateRecord, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadCount++
	rec := &TemplateRecord{TemplateName: name, Path: localPath, Created: time.Now()}
	f.templates[name] = rec
	return rec, nil
}

func writeTestBundle(t *testing.T, imageRef string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "rootfs", "app"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "rootfs", "app", "payload.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := map[string]interface{}{
		"ociVersion": "1.0.2",
		"hostname":   "web01",
		"process": map[string]interface{}{
			"args": []string{"/usr/sbin/nginx"},
		},
		"annotations": map[string]string{
			"org.opencontainers.image.ref.name": imageRef,
		},
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestConvertIsIdempotentForSameImageRef(t *testing.T) {
	bundleDir := writeTestBundle(t, "nginx-1.25")
	uploader := newFakeUploader()
	conv := New(uploader, t.TempDir())
	ctx := context.Background()

	rec1, err := conv.Convert(ctx, bundleDir, "web01")
	if err != nil {
		t.Fatal(err)
	}
	rec2, err := conv.Convert(ctx, bundleDir, "web01")
	if err != nil {
		t.Fatal(err)
	}

	if rec1.TemplateName != "nginx-1.25" || rec2.TemplateName != "nginx-1.25" {
		t.Fatalf("expected template name nginx-1.25, got %q and %q", rec1.TemplateName, rec2.TemplateName)
	}
	if uploader.uploadCount != 1 {
		t.Fatalf("expected exactly one upload across two converts, got %d", uploader.uploadCount)
	}
}

func TestConvertConcurrentBuildsDedup(t *testing.T) {
	bundleDir := writeTestBundle(t, "nginx-concurrent")
	uploader := newFakeUploader()
	uploader.gate = make(chan struct{})
	conv := New(uploader, t.TempDir())
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*TemplateRecord, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = conv.Convert(ctx, bundleDir, "web01")
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(uploader.gate)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("convert %d failed: %v", i, err)
		}
	}
	if results[0].TemplateName != results[1].TemplateName {
		t.Fatalf("expected both tasks to receive the same template name, got %q and %q", results[0].TemplateName, results[1].TemplateName)
	}
	if uploader.uploadCount != 1 {
		t.Fatalf("expected exactly one upload for concurrent converts, got %d", uploader.uploadCount)
	}
}
