// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package ocibundle

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
)

func writeBundle(t *testing.T, dir string, config map[string]interface{}) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(dir, "rootfs"), 0o755); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(config)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func validConfig() map[string]interface{} {
	return map[string]interface{}{
		"ociVersion": "1.0.2",
		"hostname":   "web01",
		"process": map[string]interface{}{
			"args": []string{"/usr/sbin/nginx", "-g", "daemon off;"},
			"cwd":  "/",
		},
		"annotations": map[string]string{
			ImageRefAnnotation: "nginx-1.25",
		},
	}
}

func TestParseBundleIdempotent(t *testing.T) {
	dir := writeBundle(t, t.TempDir(), validConfig())

	b1, err := ParseBundle(dir)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := ParseBundle(dir)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(b1.Spec, b2.Spec) {
		t.Fatalf("parse not idempotent:\n%+v\n%+v", b1.Spec, b2.Spec)
	}
	if b1.ImageRef != "nginx-1.25" {
		t.Fatalf("expected image ref nginx-1.25, got %q", b1.ImageRef)
	}
}

func TestParseBundleRejectsWrongOciVersion(t *testing.T) {
	cfg := validConfig()
	cfg["ociVersion"] = "1.1.0"
	dir := writeBundle(t, t.TempDir(), cfg)

	_, err := ParseBundle(dir)
	if err == nil {
		t.Fatal("expected error for unsupported ociVersion")
	}
	if nexerr.KindOf(err) != nexerr.InvalidBundle {
		t.Fatalf("expected InvalidBundle, got %v", nexerr.KindOf(err))
	}
}

func TestParseBundleRejectsEmptyProcessArgs(t *testing.T) {
	cfg := validConfig()
	cfg["process"] = map[string]interface{}{"args": []string{}}
	dir := writeBundle(t, t.TempDir(), cfg)

	_, err := ParseBundle(dir)
	if nexerr.KindOf(err) != nexerr.InvalidBundle {
		t.Fatalf("expected InvalidBundle, got %v", err)
	}
}

func TestToLXCConfigDefaults(t *testing.T) {
	dir := writeBundle(t, t.TempDir(), map[string]interface{}{
		"ociVersion": "1.0.2",
	})
	b, err := ParseBundle(dir)
	if err != nil {
		t.Fatal(err)
	}

	cfg := ToLXCConfig(b)
	if cfg.Hostname != "container" {
		t.Fatalf("expected default hostname, got %q", cfg.Hostname)
	}
	if len(cfg.Command) != 1 || cfg.Command[0] != "/bin/sh" {
		t.Fatalf("expected default command, got %v", cfg.Command)
	}
	if cfg.Features["nesting"] != "1" {
		t.Fatalf("expected nesting=1 feature flag")
	}
}
