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
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/CageForge/nexcage-sub009/internal/pkg/config"
	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
	"github.com/CageForge/nexcage-sub009/pkg/sandbox"
)

func testConfig() *config.Proxmox {
	return &config.Proxmox{
		Host: "localhost", Port: 8006, Node: "pve",
		PctPath: "pct", QmPath: "qm", Timeout: 5, Storage: "local",
	}
}

func newAPIClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := testConfig()
	cfg.Token = "user@pve!nexcage=secret"
	return &Client{cfg: cfg, httpClient: srv.Client(), baseURL: srv.URL + "/api2/json"}
}

func TestListContainersViaAPI(t *testing.T) {
	c := newAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api2/json/cluster/resources" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"data":[{"vmid":101,"name":"web01","status":"running","type":"lxc"}]}`)
	})

	infos, err := c.ListContainers(context.Background(), sandbox.LXC)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || infos[0].ID != "web01" || infos[0].Status != sandbox.StatusRunning {
		t.Fatalf("unexpected result: %+v", infos)
	}
}

func TestStatusNon2xxMapsToProxmoxAPIError(t *testing.T) {
	c := newAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"errors":"boom"}`)
	})

	_, err := c.Status(context.Background(), 101, sandbox.LXC)
	if nexerr.KindOf(err) != nexerr.ProxmoxAPIError {
		t.Fatalf("expected ProxmoxApiError, got %v", err)
	}
}

func TestFindVMIDByNameAmbiguous(t *testing.T) {
	c := newAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"vmid":101,"name":"dup","status":"running","type":"lxc"},{"vmid":102,"name":"dup","status":"stopped","type":"lxc"}]}`)
	})

	_, err := c.FindVMIDByName(context.Background(), "dup", sandbox.LXC)
	if nexerr.KindOf(err) != nexerr.AmbiguousName {
		t.Fatalf("expected AmbiguousName, got %v", err)
	}
}

// writeFakePct writes an executable shell script standing in for pct,
// printing canned `pct list --output-format json` output.
func writeFakePct(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "pct")
	script := "#!/bin/sh\necho '[{\"vmid\":55,\"name\":\"cli01\",\"status\":\"stopped\"}]'\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestStatusViaCLIFallback(t *testing.T) {
	cfg := testConfig()
	cfg.PctPath = writeFakePct(t)
	c := New(cfg)

	status, err := c.Status(context.Background(), 55, sandbox.LXC)
	if err != nil {
		t.Fatal(err)
	}
	if status != sandbox.StatusStopped {
		t.Fatalf("expected stopped, got %v", status)
	}
}

func TestAllocateVMIDSkipsUsed(t *testing.T) {
	c := newAPIClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[{"vmid":100,"name":"a"},{"vmid":101,"name":"b"}]}`)
	})

	vmid, err := c.AllocateVMID(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if vmid != 102 {
		t.Fatalf("expected 102, got %d", vmid)
	}
}

func TestParseConfigPreservesUnknownKeys(t *testing.T) {
	text := "arch: amd64\nhostname: web01\ncustom.key: value\n"
	parsed := ParseConfig(text)
	if parsed["arch"] != "amd64" || parsed["hostname"] != "web01" || parsed["custom.key"] != "value" {
		t.Fatalf("unexpected parse result: %+v", parsed)
	}
}
