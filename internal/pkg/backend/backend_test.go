// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/CageForge/nexcage-sub009/internal/pkg/config"
	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
	"github.com/CageForge/nexcage-sub009/internal/pkg/proxmox"
	"github.com/CageForge/nexcage-sub009/pkg/sandbox"
)

// fakeCluster is a minimal /api2/json stand-in for /cluster/resources,
// always returning an empty cluster so lookups by name surface NotFound.
func fakeCluster(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api2/json/cluster/resources", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, []map[string]interface{}{})
	})
	return httptest.NewTLSServer(mux)
}

func writeOK(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
}

func testClientAgainst(t *testing.T, srv *httptest.Server) *proxmox.Client {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	host, portStr, err := splitHostPort(u.Host)
	if err != nil {
		t.Fatal(err)
	}
	port, _ := strconv.Atoi(portStr)
	cfg := &config.Proxmox{
		Host:    host,
		Port:    port,
		Node:    "pve",
		Token:   "PVEAPIToken=test@pve!id=secret",
		PctPath: "pct-does-not-exist",
		QmPath:  "qm-does-not-exist",
		Timeout: 5,
	}
	return proxmox.New(cfg)
}

func splitHostPort(hostport string) (string, string, error) {
	idx := strings.LastIndex(hostport, ":")
	if idx < 0 {
		return hostport, "0", nil
	}
	return hostport[:idx], hostport[idx+1:], nil
}

func TestLXCBackendCreateRequiresImage(t *testing.T) {
	b := &LXCBackend{}
	cfg := &sandbox.SandboxConfig{Name: "web-01"}
	err := b.Create(context.Background(), cfg)
	if nexerr.KindOf(err) != nexerr.UsageError {
		t.Fatalf("want UsageError, got %v", err)
	}
}

func TestVMBackendCreateRequiresImage(t *testing.T) {
	b := &VMBackend{}
	cfg := &sandbox.SandboxConfig{Name: "vm-01"}
	err := b.Create(context.Background(), cfg)
	if nexerr.KindOf(err) != nexerr.UsageError {
		t.Fatalf("want UsageError, got %v", err)
	}
}

func TestOCIRuntimeBackendListEmptyRootIsNotAnError(t *testing.T) {
	b := &OCIRuntimeBackend{Root: t.TempDir() + "/does-not-exist"}
	got, err := b.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("want empty list, got %v", got)
	}
}

func TestOCIRuntimeBackendCreateRequiresImage(t *testing.T) {
	b := &OCIRuntimeBackend{Root: t.TempDir()}
	cfg := &sandbox.SandboxConfig{Name: "c1"}
	err := b.Create(context.Background(), cfg)
	if nexerr.KindOf(err) != nexerr.UsageError {
		t.Fatalf("want UsageError, got %v", err)
	}
}

// TestLXCBackendStartRoutesThroughAPIWhenTokenConfigured checks that Start
// (unlike Create, which always shells out to pct) looks the container up
// via the HTTP API once a token is configured, and surfaces NotFound for an
// unknown name rather than falling back to the CLI.
func TestLXCBackendStartRoutesThroughAPIWhenTokenConfigured(t *testing.T) {
	srv := fakeCluster(t)
	defer srv.Close()
	b := &LXCBackend{Client: testClientAgainst(t, srv)}

	err := b.Start(context.Background(), "web-01")
	if nexerr.KindOf(err) != nexerr.NotFound {
		t.Fatalf("want NotFound (API-routed empty cluster), got %v", err)
	}
}
