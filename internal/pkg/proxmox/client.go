// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package proxmox

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"os/exec"
	"time"

	"github.com/CageForge/nexcage-sub009/internal/pkg/config"
)

// Client is a long-lived Proxmox control connection: an HTTP client for
// the API, and the resolved paths to the pct/qm CLIs. ListContainers,
// Status, Start, Stop, Destroy and VMID allocation prefer the HTTP API
// when a token is configured and fall back to the CLI otherwise, logging
// which path was taken. CreateLXC, CreateVM and Exec always use the CLI;
// UploadTemplate always uses the API.
type Client struct {
	cfg *config.Proxmox

	httpClient *http.Client
	baseURL    string

	pctPath string
	qmPath  string
}

// New builds a Client from the resolved proxmox.* config section. Paths
// to pct/qm are resolved via PATH if cfg.PctPath/QmPath are left at their
// bare-name defaults and a fully-qualified path is found.
func New(cfg *config.Proxmox) *Client {
	c := &Client{
		cfg:     cfg,
		pctPath: cfg.PctPath,
		qmPath:  cfg.QmPath,
		baseURL: fmt.Sprintf("https://%s:%d/api2/json", cfg.Host, cfg.Port),
	}
	if resolved, err := exec.LookPath(cfg.PctPath); err == nil {
		c.pctPath = resolved
	}
	if resolved, err := exec.LookPath(cfg.QmPath); err == nil {
		c.qmPath = resolved
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c.httpClient = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.VerifySSL}, //nolint:gosec
		},
	}
	return c
}

// useAPI reports whether HTTP API calls should be preferred over the CLI
// for this client, per the §9 hybrid resolution: API when a token is
// configured, CLI otherwise.
func (c *Client) useAPI() bool {
	return c.cfg.Token != ""
}

func (c *Client) authHeader() string {
	return c.cfg.Token
}
