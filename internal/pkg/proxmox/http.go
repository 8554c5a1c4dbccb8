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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
	"github.com/CageForge/nexcage-sub009/pkg/sandbox"
)

type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// doJSON issues an authenticated API request and decodes the "data"
// envelope into out (nil to discard the body).
func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nexerr.Wrap(nexerr.InternalError, err, "build request %s %s", method, path)
	}
	req.Header.Set("Authorization", "PVEAPIToken="+c.authHeader())
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nexerr.Wrap(nexerr.Timeout, err, "%s %s", method, path)
		}
		return nexerr.Wrap(nexerr.Unreachable, err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nexerr.Wrap(nexerr.ProxmoxAPIError, err, "read response body for %s %s", method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt := string(data)
		if len(excerpt) > 256 {
			excerpt = excerpt[:256]
		}
		return nexerr.New(nexerr.ProxmoxAPIError, "%s %s: status %d: %s", method, path, resp.StatusCode, excerpt)
	}
	if out == nil {
		return nil
	}

	var env apiEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nexerr.Wrap(nexerr.ProxmoxAPIError, err, "decode envelope for %s %s", method, path)
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return nexerr.Wrap(nexerr.ProxmoxAPIError, err, "decode data for %s %s", method, path)
	}
	return nil
}

func (c *Client) listResourcesHTTP(ctx context.Context) ([]ClusterResource, error) {
	var resources []ClusterResource
	if err := c.doJSON(ctx, http.MethodGet, "/cluster/resources?type=vm", nil, &resources); err != nil {
		return nil, err
	}
	return resources, nil
}

func (c *Client) statusHTTP(ctx context.Context, vmid int, ct sandbox.ContainerType) (sandbox.Status, error) {
	path := fmt.Sprintf("/nodes/%s/%s/%d/status/current", c.cfg.Node, resourceType(ct), vmid)
	var out struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return sandbox.StatusUnknown, err
	}
	return normalizeStatus(out.Status), nil
}

func (c *Client) startHTTP(ctx context.Context, vmid int, ct sandbox.ContainerType) error {
	path := fmt.Sprintf("/nodes/%s/%s/%d/status/start", c.cfg.Node, resourceType(ct), vmid)
	return c.doJSON(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) stopHTTP(ctx context.Context, vmid int, ct sandbox.ContainerType, graceful bool) error {
	action := "stop"
	if graceful {
		action = "shutdown"
	}
	path := fmt.Sprintf("/nodes/%s/%s/%d/status/%s", c.cfg.Node, resourceType(ct), vmid, action)
	return c.doJSON(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) destroyHTTP(ctx context.Context, vmid int, ct sandbox.ContainerType) error {
	path := fmt.Sprintf("/nodes/%s/%s/%d", c.cfg.Node, resourceType(ct), vmid)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) storageContentHTTP(ctx context.Context, storage string) ([]string, error) {
	path := fmt.Sprintf("/nodes/%s/storage/%s/content", c.cfg.Node, url.PathEscape(storage))
	var out []struct {
		Volid string `json:"volid"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(out))
	for _, v := range out {
		names = append(names, v.Volid)
	}
	return names, nil
}
