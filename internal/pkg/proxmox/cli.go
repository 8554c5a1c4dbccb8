// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package proxmox

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"

	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
	"github.com/CageForge/nexcage-sub009/pkg/sandbox"
)

func (c *Client) binFor(ct sandbox.ContainerType) (string, error) {
	path := c.pctPath
	if ct == sandbox.VM {
		path = c.qmPath
	}
	if _, err := exec.LookPath(path); err != nil {
		return "", nexerr.Wrap(nexerr.ToolMissing, err, "%s", path)
	}
	return path, nil
}

func (c *Client) runCLI(ctx context.Context, bin string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	out, err := cmd.Output()
	if err != nil {
		stderr := ""
		if ee, ok := err.(*exec.ExitError); ok {
			stderr = string(ee.Stderr)
			if len(stderr) > 256 {
				stderr = stderr[:256]
			}
			return "", nexerr.New(nexerr.ProxmoxCLIError, "%s %s: exit %d: %s", bin, strings.Join(args, " "), ee.ExitCode(), stderr)
		}
		return "", nexerr.Wrap(nexerr.ProxmoxCLIError, err, "%s %s", bin, strings.Join(args, " "))
	}
	return string(out), nil
}

func itoa(n int) string { return strconv.Itoa(n) }

// runCLIFull runs bin with args, returning its exit code and separated
// stdout/stderr rather than collapsing a non-zero exit into an error;
// exec() callers need the raw exit code and both streams.
func runCLIFull(ctx context.Context, bin string, args ...string) (int, []byte, []byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil {
		return 0, stdout.Bytes(), stderr.Bytes(), nil
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return ee.ExitCode(), stdout.Bytes(), stderr.Bytes(), nil
	}
	return -1, nil, nil, nexerr.Wrap(nexerr.ProxmoxCLIError, err, "%s %s", bin, strings.Join(args, " "))
}

func (c *Client) listResourcesCLI(ctx context.Context, ct sandbox.ContainerType) ([]ClusterResource, error) {
	bin, err := c.binFor(ct)
	if err != nil {
		return nil, err
	}
	out, err := c.runCLI(ctx, bin, "list", "--output-format", "json")
	if err != nil {
		return nil, err
	}
	var raw []struct {
		VMID   int    `json:"vmid"`
		Name   string `json:"name"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, nexerr.Wrap(nexerr.ProxmoxCLIError, err, "parse %s list output", bin)
	}
	resources := make([]ClusterResource, 0, len(raw))
	for _, r := range raw {
		resources = append(resources, ClusterResource{VMID: r.VMID, Name: r.Name, Status: r.Status, Type: resourceType(ct)})
	}
	return resources, nil
}

func (c *Client) statusCLI(ctx context.Context, vmid int, ct sandbox.ContainerType) (sandbox.Status, error) {
	resources, err := c.listResourcesCLI(ctx, ct)
	if err != nil {
		return sandbox.StatusUnknown, err
	}
	for _, r := range resources {
		if r.VMID == vmid {
			return normalizeStatus(r.Status), nil
		}
	}
	return sandbox.StatusUnknown, nexerr.New(nexerr.NotFound, "vmid %d not found", vmid)
}

func (c *Client) startCLI(ctx context.Context, vmid int, ct sandbox.ContainerType) error {
	bin, err := c.binFor(ct)
	if err != nil {
		return err
	}
	_, err = c.runCLI(ctx, bin, "start", strconv.Itoa(vmid))
	return err
}

func (c *Client) stopCLI(ctx context.Context, vmid int, ct sandbox.ContainerType, graceful bool) error {
	bin, err := c.binFor(ct)
	if err != nil {
		return err
	}
	verb := "stop"
	if graceful {
		verb = "shutdown"
	}
	_, err = c.runCLI(ctx, bin, verb, strconv.Itoa(vmid))
	return err
}

func (c *Client) destroyCLI(ctx context.Context, vmid int, ct sandbox.ContainerType) error {
	bin, err := c.binFor(ct)
	if err != nil {
		return err
	}
	_, err = c.runCLI(ctx, bin, "destroy", strconv.Itoa(vmid))
	return err
}

// CreateLXCArgs is the resolved argument set for `pct create`.
type CreateLXCArgs struct {
	VMID         int
	Template     string // "<storage>:vztmpl/<template>"
	Hostname     string
	MemoryMiB    int
	Cores        int
	Rootfs       string // "<storage>:<disk_gb>"
	Unprivileged bool
	Onboot       bool
	Net0         string
}

// CreateLXC runs `pct create` with the given arguments, always via the CLI
// since the API's equivalent endpoint requires the same template upload
// round trip the Image Converter already performed.
func (c *Client) CreateLXC(ctx context.Context, args CreateLXCArgs) error {
	bin, err := c.binFor(sandbox.LXC)
	if err != nil {
		return err
	}
	argv := []string{
		"create", strconv.Itoa(args.VMID), args.Template,
		"--hostname", args.Hostname,
		"--memory", strconv.Itoa(args.MemoryMiB),
		"--cores", strconv.Itoa(args.Cores),
		"--rootfs", args.Rootfs,
	}
	if args.Unprivileged {
		argv = append(argv, "--unprivileged", "1")
	}
	if args.Onboot {
		argv = append(argv, "--onboot", "1")
	}
	if args.Net0 != "" {
		argv = append(argv, "--net0", args.Net0)
	}
	_, err = c.runCLI(ctx, bin, argv...)
	return err
}

// CreateVMArgs is the resolved argument set for `qm create`.
type CreateVMArgs struct {
	VMID      int
	Name      string
	MemoryMiB int
	Cores     int
	DiskSpec  string // "<bus><n>: <storage>:<disk_gb>", e.g. "scsi0: local:32"
	OSType    string
	Net0      string
}

// CreateVM runs `qm create` with the given arguments.
func (c *Client) CreateVM(ctx context.Context, args CreateVMArgs) error {
	bin, err := c.binFor(sandbox.VM)
	if err != nil {
		return err
	}
	argv := []string{
		"create", strconv.Itoa(args.VMID),
		"--name", args.Name,
		"--memory", strconv.Itoa(args.MemoryMiB),
		"--cores", strconv.Itoa(args.Cores),
	}
	if args.DiskSpec != "" {
		parts := strings.SplitN(args.DiskSpec, ":", 2)
		if len(parts) == 2 {
			argv = append(argv, "--"+strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
		}
	}
	if args.OSType != "" {
		argv = append(argv, "--ostype", args.OSType)
	}
	if args.Net0 != "" {
		argv = append(argv, "--net0", args.Net0)
	}
	_, err = c.runCLI(ctx, bin, argv...)
	return err
}

// ParseConfig decodes a `pct config <vmid>` "key: value" document; unknown
// keys are preserved opaquely in the returned map.
func ParseConfig(text string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		out[key] = val
	}
	return out
}
