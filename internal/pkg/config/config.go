// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package config loads nexcage's JSON configuration file (spec §6):
// resolution order --config flag, ./config.json, /etc/nexcage/config.json,
// NEXCAGE_CONFIG env var, with unknown keys warned and ignored rather than
// rejected outright.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/CageForge/nexcage-sub009/internal/pkg/nexerr"
	"github.com/CageForge/nexcage-sub009/internal/pkg/sylog"
)

// Proxmox holds the proxmox.* config keys.
type Proxmox struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Node      string `json:"node"`
	Token     string `json:"token"`
	VerifySSL bool   `json:"verify_ssl"`
	PctPath   string `json:"pct_path"`
	QmPath    string `json:"qm_path"`
	Timeout   int    `json:"timeout"`
	Storage   string `json:"storage"`
}

// Runtime holds the runtime.* config keys.
type Runtime struct {
	LogLevel string `json:"log_level"`
	RootPath string `json:"root_path"`
}

// ContainerConfig holds the container_config.* config keys.
type ContainerConfig struct {
	CrunNamePatterns    []string `json:"crun_name_patterns"`
	DefaultContainerType string  `json:"default_container_type"`
}

// Config is the fully resolved, defaulted configuration.
type Config struct {
	Proxmox         Proxmox         `json:"proxmox"`
	Runtime         Runtime         `json:"runtime"`
	ContainerConfig ContainerConfig `json:"container_config"`
}

// Default returns a Config populated with every documented default.
func Default() *Config {
	return &Config{
		Proxmox: Proxmox{
			Host:    "localhost",
			Port:    8006,
			Node:    "pve",
			PctPath: "pct",
			QmPath:  "qm",
			Timeout: 30,
			Storage: "local",
		},
		Runtime: Runtime{
			LogLevel: "info",
			RootPath: "/var/lib/nexcage",
		},
		ContainerConfig: ContainerConfig{
			DefaultContainerType: "lxc",
		},
	}
}

var recognizedTopLevel = map[string]bool{
	"proxmox": true, "runtime": true, "container_config": true,
}

// Resolve finds the config file per the §6 resolution order (explicit
// flagPath, ./config.json, /etc/nexcage/config.json, NEXCAGE_CONFIG), loads
// it over Default(), and returns the result. A missing file at every
// candidate path is not an error: Default() alone is returned.
func Resolve(flagPath string) (*Config, error) {
	path := resolvePath(flagPath)
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, nexerr.Wrap(nexerr.UsageError, err, "read config %s", path)
	}

	if err := Load(data, cfg); err != nil {
		return nil, err
	}
	sylog.Debugf("config: loaded %s", path)
	return cfg, nil
}

func resolvePath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if _, err := os.Stat("config.json"); err == nil {
		return "config.json"
	}
	if _, err := os.Stat("/etc/nexcage/config.json"); err == nil {
		return "/etc/nexcage/config.json"
	}
	if env := os.Getenv("NEXCAGE_CONFIG"); env != "" {
		return env
	}
	return ""
}

// Load decodes data (a JSON config document) into cfg, warning on any
// top-level key it doesn't recognize rather than rejecting the file.
func Load(data []byte, cfg *Config) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nexerr.Wrap(nexerr.UsageError, err, "decode config")
	}
	for key := range raw {
		if !recognizedTopLevel[key] {
			sylog.Warningf("config: ignoring unrecognized top-level key %q", key)
		}
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nexerr.Wrap(nexerr.UsageError, err, "decode config")
	}
	return nil
}

// StatePath returns <root_path>/<id>, the per-container state directory.
func (c *Config) StatePath(id string) string {
	return filepath.Join(c.Runtime.RootPath, id)
}
