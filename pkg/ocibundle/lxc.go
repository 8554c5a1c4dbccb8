// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package ocibundle

// LxcMount mirrors the subset of specs.Mount the LXC shaping needs, deep
// copied out of the parsed spec so callers don't retain a pointer into it.
type LxcMount struct {
	Destination string
	Type        string
	Source      string
	Options     []string
}

// LxcConfig is the LXC-flavored configuration derived from an OCI bundle
// (spec §4.C ToLXCConfig).
type LxcConfig struct {
	Hostname     string
	RootfsPath   string
	Command      []string
	Env          map[string]string
	Mounts       []LxcMount
	MemoryMiB    int
	CPUCores     int
	Unprivileged bool
	Features     map[string]string
}

// ToLXCConfig derives an LXC-flavored configuration from the bundle.
func ToLXCConfig(b *Bundle) *LxcConfig {
	cfg := &LxcConfig{
		Hostname:     "container",
		RootfsPath:   b.RootfsPath,
		Command:      []string{"/bin/sh"},
		Env:          map[string]string{"PATH": "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin", "TERM": "xterm"},
		Unprivileged: b.HasUserNamespace(),
		Features:     map[string]string{"nesting": "1"},
	}

	if b.Spec.Hostname != "" {
		cfg.Hostname = b.Spec.Hostname
	}

	if b.Spec.Process != nil {
		if len(b.Spec.Process.Args) > 0 {
			cfg.Command = append([]string(nil), b.Spec.Process.Args...)
		}
		if len(b.Spec.Process.Env) > 0 {
			cfg.Env = envSliceToMap(b.Spec.Process.Env)
		}
	}

	for _, m := range b.Spec.Mounts {
		cfg.Mounts = append(cfg.Mounts, LxcMount{
			Destination: m.Destination,
			Type:        m.Type,
			Source:      m.Source,
			Options:     append([]string(nil), m.Options...),
		})
	}

	if b.Spec.Linux != nil && b.Spec.Linux.Resources != nil {
		r := b.Spec.Linux.Resources
		if r.Memory != nil && r.Memory.Limit != nil {
			cfg.MemoryMiB = int(*r.Memory.Limit / (1 << 20))
		}
		if r.CPU != nil && r.CPU.Quota != nil && r.CPU.Period != nil && *r.CPU.Period > 0 {
			cfg.CPUCores = int(*r.CPU.Quota / int64(*r.CPU.Period))
		}
	}

	if cfg.Unprivileged {
		cfg.Features["keyctl"] = "1"
	}

	return cfg
}

func envSliceToMap(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, kv := range env {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				m[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return m
}
