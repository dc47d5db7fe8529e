package runtime

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// WorkspaceEnvVar tells guest code where the workspace root is. It is the
// only variable the host injects beyond the pass-through allow-list.
const WorkspaceEnvVar = "GHMCP_WORKSPACE"

// GateConfig enumerates what a guest process is allowed to touch. It is
// re-read on every spawn so configuration changes take effect without a
// restart; nothing here is cached.
type GateConfig struct {
	// InstallDir is the interpreter installation root. Guests always get
	// read access to it and nothing else on disk.
	InstallDir string

	// WorkspaceRoot is exported to the guest via WorkspaceEnvVar.
	WorkspaceRoot string

	// AllowRun permits the guest to spawn nested helper processes.
	AllowRun bool

	// AllowEnv lists environment variables passed through to the guest.
	AllowEnv []string

	// AllowNet lists hosts the guest may reach. Empty means no egress.
	AllowNet []string
}

// CapabilitySet is the minimal permission set computed for one spawn.
// Everything not enumerated here is denied.
type CapabilitySet struct {
	ReadPaths  []string
	RunAllowed bool
	EnvVars    []string
	NetHosts   []string
}

// DeriveCapabilities computes the capability set for a single spawn.
func DeriveCapabilities(cfg GateConfig) CapabilitySet {
	caps := CapabilitySet{
		ReadPaths:  []string{cfg.InstallDir},
		RunAllowed: cfg.AllowRun,
		EnvVars:    dedupe(append([]string{WorkspaceEnvVar}, cfg.AllowEnv...)),
		NetHosts:   dedupe(cfg.AllowNet),
	}
	return caps
}

// Flags renders the set as individually toggled interpreter allow-flags.
// There is deliberately no --allow-all equivalent.
func (c CapabilitySet) Flags() []string {
	flags := []string{
		fmt.Sprintf("--allow-read=%s", strings.Join(c.ReadPaths, ",")),
	}
	if c.RunAllowed {
		flags = append(flags, "--allow-run")
	}
	if len(c.EnvVars) > 0 {
		flags = append(flags, fmt.Sprintf("--allow-env=%s", strings.Join(c.EnvVars, ",")))
	}
	if len(c.NetHosts) > 0 {
		flags = append(flags, fmt.Sprintf("--allow-net=%s", strings.Join(c.NetHosts, ",")))
	}
	return flags
}

// Environ filters the host environment down to the allow-list and overlays
// the workspace root variable.
func (c CapabilitySet) Environ(workspaceRoot string) []string {
	allowed := make(map[string]bool, len(c.EnvVars))
	for _, name := range c.EnvVars {
		allowed[name] = true
	}

	var env []string
	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if ok && allowed[name] && name != WorkspaceEnvVar {
			env = append(env, kv)
		}
	}
	env = append(env, WorkspaceEnvVar+"="+workspaceRoot)
	return env
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
