package ownership

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	systemPathRE = regexp.MustCompile(`(?m)^SYSTEM_PATH=(.+)$`)
	ownerVarRE   = regexp.MustCompile(`(?m)^export\s+HAKONIX_OWNER="([^"]*)"`)
)

// SystemPath resolves ownership for stopped containers from the build
// artifact on the host. The host keeps a small per-container config file
// (<confDir>/<name>.conf) whose SYSTEM_PATH line points at the container's
// built system closure; the closure's etc/set-environment carries the baked
// HAKONIX_OWNER export.
type SystemPath struct {
	confDir string
}

// NewSystemPath returns the static-artifact strategy reading per-container
// config files from confDir (normally /etc/nixos-containers).
func NewSystemPath(confDir string) *SystemPath {
	return &SystemPath{confDir: confDir}
}

func (s *SystemPath) Name() string { return "system-path" }

// Owner follows <confDir>/<name>.conf → SYSTEM_PATH → etc/set-environment.
// A container with no config file on this host yields "", nil.
func (s *SystemPath) Owner(_ context.Context, container string) (string, error) {
	conf, err := os.ReadFile(filepath.Join(s.confDir, container+".conf"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read container config: %w", err)
	}

	m := systemPathRE.FindSubmatch(conf)
	if m == nil {
		return "", nil
	}
	systemPath := strings.Trim(strings.TrimSpace(string(m[1])), `"`)

	env, err := os.ReadFile(filepath.Join(systemPath, "etc", "set-environment"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read set-environment: %w", err)
	}

	if m := ownerVarRE.FindSubmatch(env); m != nil {
		return string(m[1]), nil
	}
	return "", nil
}
