// Package config holds the hakonix runtime configuration.
//
// Configuration is assembled exactly once at process start and passed by
// reference into the provisioner, orchestrator, and resolver constructors.
// No package reads environment variables after startup.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hakonix/hakonix/common/environment"
)

// Defaults applied by Load when neither the YAML file nor the environment
// provides a value.
const (
	DefaultStorageRoot    = "tank"
	DefaultUserQuota      = "10G"
	DefaultConfDir        = "/etc/nixos-containers"
	DefaultCommandTimeout = 60 * time.Second
	DefaultBuildTimeout   = 10 * time.Minute
	DefaultQueryTimeout   = 15 * time.Second
)

// Config is the explicit configuration for the hakonix core.
type Config struct {
	// StorageRoot is the ZFS dataset under which per-owner hierarchies are
	// created (e.g. "tank" or "tank/users"). Datasets under it are mounted
	// at "/" + dataset path; the resulting workspace mount path shape is a
	// contract with the Nix expression generator and must not change
	// independently of the flake.
	StorageRoot string `yaml:"storage_root"`

	// UserQuota is the ZFS quota applied to every owner's root dataset,
	// re-applied on each provisioning call so configuration drift is
	// corrected opportunistically. ZFS size string ("10G", "none", ...).
	UserQuota string `yaml:"user_quota"`

	// FlakePath is the absolute path to the flake root holding
	// nix/mkContainer.nix. Required for container creation.
	FlakePath string `yaml:"flake_path"`

	// ConfDir is the directory where nixos-container writes one
	// <name>.conf per container. The ownership resolver's system-path
	// strategy reads it.
	ConfDir string `yaml:"conf_dir"`

	// EnrollKey is the reusable network enrollment auth key injected into
	// containers that request the enrollment module. Optional; treated as
	// a secret everywhere it is handled.
	EnrollKey string `yaml:"enroll_key"`

	// DatabasePath is the SQLite file for the operations audit log.
	// Empty disables auditing.
	DatabasePath string `yaml:"database_path"`

	// CommandTimeout bounds ordinary tool invocations (zfs, machinectl,
	// nixos-container start/stop).
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// BuildTimeout bounds the declarative build+install+start invocation,
	// which can fetch and compile.
	BuildTimeout time.Duration `yaml:"build_timeout"`

	// QueryTimeout bounds read-only metadata queries (ownership, state).
	QueryTimeout time.Duration `yaml:"query_timeout"`

	// LogLevel is one of debug, info, warn, error. LogFormat is "text" or
	// "json".
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Load builds the configuration from an optional YAML file at path (empty
// path skips the file), then applies HAKONIX_* environment overrides and
// defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.StorageRoot = environment.StringOr("HAKONIX_STORAGE_ROOT", cfg.StorageRoot)
	cfg.UserQuota = environment.StringOr("HAKONIX_USER_QUOTA", cfg.UserQuota)
	cfg.FlakePath = environment.StringOr("HAKONIX_FLAKE_PATH", cfg.FlakePath)
	cfg.ConfDir = environment.StringOr("HAKONIX_CONF_DIR", cfg.ConfDir)
	cfg.EnrollKey = environment.StringOr("HAKONIX_ENROLL_KEY", cfg.EnrollKey)
	cfg.DatabasePath = environment.StringOr("HAKONIX_DATABASE_PATH", cfg.DatabasePath)
	cfg.CommandTimeout = environment.DurationOr("HAKONIX_COMMAND_TIMEOUT", cfg.CommandTimeout)
	cfg.BuildTimeout = environment.DurationOr("HAKONIX_BUILD_TIMEOUT", cfg.BuildTimeout)
	cfg.QueryTimeout = environment.DurationOr("HAKONIX_QUERY_TIMEOUT", cfg.QueryTimeout)
	cfg.LogLevel = environment.StringOr("HAKONIX_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = environment.StringOr("HAKONIX_LOG_FORMAT", cfg.LogFormat)

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.StorageRoot == "" {
		c.StorageRoot = DefaultStorageRoot
	}
	if c.UserQuota == "" {
		c.UserQuota = DefaultUserQuota
	}
	if c.ConfDir == "" {
		c.ConfDir = DefaultConfDir
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.BuildTimeout == 0 {
		c.BuildTimeout = DefaultBuildTimeout
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = DefaultQueryTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

// Validate rejects values that would make dataset paths ambiguous. FlakePath
// is deliberately not required here: only creation needs it, and the CLI
// checks it at that boundary.
func (c *Config) Validate() error {
	if strings.HasPrefix(c.StorageRoot, "/") || strings.HasSuffix(c.StorageRoot, "/") {
		return fmt.Errorf("storage_root %q must be a dataset path without leading or trailing slash", c.StorageRoot)
	}
	if c.StorageRoot == "" {
		return fmt.Errorf("storage_root must not be empty")
	}
	return nil
}
