package workload

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/hakonix/hakonix/common/cmdexec"
	"github.com/hakonix/hakonix/internal/hakonix/config"
	"github.com/hakonix/hakonix/internal/hakonix/observability"
	"github.com/hakonix/hakonix/internal/hakonix/ownership"
	"github.com/hakonix/hakonix/internal/hakonix/storage"
)

var (
	systemPathRE = regexp.MustCompile(`(?m)^SYSTEM_PATH=(.+)$`)
	modulesVarRE = regexp.MustCompile(`(?m)^export\s+HAKONIX_MODULES="([^"]*)"`)
)

// Info is deep metadata for one container. Facets that could not be queried
// are zero-valued; Note carries an advisory for the caller.
type Info struct {
	Name    string
	Exists  bool
	State   string // "running", "stopped", "not found"
	Owner   string
	Modules []string
	Uptime  string
	Storage storage.Info
	Note    string
}

// Summary renders Info as plain text for CLI output.
func (i Info) Summary() string {
	if !i.Exists {
		return "container " + i.Name + " does not exist"
	}
	lines := []string{
		"Container: " + i.Name,
		"State:     " + i.State,
	}
	if i.Owner != "" {
		lines = append(lines, "Owner:     "+i.Owner)
	}
	if len(i.Modules) > 0 {
		lines = append(lines, "Modules:   "+strings.Join(i.Modules, ", "))
	}
	if i.Uptime != "" {
		lines = append(lines, "Uptime:    "+i.Uptime)
	}
	if i.Storage.Used != "" {
		line := "Storage:   used " + i.Storage.Used
		if q := i.Storage.Quota; !storage.IsSentinel(q) {
			line += " of " + q + " quota"
		}
		if i.Storage.Available != "" {
			line += " (" + i.Storage.Available + " available)"
		}
		lines = append(lines, line)
	}
	if i.Note != "" {
		lines = append(lines, "Note:      "+i.Note)
	}
	return strings.Join(lines, "\n")
}

// Inspector collects per-container metadata facets.
type Inspector struct {
	runner   cmdexec.Runner
	cfg      *config.Config
	resolver *ownership.Resolver
	storage  *storage.Provisioner
}

// NewInspector returns an Inspector.
func NewInspector(runner cmdexec.Runner, cfg *config.Config, resolver *ownership.Resolver, provisioner *storage.Provisioner) *Inspector {
	return &Inspector{runner: runner, cfg: cfg, resolver: resolver, storage: provisioner}
}

// Inspect gathers state, ownership, modules, uptime, and workspace storage
// for one container. Facets degrade individually: a missing uptime or
// storage answer never fails the whole query. A container owned by a
// different principal is reported with a note and no metadata.
func (ins *Inspector) Inspect(ctx context.Context, name, owner string) Info {
	state := ins.queryState(ctx, name)
	if state == "not found" {
		return Info{Name: name, State: state}
	}

	actual := ins.resolver.Owner(ctx, name)
	if owner != "" && actual != "" && actual != owner {
		return Info{Name: name, Exists: true, State: state, Note: "this container belongs to another user"}
	}

	info := Info{Name: name, Exists: true, State: state, Owner: actual}

	storageOwner := owner
	if storageOwner == "" {
		storageOwner = actual
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		info.Modules = ins.queryModules(ctx, name)
	}()
	if storageOwner != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := ins.storage.WorkspaceStorageInfo(ctx, storageOwner, name)
			if err != nil {
				observability.WithTrace(ctx).Debug("workspace storage query failed",
					"container", name, "error", err)
				return
			}
			info.Storage = st
		}()
	}
	if state == "running" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			info.Uptime = ins.queryUptime(ctx, name)
		}()
	}
	wg.Wait()

	return info
}

// queryState distinguishes running, stopped, and nonexistent containers.
// machinectl show answers for running machines; `nixos-container list`
// surfaces stopped ones.
func (ins *Inspector) queryState(ctx context.Context, name string) string {
	res, err := ins.runner.Run(ctx, ins.cfg.QueryTimeout,
		"machinectl", "show", name, "--property=State", "--no-pager")
	if err == nil && res.Success() {
		if _, state, ok := strings.Cut(res.Stdout, "="); ok && strings.TrimSpace(state) != "" {
			return strings.TrimSpace(state)
		}
	}

	list, err := ins.runner.Run(ctx, ins.cfg.QueryTimeout, "nixos-container", "list")
	if err == nil && list.Success() {
		for _, n := range splitLines(list.Stdout) {
			if n == name {
				return "stopped"
			}
		}
	}
	return "not found"
}

// queryModules reads the HAKONIX_MODULES list baked into the container:
// live from a running container, otherwise from the system closure's
// set-environment on disk.
func (ins *Inspector) queryModules(ctx context.Context, name string) []string {
	res, err := ins.runner.Run(ctx, ins.cfg.QueryTimeout,
		"nixos-container", "run", name, "--", "sh", "-c", "echo $HAKONIX_MODULES")
	if err == nil && res.Success() && strings.TrimSpace(res.Stdout) != "" {
		return strings.Fields(res.Stdout)
	}

	conf, err := os.ReadFile(filepath.Join(ins.cfg.ConfDir, name+".conf"))
	if err != nil {
		return nil
	}
	m := systemPathRE.FindSubmatch(conf)
	if m == nil {
		return nil
	}
	env, err := os.ReadFile(filepath.Join(strings.TrimSpace(string(m[1])), "etc", "set-environment"))
	if err != nil {
		return nil
	}
	if m := modulesVarRE.FindSubmatch(env); m != nil {
		return strings.Fields(string(m[1]))
	}
	return nil
}

// queryUptime reports how long the container's systemd unit has been active.
func (ins *Inspector) queryUptime(ctx context.Context, name string) string {
	res, err := ins.runner.Run(ctx, ins.cfg.QueryTimeout,
		"systemctl", "show", "container@"+name+".service", "--property=ActiveEnterTimestamp", "--no-pager")
	if err != nil || !res.Success() {
		return ""
	}
	if _, ts, ok := strings.Cut(res.Stdout, "="); ok && strings.TrimSpace(ts) != "" {
		return "since " + strings.TrimSpace(ts)
	}
	return ""
}
