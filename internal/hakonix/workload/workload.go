// Package workload enumerates and inspects the containers managed on this
// host. Live state always comes from systemd-machined and nixos-container;
// nothing here caches container state.
package workload

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/hakonix/hakonix/common/cmdexec"
	"github.com/hakonix/hakonix/internal/hakonix/config"
	"github.com/hakonix/hakonix/internal/hakonix/observability"
	"github.com/hakonix/hakonix/internal/hakonix/ownership"
)

// Workload is one container or VM visible on the host.
type Workload struct {
	Name      string
	Class     string // "container" or "vm"
	Service   string // "nspawn" or "libvirt"
	State     string // "running", "stopped", "degraded", ...
	Addresses []string
}

// IsRunning reports whether the workload is in the running state.
func (w Workload) IsRunning() bool { return w.State == "running" }

// IsContainer reports whether the workload is a container (VMs have no
// ownership marker and are excluded from owner-filtered listings).
func (w Workload) IsContainer() bool { return w.Class == "container" }

// Lister lists workloads and resolves their ownership.
type Lister struct {
	runner   cmdexec.Runner
	cfg      *config.Config
	resolver *ownership.Resolver
	static   ownership.Strategy // system-path strategy, for stopped containers
}

// NewLister returns a Lister. resolver is used for running containers (its
// live strategy is fast and authoritative there); static is consulted
// directly for stopped ones, where a live query would only waste its timeout.
func NewLister(runner cmdexec.Runner, cfg *config.Config, resolver *ownership.Resolver, static ownership.Strategy) *Lister {
	return &Lister{runner: runner, cfg: cfg, resolver: resolver, static: static}
}

// machineEntry is one element of `machinectl list --output=json`. Addresses
// arrive as a newline-separated string, not a JSON array.
type machineEntry struct {
	Machine   string `json:"machine"`
	Class     string `json:"class"`
	Service   string `json:"service"`
	State     string `json:"state"`
	Addresses string `json:"addresses"`
}

// List merges running workloads from machinectl with all configured
// containers from nixos-container. Containers known only to the latter are
// reported as stopped. A nixos-container failure degrades to the running set
// (a host with no containers ever created has no conf dir); a machinectl
// failure is an error.
func (l *Lister) List(ctx context.Context) ([]Workload, error) {
	res, err := l.runner.Run(ctx, l.cfg.QueryTimeout, "machinectl", "list", "--output=json", "--no-pager")
	if err != nil {
		return nil, fmt.Errorf("machinectl list: %w", err)
	}
	if !res.Success() {
		return nil, fmt.Errorf("machinectl list failed (exit %d): %s", res.ExitCode, res.Detail())
	}

	var entries []machineEntry
	if err := json.Unmarshal([]byte(res.Stdout), &entries); err != nil {
		return nil, fmt.Errorf("parse machinectl output: %w", err)
	}

	running := make(map[string]bool, len(entries))
	workloads := make([]Workload, 0, len(entries))
	for _, e := range entries {
		if e.Machine == "" {
			return nil, fmt.Errorf("machinectl entry without a machine name")
		}
		running[e.Machine] = true
		workloads = append(workloads, Workload{
			Name:      e.Machine,
			Class:     orDefault(e.Class, "container"),
			Service:   orDefault(e.Service, "nspawn"),
			State:     orDefault(e.State, "running"),
			Addresses: splitLines(e.Addresses),
		})
	}

	for _, name := range l.configuredNames(ctx) {
		if !running[name] {
			workloads = append(workloads, Workload{
				Name:    name,
				Class:   "container",
				Service: "nspawn",
				State:   "stopped",
			})
		}
	}
	return workloads, nil
}

// ListOwnedBy returns the containers belonging to owner. Ownership is
// resolved in parallel: the full resolver for running containers, the static
// strategy alone for stopped ones. Unresolvable containers are excluded — an
// unknown owner must never match anyone.
func (l *Lister) ListOwnedBy(ctx context.Context, owner string) ([]Workload, error) {
	all, err := l.List(ctx)
	if err != nil {
		return nil, err
	}

	owners := make([]string, len(all))
	var wg sync.WaitGroup
	for i, w := range all {
		if !w.IsContainer() {
			continue
		}
		wg.Add(1)
		go func(i int, w Workload) {
			defer wg.Done()
			if w.IsRunning() {
				owners[i] = l.resolver.Owner(ctx, w.Name)
				return
			}
			got, err := l.static.Owner(ctx, w.Name)
			if err != nil {
				observability.WithTrace(ctx).Debug("ownership lookup failed",
					"container", w.Name, "error", err)
				return
			}
			owners[i] = got
		}(i, w)
	}
	wg.Wait()

	var owned []Workload
	for i, w := range all {
		if owners[i] != "" && owners[i] == owner {
			owned = append(owned, w)
		}
	}
	return owned, nil
}

// configuredNames lists every created container, running or stopped, via
// `nixos-container list`. Failure degrades to an empty list.
func (l *Lister) configuredNames(ctx context.Context) []string {
	res, err := l.runner.Run(ctx, l.cfg.QueryTimeout, "nixos-container", "list")
	if err != nil || !res.Success() {
		return nil
	}
	return splitLines(res.Stdout)
}

func splitLines(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
