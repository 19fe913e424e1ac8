// Package storage manages the ZFS dataset hierarchy that backs per-owner
// persistent container workspaces.
//
// The layout under the configured storage root:
//
//	<root>/<owner>/                              per-owner root (quota)
//	<root>/<owner>/containers/<name>/workspace   bind-mounted into container
//
// Datasets are mounted at "/" + dataset path. The workspace mount path shape
// is a contract with the Nix expression generator and must not change
// independently.
//
// Every operation is idempotent: provisioning an existing hierarchy issues
// no destructive calls, and destroying an absent subtree succeeds.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/hakonix/hakonix/common/cmdexec"
	"github.com/hakonix/hakonix/internal/hakonix/config"
)

// Provisioner creates, mounts, quotas, and destroys workspace datasets.
type Provisioner struct {
	runner cmdexec.Runner
	cfg    *config.Config
}

// New returns a Provisioner using runner for all zfs invocations.
func New(runner cmdexec.Runner, cfg *config.Config) *Provisioner {
	return &Provisioner{runner: runner, cfg: cfg}
}

// UserRootDataset returns the dataset path of an owner's root.
func (p *Provisioner) UserRootDataset(owner string) string {
	return p.cfg.StorageRoot + "/" + owner
}

// ContainerDataset returns the dataset path of a container's subtree root.
func (p *Provisioner) ContainerDataset(owner, name string) string {
	return p.cfg.StorageRoot + "/" + owner + "/containers/" + name
}

// WorkspaceDataset returns the dataset path of a container's workspace leaf.
func (p *Provisioner) WorkspaceDataset(owner, name string) string {
	return p.ContainerDataset(owner, name) + "/workspace"
}

// MountPath returns the host-side mount path for a dataset.
func MountPath(dataset string) string {
	return "/" + dataset
}

// exists reports whether a dataset exists (zfs list exits 0 for it).
func (p *Provisioner) exists(ctx context.Context, dataset string) (bool, error) {
	res, err := p.runner.Run(ctx, p.cfg.CommandTimeout, "zfs", "list", "-H", "-o", "name", dataset)
	if err != nil {
		return false, err
	}
	return res.Success(), nil
}

// create makes a dataset with an explicit mountpoint. A dataset must never be
// left created-but-unmounted: the mount path is a hard filesystem precondition
// for the container's bind mount.
func (p *Provisioner) create(ctx context.Context, dataset string) error {
	res, err := p.runner.Run(ctx, p.cfg.CommandTimeout,
		"zfs", "create", "-o", "mountpoint="+MountPath(dataset), dataset)
	if err != nil {
		return err
	}
	if !res.Success() {
		return fmt.Errorf("create dataset %s: %s", dataset, res.Detail())
	}
	return nil
}

// EnsureMounted mounts a dataset that exists but is not currently mounted.
// Failures are reported, not retried.
func (p *Provisioner) EnsureMounted(ctx context.Context, dataset string) error {
	res, err := p.runner.Run(ctx, p.cfg.CommandTimeout, "zfs", "get", "-H", "-o", "value", "mounted", dataset)
	if err != nil {
		return err
	}
	if !res.Success() {
		return fmt.Errorf("query mount state of %s: %s", dataset, res.Detail())
	}
	if res.Stdout == "yes" {
		return nil
	}

	mount, err := p.runner.Run(ctx, p.cfg.CommandTimeout, "zfs", "mount", dataset)
	if err != nil {
		return err
	}
	if !mount.Success() {
		return fmt.Errorf("mount dataset %s: %s", dataset, mount.Detail())
	}
	return nil
}

// applyQuota sets the configured quota on a dataset. Idempotent: setting a
// quota on a dataset that already has one just updates the value.
func (p *Provisioner) applyQuota(ctx context.Context, dataset string) error {
	res, err := p.runner.Run(ctx, p.cfg.CommandTimeout,
		"zfs", "set", "quota="+p.cfg.UserQuota, dataset)
	if err != nil {
		return err
	}
	if !res.Success() {
		return fmt.Errorf("apply quota %s to %s: %s", p.cfg.UserQuota, dataset, res.Detail())
	}
	return nil
}

// ProvisionUserRoot ensures the owner's root dataset exists, is mounted, and
// carries the configured quota. The quota is re-applied even when the dataset
// already exists so configuration drift is corrected opportunistically; a
// quota failure is fatal in both branches — a dataset without the intended
// quota is a silent capacity violation, not a cosmetic one.
func (p *Provisioner) ProvisionUserRoot(ctx context.Context, owner string) error {
	dataset := p.UserRootDataset(owner)

	ok, err := p.exists(ctx, dataset)
	if err != nil {
		return err
	}
	if ok {
		if err := p.EnsureMounted(ctx, dataset); err != nil {
			return err
		}
		return p.applyQuota(ctx, dataset)
	}

	if err := p.create(ctx, dataset); err != nil {
		return err
	}
	slog.Info("created user root dataset", "dataset", dataset, "quota", p.cfg.UserQuota)
	return p.applyQuota(ctx, dataset)
}

// ProvisionWorkspace makes the workspace for (owner, name) exist and mounted,
// returning its canonical mount path. Calling it again for an existing
// workspace is a no-op that returns the same path.
func (p *Provisioner) ProvisionWorkspace(ctx context.Context, owner, name string) (string, error) {
	if err := p.ProvisionUserRoot(ctx, owner); err != nil {
		return "", fmt.Errorf("provision user root for %s: %w", owner, err)
	}

	workspace := p.WorkspaceDataset(owner, name)
	mountPath := MountPath(workspace)

	ok, err := p.exists(ctx, workspace)
	if err != nil {
		return "", err
	}
	if ok {
		if err := p.EnsureMounted(ctx, workspace); err != nil {
			return "", err
		}
		return mountPath, nil
	}

	// Build each missing intermediate node with an explicit mountpoint,
	// mounting any that exist but are unmounted.
	intermediates := []string{
		p.UserRootDataset(owner) + "/containers",
		p.ContainerDataset(owner, name),
	}
	for _, dataset := range intermediates {
		ok, err := p.exists(ctx, dataset)
		if err != nil {
			return "", err
		}
		if ok {
			if err := p.EnsureMounted(ctx, dataset); err != nil {
				return "", err
			}
			continue
		}
		if err := p.create(ctx, dataset); err != nil {
			return "", err
		}
	}

	if err := p.create(ctx, workspace); err != nil {
		return "", err
	}
	slog.Info("created workspace dataset", "dataset", workspace, "mount_path", mountPath)
	return mountPath, nil
}

// DestroyWorkspace recursively destroys the container's subtree
// (<root>/<owner>/containers/<name>). It never touches the owner's root
// dataset or sibling containers. Destroying an absent subtree succeeds.
func (p *Provisioner) DestroyWorkspace(ctx context.Context, owner, name string) error {
	dataset := p.ContainerDataset(owner, name)

	ok, err := p.exists(ctx, dataset)
	if err != nil {
		return err
	}
	if !ok {
		slog.Debug("container dataset already absent", "dataset", dataset)
		return nil
	}

	res, err := p.runner.Run(ctx, p.cfg.CommandTimeout, "zfs", "destroy", "-r", dataset)
	if err != nil {
		return err
	}
	if !res.Success() {
		return fmt.Errorf("destroy dataset %s: %s", dataset, res.Detail())
	}
	slog.Info("destroyed container dataset", "dataset", dataset)
	return nil
}

// Info holds humanized storage usage for an owner's root dataset.
type Info struct {
	Owner     string
	Quota     string
	Used      string
	Available string
}

// UserStorageInfo queries quota, used, and available space for an owner's
// root dataset via machine-readable zfs output (-Hp: raw byte counts).
func (p *Provisioner) UserStorageInfo(ctx context.Context, owner string) (Info, error) {
	return p.datasetInfo(ctx, owner, p.UserRootDataset(owner))
}

// WorkspaceStorageInfo queries the same properties for a single container's
// workspace dataset.
func (p *Provisioner) WorkspaceStorageInfo(ctx context.Context, owner, name string) (Info, error) {
	return p.datasetInfo(ctx, owner, p.WorkspaceDataset(owner, name))
}

func (p *Provisioner) datasetInfo(ctx context.Context, owner, dataset string) (Info, error) {
	res, err := p.runner.Run(ctx, p.cfg.CommandTimeout,
		"zfs", "get", "-Hp", "-o", "property,value", "quota,used,available", dataset)
	if err != nil {
		return Info{}, err
	}
	if !res.Success() {
		return Info{}, fmt.Errorf("query storage info for %s: %s", dataset, res.Detail())
	}

	props := parseProps(res.Stdout)
	return Info{
		Owner:     owner,
		Quota:     HumanSize(props["quota"]),
		Used:      HumanSize(props["used"]),
		Available: HumanSize(props["available"]),
	}, nil
}

// parseProps splits `zfs get -o property,value` tab-separated lines.
func parseProps(out string) map[string]string {
	props := make(map[string]string)
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) == 2 {
			props[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return props
}

// IsSentinel reports whether a ZFS property value is one of the placeholders
// `zfs get` emits when a property is unset or inapplicable.
func IsSentinel(v string) bool {
	switch v {
	case "", "none", "0", "-":
		return true
	}
	return false
}

// HumanSize converts a raw byte count from `zfs get -Hp` to a human-readable
// size (binary units, one decimal place). The sentinels "none", "0", "-" and
// the empty string pass through untouched rather than being treated as
// numbers; unparseable values are returned verbatim.
func HumanSize(raw string) string {
	switch raw {
	case "none", "0", "-":
		return raw
	case "":
		return "0"
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return raw
	}

	size := float64(n)
	for _, unit := range []string{"B", "K", "M", "G", "T"} {
		if size < 1024 {
			if unit == "B" {
				return fmt.Sprintf("%d%s", n, unit)
			}
			return fmt.Sprintf("%.1f%s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.1fP", size)
}
