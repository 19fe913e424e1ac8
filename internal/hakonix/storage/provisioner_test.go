package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hakonix/hakonix/common/cmdexec"
	"github.com/hakonix/hakonix/internal/hakonix/config"
)

// zfsFake emulates enough of the zfs CLI for provisioner tests: dataset
// existence, mount state, quota sets, and recursive destroy.
type zfsFake struct {
	t        *testing.T
	exists   map[string]bool
	mounted  map[string]bool
	quotaErr string // non-empty makes `zfs set quota=` fail
	getProps string // stdout for `zfs get -Hp`
	calls    []string
}

func newZfsFake(t *testing.T) *zfsFake {
	return &zfsFake{
		t:       t,
		exists:  make(map[string]bool),
		mounted: make(map[string]bool),
	}
}

func (z *zfsFake) addDataset(ds string, isMounted bool) {
	z.exists[ds] = true
	z.mounted[ds] = isMounted
}

func (z *zfsFake) Run(_ context.Context, _ time.Duration, name string, args ...string) (cmdexec.Result, error) {
	z.calls = append(z.calls, name+" "+strings.Join(args, " "))
	if name != "zfs" {
		z.t.Fatalf("unexpected command %q", name)
	}

	last := args[len(args)-1]
	switch args[0] {
	case "list":
		if z.exists[last] {
			return cmdexec.Result{Stdout: last}, nil
		}
		return cmdexec.Result{Stderr: "cannot open '" + last + "': dataset does not exist", ExitCode: 1}, nil
	case "get":
		if args[1] == "-H" { // mounted query
			if z.mounted[last] {
				return cmdexec.Result{Stdout: "yes"}, nil
			}
			return cmdexec.Result{Stdout: "no"}, nil
		}
		return cmdexec.Result{Stdout: z.getProps}, nil
	case "create":
		z.exists[last] = true
		z.mounted[last] = true
		return cmdexec.Result{}, nil
	case "mount":
		z.mounted[last] = true
		return cmdexec.Result{}, nil
	case "set":
		if strings.HasPrefix(args[1], "quota=") && z.quotaErr != "" {
			return cmdexec.Result{Stderr: z.quotaErr, ExitCode: 1}, nil
		}
		return cmdexec.Result{}, nil
	case "destroy":
		for ds := range z.exists {
			if ds == last || strings.HasPrefix(ds, last+"/") {
				delete(z.exists, ds)
				delete(z.mounted, ds)
			}
		}
		return cmdexec.Result{}, nil
	}
	z.t.Fatalf("unexpected zfs verb %q", args[0])
	return cmdexec.Result{}, nil
}

func (z *zfsFake) callsMatching(substrs ...string) []string {
	var out []string
outer:
	for _, c := range z.calls {
		for _, s := range substrs {
			if !strings.Contains(c, s) {
				continue outer
			}
		}
		out = append(out, c)
	}
	return out
}

func testConfig() *config.Config {
	return &config.Config{
		StorageRoot:    "tank",
		UserQuota:      "10G",
		CommandTimeout: time.Second,
	}
}

func TestProvisionWorkspaceCleanHost(t *testing.T) {
	zfs := newZfsFake(t)
	p := New(zfs, testConfig())

	path, err := p.ProvisionWorkspace(context.Background(), "123", "dev")
	if err != nil {
		t.Fatalf("ProvisionWorkspace: %v", err)
	}
	if path != "/tank/123/containers/dev/workspace" {
		t.Errorf("mount path = %q, want /tank/123/containers/dev/workspace", path)
	}

	for _, ds := range []string{
		"tank/123",
		"tank/123/containers",
		"tank/123/containers/dev",
		"tank/123/containers/dev/workspace",
	} {
		if !zfs.exists[ds] {
			t.Errorf("dataset %s was not created", ds)
		}
		if created := zfs.callsMatching("create", "mountpoint=/"+ds+" "); len(created) != 1 {
			t.Errorf("dataset %s: %d create calls with explicit mountpoint, want 1", ds, len(created))
		}
	}
}

func TestProvisionWorkspaceIdempotent(t *testing.T) {
	zfs := newZfsFake(t)
	p := New(zfs, testConfig())
	ctx := context.Background()

	first, err := p.ProvisionWorkspace(ctx, "123", "dev")
	if err != nil {
		t.Fatalf("first ProvisionWorkspace: %v", err)
	}

	zfs.calls = nil
	second, err := p.ProvisionWorkspace(ctx, "123", "dev")
	if err != nil {
		t.Fatalf("second ProvisionWorkspace: %v", err)
	}
	if first != second {
		t.Errorf("paths differ: %q vs %q", first, second)
	}
	if n := len(zfs.callsMatching("create")); n != 0 {
		t.Errorf("second call issued %d create calls, want 0", n)
	}
	if n := len(zfs.callsMatching("destroy")); n != 0 {
		t.Errorf("second call issued %d destroy calls, want 0", n)
	}
}

func TestProvisionUserRootReappliesQuota(t *testing.T) {
	zfs := newZfsFake(t)
	zfs.addDataset("tank/123", true)
	p := New(zfs, testConfig())

	if err := p.ProvisionUserRoot(context.Background(), "123"); err != nil {
		t.Fatalf("ProvisionUserRoot: %v", err)
	}
	if n := len(zfs.callsMatching("set quota=10G tank/123")); n != 1 {
		t.Errorf("%d quota calls on existing root, want 1", n)
	}
	if n := len(zfs.callsMatching("create")); n != 0 {
		t.Errorf("%d create calls for existing root, want 0", n)
	}
}

func TestProvisionUserRootQuotaFailureIsFatal(t *testing.T) {
	zfs := newZfsFake(t)
	zfs.addDataset("tank/123", true)
	zfs.quotaErr = "cannot set property: permission denied"
	p := New(zfs, testConfig())

	err := p.ProvisionUserRoot(context.Background(), "123")
	if err == nil {
		t.Fatal("quota failure on an existing root was swallowed")
	}
	if !strings.Contains(err.Error(), "permission denied") {
		t.Errorf("error %q does not carry the tool detail", err)
	}
}

func TestProvisionUserRootMountsExistingUnmounted(t *testing.T) {
	zfs := newZfsFake(t)
	zfs.addDataset("tank/123", false)
	p := New(zfs, testConfig())

	if err := p.ProvisionUserRoot(context.Background(), "123"); err != nil {
		t.Fatalf("ProvisionUserRoot: %v", err)
	}
	if n := len(zfs.callsMatching("mount tank/123")); n != 1 {
		t.Errorf("%d mount calls, want 1", n)
	}
}

func TestProvisionWorkspaceAbortsOnUserRootFailure(t *testing.T) {
	zfs := newZfsFake(t)
	zfs.addDataset("tank/123", true)
	zfs.quotaErr = "quota exceeded"
	p := New(zfs, testConfig())

	_, err := p.ProvisionWorkspace(context.Background(), "123", "dev")
	if err == nil {
		t.Fatal("expected failure")
	}
	if n := len(zfs.callsMatching("create")); n != 0 {
		t.Errorf("workspace creation attempted after user root failure (%d create calls)", n)
	}
}

func TestDestroyWorkspaceIdempotent(t *testing.T) {
	zfs := newZfsFake(t)
	p := New(zfs, testConfig())

	if err := p.DestroyWorkspace(context.Background(), "123", "dev"); err != nil {
		t.Fatalf("DestroyWorkspace on absent subtree: %v", err)
	}
	if n := len(zfs.callsMatching("destroy")); n != 0 {
		t.Errorf("%d destroy calls for an absent dataset, want 0", n)
	}
}

func TestDestroyWorkspaceLeavesUserRoot(t *testing.T) {
	zfs := newZfsFake(t)
	p := New(zfs, testConfig())
	ctx := context.Background()

	if _, err := p.ProvisionWorkspace(ctx, "123", "dev"); err != nil {
		t.Fatal(err)
	}
	if _, err := p.ProvisionWorkspace(ctx, "123", "other"); err != nil {
		t.Fatal(err)
	}

	if err := p.DestroyWorkspace(ctx, "123", "dev"); err != nil {
		t.Fatalf("DestroyWorkspace: %v", err)
	}

	if zfs.exists["tank/123/containers/dev"] || zfs.exists["tank/123/containers/dev/workspace"] {
		t.Error("container subtree survived destroy")
	}
	if !zfs.exists["tank/123"] {
		t.Error("user root was destroyed")
	}
	if !zfs.exists["tank/123/containers/other/workspace"] {
		t.Error("sibling container workspace was destroyed")
	}
	if n := len(zfs.callsMatching("destroy -r tank/123/containers/dev")); n != 1 {
		t.Errorf("%d recursive destroy calls on the container subtree, want 1", n)
	}
}

func TestEnsureMountedMountsWhenUnmounted(t *testing.T) {
	zfs := newZfsFake(t)
	zfs.addDataset("tank/123", false)
	p := New(zfs, testConfig())

	if err := p.EnsureMounted(context.Background(), "tank/123"); err != nil {
		t.Fatalf("EnsureMounted: %v", err)
	}
	if !zfs.mounted["tank/123"] {
		t.Error("dataset still unmounted")
	}

	zfs.calls = nil
	if err := p.EnsureMounted(context.Background(), "tank/123"); err != nil {
		t.Fatalf("EnsureMounted on mounted dataset: %v", err)
	}
	if n := len(zfs.callsMatching("zfs mount")); n != 0 {
		t.Errorf("mount issued for an already-mounted dataset")
	}
}

func TestUserStorageInfo(t *testing.T) {
	zfs := newZfsFake(t)
	zfs.addDataset("tank/123", true)
	zfs.getProps = "quota\t10737418240\nused\t536870912\navailable\t10200547328"
	p := New(zfs, testConfig())

	info, err := p.UserStorageInfo(context.Background(), "123")
	if err != nil {
		t.Fatalf("UserStorageInfo: %v", err)
	}
	if info.Quota != "10.0G" {
		t.Errorf("Quota = %q, want 10.0G", info.Quota)
	}
	if info.Used != "512.0M" {
		t.Errorf("Used = %q, want 512.0M", info.Used)
	}
	if info.Available != "9.5G" {
		t.Errorf("Available = %q, want 9.5G", info.Available)
	}
}

func TestHumanSize(t *testing.T) {
	cases := map[string]string{
		"none":        "none",
		"0":           "0",
		"-":           "-",
		"":            "0",
		"512":         "512B",
		"1024":        "1.0K",
		"10737418240": "10.0G",
		"garbage":     "garbage",
	}
	for in, want := range cases {
		if got := HumanSize(in); got != want {
			t.Errorf("HumanSize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsSentinel(t *testing.T) {
	for _, v := range []string{"", "none", "0", "-"} {
		if !IsSentinel(v) {
			t.Errorf("IsSentinel(%q) = false, want true", v)
		}
	}
	for _, v := range []string{"512B", "10.0G", "garbage"} {
		if IsSentinel(v) {
			t.Errorf("IsSentinel(%q) = true, want false", v)
		}
	}
}
