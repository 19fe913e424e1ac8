package ownership

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hakonix/hakonix/common/cmdexec"
)

type stubRunner struct {
	res   cmdexec.Result
	err   error
	calls int
}

func (s *stubRunner) Run(_ context.Context, _ time.Duration, _ string, _ ...string) (cmdexec.Result, error) {
	s.calls++
	return s.res, s.err
}

type stubStrategy struct {
	owner string
	err   error
	calls int
}

func (s *stubStrategy) Name() string { return "stub" }

func (s *stubStrategy) Owner(context.Context, string) (string, error) {
	s.calls++
	return s.owner, s.err
}

// writeArtifact lays out a conf file and a fake system closure under dir,
// returning the conf directory.
func writeArtifact(t *testing.T, name, owner string) string {
	t.Helper()
	dir := t.TempDir()

	system := filepath.Join(dir, "store", name+"-system")
	if err := os.MkdirAll(filepath.Join(system, "etc"), 0o755); err != nil {
		t.Fatal(err)
	}
	env := "export PATH=\"/run/current-system/sw/bin\"\n"
	if owner != "" {
		env += "export HAKONIX_OWNER=\"" + owner + "\"\n"
	}
	if err := os.WriteFile(filepath.Join(system, "etc", "set-environment"), []byte(env), 0o644); err != nil {
		t.Fatal(err)
	}

	confDir := filepath.Join(dir, "conf")
	if err := os.MkdirAll(confDir, 0o755); err != nil {
		t.Fatal(err)
	}
	conf := "HOST_ADDRESS=10.233.1.1\nSYSTEM_PATH=" + system + "\n"
	if err := os.WriteFile(filepath.Join(confDir, name+".conf"), []byte(conf), 0o644); err != nil {
		t.Fatal(err)
	}
	return confDir
}

func TestLiveOwner(t *testing.T) {
	runner := &stubRunner{res: cmdexec.Result{Stdout: "chat_123"}}
	owner, err := NewLive(runner, time.Second).Owner(context.Background(), "dev")
	if err != nil {
		t.Fatal(err)
	}
	if owner != "chat_123" {
		t.Errorf("owner = %q, want chat_123", owner)
	}
}

func TestLiveOwnerStoppedContainer(t *testing.T) {
	runner := &stubRunner{res: cmdexec.Result{Stderr: "container \"dev\" is not running", ExitCode: 1}}
	owner, err := NewLive(runner, time.Second).Owner(context.Background(), "dev")
	if err != nil || owner != "" {
		t.Errorf("owner = %q, err = %v; want empty, nil", owner, err)
	}
}

func TestSystemPathOwner(t *testing.T) {
	confDir := writeArtifact(t, "dev", "chat_123")
	owner, err := NewSystemPath(confDir).Owner(context.Background(), "dev")
	if err != nil {
		t.Fatal(err)
	}
	if owner != "chat_123" {
		t.Errorf("owner = %q, want chat_123", owner)
	}
}

func TestSystemPathMissingConf(t *testing.T) {
	owner, err := NewSystemPath(t.TempDir()).Owner(context.Background(), "ghost")
	if err != nil || owner != "" {
		t.Errorf("owner = %q, err = %v; want empty, nil", owner, err)
	}
}

func TestSystemPathNoOwnerVariable(t *testing.T) {
	confDir := writeArtifact(t, "dev", "")
	owner, err := NewSystemPath(confDir).Owner(context.Background(), "dev")
	if err != nil || owner != "" {
		t.Errorf("owner = %q, err = %v; want empty, nil", owner, err)
	}
}

func TestSystemPathIgnoresCommentedOwnerLine(t *testing.T) {
	confDir := writeArtifact(t, "dev", "")

	conf, err := os.ReadFile(filepath.Join(confDir, "dev.conf"))
	if err != nil {
		t.Fatal(err)
	}
	m := systemPathRE.FindSubmatch(conf)
	if m == nil {
		t.Fatal("fixture conf has no SYSTEM_PATH line")
	}
	envPath := filepath.Join(string(m[1]), "etc", "set-environment")
	env := "# export HAKONIX_OWNER=\"stale_999\"\n  export HAKONIX_OWNER=\"indented_999\"\n"
	if err := os.WriteFile(envPath, []byte(env), 0o644); err != nil {
		t.Fatal(err)
	}

	owner, err := NewSystemPath(confDir).Owner(context.Background(), "dev")
	if err != nil || owner != "" {
		t.Errorf("owner = %q, err = %v; want empty, nil", owner, err)
	}
}

func TestResolverPrecedence(t *testing.T) {
	fallback := &stubStrategy{owner: "from-fallback"}
	r := NewResolver(&stubStrategy{owner: "from-live"}, fallback)

	if got := r.Owner(context.Background(), "dev"); got != "from-live" {
		t.Errorf("owner = %q, want from-live", got)
	}
	if fallback.calls != 0 {
		t.Error("fallback consulted despite live success")
	}
}

func TestResolverFallsThroughErrorsAndEmpties(t *testing.T) {
	r := NewResolver(
		&stubStrategy{err: errors.New("timeout")},
		&stubStrategy{owner: ""},
		&stubStrategy{owner: "chat_123"},
	)
	if got := r.Owner(context.Background(), "dev"); got != "chat_123" {
		t.Errorf("owner = %q, want chat_123", got)
	}
}

func TestResolverUnowned(t *testing.T) {
	r := NewResolver(&stubStrategy{}, &stubStrategy{})
	if got := r.Owner(context.Background(), "dev"); got != "" {
		t.Errorf("owner = %q, want empty", got)
	}
}
