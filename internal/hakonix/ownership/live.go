package ownership

import (
	"context"
	"strings"
	"time"

	"github.com/hakonix/hakonix/common/cmdexec"
)

// Live queries a running container's environment for HAKONIX_OWNER. The
// authoritative strategy: the value comes from the container that is actually
// running, not from whatever artifact happens to sit on disk.
type Live struct {
	runner  cmdexec.Runner
	timeout time.Duration
}

// NewLive returns the live-query strategy. timeout bounds each query.
func NewLive(runner cmdexec.Runner, timeout time.Duration) *Live {
	return &Live{runner: runner, timeout: timeout}
}

func (l *Live) Name() string { return "live" }

// Owner runs `echo $HAKONIX_OWNER` inside the container. A stopped container
// or an empty variable yields "", nil; only transport-level failures
// (timeout, missing tool) are errors.
func (l *Live) Owner(ctx context.Context, container string) (string, error) {
	res, err := l.runner.Run(ctx, l.timeout,
		"nixos-container", "run", container, "--", "sh", "-c", "echo $HAKONIX_OWNER")
	if err != nil {
		return "", err
	}
	if !res.Success() {
		return "", nil
	}
	return strings.TrimSpace(res.Stdout), nil
}
