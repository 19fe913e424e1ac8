// Package modules discovers which capability modules the host's flake offers.
//
// Module names are never hardcoded: the flake exports lib.availableModules
// and the Catalog evaluates it on demand. The set only changes on deployment,
// so results are cached until the deployment boundary calls Invalidate.
package modules

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hakonix/hakonix/common/cmdexec"
)

// evalTimeout bounds one flake evaluation. The first eval after a cold boot
// fetches flake inputs from the network; 60s is too tight for that.
const evalTimeout = 120 * time.Second

// Catalog caches the available module list. Safe for concurrent use.
type Catalog struct {
	runner    cmdexec.Runner
	flakePath string

	mu        sync.Mutex
	cached    []string
	populated bool
}

// NewCatalog returns a Catalog evaluating the flake at flakePath.
func NewCatalog(runner cmdexec.Runner, flakePath string) *Catalog {
	return &Catalog{runner: runner, flakePath: flakePath}
}

// Available returns the sorted module names exported by the flake, cached
// after the first successful evaluation. Evaluation, parse, and shape errors
// are returned, never masked by an empty list.
func (c *Catalog) Available(ctx context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.populated {
		return c.cached, nil
	}

	// --no-update-lock-file: the flake lives in a read-only store path;
	// a lock update attempt would fail the whole eval.
	res, err := c.runner.Run(ctx, evalTimeout,
		"nix", "eval", c.flakePath+"#lib.availableModules", "--json", "--no-update-lock-file")
	if err != nil {
		return nil, fmt.Errorf("nix eval: %w", err)
	}
	if !res.Success() {
		return nil, fmt.Errorf("nix eval failed (exit %d): %s", res.ExitCode, res.Detail())
	}

	var names []string
	if err := json.Unmarshal([]byte(res.Stdout), &names); err != nil {
		return nil, fmt.Errorf("parse module list: %w", err)
	}
	sort.Strings(names)

	c.cached = names
	c.populated = true
	return names, nil
}

// Invalidate clears the cache. Called at the deployment boundary, after a
// rebuild may have changed the module set.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.populated = false
	c.mu.Unlock()
}
