// Package lifecycle drives container create, destroy, start, and stop through
// the external nixos-container and extra-container tools.
//
// Each operation is a one-shot state machine producing a Result; nothing here
// holds long-running per-container state. Concurrent calls for the same
// container name are serialized with a name-keyed mutex; distinct names run
// fully concurrently.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/hakonix/hakonix/common/cmdexec"
	"github.com/hakonix/hakonix/common/redact"
	"github.com/hakonix/hakonix/common/trace"
	"github.com/hakonix/hakonix/internal/hakonix/config"
	"github.com/hakonix/hakonix/internal/hakonix/nixgen"
	"github.com/hakonix/hakonix/internal/hakonix/observability"
	"github.com/hakonix/hakonix/internal/hakonix/storage"
)

// Result is the outcome of one lifecycle operation. Err carries the failure
// detail (raw tool stderr or stdout, specific enough to act on); Message is
// the human-readable summary in both branches.
type Result struct {
	Success bool
	Name    string
	Message string
	Err     error
}

// Operation is one audit record of a lifecycle call.
type Operation struct {
	TraceID   string
	Owner     string
	Action    string
	Container string
	Success   bool
	Detail    string
}

// Auditor persists lifecycle operation records. Recording is best-effort:
// the orchestrator logs and continues when it fails.
type Auditor interface {
	RecordOperation(ctx context.Context, op Operation) error
}

// Orchestrator runs container lifecycle operations.
type Orchestrator struct {
	runner  cmdexec.Runner
	storage *storage.Provisioner
	cfg     *config.Config
	audit   Auditor // optional

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns an Orchestrator. audit may be nil to disable the operations log.
func New(runner cmdexec.Runner, provisioner *storage.Provisioner, cfg *config.Config, audit Auditor) *Orchestrator {
	return &Orchestrator{
		runner:  runner,
		storage: provisioner,
		cfg:     cfg,
		audit:   audit,
		locks:   make(map[string]*sync.Mutex),
	}
}

// lock serializes lifecycle calls for one container name. The returned func
// releases the name's mutex.
func (o *Orchestrator) lock(name string) func() {
	o.mu.Lock()
	m, ok := o.locks[name]
	if !ok {
		m = &sync.Mutex{}
		o.locks[name] = m
	}
	o.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// ensureTrace guarantees ctx carries a trace ID for the duration of one call.
func ensureTrace(ctx context.Context) context.Context {
	if trace.FromContext(ctx) != "" {
		return ctx
	}
	return trace.WithTraceID(ctx, trace.GenerateID())
}

// Create provisions storage, generates the container expression, and runs
// `extra-container create --start`. On build failure the freshly provisioned
// workspace is rolled back; once the install phase has completed the
// workspace is preserved even when the start step fails.
func (o *Orchestrator) Create(ctx context.Context, spec nixgen.ContainerSpec) Result {
	ctx = ensureTrace(ctx)
	log := observability.WithTrace(ctx)

	if err := spec.Validate(); err != nil {
		return o.finish(ctx, spec.Owner, "create", Result{Name: spec.Name, Message: "invalid container spec", Err: err})
	}

	unlock := o.lock(spec.Name)
	defer unlock()

	mountPath, err := o.storage.ProvisionWorkspace(ctx, spec.Owner, spec.Name)
	if err != nil {
		return o.finish(ctx, spec.Owner, "create", Result{
			Name:    spec.Name,
			Message: "storage provisioning failed",
			Err:     err,
		})
	}
	spec.WorkspacePath = mountPath

	expr := nixgen.Generate(spec, o.cfg.FlakePath)
	log.Debug("generated container expression",
		"container", spec.Name,
		"expression", redact.String(expr, spec.EnrollKey))

	file, err := o.writeExpression(expr)
	if err != nil {
		return o.finish(ctx, spec.Owner, "create", Result{Name: spec.Name, Message: "write container expression failed", Err: err})
	}
	defer os.Remove(file)

	res, err := o.runner.Run(ctx, o.cfg.BuildTimeout, "extra-container", "create", "--start", file)
	if err != nil {
		return o.finish(ctx, spec.Owner, "create", Result{
			Name:    spec.Name,
			Message: "container build tool failed to run",
			Err:     fmt.Errorf("extra-container create: %w", err),
		})
	}

	detail := redact.String(res.Detail(), spec.EnrollKey)

	switch classify(res) {
	case outcomeSuccess:
		log.Info("container created", "container", spec.Name, "owner", spec.Owner, "workspace", mountPath)
		return o.finish(ctx, spec.Owner, "create", Result{
			Success: true,
			Name:    spec.Name,
			Message: fmt.Sprintf("container %s created and started", spec.Name),
		})

	case outcomePartialInstall:
		log.Error("container installed but failed to start", "container", spec.Name, "owner", spec.Owner)
		return o.finish(ctx, spec.Owner, "create", Result{
			Name:    spec.Name,
			Message: fmt.Sprintf("container %s installed but failed to start; workspace preserved, retry with start", spec.Name),
			Err:     errors.New(detail),
		})

	case outcomeUnknown:
		log.Warn("build output matched no known failure shape, treating as build failure",
			"container", spec.Name, "stdout_bytes", len(res.Stdout))
		fallthrough

	default: // outcomeBuildFailure
		if derr := o.storage.DestroyWorkspace(ctx, spec.Owner, spec.Name); derr != nil {
			log.Warn("workspace rollback after build failure did not complete",
				"container", spec.Name, "owner", spec.Owner, "error", derr)
		}
		return o.finish(ctx, spec.Owner, "create", Result{
			Name:    spec.Name,
			Message: fmt.Sprintf("container %s build failed", spec.Name),
			Err:     errors.New(detail),
		})
	}
}

// Destroy tears down a container and, when owner is supplied, its workspace.
// Network de-enrollment inside the container is best-effort; teardown failure
// aborts before any storage cleanup. Workspace cleanup failure after a
// confirmed teardown keeps the overall result successful but is noted in the
// message and logged for operator follow-up.
func (o *Orchestrator) Destroy(ctx context.Context, name, owner string) Result {
	ctx = ensureTrace(ctx)
	log := observability.WithTrace(ctx)

	if err := nixgen.ValidateName(name); err != nil {
		return o.finish(ctx, owner, "destroy", Result{Name: name, Message: "invalid container name", Err: err})
	}

	unlock := o.lock(name)
	defer unlock()

	// De-enroll from the network identity service before the container
	// disappears. Not running, not enrolled, missing tool, timeout: all
	// swallowed. This step must never block the destroy.
	if res, err := o.runner.Run(ctx, o.cfg.CommandTimeout,
		"nixos-container", "run", name, "--", "tailscale", "logout"); err != nil {
		log.Debug("network de-enrollment skipped", "container", name, "error", err)
	} else if !res.Success() {
		log.Debug("network de-enrollment skipped", "container", name, "detail", res.Detail())
	}

	res, err := o.runner.Run(ctx, o.cfg.CommandTimeout, "extra-container", "destroy", name)
	if err != nil {
		return o.finish(ctx, owner, "destroy", Result{
			Name:    name,
			Message: "container destroy tool failed to run",
			Err:     fmt.Errorf("extra-container destroy: %w", err),
		})
	}
	if !res.Success() {
		return o.finish(ctx, owner, "destroy", Result{
			Name:    name,
			Message: fmt.Sprintf("container %s could not be destroyed", name),
			Err:     errors.New(res.Detail()),
		})
	}

	message := fmt.Sprintf("container %s destroyed", name)
	if owner != "" {
		if derr := o.storage.DestroyWorkspace(ctx, owner, name); derr != nil {
			log.Error("workspace cleanup after destroy failed",
				"container", name, "owner", owner, "error", derr)
			message += "; workspace cleanup failed and needs operator attention"
		}
	}

	log.Info("container destroyed", "container", name, "owner", owner)
	return o.finish(ctx, owner, "destroy", Result{Success: true, Name: name, Message: message})
}

// Start starts a stopped container.
func (o *Orchestrator) Start(ctx context.Context, name string) Result {
	return o.toggle(ctx, name, "start")
}

// Stop stops a running container.
func (o *Orchestrator) Stop(ctx context.Context, name string) Result {
	return o.toggle(ctx, name, "stop")
}

// toggle is the shared pass-through for start/stop. Any non-zero exit,
// including "already running", is a failure with the tool's detail.
func (o *Orchestrator) toggle(ctx context.Context, name, verb string) Result {
	ctx = ensureTrace(ctx)

	if err := nixgen.ValidateName(name); err != nil {
		return o.finish(ctx, "", verb, Result{Name: name, Message: "invalid container name", Err: err})
	}

	unlock := o.lock(name)
	defer unlock()

	res, err := o.runner.Run(ctx, o.cfg.CommandTimeout, "nixos-container", verb, name)
	if err != nil {
		return o.finish(ctx, "", verb, Result{
			Name:    name,
			Message: fmt.Sprintf("container %s tool failed to run", verb),
			Err:     fmt.Errorf("nixos-container %s: %w", verb, err),
		})
	}
	if !res.Success() {
		return o.finish(ctx, "", verb, Result{
			Name:    name,
			Message: fmt.Sprintf("could not %s container %s", verb, name),
			Err:     errors.New(res.Detail()),
		})
	}

	past := "started"
	if verb == "stop" {
		past = "stopped"
	}
	observability.WithTrace(ctx).Info("container state changed", "container", name, "action", verb)
	return o.finish(ctx, "", verb, Result{
		Success: true,
		Name:    name,
		Message: fmt.Sprintf("container %s %s", name, past),
	})
}

// writeExpression persists the generated expression to a uniquely named temp
// file readable only by the current user (it may carry an enrollment key).
func (o *Orchestrator) writeExpression(expr string) (string, error) {
	path := filepath.Join(os.TempDir(), "hakonix-"+uuid.NewString()+".nix")
	if err := os.WriteFile(path, []byte(expr), 0o600); err != nil {
		return "", fmt.Errorf("write container expression: %w", err)
	}
	return path, nil
}

// finish records the operation in the audit log (best-effort) and returns r.
func (o *Orchestrator) finish(ctx context.Context, owner, action string, r Result) Result {
	if o.audit == nil {
		return r
	}
	op := Operation{
		TraceID:   trace.FromContext(ctx),
		Owner:     owner,
		Action:    action,
		Container: r.Name,
		Success:   r.Success,
		Detail:    r.Message,
	}
	if r.Err != nil {
		op.Detail = r.Message + ": " + r.Err.Error()
	}
	if err := o.audit.RecordOperation(ctx, op); err != nil {
		observability.WithTrace(ctx).Warn("audit record failed", "action", action, "error", err)
	}
	return r
}
