package lifecycle

import (
	"strings"

	"github.com/hakonix/hakonix/common/cmdexec"
)

// installMarker is the line extra-container prints once the declarative
// install phase has completed, before it attempts to start the service.
// Its presence in a failed run means the container config is durable on the
// host and only the start step failed.
const installMarker = "Installing containers:"

// outcome is the classified result of an `extra-container create --start`
// invocation. Control flow in the orchestrator switches on this tag and
// never inspects the raw tool output directly.
type outcome int

const (
	// outcomeSuccess: exit 0.
	outcomeSuccess outcome = iota
	// outcomeBuildFailure: the build never reached the install phase. The
	// freshly provisioned workspace was never consumed and is safe to
	// roll back.
	outcomeBuildFailure
	// outcomePartialInstall: the install phase completed but a later step
	// (start) failed. Container config and workspace are durable and must
	// be preserved; a subsequent start can succeed without reprovisioning.
	outcomePartialInstall
	// outcomeUnknown: non-zero exit with stdout that matches neither the
	// install marker nor the empty build-failure shape. The output format
	// may have drifted; callers should surface a mismatch signal and then
	// treat it like a build failure.
	outcomeUnknown
)

// classify maps the build tool's exit code and stdout onto an outcome. The
// stdout matching is a heuristic over human-readable CLI output; this
// function is its only home.
func classify(res cmdexec.Result) outcome {
	if res.Success() {
		return outcomeSuccess
	}
	if strings.Contains(res.Stdout, installMarker) {
		return outcomePartialInstall
	}
	if res.Stdout == "" {
		return outcomeBuildFailure
	}
	return outcomeUnknown
}
