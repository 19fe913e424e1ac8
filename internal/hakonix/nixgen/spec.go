// Package nixgen translates container requests into Nix expressions for
// extra-container.
//
// Hakonix never writes Nix syntax anywhere else. A ContainerSpec is the
// immutable request; Generate is the single place where it becomes an
// expression that mkContainer.nix can evaluate.
package nixgen

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// nameRE accepts lowercase alphanumerics separated by single hyphens, with
// no leading or trailing hyphen.
var nameRE = regexp.MustCompile(`^[a-z0-9](?:-?[a-z0-9])*$`)

// MaxNameLen is the longest accepted container name. Containers get a
// private network interface named ve-<name>, and Linux caps interface names
// at 15 characters; NixOS enforces 11 for the container name itself.
const MaxNameLen = 11

//go:embed container-spec.schema.json
var schemaJSON string

// specSchema mirrors the argument contract of nix/mkContainer.nix. It is the
// structural authority for specs; ValidateName exists separately for tools
// that take a bare name argument (destroy, start, stop).
var specSchema = jsonschema.MustCompileString("container-spec.schema.json", schemaJSON)

// ContainerSpec is an immutable container request. It serializes to the JSON
// shape consumed by nix/mkContainer.nix.
type ContainerSpec struct {
	// Name is the container name, unique per host (enforced by the build
	// tool, not by hakonix).
	Name string `json:"name"`

	// Owner is the opaque principal ID the container belongs to. Baked
	// into the container's environment at build time as HAKONIX_OWNER.
	Owner string `json:"owner"`

	// Modules are the capability modules composed into the container.
	Modules []string `json:"modules"`

	// WorkspacePath is the host-side path bind-mounted into the container
	// at /workspace. Set by the orchestrator after storage provisioning;
	// empty means no persistent workspace.
	WorkspacePath string `json:"workspace,omitempty"`

	// EnrollKey is the network enrollment auth key injected into the
	// container for first-boot enrollment. Secret; never logged.
	EnrollKey string `json:"enrollKey,omitempty"`
}

// ValidateName reports why name is not a valid container name, or nil.
// The same rules apply inside ContainerSpec.Validate.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("container name must not be empty")
	}
	if !nameRE.MatchString(name) {
		return fmt.Errorf("container name %q is invalid: must be lowercase alphanumeric with single hyphens, no leading/trailing hyphen (e.g. \"my-dev\")", name)
	}
	if len(name) > MaxNameLen {
		return fmt.Errorf("container name %q is too long (%d chars, max %d): the network interface name ve-<name> must fit the 15-character kernel limit", name, len(name), MaxNameLen)
	}
	return nil
}

// Validate checks the spec against the mkContainer.nix contract. Name errors
// are reported with the friendly ValidateName messages; the remaining
// structure is checked against the embedded JSON Schema.
func (s *ContainerSpec) Validate() error {
	if err := ValidateName(s.Name); err != nil {
		return err
	}
	if s.Owner == "" {
		return fmt.Errorf("owner must not be empty")
	}

	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode spec: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode spec: %w", err)
	}
	if err := specSchema.Validate(doc); err != nil {
		return fmt.Errorf("container spec for %q is invalid: %w", s.Name, err)
	}
	return nil
}
