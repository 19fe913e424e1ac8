// Package ownership resolves which principal a container belongs to.
//
// The owner is baked into each container at build time as the HAKONIX_OWNER
// environment variable. Two discovery strategies read it back: a live query
// inside a running container, and a static read of the container's build
// artifact on the host for stopped containers. The Resolver tries them in a
// fixed order; a future discovery mechanism (a structured manifest, say)
// slots in as another Strategy without touching callers.
package ownership

import (
	"context"

	"github.com/hakonix/hakonix/internal/hakonix/observability"
)

// Strategy is one way of discovering a container's owner. An empty owner
// with a nil error means this strategy has no answer (not an error: the
// container may simply be unreachable this way).
type Strategy interface {
	// Name identifies the strategy in logs.
	Name() string
	// Owner returns the container's owner, or "" when this strategy
	// cannot determine it.
	Owner(ctx context.Context, container string) (string, error)
}

// Resolver tries strategies in order and returns the first non-empty owner.
type Resolver struct {
	strategies []Strategy
}

// NewResolver returns a Resolver trying strategies in the given order.
func NewResolver(strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies}
}

// Owner resolves the container's owner, or "" when no strategy yields one.
// An unowned result means callers cannot authorize operations against the
// container. Strategy errors are logged and treated as no-answer.
func (r *Resolver) Owner(ctx context.Context, container string) string {
	log := observability.WithTrace(ctx)
	for _, s := range r.strategies {
		owner, err := s.Owner(ctx, container)
		if err != nil {
			log.Debug("ownership strategy failed", "strategy", s.Name(), "container", container, "error", err)
			continue
		}
		if owner != "" {
			return owner
		}
	}
	return ""
}
