package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

func newDestroyCommand(configPath *string) *cobra.Command {
	var owner string
	var keepStorage bool

	cmd := &cobra.Command{
		Use:   "destroy <name>",
		Short: "Destroy a container and its workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			name := args[0]

			// Resolve before teardown: the live strategy only answers
			// while the container is still up.
			resolved := ""
			if !keepStorage {
				resolved = a.resolver.Owner(cmd.Context(), name)
			}
			target, mismatch := destroyOwner(owner, resolved, keepStorage)
			if mismatch {
				slog.Warn("supplied owner does not match the container's resolved owner, cleaning up the resolved owner's workspace",
					"container", name, "supplied", owner, "resolved", resolved)
			}

			return report(a.orch.Destroy(cmd.Context(), name, target))
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner of the container's workspace (resolved automatically when omitted)")
	cmd.Flags().BoolVar(&keepStorage, "keep-storage", false, "tear down the container but keep its workspace dataset")

	return cmd
}

// destroyOwner decides which owner the workspace teardown targets. The
// resolved owner wins over a supplied flag that disagrees with it, so a
// mistyped --owner cannot point cleanup at the wrong workspace.
func destroyOwner(supplied, resolved string, keepStorage bool) (owner string, mismatch bool) {
	if keepStorage {
		return "", false
	}
	if supplied == "" {
		return resolved, false
	}
	if resolved != "" && resolved != supplied {
		return resolved, true
	}
	return supplied, false
}
