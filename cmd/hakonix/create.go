package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hakonix/hakonix/internal/hakonix/nixgen"
)

func newCreateCommand(configPath *string) *cobra.Command {
	var owner string
	var moduleList []string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create and start a container with a persistent workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if a.cfg.FlakePath == "" {
				return fmt.Errorf("flake_path is not configured; set it in the config file or HAKONIX_FLAKE_PATH")
			}

			available, err := a.catalog.Available(cmd.Context())
			if err != nil {
				return fmt.Errorf("discover available modules: %w", err)
			}
			known := make(map[string]bool, len(available))
			for _, m := range available {
				known[m] = true
			}
			for _, m := range moduleList {
				if !known[m] {
					return fmt.Errorf("unknown module %q (available: %s)", m, strings.Join(available, ", "))
				}
			}

			spec := nixgen.ContainerSpec{
				Name:      args[0],
				Owner:     owner,
				Modules:   moduleList,
				EnrollKey: a.cfg.EnrollKey,
			}
			return report(a.orch.Create(cmd.Context(), spec))
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "principal ID the container belongs to (required)")
	cmd.Flags().StringSliceVar(&moduleList, "module", nil, "capability module to install (repeatable)")
	cmd.MarkFlagRequired("owner")

	return cmd
}
