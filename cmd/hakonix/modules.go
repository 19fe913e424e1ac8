package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newModulesCommand(configPath *string) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "modules",
		Short: "List the capability modules the host flake offers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if a.cfg.FlakePath == "" {
				return fmt.Errorf("flake_path is not configured; set it in the config file or HAKONIX_FLAKE_PATH")
			}
			if refresh {
				a.catalog.Invalidate()
			}

			available, err := a.catalog.Available(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range available {
				fmt.Println(m)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "re-evaluate the flake instead of using the cached list")

	return cmd
}
