package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newOwnerCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "owner <name>",
		Short: "Resolve which principal a container belongs to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			owner := a.resolver.Owner(cmd.Context(), args[0])
			if owner == "" {
				return fmt.Errorf("no owner found for container %s", args[0])
			}
			fmt.Println(owner)
			return nil
		},
	}
}
