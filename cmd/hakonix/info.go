package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInfoCommand(configPath *string) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "info <name>",
		Short: "Show deep metadata for one container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			info := a.inspector.Inspect(cmd.Context(), args[0], owner)
			fmt.Println(info.Summary())
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "principal ID asking; cross-owner queries are refused")

	return cmd
}
