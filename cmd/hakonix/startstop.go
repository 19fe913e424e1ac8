package main

import (
	"github.com/spf13/cobra"
)

func newStartCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start <name>",
		Short: "Start a stopped container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			return report(a.orch.Start(cmd.Context(), args[0]))
		},
	}
}

func newStopCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <name>",
		Short: "Stop a running container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()
			return report(a.orch.Stop(cmd.Context(), args[0]))
		},
	}
}
