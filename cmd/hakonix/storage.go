package main

import (
	"github.com/spf13/cobra"
)

func newStorageCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "storage <owner>",
		Short: "Show quota, used, and available space for an owner's datasets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			info, err := a.storage.UserStorageInfo(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printTable(
				[]string{"Owner", "Quota", "Used", "Available"},
				[][]string{{info.Owner, info.Quota, info.Used, info.Available}},
			)
			return nil
		},
	}
}
