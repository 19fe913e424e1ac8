package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/hakonix/hakonix/internal/hakonix/workload"
)

func newListCommand(configPath *string) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List containers, running and stopped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			var workloads []workload.Workload
			if owner != "" {
				workloads, err = a.lister.ListOwnedBy(cmd.Context(), owner)
			} else {
				workloads, err = a.lister.List(cmd.Context())
			}
			if err != nil {
				return err
			}

			data := make([][]string, 0, len(workloads))
			for _, w := range workloads {
				data = append(data, []string{
					w.Name, w.State, w.Class, w.Service, strings.Join(w.Addresses, ", "),
				})
			}
			printTable([]string{"Name", "State", "Class", "Service", "Addresses"}, data)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "only show containers belonging to this principal")

	return cmd
}
