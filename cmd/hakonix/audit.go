package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hakonix/hakonix/internal/hakonix/store"
)

func newAuditCommand(configPath *string) *cobra.Command {
	var limit int
	var container string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent lifecycle operations from the operations log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			if a.store == nil {
				return fmt.Errorf("auditing is disabled; set database_path in the config file or HAKONIX_DATABASE_PATH")
			}

			var records []*store.OperationRecord
			if container != "" {
				records, err = a.store.ContainerOperations(cmd.Context(), container)
			} else {
				records, err = a.store.RecentOperations(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			data := make([][]string, 0, len(records))
			for _, rec := range records {
				result := "ok"
				if !rec.Success {
					result = "failed"
				}
				data = append(data, []string{
					rec.Timestamp.Format(time.RFC3339),
					rec.Action, rec.Container, rec.Owner, result, rec.Detail,
				})
			}
			printTable([]string{"Time", "Action", "Container", "Owner", "Result", "Detail"}, data)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of records to show")
	cmd.Flags().StringVar(&container, "container", "", "show the full history of one container instead")

	return cmd
}
