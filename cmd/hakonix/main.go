// hakonix is the host-side CLI for the container appliance: it creates,
// destroys, lists, and inspects per-owner NixOS containers with ZFS-backed
// workspaces.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hakonix/hakonix/common/version"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "hakonix",
		Short:         "container lifecycle orchestrator for per-owner NixOS containers",
		Long:          "hakonix manages NixOS containers with quota'd, ZFS-backed persistent workspaces on a single multi-tenant host.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config file (HAKONIX_* env vars override it)")

	rootCmd.AddCommand(newCreateCommand(&configPath))
	rootCmd.AddCommand(newDestroyCommand(&configPath))
	rootCmd.AddCommand(newStartCommand(&configPath))
	rootCmd.AddCommand(newStopCommand(&configPath))
	rootCmd.AddCommand(newListCommand(&configPath))
	rootCmd.AddCommand(newOwnerCommand(&configPath))
	rootCmd.AddCommand(newStorageCommand(&configPath))
	rootCmd.AddCommand(newModulesCommand(&configPath))
	rootCmd.AddCommand(newInfoCommand(&configPath))
	rootCmd.AddCommand(newAuditCommand(&configPath))

	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version.Version, version.GitCommit, version.BuildTime)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
