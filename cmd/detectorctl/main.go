// Command detectorctl runs operator tasks against a detector deployment:
// schema migration, role changes, offline classification and archived
// document retrieval.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:          "detectorctl",
		Short:        "Operate the AI text detector backend",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("DETECTOR_CONFIG"), "path to config.json")

	root.AddCommand(
		newMigrateCmd(&configPath),
		newRoleCmd(&configPath, "promote", "Grant the admin role to the profile with the given email", "admin"),
		newRoleCmd(&configPath, "demote", "Reset the profile with the given email to the user role", "user"),
		newClassifyCmd(&configPath),
		newDocumentCmd(&configPath),
	)
	return root
}
