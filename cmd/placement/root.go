package main

import "github.com/spf13/cobra"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "placement",
		Short:        "Internship placement maintenance tools",
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newMigrateCmd(),
		newSeedCmd(),
		newPeriodCmd(),
		newQueueCmd(),
	)
	return cmd
}
