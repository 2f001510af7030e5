package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "fern",
		Short:         "Vendor master data survivorship and merge resolution",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newIngestCommand(),
		newOwnershipCommand(),
	)
	return cmd
}
