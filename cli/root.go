// Package cli wires the chrono command line.
package cli

import (
	"github.com/spf13/cobra"
)

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chrono",
		Short:         "Active-timer and time-entry engine",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.AddCommand(serverCmd())
	return cmd
}
