package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is stamped at build time via -ldflags; defaults to "dev".
var Version = "dev"

func newVersionCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the bbuild version.",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
			return nil
		},
	}
}
