package cli

import (
	"github.com/spf13/cobra"
)

// newConvertCmd is a placeholder for importing build descriptions from
// other build systems into bbuild's YAML format. No target format is named
// anywhere in the system this CLI implements, so there is nothing concrete
// to convert from yet; the subcommand exists so `bbuild convert --help`
// documents the gap instead of failing with "unknown command".
func newConvertCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <source>",
		Short: "Convert a foreign build description into bbuild's format (not yet implemented).",
		RunE: func(cmd *cobra.Command, args []string) error {
			return invalidInvocationf("convert: not yet implemented")
		},
	}
}
