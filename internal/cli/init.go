package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/brilliant-build/bbuild/internal/berrors"
)

const scaffoldDescription = `# tasks: a list of build rules, each a sequence of commands to run in
# workdir, declaring the inputs it reads and the outputs it produces.
tasks:
  - display: "example"
    workdir: "."
    commands:
      - ["echo", "hello"]
    inputs: []
    outputs: []
`

func newInitCmd(flags *globalFlags) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a new build description file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			painter := NewPainter(ColorMode(flags.color), os.Stdout)

			if !force {
				if _, err := os.Stat(flags.file); err == nil {
					return invalidInvocationf("%s already exists (use --force to overwrite)", flags.file)
				}
			}
			if err := os.WriteFile(flags.file, []byte(scaffoldDescription), 0o644); err != nil {
				return berrors.WrapIO(err, "write description %q", flags.file)
			}
			abs, err := absDescriptionPath(flags)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, painter.Successf("init: wrote %s", abs))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing description file")
	return cmd
}
