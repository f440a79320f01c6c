package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/brilliant-build/bbuild/internal/berrors"
	"github.com/brilliant-build/bbuild/internal/graph"
	"github.com/brilliant-build/bbuild/internal/model"
)

func newCleanCmd(flags *globalFlags) *cobra.Command {
	var purge bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete every task's declared outputs.",
		RunE: func(cmd *cobra.Command, args []string) error {
			painter := NewPainter(ColorMode(flags.color), os.Stdout)

			s, err := openSyncedStore(flags)
			if err != nil {
				return err
			}
			closed := false
			defer func() {
				if !closed {
					_ = s.Close()
				}
			}()

			g, err := graph.Build(s)
			if err != nil {
				return berrors.WrapIO(err, "build graph snapshot")
			}

			var removed int
			for _, id := range g.Vertices(model.Task) {
				ref := model.VertexRef{Color: model.Task, ID: id}
				for _, e := range g.Outgoing(ref) {
					if e.Type == model.Implicit {
						continue
					}
					r := g.Resource(e.To.ID)
					if r == nil {
						continue
					}
					if err := os.Remove(r.Path); err != nil && !os.IsNotExist(err) {
						return berrors.WrapIO(err, "remove output %q", r.Path)
					}
					removed++
				}
			}
			fmt.Fprintln(os.Stdout, painter.Dimf("clean: removed %d declared output(s)", removed))

			if purge {
				dir := statePath(flags.file)
				_ = s.Close()
				closed = true
				if err := os.RemoveAll(dir); err != nil {
					return berrors.WrapIO(err, "purge state store %q", dir)
				}
				fmt.Fprintln(os.Stdout, painter.Dimf("clean: purged state store %s", dir))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&purge, "purge", false, "also delete the state store, forcing a full resync on next build")
	return cmd
}
