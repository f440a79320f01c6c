package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/brilliant-build/bbuild/internal/berrors"
	"github.com/brilliant-build/bbuild/internal/model"
	"github.com/brilliant-build/bbuild/internal/store"
)

// newGCCmd exposes Tx.Islands as `gc`: every resource or task vertex with no
// incident edges at all, excluding the reserved description resource
// (id=1), gets removed from the store. Experimental: a vertex can fall out
// of the graph only between a description edit and the next sync, so
// running this between those two points is the only time it is safe.
func newGCCmd(flags *globalFlags) *cobra.Command {
	var dryrun bool

	cmd := &cobra.Command{
		Use:    "gc",
		Short:  "Remove resource/task vertices with no incident edges (experimental).",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			painter := NewPainter(ColorMode(flags.color), os.Stdout)

			s, err := store.Open(store.Options{Dir: statePath(flags.file), SyncWrites: true})
			if err != nil {
				return berrors.WrapIO(err, "open state store")
			}
			defer s.Close()

			var islands []model.VertexRef
			err = s.View(func(tx *store.Tx) error {
				all, err := tx.Islands()
				if err != nil {
					return err
				}
				for _, ref := range all {
					if ref.Color == model.Resource && model.IsDescription(ref.ID) {
						continue
					}
					islands = append(islands, ref)
				}
				return nil
			})
			if err != nil {
				return berrors.WrapIO(err, "enumerate islands")
			}

			if dryrun {
				for _, ref := range islands {
					fmt.Fprintln(os.Stdout, painter.Dimf("gc: would remove %s", ref))
				}
				fmt.Fprintln(os.Stdout, painter.Dimf("gc: %d island(s)", len(islands)))
				return nil
			}

			err = s.Update(func(tx *store.Tx) error {
				for _, ref := range islands {
					if ref.Color == model.Resource {
						if err := tx.RemoveResource(ref.ID); err != nil {
							return err
						}
					} else if err := tx.RemoveTask(ref.ID); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return berrors.WrapIO(err, "remove islands")
			}
			fmt.Fprintln(os.Stdout, painter.Successf("gc: removed %d island(s)", len(islands)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryrun, "dryrun", false, "report what would be removed without removing it")
	return cmd
}
