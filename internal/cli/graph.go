package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/brilliant-build/bbuild/internal/berrors"
	"github.com/brilliant-build/bbuild/internal/graph"
	"github.com/brilliant-build/bbuild/internal/model"
	"github.com/brilliant-build/bbuild/internal/store"
)

func newGraphCmd(flags *globalFlags) *cobra.Command {
	var changes, cached, full bool
	var edgeFilter string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the dependency graph in DOT format.",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSyncedStore(flags)
			if err != nil {
				return err
			}
			defer s.Close()

			g, err := graph.Build(s)
			if err != nil {
				return berrors.WrapIO(err, "build graph snapshot")
			}

			if changes || cached {
				g, err = scopeToPending(s, g, changes)
				if err != nil {
					return err
				}
			}

			typeFilter, err := parseEdgeFilter(edgeFilter)
			if err != nil {
				return err
			}

			return g.Graphviz(os.Stdout, full, typeFilter)
		},
	}
	cmd.Flags().BoolVar(&changes, "changes", false, "render only the subgraph reachable from currently-pending vertices")
	cmd.Flags().BoolVar(&cached, "cached", false, "render only vertices that are NOT currently pending")
	cmd.Flags().BoolVar(&full, "full", false, "use full resource paths instead of base names")
	cmd.Flags().StringVar(&edgeFilter, "edges", "both", "edge types to render: explicit|implicit|both")
	return cmd
}

// parseEdgeFilter maps the --edges flag to a Graphviz edge-type filter, nil
// meaning "render every type".
func parseEdgeFilter(s string) (*model.EdgeType, error) {
	var t model.EdgeType
	switch s {
	case "", "both":
		return nil, nil
	case "explicit":
		t = model.Explicit
	case "implicit":
		t = model.Implicit
	default:
		return nil, invalidInvocationf("unknown --edges value %q (want explicit|implicit|both)", s)
	}
	return &t, nil
}

// scopeToPending narrows g to the --changes (reachable from pending
// vertices) or --cached (complement of pending vertices) view.
func scopeToPending(s *store.Store, g *graph.Graph, changes bool) (*graph.Graph, error) {
	var pendingR, pendingT []uint64
	err := s.View(func(tx *store.Tx) error {
		var err error
		if pendingR, err = tx.PendingResources(); err != nil {
			return err
		}
		pendingT, err = tx.PendingTasks()
		return err
	})
	if err != nil {
		return nil, berrors.WrapIO(err, "read pending set")
	}
	if changes {
		return g.Subgraph(pendingR, pendingT), nil
	}
	return g.Exclude(pendingR, pendingT), nil
}
