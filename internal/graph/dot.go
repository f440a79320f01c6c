package graph

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/brilliant-build/bbuild/internal/model"
)

// Graphviz renders the graph in DOT format: resources as boxes, tasks as
// ellipses, edges styled by origin (solid=explicit, dashed=implicit,
// bold=both), and any cycle reported by Cycles() grouped into its own
// labeled cluster. When fullNames is false, resource labels are shortened
// to their base name. edgeFilter restricts rendered edges to a single type;
// pass nil to render every edge regardless of origin.
func (g *Graph) Graphviz(w io.Writer, fullNames bool, edgeFilter *model.EdgeType) error {
	label := func(ref model.VertexRef) string {
		name := g.vertexLabel(ref)
		if ref.Color == model.Resource && !fullNames {
			name = filepath.Base(name)
		}
		return name
	}
	nodeID := func(ref model.VertexRef) string {
		return fmt.Sprintf("%s_%d", ref.Color, ref.ID)
	}

	if _, err := fmt.Fprintln(w, "digraph bbuild {"); err != nil {
		return err
	}
	defer fmt.Fprintln(w, "}")

	for _, id := range g.resourceIDs {
		ref := model.VertexRef{Color: model.Resource, ID: id}
		if _, err := fmt.Fprintf(w, "  %s [shape=box label=%q];\n", nodeID(ref), label(ref)); err != nil {
			return err
		}
	}
	for _, id := range g.taskIDs {
		ref := model.VertexRef{Color: model.Task, ID: id}
		if _, err := fmt.Fprintf(w, "  %s [shape=ellipse label=%q];\n", nodeID(ref), label(ref)); err != nil {
			return err
		}
	}

	for _, e := range g.Edges(edgeFilter) {
		style := "solid"
		switch e.Type {
		case model.Implicit:
			style = "dashed"
		case model.Both:
			style = "bold"
		}
		if _, err := fmt.Fprintf(w, "  %s -> %s [style=%s];\n", nodeID(e.From), nodeID(e.To), style); err != nil {
			return err
		}
	}

	for i, scc := range g.Cycles() {
		if _, err := fmt.Fprintf(w, "  subgraph cluster_cycle_%d {\n    label=\"cycle %d\";\n    color=red;\n", i, i); err != nil {
			return err
		}
		for _, ref := range scc {
			if _, err := fmt.Fprintf(w, "    %s;\n", nodeID(ref)); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w, "  }"); err != nil {
			return err
		}
	}

	return nil
}
