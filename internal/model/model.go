// Package model defines the bipartite data model shared by store, graph,
// sync and executor: resources, tasks, edges, and the reserved description
// resource. See spec §3.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Color distinguishes the two vertex kinds of the bipartite graph.
type Color int

const (
	Resource Color = iota
	Task
)

func (c Color) String() string {
	if c == Resource {
		return "resource"
	}
	return "task"
}

// ResourceStatus is the externally observed state of a Resource.
type ResourceStatus int

const (
	StatusUnknown ResourceStatus = iota
	StatusFile
	StatusDirectory
	StatusMissing
)

func (s ResourceStatus) String() string {
	switch s {
	case StatusFile:
		return "file"
	case StatusDirectory:
		return "directory"
	case StatusMissing:
		return "missing"
	default:
		return "unknown"
	}
}

// DescriptionResourceID is the reserved, always-present resource id whose
// path is the description file and whose checksum fingerprints the parsed
// description (V1, §3).
const DescriptionResourceID uint64 = 1

// ResourceRecord is the persisted value of a Resource vertex.
type ResourceRecord struct {
	ID       uint64
	Path     string
	Status   ResourceStatus
	Checksum []byte
}

// EdgeType classifies the origin(s) of a dependency edge.
type EdgeType int

const (
	Explicit EdgeType = iota
	Implicit
	Both
)

func (t EdgeType) String() string {
	switch t {
	case Explicit:
		return "explicit"
	case Implicit:
		return "implicit"
	default:
		return "both"
	}
}

// Promote returns the edge type that results when a vertex pair already
// connected by existing is also observed with origin observed (§3: "an edge
// with both origins is stored with type=both"). Equal origins are a no-op;
// differing origins (explicit, then observed implicit, or vice versa)
// collapse to Both.
func Promote(existing, observed EdgeType) EdgeType {
	if existing == observed {
		return existing
	}
	return Both
}

// Demote returns the edge type that should remain after a Both edge loses
// one of its origins (the implicit side, when the executor no longer
// observes the access): if the surviving origin is Explicit the edge
// persists as Explicit; otherwise (the edge was Implicit-only under Both,
// which cannot happen per Promote, or the caller is demoting a non-Both
// edge) the edge has nothing left and should be removed — callers check
// the returned ok.
func Demote(current EdgeType, losing EdgeType) (remaining EdgeType, ok bool) {
	if current != Both {
		return current, false
	}
	if losing == Implicit {
		return Explicit, true
	}
	return Implicit, true
}

// IsDescription reports whether id is the reserved description resource.
func IsDescription(id uint64) bool { return id == DescriptionResourceID }

// TaskRecord is the persisted value of a Task vertex.
type TaskRecord struct {
	ID               uint64
	Commands         [][]string
	WorkingDirectory string
	Display          string
	LastExecuted     time.Time
}

// NaturalKey returns the task's uniqueness key per §3: (commands, workingDirectory).
func (t *TaskRecord) NaturalKey() TaskKey {
	return TaskKey{Commands: t.Commands, WorkingDirectory: t.WorkingDirectory}
}

// TaskKey is the natural (content) key used to find an existing Task vertex.
type TaskKey struct {
	Commands         [][]string
	WorkingDirectory string
}

// String renders a TaskKey deterministically for diagnostics; it is not used
// as a storage key (store.taskNaturalKeyBytes owns that encoding).
func (k TaskKey) String() string {
	var b strings.Builder
	b.WriteString(k.WorkingDirectory)
	b.WriteString(" $ ")
	for i, cmd := range k.Commands {
		if i > 0 {
			b.WriteString(" && ")
		}
		b.WriteString(strings.Join(cmd, " "))
	}
	return b.String()
}

// VertexRef identifies a vertex by color and id; ids are only unique within
// a color (§3 V1), so edges and pending sets always carry both.
type VertexRef struct {
	Color Color
	ID    uint64
}

// String renders ref for diagnostics (cycle reports, trace labels).
func (ref VertexRef) String() string {
	return fmt.Sprintf("%s#%d", ref.Color, ref.ID)
}

// EdgeKey identifies an edge uniquely per §3 V3: at most one edge per
// (from, to, type).
type EdgeKey struct {
	From VertexRef
	To   VertexRef
	Type EdgeType
}
