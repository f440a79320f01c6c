package store

import "github.com/brilliant-build/bbuild/internal/model"

// Islands returns every resource and task vertex with no incident edges at
// all (degreeIn = 0 and degreeOut = 0), per design note (b): these are
// vertices a build description no longer references and an implicit edge
// never resurrected, the candidate set for `gc`.
func (tx *Tx) Islands() ([]model.VertexRef, error) {
	var out []model.VertexRef

	resources, err := tx.EnumerateResources(false)
	if err != nil {
		return nil, err
	}
	for _, r := range resources {
		ref := model.VertexRef{Color: model.Resource, ID: r.ID}
		isolated, err := tx.isIsolated(ref)
		if err != nil {
			return nil, err
		}
		if isolated {
			out = append(out, ref)
		}
	}

	tasks, err := tx.EnumerateTasks()
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		ref := model.VertexRef{Color: model.Task, ID: t.ID}
		isolated, err := tx.isIsolated(ref)
		if err != nil {
			return nil, err
		}
		if isolated {
			out = append(out, ref)
		}
	}

	return out, nil
}

func (tx *Tx) isIsolated(ref model.VertexRef) (bool, error) {
	in, err := tx.DegreeIn(ref)
	if err != nil || in > 0 {
		return false, err
	}
	out, err := tx.DegreeOut(ref)
	if err != nil || out > 0 {
		return false, err
	}
	return true, nil
}
