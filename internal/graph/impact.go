package graph

import (
	"fmt"
	"time"

	"github.com/starford/taskgraph/internal/apperr"
	"github.com/starford/taskgraph/internal/models"
)

// Classification is how re-planning treats one function identifier.
type Classification string

const (
	Preserved Classification = "preserved"
	Modified  Classification = "modified"
	Deleted   Classification = "deleted"
	Added     Classification = "added"
)

// Impact classifies every function identifier of two graphs.
type Impact struct {
	Classes   map[string]Classification `json:"classes"`
	Preserved []string                  `json:"preserved"`
	Modified  []string                  `json:"modified"`
	Deleted   []string                  `json:"deleted"`
	Added     []string                  `json:"added"`
	// Reopened lists modified functions whose completed status was reset to
	// pending. Filled by ReplaceGraph.
	Reopened []string `json:"reopened"`
}

// Summary renders the counts per classification.
func (im Impact) Summary() string {
	return fmt.Sprintf("preserved=%d modified=%d deleted=%d added=%d reopened=%d",
		len(im.Preserved), len(im.Modified), len(im.Deleted), len(im.Added), len(im.Reopened))
}

// Diff classifies every function identifier present in either graph.
// Derived back-references are not compared.
func Diff(oldG, newG models.Graph) Impact {
	im := Impact{
		Classes:   make(map[string]Classification),
		Preserved: []string{},
		Modified:  []string{},
		Deleted:   []string{},
		Added:     []string{},
		Reopened:  []string{},
	}
	next := make(map[string]models.FunctionDef, len(newG.Functions))
	for _, f := range newG.Functions {
		next[f.ID] = f
	}
	for _, f := range oldG.Functions {
		if _, seen := im.Classes[f.ID]; seen {
			continue
		}
		nf, ok := next[f.ID]
		switch {
		case !ok:
			im.Classes[f.ID] = Deleted
			im.Deleted = append(im.Deleted, f.ID)
		case f.SameDefinition(nf):
			im.Classes[f.ID] = Preserved
			im.Preserved = append(im.Preserved, f.ID)
		default:
			im.Classes[f.ID] = Modified
			im.Modified = append(im.Modified, f.ID)
		}
	}
	for _, f := range newG.Functions {
		if _, seen := im.Classes[f.ID]; seen {
			continue
		}
		im.Classes[f.ID] = Added
		im.Added = append(im.Added, f.ID)
	}
	return im
}

// ReconcileStatuses derives the status set of the new graph. Completed
// functions whose definition changed go back to pending; every other
// surviving function keeps its status and added functions start pending.
func ReconcileStatuses(old map[string]models.TaskStatus, im Impact, now time.Time) map[string]models.TaskStatus {
	out := make(map[string]models.TaskStatus, len(im.Classes))
	for id, class := range im.Classes {
		prev, had := old[id]
		switch class {
		case Deleted:
			continue
		case Preserved, Modified:
			if had {
				if class == Modified && prev.Status == models.StatusCompleted {
					prev.Status = models.StatusPending
					prev.UpdatedAt = now
				}
				out[id] = prev
				continue
			}
		}
		out[id] = models.TaskStatus{ID: id, Status: models.StatusPending, UpdatedAt: now}
	}
	return out
}

// ReplaceGraph swaps the whole graph for newG, carrying statuses over per
// ReconcileStatuses. newG must be valid on its own; otherwise the store is
// left unchanged and the error is returned.
func (s *Store) ReplaceGraph(newG models.Graph) (Impact, error) {
	var im Impact
	err := s.mutate(func(next *state, now time.Time) error {
		staged, err := buildState(newG, now)
		if err != nil {
			return err
		}
		if err := staged.validate(); err != nil {
			return err
		}

		im = Diff(next.snapshot(), staged.snapshot())
		staged.statuses = ReconcileStatuses(next.statuses, im, now)
		for _, id := range im.Modified {
			if next.statuses[id].Status == models.StatusCompleted {
				im.Reopened = append(im.Reopened, id)
			}
		}
		*next = *staged
		return nil
	})
	return im, err
}

// Restore replaces the store contents with g as loaded from persisted
// documents. Dependencies must resolve but cycles are tolerated, so a broken
// plan can still be loaded and inspected. Statuses for unknown identifiers or
// with unknown values are ignored; functions without one start pending.
func (s *Store) Restore(g models.Graph) error {
	return s.mutate(func(next *state, now time.Time) error {
		staged, err := buildState(g, now)
		if err != nil {
			return err
		}
		if err := staged.checkReferences(nil, nil); err != nil {
			return err
		}
		for _, id := range staged.order {
			st, ok := g.Statuses[id]
			if !ok || !st.Status.IsValid() {
				continue
			}
			st.ID = id
			if st.UpdatedAt.IsZero() {
				st.UpdatedAt = now
			}
			staged.statuses[id] = st
		}
		*next = *staged
		return nil
	})
}

// buildState constructs a fresh state from g, data structures first so uses
// resolve, then functions in document order. References are not checked.
func buildState(g models.Graph, now time.Time) (*state, error) {
	st := newState()
	for _, d := range g.DataStructures {
		if _, dup := st.ds[d.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate data structure %q", apperr.ErrInvalid, d.Name)
		}
		if err := st.upsertDataStructure(d); err != nil {
			return nil, err
		}
	}
	for _, f := range g.Functions {
		if _, dup := st.funcs[f.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate function %q", apperr.ErrInvalid, f.ID)
		}
		if err := st.upsertFunction(f, now, true); err != nil {
			return nil, err
		}
	}
	return st, nil
}
