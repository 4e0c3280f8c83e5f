package graph

import (
	"fmt"
	"slices"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/taskgraph/internal/apperr"
	"github.com/starford/taskgraph/internal/models"
)

// state is one immutable-by-convention version of the graph. Mutations run
// against a clone and replace the live state only when they succeed.
type state struct {
	funcs    map[string]*models.FunctionDef
	order    []string
	ds       map[string]*models.DataStructureDef
	dsOrder  []string
	statuses map[string]models.TaskStatus
}

func newState() *state {
	return &state{
		funcs:    make(map[string]*models.FunctionDef),
		ds:       make(map[string]*models.DataStructureDef),
		statuses: make(map[string]models.TaskStatus),
	}
}

func (s *state) clone() *state {
	c := &state{
		funcs:    make(map[string]*models.FunctionDef, len(s.funcs)),
		order:    slices.Clone(s.order),
		ds:       make(map[string]*models.DataStructureDef, len(s.ds)),
		dsOrder:  slices.Clone(s.dsOrder),
		statuses: make(map[string]models.TaskStatus, len(s.statuses)),
	}
	for id, f := range s.funcs {
		cp := f.Clone()
		c.funcs[id] = &cp
	}
	for name, d := range s.ds {
		cp := d.Clone()
		c.ds[name] = &cp
	}
	for id, st := range s.statuses {
		c.statuses[id] = st
	}
	return c
}

func validateFunction(def *models.FunctionDef) error {
	err := validation.ValidateStruct(def,
		validation.Field(&def.ID, validation.Required),
		validation.Field(&def.Name, validation.Required),
		validation.Field(&def.Dependencies, validation.Each(validation.Required)),
		validation.Field(&def.Uses, validation.Each(validation.Required)),
	)
	if err != nil {
		return fmt.Errorf("%w: function %q: %v", apperr.ErrInvalid, def.ID, err)
	}
	return nil
}

func validateDataStructure(def *models.DataStructureDef) error {
	err := validation.ValidateStruct(def,
		validation.Field(&def.Name, validation.Required),
	)
	if err != nil {
		return fmt.Errorf("%w: data structure %q: %v", apperr.ErrInvalid, def.Name, err)
	}
	return nil
}

// upsertFunction inserts or replaces def. When deferRefs is true the
// dependency existence check is left to checkReferences.
func (s *state) upsertFunction(def models.FunctionDef, now time.Time, deferRefs bool) error {
	def = def.Clone()
	if err := validateFunction(&def); err != nil {
		return err
	}
	def.Dependencies = dedupe(def.Dependencies)
	def.Uses = dedupe(def.Uses)
	def.CalledBy = nil

	if !deferRefs {
		var missing []string
		for _, dep := range def.Dependencies {
			if dep == def.ID {
				continue
			}
			if _, ok := s.funcs[dep]; !ok {
				missing = append(missing, dep)
			}
		}
		if len(missing) > 0 {
			return &UnknownDependencyError{Function: def.ID, Missing: missing}
		}
	}

	if _, exists := s.funcs[def.ID]; !exists {
		s.order = append(s.order, def.ID)
		s.statuses[def.ID] = models.TaskStatus{
			ID:        def.ID,
			Status:    models.StatusPending,
			UpdatedAt: now,
		}
	}
	s.funcs[def.ID] = &def
	s.reindex()
	return nil
}

// deleteFunction removes id and its status and returns the data structure
// names it used. When deferRefs is true the dependents check is left to
// checkReferences and the orphan cleanup to the caller.
func (s *state) deleteFunction(id string, deferRefs bool) ([]string, error) {
	f, ok := s.funcs[id]
	if !ok {
		return nil, &UnknownFunctionError{ID: id}
	}
	if !deferRefs {
		if dependents := s.dependentsOf(id); len(dependents) > 0 {
			return nil, &HasDependentsError{ID: id, Dependents: dependents}
		}
	}

	delete(s.funcs, id)
	delete(s.statuses, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	s.reindex()

	if !deferRefs {
		s.dropOrphans(f.Uses)
	}
	return f.Uses, nil
}

// dropOrphans removes the named data structures that no function uses any
// more. Data structures left without users go with the function.
func (s *state) dropOrphans(names []string) {
	for _, name := range names {
		if d, ok := s.ds[name]; ok && len(d.UsedBy) == 0 {
			delete(s.ds, name)
			s.dsOrder = slices.DeleteFunc(s.dsOrder, func(v string) bool { return v == name })
		}
	}
}

func (s *state) upsertDataStructure(def models.DataStructureDef) error {
	def = def.Clone()
	if err := validateDataStructure(&def); err != nil {
		return err
	}
	def.UsedBy = nil
	if _, exists := s.ds[def.Name]; !exists {
		s.dsOrder = append(s.dsOrder, def.Name)
	}
	s.ds[def.Name] = &def
	s.reindex()
	return nil
}

func (s *state) deleteDataStructure(name string, deferRefs bool) error {
	d, ok := s.ds[name]
	if !ok {
		return &UnknownDataStructureError{Name: name}
	}
	if !deferRefs && len(d.UsedBy) > 0 {
		return &InUseError{Name: name, UsedBy: slices.Clone(d.UsedBy)}
	}
	delete(s.ds, name)
	s.dsOrder = slices.DeleteFunc(s.dsOrder, func(v string) bool { return v == name })
	s.reindex()
	return nil
}

// checkReferences verifies that every dependency resolves and that no
// removed function or data structure is still referenced.
func (s *state) checkReferences(removedFuncs, removedDS map[string]bool) error {
	for id := range removedFuncs {
		if _, back := s.funcs[id]; back {
			continue
		}
		if dependents := s.dependentsOf(id); len(dependents) > 0 {
			return &HasDependentsError{ID: id, Dependents: dependents}
		}
	}
	for name := range removedDS {
		if _, back := s.ds[name]; back {
			continue
		}
		if users := s.usersOf(name); len(users) > 0 {
			return &InUseError{Name: name, UsedBy: users}
		}
	}
	for _, id := range s.order {
		f := s.funcs[id]
		var missing []string
		for _, dep := range f.Dependencies {
			if _, ok := s.funcs[dep]; !ok {
				missing = append(missing, dep)
			}
		}
		if len(missing) > 0 {
			return &UnknownDependencyError{Function: id, Missing: missing}
		}
	}
	return nil
}

// dependentsOf lists, in insertion order, the functions other than id whose
// dependencies name id.
func (s *state) dependentsOf(id string) []string {
	var out []string
	for _, fid := range s.order {
		if fid != id && slices.Contains(s.funcs[fid].Dependencies, id) {
			out = append(out, fid)
		}
	}
	return out
}

func (s *state) usersOf(name string) []string {
	var out []string
	for _, fid := range s.order {
		if slices.Contains(s.funcs[fid].Uses, name) {
			out = append(out, fid)
		}
	}
	return out
}

// reindex recomputes called_by and used_by from the forward relations.
func (s *state) reindex() {
	for _, f := range s.funcs {
		f.CalledBy = nil
	}
	for _, d := range s.ds {
		d.UsedBy = nil
	}
	for _, id := range s.order {
		f := s.funcs[id]
		for _, dep := range f.Dependencies {
			if target, ok := s.funcs[dep]; ok {
				target.CalledBy = append(target.CalledBy, id)
			}
		}
		for _, name := range f.Uses {
			if d, ok := s.ds[name]; ok {
				d.UsedBy = append(d.UsedBy, id)
			}
		}
	}
}

func (s *state) snapshot() models.Graph {
	g := models.Graph{
		Functions:      make([]models.FunctionDef, 0, len(s.order)),
		DataStructures: make([]models.DataStructureDef, 0, len(s.dsOrder)),
		Statuses:       make(map[string]models.TaskStatus, len(s.statuses)),
	}
	for _, id := range s.order {
		g.Functions = append(g.Functions, s.funcs[id].Clone())
	}
	for _, name := range s.dsOrder {
		g.DataStructures = append(g.DataStructures, s.ds[name].Clone())
	}
	for id, st := range s.statuses {
		g.Statuses[id] = st
	}
	return g
}

func dedupe(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
