// Package graph implements the function dependency graph engine: the store
// that owns functions, data structures and task statuses, and the read passes
// over it (validation, ordering, status tracking, context assembly, impact
// analysis).
//
// All mutations are serialized behind a single lock and applied to a staged
// copy that replaces the live state only on success, so a failed call leaves
// the store untouched. Reads take the shared lock and see a consistent state.
package graph

import (
	"sync"
	"time"

	"github.com/starford/taskgraph/internal/models"
)

// Store owns every entity of one graph.
type Store struct {
	mu  sync.RWMutex
	st  *state
	now func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the time source used for status timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore returns an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{st: newState(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// mutate runs fn against a copy of the current state and commits the copy
// only when fn succeeds.
func (s *Store) mutate(fn func(next *state, now time.Time) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.st.clone()
	if err := fn(next, s.now().UTC()); err != nil {
		return err
	}
	s.st = next
	return nil
}

// UpsertFunction inserts def or replaces the function with the same ID.
// A new function starts in the pending state. Every dependency must already
// exist; a function may list itself.
func (s *Store) UpsertFunction(def models.FunctionDef) error {
	return s.mutate(func(next *state, now time.Time) error {
		return next.upsertFunction(def, now, false)
	})
}

// DeleteFunction removes a function and its status. It fails with
// HasDependentsError while another function depends on id.
func (s *Store) DeleteFunction(id string) error {
	return s.mutate(func(next *state, _ time.Time) error {
		_, err := next.deleteFunction(id, false)
		return err
	})
}

// UpsertDataStructure inserts or replaces a data structure by name.
func (s *Store) UpsertDataStructure(def models.DataStructureDef) error {
	return s.mutate(func(next *state, _ time.Time) error {
		return next.upsertDataStructure(def)
	})
}

// DeleteDataStructure removes a data structure no function uses.
func (s *Store) DeleteDataStructure(name string) error {
	return s.mutate(func(next *state, _ time.Time) error {
		return next.deleteDataStructure(name, false)
	})
}

// Get returns a copy of the function with the given ID.
func (s *Store) Get(id string) (models.FunctionDef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.st.funcs[id]
	if !ok {
		return models.FunctionDef{}, &UnknownFunctionError{ID: id}
	}
	return f.Clone(), nil
}

// List returns copies of all functions in insertion order.
func (s *Store) List() []models.FunctionDef {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.FunctionDef, 0, len(s.st.order))
	for _, id := range s.st.order {
		out = append(out, s.st.funcs[id].Clone())
	}
	return out
}

// GetDataStructure returns a copy of the named data structure.
func (s *Store) GetDataStructure(name string) (models.DataStructureDef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.st.ds[name]
	if !ok {
		return models.DataStructureDef{}, &UnknownDataStructureError{Name: name}
	}
	return d.Clone(), nil
}

// ListDataStructures returns copies of all data structures in insertion order.
func (s *Store) ListDataStructures() []models.DataStructureDef {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.DataStructureDef, 0, len(s.st.dsOrder))
	for _, name := range s.st.dsOrder {
		out = append(out, s.st.ds[name].Clone())
	}
	return out
}

// Status returns the task status of a function.
func (s *Store) Status(id string) (models.TaskStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.st.statuses[id]
	if !ok {
		return models.TaskStatus{}, &UnknownFunctionError{ID: id}
	}
	return st, nil
}

// Statuses returns every task status in function insertion order.
func (s *Store) Statuses() []models.TaskStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.TaskStatus, 0, len(s.st.order))
	for _, id := range s.st.order {
		out = append(out, s.st.statuses[id])
	}
	return out
}

// Snapshot returns a deep copy of the whole graph.
func (s *Store) Snapshot() models.Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.snapshot()
}

// Batch stages several mutations and commits them together. Referential
// checks (unknown dependencies, deleted functions that are still depended
// on, deleted data structures still in use) run once, after fn returns, so a
// function can be deleted in the same batch that rewires its dependents.
func (s *Store) Batch(fn func(b *Batch) error) error {
	return s.mutate(func(next *state, now time.Time) error {
		b := &Batch{
			st:          next,
			now:         now,
			removedFunc: make(map[string]bool),
			removedDS:   make(map[string]bool),
		}
		if err := fn(b); err != nil {
			return err
		}
		next.dropOrphans(b.released)
		return next.checkReferences(b.removedFunc, b.removedDS)
	})
}

// Batch is the staging area handed to Store.Batch callbacks.
type Batch struct {
	st          *state
	now         time.Time
	removedFunc map[string]bool
	removedDS   map[string]bool
	// released holds data structures used by deleted functions; those still
	// without users at commit are dropped.
	released []string
}

// UpsertFunction stages an insert or replace.
func (b *Batch) UpsertFunction(def models.FunctionDef) error {
	return b.st.upsertFunction(def, b.now, true)
}

// DeleteFunction stages a delete.
func (b *Batch) DeleteFunction(id string) error {
	uses, err := b.st.deleteFunction(id, true)
	if err != nil {
		return err
	}
	b.removedFunc[id] = true
	b.released = append(b.released, uses...)
	return nil
}

// UpsertDataStructure stages an insert or replace.
func (b *Batch) UpsertDataStructure(def models.DataStructureDef) error {
	return b.st.upsertDataStructure(def)
}

// DeleteDataStructure stages a delete.
func (b *Batch) DeleteDataStructure(name string) error {
	if err := b.st.deleteDataStructure(name, true); err != nil {
		return err
	}
	b.removedDS[name] = true
	return nil
}
