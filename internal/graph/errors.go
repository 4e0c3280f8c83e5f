package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/starford/taskgraph/internal/apperr"
	"github.com/starford/taskgraph/internal/models"
)

// UnknownFunctionError is returned when a function identifier is absent.
type UnknownFunctionError struct {
	ID string
}

func (e *UnknownFunctionError) Error() string { return fmt.Sprintf("unknown function %q", e.ID) }

// Is lets callers match with errors.Is(err, apperr.ErrNotFound).
func (e *UnknownFunctionError) Is(target error) bool { return target == apperr.ErrNotFound }

// UnknownDataStructureError is returned when a data structure name is absent.
type UnknownDataStructureError struct {
	Name string
}

func (e *UnknownDataStructureError) Error() string {
	return fmt.Sprintf("unknown data structure %q", e.Name)
}

// Is lets callers match with errors.Is(err, apperr.ErrNotFound).
func (e *UnknownDataStructureError) Is(target error) bool { return target == apperr.ErrNotFound }

// UnknownDependencyError is returned when a function lists dependencies that
// do not exist in the store.
type UnknownDependencyError struct {
	Function string
	Missing  []string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("function %q depends on unknown functions: %s", e.Function, strings.Join(e.Missing, ", "))
}

// Is lets callers match with errors.Is(err, apperr.ErrInvalid).
func (e *UnknownDependencyError) Is(target error) bool { return target == apperr.ErrInvalid }

// HasDependentsError is returned when deleting a function other functions
// still depend on.
type HasDependentsError struct {
	ID         string
	Dependents []string
}

func (e *HasDependentsError) Error() string {
	return fmt.Sprintf("function %q is still depended on by: %s", e.ID, strings.Join(e.Dependents, ", "))
}

// Is lets callers match with errors.Is(err, apperr.ErrConflict).
func (e *HasDependentsError) Is(target error) bool { return target == apperr.ErrConflict }

// InUseError is returned when deleting a data structure that is still used.
type InUseError struct {
	Name   string
	UsedBy []string
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("data structure %q is still used by: %s", e.Name, strings.Join(e.UsedBy, ", "))
}

// Is lets callers match with errors.Is(err, apperr.ErrConflict).
func (e *InUseError) Is(target error) bool { return target == apperr.ErrConflict }

// DanglingRef is a dependency or uses reference naming an absent entity.
type DanglingRef struct {
	From   string `json:"from"`
	Kind   string `json:"kind"`
	Target string `json:"target"`
}

// Dangling reference kinds.
const (
	RefDependency = "dependency"
	RefUses       = "uses"
)

// InvalidGraphError is returned by operations that require an acyclic graph
// without dangling references.
type InvalidGraphError struct {
	Cycles   []string      `json:"cycles"`
	Dangling []DanglingRef `json:"dangling"`
}

func (e *InvalidGraphError) Error() string {
	var parts []string
	if len(e.Cycles) > 0 {
		parts = append(parts, "cycle through "+strings.Join(e.Cycles, ", "))
	}
	for _, d := range e.Dangling {
		parts = append(parts, fmt.Sprintf("%s %s -> %s is dangling", d.Kind, d.From, d.Target))
	}
	return "invalid graph: " + strings.Join(parts, "; ")
}

// Is lets callers match with errors.Is(err, apperr.ErrInvalid).
func (e *InvalidGraphError) Is(target error) bool { return target == apperr.ErrInvalid }

// IDs returns every offending identifier: cycle members, then the sources
// and targets of dangling references, without duplicates.
func (e *InvalidGraphError) IDs() []string {
	out := slices.Clone(e.Cycles)
	for _, d := range e.Dangling {
		for _, id := range []string{d.From, d.Target} {
			if !slices.Contains(out, id) {
				out = append(out, id)
			}
		}
	}
	return out
}

// InvalidTransitionError is returned for a status change the state machine
// does not allow.
type InvalidTransitionError struct {
	ID        string
	Current   models.Status
	Requested models.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("function %q: cannot move from %s to %s", e.ID, e.Current, e.Requested)
}

// Is lets callers match with errors.Is(err, apperr.ErrConflict).
func (e *InvalidTransitionError) Is(target error) bool { return target == apperr.ErrConflict }
