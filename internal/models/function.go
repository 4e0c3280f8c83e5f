// Package models defines the domain types for the task graph.
package models

import (
	"slices"
	"time"
)

// FunctionDef is one unit of implementation work.
//
// Signature, rationale and test case fields are opaque text: they are stored,
// returned and compared, never interpreted.
type FunctionDef struct {
	ID            string   `json:"id" yaml:"id"`
	Name          string   `json:"name" yaml:"name"`
	File          string   `json:"file" yaml:"file"`
	TestFile      string   `json:"test_file,omitempty" yaml:"test_file,omitempty"`
	Signature     string   `json:"signature" yaml:"signature"`
	BusinessLogic string   `json:"business_logic" yaml:"business_logic"`
	CodeLogic     string   `json:"code_logic" yaml:"code_logic"`
	TestCases     []string `json:"test_cases" yaml:"test_cases"`
	Dependencies  []string `json:"dependencies" yaml:"dependencies"`
	// CalledBy is derived from the dependencies of other functions.
	CalledBy []string `json:"called_by" yaml:"called_by"`
	Uses     []string `json:"uses" yaml:"uses"`
}

// Clone returns a deep copy of f.
func (f FunctionDef) Clone() FunctionDef {
	f.TestCases = cloneStrings(f.TestCases)
	f.Dependencies = cloneStrings(f.Dependencies)
	f.CalledBy = cloneStrings(f.CalledBy)
	f.Uses = cloneStrings(f.Uses)
	return f
}

// SameDefinition reports whether f and other carry identical authored content.
// CalledBy is derived and therefore ignored; dependencies and uses are sets.
func (f FunctionDef) SameDefinition(other FunctionDef) bool {
	return f.ID == other.ID &&
		f.Name == other.Name &&
		f.File == other.File &&
		f.TestFile == other.TestFile &&
		f.Signature == other.Signature &&
		f.BusinessLogic == other.BusinessLogic &&
		f.CodeLogic == other.CodeLogic &&
		slices.Equal(f.TestCases, other.TestCases) &&
		sameSet(f.Dependencies, other.Dependencies) &&
		sameSet(f.Uses, other.Uses)
}

// DataField describes one field of a data structure.
type DataField struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// DataStructureDef is a named data structure referenced by functions.
type DataStructureDef struct {
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Fields      []DataField `json:"fields" yaml:"fields"`
	// UsedBy is derived from the uses of functions.
	UsedBy []string `json:"used_by" yaml:"used_by"`
}

// Clone returns a deep copy of d.
func (d DataStructureDef) Clone() DataStructureDef {
	if d.Fields != nil {
		d.Fields = append([]DataField(nil), d.Fields...)
	}
	d.UsedBy = cloneStrings(d.UsedBy)
	return d
}

// TaskStatus tracks the implementation state of one function.
type TaskStatus struct {
	ID        string    `json:"id" yaml:"id"`
	Status    Status    `json:"status" yaml:"status"`
	Notes     string    `json:"notes" yaml:"notes"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Graph is the full set of functions, data structures and statuses at one
// point in time. It is the unit of replacement during re-planning.
type Graph struct {
	Functions      []FunctionDef         `json:"functions" yaml:"functions"`
	DataStructures []DataStructureDef    `json:"data_structures" yaml:"data_structures"`
	Statuses       map[string]TaskStatus `json:"statuses,omitempty" yaml:"statuses,omitempty"`
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func sameSet(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	other := make(map[string]struct{}, len(b))
	for _, v := range b {
		if _, ok := set[v]; !ok {
			return false
		}
		other[v] = struct{}{}
	}
	return len(set) == len(other)
}
