package models

import "time"

// Architecture carries the project-level overview. TechnicalStack and
// ProjectStructure are passed through untouched.
type Architecture struct {
	ProjectName      string             `json:"project_name" yaml:"project_name"`
	Created          string             `json:"created" yaml:"created"`
	Overview         string             `json:"overview" yaml:"overview"`
	TechnicalStack   any                `json:"technical_stack" yaml:"technical_stack"`
	ProjectStructure any                `json:"project_structure" yaml:"project_structure"`
	DataStructures   []DataStructureDef `json:"data_structures" yaml:"data_structures"`
}

// Changelog actions.
const (
	ActionStatusChange = "status_change"
	ActionReplan       = "replan"
)

// ChangeLogEntry records one status change or re-plan.
type ChangeLogEntry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	FunctionID  string    `json:"function_id,omitempty"`
	Action      string    `json:"action"`
	From        Status    `json:"from,omitempty"`
	To          Status    `json:"to,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	Description string    `json:"description"`
}
