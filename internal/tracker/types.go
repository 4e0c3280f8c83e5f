package tracker

import (
	"github.com/starford/taskgraph/internal/graph"
	"github.com/starford/taskgraph/internal/models"
)

// TaskState tells a caller of CurrentTaskContext what to do next.
type TaskState string

const (
	// StateActive: a function is already in progress; resume it.
	StateActive TaskState = "active"
	// StateReady: a pending function has all dependencies completed.
	StateReady TaskState = "ready"
	// StateDone: every function is completed.
	StateDone TaskState = "done"
	// StateStuck: nothing is ready but incomplete functions remain.
	StateStuck TaskState = "stuck"
)

// ProjectStatus is the project_status result.
type ProjectStatus struct {
	ProjectName string `json:"project_name"`
	graph.Progress
	CurrentTask string   `json:"current_task,omitempty"`
	Ready       []string `json:"ready"`
	// Valid is false when the graph has cycles or dangling references; Ready
	// is empty in that case.
	Valid bool `json:"valid"`
}

// TaskContext is the current_task_context result. Task and Context are set
// for the active and ready states.
type TaskContext struct {
	State     TaskState          `json:"state"`
	Task      *models.TaskStatus `json:"task,omitempty"`
	Context   *graph.Context     `json:"context,omitempty"`
	Progress  graph.Progress     `json:"progress"`
	Remaining []string           `json:"remaining,omitempty"`
}

// Overview is the architecture_overview result.
type Overview struct {
	ProjectName      string                    `json:"project_name"`
	Created          string                    `json:"created,omitempty"`
	Overview         string                    `json:"overview"`
	TechnicalStack   any                       `json:"technical_stack"`
	ProjectStructure any                       `json:"project_structure"`
	DataStructures   []models.DataStructureDef `json:"data_structures"`
}

// FunctionView is a function together with its task status.
type FunctionView struct {
	models.FunctionDef
	Status models.TaskStatus `json:"status"`
}

// FunctionContext is the function_with_deps result: the minimal context
// plus the status of every function in it.
type FunctionContext struct {
	graph.Context
	Statuses map[string]models.Status `json:"statuses"`
}

// StatusUpdate is the task_status_update result.
type StatusUpdate struct {
	graph.Transition
	Progress graph.Progress `json:"progress"`
}

// ValidationReport is the validate result.
type ValidationReport struct {
	Valid    bool                `json:"valid"`
	Cycles   []string            `json:"cycles"`
	Dangling []graph.DanglingRef `json:"dangling"`
}
