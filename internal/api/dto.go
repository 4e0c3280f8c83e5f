package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/taskgraph/internal/models"
	"github.com/starford/taskgraph/internal/tracker"
)

// UpdateStatusRequest is the request body for changing a task status.
type UpdateStatusRequest struct {
	Status string `json:"status" example:"in_progress" validate:"required"`
	Notes  string `json:"notes" example:"parser skeleton done"`
}

// Validate checks the request shape; transition rules are left to the engine.
func (r *UpdateStatusRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Status, validation.Required),
	)
}

// ReplaceGraphRequest is the request body for re-planning.
type ReplaceGraphRequest struct {
	Functions      []models.FunctionDef      `json:"functions" validate:"required"`
	DataStructures []models.DataStructureDef `json:"data_structures"`
}

// Validate checks the request shape.
func (r *ReplaceGraphRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Functions, validation.NotNil),
	)
}

// FunctionListResponse wraps the function listing.
type FunctionListResponse struct {
	Functions []tracker.FunctionView `json:"functions" validate:"required"`
	Total     int                    `json:"total" example:"12" validate:"required"`
}

// OrderResponse wraps the implementation order.
type OrderResponse struct {
	Order []string `json:"order" validate:"required"`
}

// HistoryResponse wraps changelog entries.
type HistoryResponse struct {
	Entries []models.ChangeLogEntry `json:"entries" validate:"required"`
}
