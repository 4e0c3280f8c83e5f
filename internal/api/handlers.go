// Package api implements the taskgraph REST API using chi.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/taskgraph/internal/models"
	"github.com/starford/taskgraph/internal/tracker"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *tracker.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *tracker.Service) *Handler {
	return &Handler{svc: svc}
}

// ProjectStatus handles GET /api/status.
//
//	@Summary		Progress counts and ready functions
//	@Tags			project
//	@Produce		json
//	@Success		200	{object}	tracker.ProjectStatus
//	@Router			/status [get]
func (h *Handler) ProjectStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.ProjectStatus(r.Context())
	if err != nil {
		writeError(w, "project status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Architecture handles GET /api/architecture.
//
//	@Summary		Architecture overview with data structures
//	@Tags			project
//	@Produce		json
//	@Success		200	{object}	tracker.Overview
//	@Router			/architecture [get]
func (h *Handler) Architecture(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ArchitectureOverview(r.Context()))
}

// CurrentTask handles GET /api/tasks/current.
//
//	@Summary		The function to work on next with its minimal context
//	@Tags			tasks
//	@Produce		json
//	@Success		200	{object}	tracker.TaskContext
//	@Failure		422	{object}	errResponse
//	@Router			/tasks/current [get]
func (h *Handler) CurrentTask(w http.ResponseWriter, r *http.Request) {
	tc, err := h.svc.CurrentTaskContext(r.Context())
	if err != nil {
		writeError(w, "current task", err)
		return
	}
	writeJSON(w, http.StatusOK, tc)
}

// UpdateStatus handles PUT /api/tasks/{id}/status.
//
//	@Summary		Change the status of a function
//	@Tags			tasks
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Function id"
//	@Param			body	body		UpdateStatusRequest	true	"New status"
//	@Success		200		{object}	tracker.StatusUpdate
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Router			/tasks/{id}/status [put]
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	up, err := h.svc.UpdateTaskStatus(r.Context(), chi.URLParam(r, "id"), req.Status, req.Notes)
	if err != nil {
		writeError(w, "update status", err)
		return
	}
	writeJSON(w, http.StatusOK, up)
}

// ListFunctions handles GET /api/functions.
//
//	@Summary		All functions with their status
//	@Tags			functions
//	@Produce		json
//	@Success		200	{object}	FunctionListResponse
//	@Router			/functions [get]
func (h *Handler) ListFunctions(w http.ResponseWriter, r *http.Request) {
	fns := h.svc.ListFunctions(r.Context())
	writeJSON(w, http.StatusOK, FunctionListResponse{Functions: fns, Total: len(fns)})
}

// GetFunction handles GET /api/functions/{id}.
//
//	@Summary		One function with its status
//	@Tags			functions
//	@Produce		json
//	@Param			id	path		string	true	"Function id"
//	@Success		200	{object}	tracker.FunctionView
//	@Failure		404	{object}	errResponse
//	@Router			/functions/{id} [get]
func (h *Handler) GetFunction(w http.ResponseWriter, r *http.Request) {
	fv, err := h.svc.GetFunction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get function", err)
		return
	}
	writeJSON(w, http.StatusOK, fv)
}

// FunctionContext handles GET /api/functions/{id}/context.
//
//	@Summary		Function with its transitive dependencies and data structures
//	@Tags			functions
//	@Produce		json
//	@Param			id	path		string	true	"Function id"
//	@Success		200	{object}	tracker.FunctionContext
//	@Failure		404	{object}	errResponse
//	@Failure		422	{object}	errResponse
//	@Router			/functions/{id}/context [get]
func (h *Handler) FunctionContext(w http.ResponseWriter, r *http.Request) {
	fc, err := h.svc.FunctionWithDeps(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "function context", err)
		return
	}
	writeJSON(w, http.StatusOK, fc)
}

// Order handles GET /api/order.
//
//	@Summary		Implementation order
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	OrderResponse
//	@Failure		422	{object}	errResponse
//	@Router			/order [get]
func (h *Handler) Order(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.Order(r.Context())
	if err != nil {
		writeError(w, "order", err)
		return
	}
	writeJSON(w, http.StatusOK, OrderResponse{Order: order})
}

// Validate handles GET /api/validate.
//
//	@Summary		Cycles and dangling references
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	tracker.ValidationReport
//	@Router			/validate [get]
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Validate(r.Context()))
}

// ReplaceGraph handles PUT /api/graph.
//
//	@Summary		Replace the plan, carrying over statuses of unchanged functions
//	@Tags			graph
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ReplaceGraphRequest	true	"Revised plan"
//	@Success		200		{object}	graph.Impact
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Router			/graph [put]
func (h *Handler) ReplaceGraph(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req ReplaceGraphRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	im, err := h.svc.ReplaceGraph(r.Context(), models.Graph{
		Functions:      req.Functions,
		DataStructures: req.DataStructures,
	})
	if err != nil {
		writeError(w, "replace graph", err)
		return
	}
	writeJSON(w, http.StatusOK, im)
}

// History handles GET /api/history.
//
//	@Summary		Changelog, newest first
//	@Tags			project
//	@Produce		json
//	@Param			function_id	query		string	false	"Only entries for this function"
//	@Param			limit		query		int		false	"Maximum entries"
//	@Success		200			{object}	HistoryResponse
//	@Failure		404			{object}	errResponse
//	@Router			/history [get]
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	entries, err := h.svc.History(r.Context(), q.Get("function_id"), limit)
	if err != nil {
		writeError(w, "history", err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Entries: entries})
}
