package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/taskgraph/internal/apperr"
	"github.com/starford/taskgraph/internal/graph"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error     string              `json:"error" validate:"required"`
	Current   string              `json:"current,omitempty"`
	Requested string              `json:"requested,omitempty"`
	Missing   []string            `json:"missing,omitempty"`
	Cycles    []string            `json:"cycles,omitempty"`
	Dangling  []graph.DanglingRef `json:"dangling,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps engine errors to status codes. Anything unrecognised is
// logged and reported as 500.
func writeError(w http.ResponseWriter, op string, err error) {
	var (
		transition *graph.InvalidTransitionError
		invalid    *graph.InvalidGraphError
		unknownDep *graph.UnknownDependencyError
	)
	switch {
	case errors.As(err, &transition):
		body := errorBody(err.Error())
		body.Current, body.Requested = string(transition.Current), string(transition.Requested)
		writeJSON(w, http.StatusConflict, body)
	case errors.As(err, &invalid):
		body := errorBody("invalid graph")
		body.Cycles, body.Dangling = invalid.Cycles, invalid.Dangling
		writeJSON(w, http.StatusUnprocessableEntity, body)
	case errors.As(err, &unknownDep):
		body := errorBody(err.Error())
		body.Missing = unknownDep.Missing
		writeJSON(w, http.StatusUnprocessableEntity, body)
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrInvalid):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
