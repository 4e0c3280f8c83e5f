package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/taskgraph/internal/tracker"
)

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /events.
func NewRouter(svc *tracker.Service, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()

	r.Get("/status", h.ProjectStatus)
	r.Get("/architecture", h.Architecture)

	r.Get("/tasks/current", h.CurrentTask)
	r.Put("/tasks/{id}/status", h.UpdateStatus)

	r.Get("/functions", h.ListFunctions)
	r.Get("/functions/{id}", h.GetFunction)
	r.Get("/functions/{id}/context", h.FunctionContext)

	r.Get("/order", h.Order)
	r.Get("/validate", h.Validate)
	r.Put("/graph", h.ReplaceGraph)

	r.Get("/history", h.History)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
