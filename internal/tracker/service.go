// Package tracker exposes the project operations (status, current task,
// architecture, status updates, dependency context, re-planning) on top of
// the graph engine, keeping the project documents and the changelog in step.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/starford/taskgraph/internal/docs"
	"github.com/starford/taskgraph/internal/graph"
	"github.com/starford/taskgraph/internal/history"
	"github.com/starford/taskgraph/internal/metrics"
	"github.com/starford/taskgraph/internal/models"
)

// Documents is the persistence the tracker needs from the docs directory.
type Documents interface {
	LoadGraph() (models.Graph, models.Architecture, error)
	ReadArchitecture() (models.Architecture, error)
	ReadFunctions() ([]models.FunctionDef, error)
	ReadProgress() (docs.ProgressDoc, error)
	WriteProgress(doc docs.ProgressDoc) error
	WriteFunctions(fns []models.FunctionDef) error
	WriteArchitecture(a models.Architecture) error
	Checksum(kind docs.Kind) (string, error)
}

// Publisher receives change notifications.
type Publisher interface {
	PublishTaskUpdated(id, from, to string)
	PublishGraphReplaced(summary string)
}

// Service implements the tracker operations.
type Service struct {
	store   *graph.Store
	docs    Documents
	log     history.Log
	events  Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	name    string

	// mu serializes writers (status updates, replacements, reloads). Reads
	// that combine several store calls take it shared so they see one
	// version of the graph.
	mu   sync.RWMutex
	arch models.Architecture
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the event sink.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithProjectName sets the name reported when the architecture document
// does not carry one.
func WithProjectName(name string) Option {
	return func(s *Service) { s.name = name }
}

// New creates a tracker over an engine store, the project documents and the
// changelog.
func New(store *graph.Store, d Documents, log history.Log, opts ...Option) *Service {
	s := &Service{store: store, docs: d, log: log, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying engine.
func (s *Service) Store() *graph.Store { return s.store }

// Load fills the engine from the project documents and records their
// checksums so an unchanged document is not reloaded.
func (s *Service) Load(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, arch, err := s.docs.LoadGraph()
	if err != nil {
		return fmt.Errorf("tracker: load documents: %w", err)
	}
	if err := s.store.Restore(g); err != nil {
		return fmt.Errorf("tracker: load graph: %w", err)
	}
	s.arch = arch
	if err := s.recordChecksums(); err != nil {
		return err
	}

	p := s.store.ProgressSummary()
	s.publishCounts(p)
	if err := s.store.Validate(); err != nil {
		s.logger.Warn("loaded graph is not valid", slog.String("error", err.Error()))
	}
	s.logger.Info("project loaded",
		slog.String("project", s.projectNameLocked()),
		slog.Int("functions", p.Total),
		slog.Int("completed", p.Completed),
	)
	return nil
}

// ProjectStatus reports per-status counts and the ready functions.
func (s *Service) ProjectStatus(_ context.Context) (ProjectStatus, error) {
	defer s.metrics.Observe("project_status")()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := ProjectStatus{
		ProjectName: s.projectNameLocked(),
		Progress:    s.store.ProgressSummary(),
		CurrentTask: s.currentTask(),
		Ready:       []string{},
		Valid:       true,
	}
	ready, err := s.store.NextReady()
	var invalid *graph.InvalidGraphError
	switch {
	case errors.As(err, &invalid):
		out.Valid = false
	case err != nil:
		return out, err
	case ready != nil:
		out.Ready = ready
	}
	return out, nil
}

// CurrentTaskContext returns the function to work on next with its minimal
// context. An in-progress function is resumed before a ready one is offered.
func (s *Service) CurrentTaskContext(_ context.Context) (TaskContext, error) {
	defer s.metrics.Observe("current_task_context")()

	s.mu.RLock()
	defer s.mu.RUnlock()

	order, err := s.store.ComputeOrder()
	if err != nil {
		return TaskContext{}, err
	}
	out := TaskContext{Progress: s.store.ProgressSummary()}

	var target string
	for _, id := range order {
		if st, _ := s.store.Status(id); st.Status == models.StatusInProgress {
			target, out.State = id, StateActive
			break
		}
	}
	if target == "" {
		ready, err := s.store.NextReady()
		if err != nil {
			return TaskContext{}, err
		}
		if len(ready) > 0 {
			target, out.State = ready[0], StateReady
		}
	}

	if target == "" {
		out.State = StateDone
		for _, id := range order {
			if st, _ := s.store.Status(id); st.Status != models.StatusCompleted {
				out.State = StateStuck
				out.Remaining = append(out.Remaining, id)
			}
		}
		return out, nil
	}

	ctx, err := s.store.MinimalContext(target)
	if err != nil {
		return TaskContext{}, err
	}
	st, err := s.store.Status(target)
	if err != nil {
		return TaskContext{}, err
	}
	out.Task, out.Context = &st, &ctx
	return out, nil
}

// ArchitectureOverview returns the architecture document with the data
// structures as currently held by the engine.
func (s *Service) ArchitectureOverview(_ context.Context) Overview {
	s.mu.RLock()
	defer s.mu.RUnlock()

	arch := s.arch
	return Overview{
		ProjectName:      s.projectNameLocked(),
		Created:          arch.Created,
		Overview:         arch.Overview,
		TechnicalStack:   arch.TechnicalStack,
		ProjectStructure: arch.ProjectStructure,
		DataStructures:   s.store.ListDataStructures(),
	}
}

// UpdateTaskStatus applies a status transition, records it in the changelog
// and rewrites the progress document. When the document cannot be written
// the transition stays applied and the write error is returned.
func (s *Service) UpdateTaskStatus(_ context.Context, id, status, notes string) (StatusUpdate, error) {
	defer s.metrics.Observe("task_status_update")()

	s.mu.Lock()
	defer s.mu.Unlock()

	tr, err := s.store.SetStatus(id, models.Status(status), notes)
	if err != nil {
		return StatusUpdate{}, err
	}
	out := StatusUpdate{Transition: tr, Progress: s.store.ProgressSummary()}

	entry := s.appendHistory(models.ChangeLogEntry{
		Timestamp:   tr.At,
		FunctionID:  id,
		Action:      models.ActionStatusChange,
		From:        tr.From,
		To:          tr.To,
		Notes:       notes,
		Description: fmt.Sprintf("status changed from %s to %s", tr.From, tr.To),
	})
	s.metrics.Transition(tr.From, tr.To)
	s.publishCounts(out.Progress)
	if s.events != nil {
		s.events.PublishTaskUpdated(id, string(tr.From), string(tr.To))
	}
	if err := s.flushProgress(entry); err != nil {
		return out, err
	}
	return out, nil
}

// FunctionWithDeps returns the minimal context of any function.
func (s *Service) FunctionWithDeps(_ context.Context, id string) (FunctionContext, error) {
	defer s.metrics.Observe("function_with_deps")()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, err := s.store.MinimalContext(id)
	if err != nil {
		return FunctionContext{}, err
	}
	out := FunctionContext{Context: ctx, Statuses: make(map[string]models.Status, len(ctx.Dependencies)+1)}
	for _, fid := range append([]string{id}, ctx.DependencyIDs()...) {
		if st, err := s.store.Status(fid); err == nil {
			out.Statuses[fid] = st.Status
		}
	}
	return out, nil
}

// GetFunction returns one function with its status.
func (s *Service) GetFunction(_ context.Context, id string) (FunctionView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, err := s.store.Get(id)
	if err != nil {
		return FunctionView{}, err
	}
	st, err := s.store.Status(id)
	if err != nil {
		return FunctionView{}, err
	}
	return FunctionView{FunctionDef: def, Status: st}, nil
}

// ListFunctions returns every function with its status in insertion order.
func (s *Service) ListFunctions(_ context.Context) []FunctionView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fns := s.store.List()
	out := make([]FunctionView, 0, len(fns))
	for _, f := range fns {
		st, _ := s.store.Status(f.ID)
		out = append(out, FunctionView{FunctionDef: f, Status: st})
	}
	return out
}

// Order returns the implementation order.
func (s *Service) Order(_ context.Context) ([]string, error) {
	defer s.metrics.Observe("order")()
	return s.store.ComputeOrder()
}

// Validate reports cycles and dangling references.
func (s *Service) Validate(_ context.Context) ValidationReport {
	defer s.metrics.Observe("validate")()

	s.mu.RLock()
	defer s.mu.RUnlock()

	r := ValidationReport{
		Cycles:   s.store.DetectCycles(),
		Dangling: s.store.DetectDangling(),
	}
	if r.Cycles == nil {
		r.Cycles = []string{}
	}
	if r.Dangling == nil {
		r.Dangling = []graph.DanglingRef{}
	}
	r.Valid = len(r.Cycles) == 0 && len(r.Dangling) == 0
	return r
}

// History lists changelog entries, newest first. An empty functionID lists
// the whole project.
func (s *Service) History(_ context.Context, functionID string, limit int) ([]models.ChangeLogEntry, error) {
	if functionID != "" {
		if _, err := s.store.Get(functionID); err != nil {
			return nil, err
		}
	}
	return s.log.List(functionID, limit)
}

// currentTask is the first in-progress function in insertion order.
func (s *Service) currentTask() string {
	for _, st := range s.store.Statuses() {
		if st.Status == models.StatusInProgress {
			return st.ID
		}
	}
	return ""
}

func (s *Service) appendHistory(e models.ChangeLogEntry) models.ChangeLogEntry {
	stored, err := s.log.Append(e)
	if err != nil {
		s.logger.Error("append changelog", slog.String("action", e.Action), slog.String("error", err.Error()))
		return e
	}
	return stored
}

func (s *Service) publishCounts(p graph.Progress) {
	counts := make(map[models.Status]int, len(models.AllStatuses))
	for _, st := range models.AllStatuses {
		counts[st] = p.Count(st)
	}
	s.metrics.SetTasks(counts)
}

// flushProgress rewrites the progress document from the engine, keeping the
// existing changelog and appending entries. Callers hold mu.
func (s *Service) flushProgress(entries ...models.ChangeLogEntry) error {
	doc, err := s.docs.ReadProgress()
	if err != nil {
		s.logger.Warn("progress document unreadable, rewriting", slog.String("error", err.Error()))
		doc = docs.ProgressDoc{}
	}

	p := s.store.ProgressSummary()
	doc.Summary = docs.Summary{
		ProjectName:    s.projectNameLocked(),
		Total:          p.Total,
		Completed:      p.Completed,
		InProgress:     p.InProgress,
		Pending:        p.Pending,
		Blocked:        p.Blocked,
		CompletionRate: p.CompletionRate,
		CurrentTask:    s.currentTask(),
	}
	doc.Tasks = make(map[string]models.TaskStatus, p.Total)
	for _, st := range s.store.Statuses() {
		doc.Tasks[st.ID] = st
	}
	for _, e := range entries {
		doc.Changelog = append(doc.Changelog, e)
	}

	if err := s.docs.WriteProgress(doc); err != nil {
		return fmt.Errorf("tracker: flush progress: %w", err)
	}
	return nil
}

// projectNameLocked returns the architecture's project name, falling back
// to the configured one. Callers hold mu.
func (s *Service) projectNameLocked() string {
	if s.arch.ProjectName != "" {
		return s.arch.ProjectName
	}
	return s.name
}

// recordChecksums stores the current checksum of the documents the engine
// was built from. Callers hold mu.
func (s *Service) recordChecksums() error {
	for _, kind := range []docs.Kind{docs.Architecture, docs.Functions} {
		sum, err := s.docs.Checksum(kind)
		if err != nil {
			return err
		}
		if err := s.log.SetChecksum(string(kind), sum); err != nil {
			return err
		}
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
