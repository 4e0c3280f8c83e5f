package tracker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/taskgraph/internal/docs"
	"github.com/starford/taskgraph/internal/graph"
	"github.com/starford/taskgraph/internal/models"
)

// ReplaceGraph swaps in a revised plan, carrying statuses over for unchanged
// functions. A graph without data structures keeps the current ones. The
// functions document (and the architecture document, when data structures
// are given) is rewritten to match.
func (s *Service) ReplaceGraph(_ context.Context, g models.Graph) (graph.Impact, error) {
	defer s.metrics.Observe("replace_graph")()

	s.mu.Lock()
	defer s.mu.Unlock()

	withDS := len(g.DataStructures) > 0
	if !withDS {
		g.DataStructures = s.store.ListDataStructures()
	}
	im, err := s.commitReplan(g, "api")
	if err != nil {
		return im, err
	}

	if err := s.docs.WriteFunctions(s.store.List()); err != nil {
		return im, fmt.Errorf("tracker: write functions: %w", err)
	}
	if withDS {
		s.arch.DataStructures = s.store.ListDataStructures()
		if err := s.docs.WriteArchitecture(s.arch); err != nil {
			return im, fmt.Errorf("tracker: write architecture: %w", err)
		}
	}
	// Our own writes must not trigger a reload.
	if err := s.recordChecksums(); err != nil {
		return im, err
	}
	return im, nil
}

// Reload re-reads the architecture and functions documents and, when either
// changed since it was last applied, replaces the graph with their content.
// It reports whether a replacement happened.
//
// A document that was applied before but is now missing counts as no change:
// editors and checkouts remove files before writing them again, and an empty
// plan would drop every status.
func (s *Service) Reload(_ context.Context) (bool, error) {
	defer s.metrics.Observe("reload")()

	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	applied := make(map[docs.Kind]bool, 2)
	for _, kind := range []docs.Kind{docs.Architecture, docs.Functions} {
		sum, err := s.docs.Checksum(kind)
		if err != nil {
			return false, err
		}
		last, err := s.log.GetChecksum(string(kind))
		if err != nil {
			return false, err
		}
		applied[kind] = last != ""
		if sum == "" && applied[kind] {
			s.logger.Info("document missing, reload skipped", slog.String("kind", string(kind)))
			return false, nil
		}
		if sum != last {
			changed = true
		}
	}
	if !changed {
		return false, nil
	}

	arch, err := s.docs.ReadArchitecture()
	switch {
	case isNotExist(err) && applied[docs.Architecture]:
		return false, nil
	case err != nil && !isNotExist(err):
		return false, err
	}
	fns, err := s.docs.ReadFunctions()
	switch {
	case isNotExist(err) && applied[docs.Functions]:
		return false, nil
	case err != nil && !isNotExist(err):
		return false, err
	}

	im, err := s.commitReplan(models.Graph{Functions: fns, DataStructures: arch.DataStructures}, "documents")
	if err != nil {
		return false, err
	}
	s.arch = arch
	if err := s.recordChecksums(); err != nil {
		return true, err
	}
	s.logger.Info("documents reloaded", slog.String("impact", im.Summary()))
	return true, nil
}

// commitReplan replaces the graph and does the bookkeeping shared by
// ReplaceGraph and Reload. Callers hold mu.
func (s *Service) commitReplan(g models.Graph, source string) (graph.Impact, error) {
	im, err := s.store.ReplaceGraph(g)
	if err != nil {
		s.logger.Warn("re-plan rejected", slog.String("source", source), slog.String("error", err.Error()))
		return im, err
	}

	entry := s.appendHistory(models.ChangeLogEntry{
		Action:      models.ActionReplan,
		Description: fmt.Sprintf("re-plan from %s: %s", source, im.Summary()),
	})
	s.metrics.Replan()
	s.publishCounts(s.store.ProgressSummary())
	if s.events != nil {
		s.events.PublishGraphReplaced(im.Summary())
	}
	if err := s.flushProgress(entry); err != nil {
		return im, err
	}
	return im, nil
}
