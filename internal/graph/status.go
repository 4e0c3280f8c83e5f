package graph

import (
	"fmt"
	"math"
	"time"

	"github.com/starford/taskgraph/internal/apperr"
	"github.com/starford/taskgraph/internal/models"
)

var transitions = map[models.Status]map[models.Status]bool{
	models.StatusPending: {
		models.StatusInProgress: true,
		models.StatusBlocked:    true,
	},
	models.StatusInProgress: {
		models.StatusCompleted: true,
		models.StatusPending:   true,
		models.StatusBlocked:   true,
	},
	models.StatusCompleted: {
		models.StatusPending: true,
		models.StatusBlocked: true,
	},
	models.StatusBlocked: {
		models.StatusPending: true,
		models.StatusBlocked: true,
	},
}

// ValidateTransition reports whether the state machine has an edge from one
// status to another.
func ValidateTransition(from, to models.Status) bool {
	return transitions[from][to]
}

// ValidateUpdate reports whether a caller of SetStatus may move a function
// from one status to another. Reopening a completed function is reserved for
// re-planning, which does it when the definition changes.
func ValidateUpdate(from, to models.Status) bool {
	if from == models.StatusCompleted && to == models.StatusPending {
		return false
	}
	return ValidateTransition(from, to)
}

// Transition records one applied status change.
type Transition struct {
	ID    string        `json:"id"`
	From  models.Status `json:"from"`
	To    models.Status `json:"to"`
	Notes string        `json:"notes,omitempty"`
	At    time.Time     `json:"at"`
}

// SetStatus moves a function to a new status. Notes replace the previous
// notes; an empty string keeps them. completed -> pending is rejected; see
// ValidateUpdate.
func (s *Store) SetStatus(id string, to models.Status, notes string) (Transition, error) {
	var tr Transition
	err := s.mutate(func(next *state, now time.Time) error {
		var err error
		tr, err = next.setStatus(id, to, notes, now)
		return err
	})
	return tr, err
}

func (s *state) setStatus(id string, to models.Status, notes string, now time.Time) (Transition, error) {
	if !to.IsValid() {
		return Transition{}, fmt.Errorf("%w: unknown status %q", apperr.ErrInvalid, to)
	}
	cur, ok := s.statuses[id]
	if !ok {
		return Transition{}, &UnknownFunctionError{ID: id}
	}
	if !ValidateUpdate(cur.Status, to) {
		return Transition{}, &InvalidTransitionError{ID: id, Current: cur.Status, Requested: to}
	}

	from := cur.Status
	cur.Status = to
	if notes != "" {
		cur.Notes = notes
	}
	cur.UpdatedAt = now
	s.statuses[id] = cur
	return Transition{ID: id, From: from, To: to, Notes: notes, At: now}, nil
}

// NextReady returns the pending functions whose dependencies are all
// completed, in implementation order. The graph must be valid.
func (s *Store) NextReady() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.nextReady()
}

func (s *state) nextReady() ([]string, error) {
	order, err := s.computeOrder()
	if err != nil {
		return nil, err
	}
	var ready []string
	for _, id := range order {
		if s.isReady(id) {
			ready = append(ready, id)
		}
	}
	return ready, nil
}

func (s *state) isReady(id string) bool {
	if s.statuses[id].Status != models.StatusPending {
		return false
	}
	for _, dep := range s.funcs[id].Dependencies {
		if s.statuses[dep].Status != models.StatusCompleted {
			return false
		}
	}
	return true
}

// Progress counts functions per status.
type Progress struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Blocked    int `json:"blocked"`
	// CompletionRate is completed/total as a percentage with one decimal.
	CompletionRate float64 `json:"completion_rate"`
}

// Count returns the number of functions in st.
func (p Progress) Count(st models.Status) int {
	switch st {
	case models.StatusPending:
		return p.Pending
	case models.StatusInProgress:
		return p.InProgress
	case models.StatusCompleted:
		return p.Completed
	case models.StatusBlocked:
		return p.Blocked
	}
	return 0
}

// Remaining reports whether any function is not completed yet.
func (p Progress) Remaining() bool {
	return p.Completed < p.Total
}

// ProgressSummary counts functions per status.
func (s *Store) ProgressSummary() Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.progress()
}

func (s *state) progress() Progress {
	var p Progress
	for _, id := range s.order {
		p.Total++
		switch s.statuses[id].Status {
		case models.StatusPending:
			p.Pending++
		case models.StatusInProgress:
			p.InProgress++
		case models.StatusCompleted:
			p.Completed++
		case models.StatusBlocked:
			p.Blocked++
		}
	}
	if p.Total > 0 {
		p.CompletionRate = math.Round(float64(p.Completed)/float64(p.Total)*1000) / 10
	}
	return p
}
