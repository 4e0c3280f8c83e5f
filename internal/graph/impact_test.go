package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/taskgraph/internal/apperr"
	"github.com/starford/taskgraph/internal/models"
)

func TestDiff(t *testing.T) {
	oldG := models.Graph{Functions: []models.FunctionDef{fn("A"), fn("B", "A"), fn("C", "A", "B"), fn("D")}}

	c := fn("C", "B", "A") // same set, different order
	c.CalledBy = []string{"whatever"}
	b := fn("B", "A")
	b.TestCases = []string{"returns error on empty input"}
	newG := models.Graph{Functions: []models.FunctionDef{fn("A"), b, c, fn("E")}}

	im := Diff(oldG, newG)
	assert.Equal(t, []string{"A", "C"}, im.Preserved)
	assert.Equal(t, []string{"B"}, im.Modified)
	assert.Equal(t, []string{"D"}, im.Deleted)
	assert.Equal(t, []string{"E"}, im.Added)
	assert.Len(t, im.Classes, 5)
	assert.Equal(t, Added, im.Classes["E"])
}

func TestReconcileStatuses(t *testing.T) {
	old := map[string]models.TaskStatus{
		"P": {ID: "P", Status: models.StatusCompleted, Notes: "done"},
		"M": {ID: "M", Status: models.StatusCompleted},
		"I": {ID: "I", Status: models.StatusInProgress},
		"X": {ID: "X", Status: models.StatusBlocked},
	}
	im := Impact{Classes: map[string]Classification{
		"P": Preserved, "M": Modified, "I": Modified, "X": Deleted, "N": Added,
	}}

	got := ReconcileStatuses(old, im, fixedNow)
	assert.Equal(t, old["P"], got["P"])
	assert.Equal(t, models.StatusPending, got["M"].Status)
	assert.Equal(t, fixedNow, got["M"].UpdatedAt)
	assert.Equal(t, models.StatusInProgress, got["I"].Status)
	assert.NotContains(t, got, "X")
	assert.Equal(t, models.TaskStatus{ID: "N", Status: models.StatusPending, UpdatedAt: fixedNow}, got["N"])
}

func TestReplaceGraph_Scenario(t *testing.T) {
	s := seedF123(t)
	complete(t, s, "F1", "F2", "F3")

	g := s.Snapshot()
	g.Functions[2].Signature = "func F3(ctx context.Context) error"

	im, err := s.ReplaceGraph(g)
	require.NoError(t, err)
	assert.Equal(t, []string{"F3"}, im.Modified)
	assert.Equal(t, []string{"F3"}, im.Reopened)
	assert.Equal(t, []string{"F1", "F2"}, im.Preserved)

	for id, want := range map[string]models.Status{
		"F1": models.StatusCompleted,
		"F2": models.StatusCompleted,
		"F3": models.StatusPending,
	} {
		st, err := s.Status(id)
		require.NoError(t, err)
		assert.Equal(t, want, st.Status, id)
	}
	assertInverse(t, s)
}

func TestReplaceGraph_AddAndDelete(t *testing.T) {
	s := seedF123(t)
	complete(t, s, "F1")

	im, err := s.ReplaceGraph(models.Graph{
		Functions: []models.FunctionDef{fn("F4", "F1"), fn("F1")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"F2", "F3"}, im.Deleted)
	assert.Equal(t, []string{"F4"}, im.Added)
	assert.Equal(t, "preserved=1 modified=0 deleted=2 added=1 reopened=0", im.Summary())

	_, err = s.Get("F2")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	st, _ := s.Status("F1")
	assert.Equal(t, models.StatusCompleted, st.Status)

	ready, err := s.NextReady()
	require.NoError(t, err)
	assert.Equal(t, []string{"F4"}, ready)
}

func TestReplaceGraph_RejectsInvalid(t *testing.T) {
	s := seedF123(t)
	before := s.Snapshot()

	_, err := s.ReplaceGraph(models.Graph{
		Functions: []models.FunctionDef{fn("A", "B"), fn("B", "A")},
	})
	var invalid *InvalidGraphError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, []string{"A", "B"}, invalid.Cycles)

	_, err = s.ReplaceGraph(models.Graph{
		Functions: []models.FunctionDef{fn("A", "ghost")},
	})
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, []DanglingRef{{From: "A", Kind: RefDependency, Target: "ghost"}}, invalid.Dangling)

	_, err = s.ReplaceGraph(models.Graph{
		Functions: []models.FunctionDef{fn("A"), fn("A")},
	})
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	assert.Equal(t, before, s.Snapshot())
}

func TestRestore(t *testing.T) {
	s := newTestStore(t)
	g := models.Graph{
		DataStructures: []models.DataStructureDef{{Name: "Note"}},
		Functions:      []models.FunctionDef{fn("B", "A"), fn("A")},
		Statuses: map[string]models.TaskStatus{
			"A":     {Status: models.StatusCompleted},
			"ghost": {Status: models.StatusCompleted},
			"B":     {Status: "bogus"},
		},
	}
	g.Functions[1].Uses = []string{"Note"}

	require.NoError(t, s.Restore(g))
	a, _ := s.Status("A")
	assert.Equal(t, models.StatusCompleted, a.Status)
	assert.Equal(t, "A", a.ID)
	b, _ := s.Status("B")
	assert.Equal(t, models.StatusPending, b.Status)
	assert.Len(t, s.Statuses(), 2)

	d, err := s.GetDataStructure("Note")
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, d.UsedBy)
}

func TestRestore_UnresolvedDependency(t *testing.T) {
	s := seedF123(t)
	err := s.Restore(models.Graph{Functions: []models.FunctionDef{fn("A", "ghost")}})

	var unk *UnknownDependencyError
	require.ErrorAs(t, err, &unk)
	assert.Len(t, s.List(), 3)
}
