package tracker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/taskgraph/internal/apperr"
	"github.com/starford/taskgraph/internal/docs"
	"github.com/starford/taskgraph/internal/graph"
	"github.com/starford/taskgraph/internal/history"
	"github.com/starford/taskgraph/internal/metrics"
	"github.com/starford/taskgraph/internal/models"
	"github.com/starford/taskgraph/internal/testutil"
)

type recordedEvent struct {
	kind string
	data string
}

type fakePublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *fakePublisher) PublishTaskUpdated(id, from, to string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{"task", id + ":" + from + "->" + to})
}

func (p *fakePublisher) PublishGraphReplaced(summary string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{"graph", summary})
}

type fixture struct {
	svc    *Service
	dir    string
	docs   *docs.FS
	db     *history.DB
	events *fakePublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir, d := testutil.TestDocs(t)
	db := testutil.TestDB(t)
	pub := &fakePublisher{}
	svc := New(graph.NewStore(), d, db,
		WithPublisher(pub),
		WithMetrics(metrics.New()),
		WithProjectName("fallback"),
	)
	require.NoError(t, svc.Load(context.Background()))
	return &fixture{svc: svc, dir: dir, docs: d, db: db, events: pub}
}

func (f *fixture) advance(t *testing.T, id string, statuses ...models.Status) {
	t.Helper()
	for _, st := range statuses {
		_, err := f.svc.UpdateTaskStatus(context.Background(), id, string(st), "")
		require.NoError(t, err)
	}
}

func (f *fixture) complete(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		f.advance(t, id, models.StatusInProgress, models.StatusCompleted)
	}
}

func TestProjectStatus(t *testing.T) {
	f := newFixture(t)

	st, err := f.svc.ProjectStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "notes", st.ProjectName)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 3, st.Pending)
	assert.Equal(t, []string{"F1", "F2"}, st.Ready)
	assert.True(t, st.Valid)
	assert.Empty(t, st.CurrentTask)

	f.advance(t, "F2", models.StatusInProgress)
	st, err = f.svc.ProjectStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "F2", st.CurrentTask)
	assert.Equal(t, []string{"F1"}, st.Ready)
}

func TestCurrentTaskContext_States(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tc, err := f.svc.CurrentTaskContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateReady, tc.State)
	assert.Equal(t, "F1", tc.Task.ID)
	assert.Equal(t, "F1", tc.Context.Target.ID)

	f.advance(t, "F2", models.StatusInProgress)
	tc, err = f.svc.CurrentTaskContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateActive, tc.State, "in-progress work is resumed first")
	assert.Equal(t, "F2", tc.Task.ID)

	f.advance(t, "F2", models.StatusCompleted)
	f.complete(t, "F1")
	tc, err = f.svc.CurrentTaskContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateReady, tc.State)
	assert.Equal(t, "F3", tc.Task.ID)
	assert.Equal(t, []string{"F1", "F2"}, tc.Context.DependencyIDs())

	f.complete(t, "F3")
	tc, err = f.svc.CurrentTaskContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateDone, tc.State)
	assert.Nil(t, tc.Task)
	assert.Equal(t, 100.0, tc.Progress.CompletionRate)
}

func TestCurrentTaskContext_Stuck(t *testing.T) {
	f := newFixture(t)
	f.complete(t, "F1")
	f.advance(t, "F2", models.StatusBlocked)

	tc, err := f.svc.CurrentTaskContext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateStuck, tc.State)
	assert.Equal(t, []string{"F2", "F3"}, tc.Remaining)
}

func TestUpdateTaskStatus_PersistsAndRecords(t *testing.T) {
	f := newFixture(t)

	up, err := f.svc.UpdateTaskStatus(context.Background(), "F1", "in_progress", "starting parser")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, up.From)
	assert.Equal(t, models.StatusInProgress, up.To)
	assert.Equal(t, 1, up.Progress.InProgress)

	doc, err := f.docs.ReadProgress()
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, doc.Tasks["F1"].Status)
	assert.Equal(t, "starting parser", doc.Tasks["F1"].Notes)
	assert.Equal(t, "F1", doc.Summary.CurrentTask)
	assert.Equal(t, 3, doc.Summary.Total)
	assert.Len(t, doc.Changelog, 1)

	entries, err := f.db.List("F1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionStatusChange, entries[0].Action)
	assert.Equal(t, models.StatusInProgress, entries[0].To)

	assert.Equal(t, []recordedEvent{{"task", "F1:pending->in_progress"}}, f.events.events)
}

func TestUpdateTaskStatus_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateTaskStatus(ctx, "F1", "completed", "")
	var inv *graph.InvalidTransitionError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, models.StatusPending, inv.Current)

	_, err = f.svc.UpdateTaskStatus(ctx, "F9", "in_progress", "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.UpdateTaskStatus(ctx, "F1", "finished", "")
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	entries, err := f.db.List("", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, f.events.events)
}

func TestFunctionWithDeps(t *testing.T) {
	f := newFixture(t)
	f.complete(t, "F1")

	fc, err := f.svc.FunctionWithDeps(context.Background(), "F3")
	require.NoError(t, err)
	assert.Equal(t, []string{"F1", "F2"}, fc.DependencyIDs())
	require.Len(t, fc.DataStructures, 2)
	assert.Equal(t, "Note", fc.DataStructures[0].Name)
	assert.Equal(t, map[string]models.Status{
		"F1": models.StatusCompleted,
		"F2": models.StatusPending,
		"F3": models.StatusPending,
	}, fc.Statuses)

	_, err = f.svc.FunctionWithDeps(context.Background(), "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestArchitectureOverview(t *testing.T) {
	f := newFixture(t)
	ov := f.svc.ArchitectureOverview(context.Background())

	assert.Equal(t, "notes", ov.ProjectName)
	assert.Equal(t, "Markdown notes with tags", ov.Overview)
	require.Len(t, ov.DataStructures, 2)
	assert.Equal(t, []string{"F1", "F3"}, ov.DataStructures[0].UsedBy)
	stack, ok := ov.TechnicalStack.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "sqlite", stack["storage"])
}

func TestLoad_RestoresProgress(t *testing.T) {
	f := newFixture(t)
	f.complete(t, "F1")

	again := New(graph.NewStore(), f.docs, f.db)
	require.NoError(t, again.Load(context.Background()))
	view, err := again.GetFunction(context.Background(), "F1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, view.Status.Status)
	assert.Len(t, again.ListFunctions(context.Background()), 3)
}

func TestReplaceGraph_ReopensModifiedCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.complete(t, "F1", "F2", "F3")

	g := f.svc.Store().Snapshot()
	g.DataStructures = nil
	g.Functions[2].Signature = "func indexNote(ctx context.Context, ix *Index, n Note) error"

	im, err := f.svc.ReplaceGraph(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, []string{"F3"}, im.Modified)
	assert.Equal(t, []string{"F3"}, im.Reopened)

	for id, want := range map[string]models.Status{"F1": models.StatusCompleted, "F2": models.StatusCompleted, "F3": models.StatusPending} {
		view, err := f.svc.GetFunction(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, view.Status.Status, id)
	}

	fns, err := f.docs.ReadFunctions()
	require.NoError(t, err)
	assert.Contains(t, fns[2].Signature, "ctx context.Context")
	assert.Len(t, f.svc.ArchitectureOverview(ctx).DataStructures, 2, "data structures kept")

	changed, err := f.svc.Reload(ctx)
	require.NoError(t, err)
	assert.False(t, changed, "own writes must not trigger a reload")

	replans, err := f.db.List("", 1)
	require.NoError(t, err)
	assert.Equal(t, models.ActionReplan, replans[0].Action)
	assert.Equal(t, recordedEvent{"graph", im.Summary()}, f.events.events[len(f.events.events)-1])
}

func TestReplaceGraph_InvalidLeavesEverythingUnchanged(t *testing.T) {
	f := newFixture(t)
	before, err := os.ReadFile(filepath.Join(f.dir, "functions.json"))
	require.NoError(t, err)

	g := f.svc.Store().Snapshot()
	g.Functions[0].Dependencies = []string{"F3"}

	_, err = f.svc.ReplaceGraph(context.Background(), g)
	var invalid *graph.InvalidGraphError
	require.ErrorAs(t, err, &invalid)
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	after, err := os.ReadFile(filepath.Join(f.dir, "functions.json"))
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
	assert.Empty(t, f.svc.Store().DetectCycles())
}

func TestReload_AppliesEditedDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.complete(t, "F1")

	changed, err := f.svc.Reload(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	edited := strings.Replace(testutil.FunctionsJSON, `"uses": ["Note", "Index"]}`,
		`"uses": ["Note", "Index"]},
    {"id": "F4", "name": "searchNotes", "file": "internal/index/search.go", "dependencies": ["F3"]}`, 1)
	testutil.WriteDoc(t, f.dir, "functions.json", edited)

	changed, err = f.svc.Reload(ctx)
	require.NoError(t, err)
	assert.True(t, changed)

	view, err := f.svc.GetFunction(ctx, "F4")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, view.Status.Status)
	f1, _ := f.svc.GetFunction(ctx, "F1")
	assert.Equal(t, models.StatusCompleted, f1.Status.Status)

	changed, err = f.svc.Reload(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestReload_RejectsCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cyclic := strings.Replace(testutil.FunctionsJSON, `"uses": ["Note"]}`, `"uses": ["Note"], "dependencies": ["F3"]}`, 1)
	testutil.WriteDoc(t, f.dir, "functions.json", cyclic)

	_, err := f.svc.Reload(ctx)
	var invalid *graph.InvalidGraphError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, []string{"F1", "F3"}, invalid.Cycles)

	order, err := f.svc.Order(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"F1", "F2", "F3"}, order)
}

func TestValidate(t *testing.T) {
	f := newFixture(t)
	r := f.svc.Validate(context.Background())
	assert.True(t, r.Valid)
	assert.Empty(t, r.Cycles)
	assert.Empty(t, r.Dangling)
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.complete(t, "F1")
	f.advance(t, "F2", models.StatusInProgress)

	all, err := f.svc.History(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	f1, err := f.svc.History(ctx, "F1", 0)
	require.NoError(t, err)
	require.Len(t, f1, 2)
	assert.Equal(t, models.StatusCompleted, f1[0].To)

	_, err = f.svc.History(ctx, "ghost", 0)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReload_MissingFunctionsKeepsStatuses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.complete(t, "F1")

	path := filepath.Join(f.dir, "functions.json")
	require.NoError(t, os.Remove(path))

	changed, err := f.svc.Reload(ctx)
	require.NoError(t, err)
	assert.False(t, changed, "a vanished document is not an empty plan")
	assert.Len(t, f.svc.Store().List(), 3)

	testutil.WriteDoc(t, f.dir, "functions.json", testutil.FunctionsJSON)
	changed, err = f.svc.Reload(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	f1, err := f.svc.GetFunction(ctx, "F1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, f1.Status.Status)

	prog, err := f.docs.ReadProgress()
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, prog.Tasks["F1"].Status)
}

func TestReload_MissingArchitectureKeepsDataStructures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.complete(t, "F1")

	require.NoError(t, os.Remove(filepath.Join(f.dir, "architecture.json")))
	edited := strings.Replace(testutil.FunctionsJSON, `"read a note"`, `"read a note from disk"`, 1)
	testutil.WriteDoc(t, f.dir, "functions.json", edited)

	changed, err := f.svc.Reload(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, f.svc.Store().ListDataStructures(), 2)

	testutil.WriteDoc(t, f.dir, "architecture.json", testutil.ArchitectureJSON)
	changed, err = f.svc.Reload(ctx)
	require.NoError(t, err)
	assert.True(t, changed, "the functions edit is applied once both documents are back")

	f1, _ := f.svc.GetFunction(ctx, "F1")
	assert.Equal(t, models.StatusPending, f1.Status.Status, "F1 changed, so it is reopened")
	f2, _ := f.svc.GetFunction(ctx, "F2")
	assert.Equal(t, models.StatusPending, f2.Status.Status)
	assert.Len(t, f.svc.Store().ListDataStructures(), 2)
}

// withoutF3 is FunctionsJSON minus F3.
const withoutF3 = `{
  "functions": [
    {"id": "F1", "name": "parseNote", "file": "internal/note/parse.go", "signature": "func parseNote(b []byte) (Note, error)",
     "business_logic": "read a note", "code_logic": "split front matter", "test_cases": ["empty input"], "uses": ["Note"]},
    {"id": "F2", "name": "openIndex", "file": "internal/index/open.go", "signature": "func openIndex(path string) (*Index, error)",
     "business_logic": "open the tag index", "code_logic": "sqlite open", "uses": ["Index"]}
  ]
}
`

func TestReadsSeeOneGraphVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.complete(t, "F1", "F2")

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(stop)
		for i := 0; i < 40; i++ {
			doc := testutil.FunctionsJSON
			if i%2 == 0 {
				doc = withoutF3
			}
			assert.NoError(t, os.WriteFile(filepath.Join(f.dir, "functions.json"), []byte(doc), 0o644))
			_, err := f.svc.Reload(ctx)
			assert.NoError(t, err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			// F2 cycles completed -> blocked -> pending -> in_progress -> completed.
			steps := []models.Status{models.StatusBlocked}
			if i%2 == 1 {
				steps = []models.Status{models.StatusPending, models.StatusInProgress, models.StatusCompleted}
			}
			for _, st := range steps {
				_, err := f.svc.UpdateTaskStatus(ctx, "F2", string(st), "")
				assert.NoError(t, err)
			}
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				tc, err := f.svc.CurrentTaskContext(ctx)
				if !assert.NoError(t, err) {
					return
				}
				if tc.Task != nil {
					assert.Equal(t, tc.Task.ID, tc.Context.Target.ID)
				}

				st, err := f.svc.ProjectStatus(ctx)
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, st.Total, st.Pending+st.InProgress+st.Completed+st.Blocked)
			}
		}()
	}

	wg.Wait()
}
