package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/taskgraph/internal/graph"
	"github.com/starford/taskgraph/internal/models"
	"github.com/starford/taskgraph/internal/testutil"
	"github.com/starford/taskgraph/internal/tracker"
)

type countingReloader struct {
	calls atomic.Int32
}

func (r *countingReloader) Reload(context.Context) (bool, error) {
	r.calls.Add(1)
	return true, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func startWatch(t *testing.T, dir string, r Reloader) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := Watch(ctx, dir, r, quietLogger(), 50*time.Millisecond); err != nil {
			t.Errorf("Watch: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
}

func TestWatch_BurstIsDebounced(t *testing.T) {
	dir := t.TempDir()
	r := &countingReloader{}
	startWatch(t, dir, r)

	for i := 0; i < 5; i++ {
		_ = os.WriteFile(filepath.Join(dir, "functions.json"), []byte(`[]`), 0o644)
	}

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return r.calls.Load() >= 1
	}, "functions.json edit did not trigger a reload")
	time.Sleep(200 * time.Millisecond)
	if n := r.calls.Load(); n != 1 {
		t.Errorf("reloads = %d, want 1", n)
	}
}

func TestWatch_ArchitectureYAML(t *testing.T) {
	dir := t.TempDir()
	r := &countingReloader{}
	startWatch(t, dir, r)

	_ = os.WriteFile(filepath.Join(dir, "architecture.yaml"), []byte("overview: x\n"), 0o644)

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return r.calls.Load() == 1
	}, "architecture.yaml edit did not trigger a reload")
}

func TestWatch_IgnoresProgressAndOtherFiles(t *testing.T) {
	dir := t.TempDir()
	r := &countingReloader{}
	startWatch(t, dir, r)

	_ = os.WriteFile(filepath.Join(dir, "progress.json"), []byte(`{}`), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "notes.md"), []byte(`# hi`), 0o644)
	_ = os.WriteFile(filepath.Join(dir, ".taskgraph-tmp-1"), []byte(`x`), 0o644)

	time.Sleep(300 * time.Millisecond)
	if n := r.calls.Load(); n != 0 {
		t.Errorf("reloads = %d, want 0", n)
	}
}

// trackedReloader counts finished reloads of a real tracker.
type trackedReloader struct {
	svc   *tracker.Service
	calls atomic.Int32
}

func (r *trackedReloader) Reload(ctx context.Context) (bool, error) {
	defer r.calls.Add(1)
	return r.svc.Reload(ctx)
}

func TestWatch_RemoveAndRestoreKeepsProgress(t *testing.T) {
	dir, d := testutil.TestDocs(t)
	svc := tracker.New(graph.NewStore(), d, testutil.TestDB(t), tracker.WithLogger(quietLogger()))
	ctx := context.Background()
	if err := svc.Load(ctx); err != nil {
		t.Fatal(err)
	}
	for _, st := range []string{"in_progress", "completed"} {
		if _, err := svc.UpdateTaskStatus(ctx, "F1", st, ""); err != nil {
			t.Fatal(err)
		}
	}

	r := &trackedReloader{svc: svc}
	startWatch(t, dir, r)

	if err := os.Remove(filepath.Join(dir, "functions.json")); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return r.calls.Load() >= 1
	}, "removing functions.json did not trigger a reload")

	testutil.WriteDoc(t, dir, "functions.json", testutil.FunctionsJSON)
	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return r.calls.Load() >= 2
	}, "restoring functions.json did not trigger a reload")

	fv, err := svc.GetFunction(ctx, "F1")
	if err != nil {
		t.Fatal(err)
	}
	if fv.Status.Status != models.StatusCompleted {
		t.Errorf("F1 status = %s, want completed", fv.Status.Status)
	}
	if n := len(svc.Store().List()); n != 3 {
		t.Errorf("functions = %d, want 3", n)
	}
}
