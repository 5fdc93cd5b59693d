package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taskforge/internal/cache"
	"taskforge/internal/dag"
	"taskforge/internal/fileset"
	"taskforge/internal/shell"
	"taskforge/internal/task"
)

// fakeRunner records dispatch order and tracks how many commands are in
// flight at once. failures maps a command to how many attempts should fail
// before it starts succeeding.
type fakeRunner struct {
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	delay       time.Duration
	failures    map[string]int
	runs        []string
}

func (f *fakeRunner) Run(ctx context.Context, command string, timeout time.Duration) (*shell.Result, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.runs = append(f.runs, command)
	fail := f.failures[command] > 0
	if fail {
		f.failures[command]--
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if fail {
		return &shell.Result{ExitCode: 1}, nil
	}
	return &shell.Result{ExitCode: 0}, nil
}

func (f *fakeRunner) ranBefore(a, b string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	ia, ib := -1, -1
	for i, cmd := range f.runs {
		if cmd == a && ia < 0 {
			ia = i
		}
		if cmd == b && ib < 0 {
			ib = i
		}
	}
	return ia >= 0 && ib >= 0 && ia < ib
}

func newFakeScheduler(t *testing.T, tasks []task.Task, runner CommandRunner) (*Scheduler, []dag.Level) {
	t.Helper()
	graph, err := dag.New(tasks)
	require.NoError(t, err)

	store := cache.New()
	resolver := fileset.NewResolver(zap.NewNop())
	s := &Scheduler{
		Graph:    graph,
		Cache:    store,
		Detector: &Detector{Cache: store, Resolver: resolver, Log: zap.NewNop()},
		Runner:   runner,
		Resolver: resolver,
		Log:      zap.NewNop(),
		Mode:     OutputGroup,
	}
	return s, graph.Levels(graph.TopologicalOrder())
}

func TestRun_WorkerCapIsNeverExceeded(t *testing.T) {
	var tasks []task.Task
	for i := 0; i < 8; i++ {
		tasks = append(tasks, task.Task{
			ID:      fmt.Sprintf("t%d", i),
			Command: fmt.Sprintf("cmd-%d", i),
		})
	}

	runner := &fakeRunner{delay: 20 * time.Millisecond}
	s, levels := newFakeScheduler(t, tasks, runner)
	s.Workers = 2

	summary, err := s.Run(context.Background(), levels)
	require.NoError(t, err)
	require.Equal(t, 8, summary.Executed)
	require.LessOrEqual(t, runner.maxInFlight, 2,
		"at most Workers commands may run at once")
	require.GreaterOrEqual(t, runner.maxInFlight, 2,
		"independent tasks should actually run concurrently")
}

func TestRun_LevelBarrier(t *testing.T) {
	tasks := []task.Task{
		{ID: "a", Command: "cmd-a"},
		{ID: "b", Command: "cmd-b"},
		{ID: "c", Command: "cmd-c", Dependencies: []string{"a", "b"}},
	}

	runner := &fakeRunner{delay: 20 * time.Millisecond}
	s, levels := newFakeScheduler(t, tasks, runner)
	s.Workers = 4

	summary, err := s.Run(context.Background(), levels)
	require.NoError(t, err)
	require.Equal(t, 3, summary.Executed)
	require.True(t, runner.ranBefore("cmd-a", "cmd-c"))
	require.True(t, runner.ranBefore("cmd-b", "cmd-c"))
}

func TestRun_FailureStopsLaterLevels(t *testing.T) {
	tasks := []task.Task{
		{ID: "a", Command: "cmd-a"},
		{ID: "b", Command: "cmd-b", Dependencies: []string{"a"}},
	}

	runner := &fakeRunner{failures: map[string]int{"cmd-a": 1}}
	s, levels := newFakeScheduler(t, tasks, runner)

	summary, err := s.Run(context.Background(), levels)
	require.Error(t, err)
	require.Equal(t, []string{"a"}, summary.Failed)
	require.Equal(t, 0, summary.Executed)
	require.NotContains(t, runner.runs, "cmd-b",
		"dependents of a failed task must not be dispatched")
}

func TestRun_FailureDoesNotCancelSiblings(t *testing.T) {
	tasks := []task.Task{
		{ID: "bad", Command: "cmd-bad"},
		{ID: "good", Command: "cmd-good"},
	}

	runner := &fakeRunner{failures: map[string]int{"cmd-bad": 1}}
	s, levels := newFakeScheduler(t, tasks, runner)

	summary, err := s.Run(context.Background(), levels)
	require.Error(t, err)
	require.Equal(t, 1, summary.Executed)
	require.Equal(t, []string{"bad"}, summary.Failed)
	require.Contains(t, runner.runs, "cmd-good")
}

func TestRun_ContinueOnFailureAttemptsLaterLevels(t *testing.T) {
	tasks := []task.Task{
		{ID: "a", Command: "cmd-a"},
		{ID: "b", Command: "cmd-b", Dependencies: []string{"a"}},
	}

	runner := &fakeRunner{failures: map[string]int{"cmd-a": 1}}
	s, levels := newFakeScheduler(t, tasks, runner)
	s.ContinueOnFailure = true

	summary, err := s.Run(context.Background(), levels)
	require.Error(t, err, "the run still reports failure")
	require.Equal(t, []string{"a"}, summary.Failed)
	require.Contains(t, runner.runs, "cmd-b")
}

func TestRun_RetriesUntilSuccess(t *testing.T) {
	tasks := []task.Task{
		{ID: "flaky", Command: "cmd-flaky", Retries: 2},
	}

	runner := &fakeRunner{failures: map[string]int{"cmd-flaky": 1}}
	s, levels := newFakeScheduler(t, tasks, runner)

	summary, err := s.Run(context.Background(), levels)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Executed)
	require.Empty(t, summary.Failed)
	require.Len(t, runner.runs, 2, "one failed attempt plus one retry")
}

func TestRun_RetriesExhaustedReportsFailure(t *testing.T) {
	tasks := []task.Task{
		{ID: "flaky", Command: "cmd-flaky", Retries: 1},
	}

	runner := &fakeRunner{failures: map[string]int{"cmd-flaky": 5}}
	s, levels := newFakeScheduler(t, tasks, runner)

	summary, err := s.Run(context.Background(), levels)
	require.Error(t, err)
	require.Equal(t, []string{"flaky"}, summary.Failed)
	require.Len(t, runner.runs, 2)
}

func newRealScheduler(t *testing.T, tasks []task.Task, store *cache.Cache) (*Scheduler, []dag.Level) {
	t.Helper()
	graph, err := dag.New(tasks)
	require.NoError(t, err)

	resolver := fileset.NewResolver(zap.NewNop())
	console := shell.NewConsoleWriters(io.Discard, io.Discard)
	s := &Scheduler{
		Graph:    graph,
		Cache:    store,
		Detector: &Detector{Cache: store, Resolver: resolver, Log: zap.NewNop()},
		Runner:   &shell.Executor{Console: console, Log: zap.NewNop()},
		Resolver: resolver,
		Console:  console,
		Log:      zap.NewNop(),
		Mode:     OutputGroup,
	}
	return s, graph.Levels(graph.TopologicalOrder())
}

func TestRun_IncrementalSkipOnSecondRun(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.txt")
	out := filepath.Join(dir, "a.out")
	writeFile(t, in, "payload")

	tasks := []task.Task{{
		ID:      "copy",
		Command: fmt.Sprintf("cp %s %s", in, out),
		Inputs:  []string{in},
		Outputs: []string{out},
	}}

	store := cache.New()
	s, levels := newRealScheduler(t, tasks, store)

	summary, err := s.Run(context.Background(), levels)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Executed)
	require.True(t, summary.CacheChanged)
	require.FileExists(t, out)

	// Nothing changed, so the second run is a no-op.
	summary, err = s.Run(context.Background(), levels)
	require.NoError(t, err)
	require.Equal(t, 0, summary.Executed)
	require.Equal(t, 1, summary.Skipped)

	// Deleting the output forces re-execution despite the cached fingerprint.
	require.NoError(t, os.Remove(out))
	summary, err = s.Run(context.Background(), levels)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Executed)
	require.FileExists(t, out)
}

func TestRun_RemoveOutputsAfterSuccess(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.txt")
	out := filepath.Join(dir, "a.out")
	writeFile(t, in, "payload")

	tasks := []task.Task{{
		ID:         "copy",
		Command:    fmt.Sprintf("cp %s %s", in, out),
		Inputs:     []string{in},
		Outputs:    []string{out},
		AutoRemove: true,
	}}

	store := cache.New()
	s, levels := newRealScheduler(t, tasks, store)

	summary, err := s.Run(context.Background(), levels)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Executed)
	require.NoFileExists(t, out)
}

func TestDryRun_PrintsDecisionsWithoutExecuting(t *testing.T) {
	tasks := []task.Task{
		{ID: "a", Command: "cmd-a"},
		{ID: "b", Command: "cmd-b", Dependencies: []string{"a"}},
	}

	runner := &fakeRunner{}
	s, levels := newFakeScheduler(t, tasks, runner)

	var out, errBuf bytes.Buffer
	s.Console = shell.NewConsoleWriters(&out, &errBuf)

	s.DryRun(levels)
	require.Empty(t, runner.runs)
	require.Contains(t, out.String(), "would run  a (no inputs, always runs): cmd-a")
	require.Contains(t, out.String(), "would run  b (no inputs, always runs): cmd-b")
}
