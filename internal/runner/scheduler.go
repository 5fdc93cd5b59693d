package runner

import (
	"context"
	"runtime"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"taskforge/internal/dag"
	"taskforge/internal/shell"
	"taskforge/internal/task"
)

// OutputMode selects how task output reaches the console.
type OutputMode string

const (
	// OutputStream mirrors task output live as it is produced.
	OutputStream OutputMode = "stream"
	// OutputGroup prints each task's output as one block after it finishes.
	OutputGroup OutputMode = "group"
)

// CommandRunner is the execution dependency of the Scheduler. shell.Executor
// is the production implementation; tests substitute instrumented fakes.
type CommandRunner interface {
	Run(ctx context.Context, command string, timeout time.Duration) (*shell.Result, error)
}

// Scheduler executes dependency levels with bounded concurrency.
//
// Invariants it maintains:
//   - strict level barrier: level N+1 never dispatches until every task
//     dispatched in level N has terminated
//   - at most Workers commands are in flight run-wide, enforced by a
//     weighted semaphore acquired before a task starts
//   - the cache is mutated only on the result-collection side, never by the
//     goroutines executing tasks
type Scheduler struct {
	Graph    *dag.Graph
	Cache    Inserter
	Detector *Detector
	Runner   CommandRunner
	Resolver OutputRemover
	Console  *shell.Console
	Log      *zap.Logger

	// Workers caps run-wide concurrency; zero or negative means the host's
	// available parallelism.
	Workers int

	// DefaultTimeout applies to tasks without their own timeout setting.
	DefaultTimeout time.Duration

	// ContinueOnFailure attempts later levels even after a task fails.
	// Within a level, siblings always run to completion either way.
	ContinueOnFailure bool

	// RemoveOutputs deletes outputs after every successful task, as if each
	// task had auto_remove set.
	RemoveOutputs bool

	Mode OutputMode
}

// Inserter is the cache surface the scheduler needs.
type Inserter interface {
	Contains(fingerprint string) bool
	Insert(fingerprint string)
	Dirty() bool
}

// OutputRemover resolves inputs to fingerprints and deletes outputs. It is
// satisfied by fileset.Resolver.
type OutputRemover interface {
	Fingerprint(patterns []string) (string, error)
	RemoveOutputs(patterns []string) error
}

// Summary aggregates the outcome of one run.
type Summary struct {
	Executed     int
	Skipped      int
	Failed       []string
	CacheChanged bool
	Duration     time.Duration
}

type taskResult struct {
	id  string
	res *shell.Result
	err error
}

// Run executes levels strictly in ascending order and returns a summary.
// The returned error is non-nil when any task failed; it never reflects an
// individual task's output.
//
// The caller should persist the cache when Summary.CacheChanged is set.
func (s *Scheduler) Run(ctx context.Context, levels []dag.Level) (*Summary, error) {
	workers := s.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	sem := semaphore.NewWeighted(int64(workers))

	summary := &Summary{}
	start := time.Now()

	for _, level := range levels {
		batch := s.staleTasks(level, summary)
		if len(batch) == 0 {
			continue
		}

		results := make(chan taskResult, len(batch))
		for _, t := range batch {
			t := t
			go func() {
				if err := sem.Acquire(ctx, 1); err != nil {
					results <- taskResult{id: t.ID, err: errors.Wrap(err, "acquiring worker slot")}
					return
				}
				defer sem.Release(1)

				res, err := s.runTask(ctx, t)
				results <- taskResult{id: t.ID, res: res, err: err}
			}()
		}

		// Drain the whole level before deciding anything: a failure never
		// cancels siblings that are already dispatched.
		levelFailed := false
		for range batch {
			r := <-results
			t, _ := s.Graph.Task(r.id)
			if !s.collect(t, r, summary) {
				levelFailed = true
			}
		}

		if levelFailed && !s.ContinueOnFailure {
			break
		}
	}

	summary.Duration = time.Since(start)
	summary.CacheChanged = s.Cache.Dirty()

	if len(summary.Failed) > 0 {
		return summary, errors.Errorf("%d task(s) failed: %s",
			len(summary.Failed), strings.Join(summary.Failed, ", "))
	}
	return summary, nil
}

// staleTasks filters a level down to the tasks that must run.
func (s *Scheduler) staleTasks(level dag.Level, summary *Summary) []*task.Task {
	var batch []*task.Task
	for _, id := range level.TaskIDs {
		t, ok := s.Graph.Task(id)
		if !ok {
			continue
		}
		decision := s.Detector.ShouldRun(t)
		if !decision.Run {
			s.Log.Debug("skipping task",
				zap.String("task", id), zap.String("reason", decision.Reason))
			summary.Skipped++
			continue
		}
		s.Log.Debug("task is stale",
			zap.String("task", id), zap.String("reason", decision.Reason))
		batch = append(batch, t)
	}
	return batch
}

// runTask executes one task, retrying failed attempts with exponential
// backoff when the task declares retries. Each attempt gets its own timeout.
func (s *Scheduler) runTask(ctx context.Context, t *task.Task) (*shell.Result, error) {
	timeout := s.timeoutFor(t)

	if s.Mode == OutputStream && s.Console != nil {
		s.Console.Printf("%s $ %s\n", taskHeader(t.ID), t.Command)
	}

	var last *shell.Result
	attempt := func() error {
		res, err := s.Runner.Run(ctx, t.Command, timeout)
		if err != nil {
			// Spawn/pipe failures will not heal between attempts.
			return backoff.Permanent(err)
		}
		last = res
		if !res.Success() {
			return errors.New("attempt failed")
		}
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), t.Retries)
	if err := backoff.Retry(attempt, backoff.WithContext(policy, ctx)); err != nil {
		if last != nil {
			// The failure is carried on the result.
			return last, nil
		}
		return nil, err
	}
	return last, nil
}

// collect applies one completed task's result: cache updates and cleanup on
// success, failure bookkeeping otherwise. Runs only on the coordinating
// goroutine. Returns whether the task succeeded.
func (s *Scheduler) collect(t *task.Task, r taskResult, summary *Summary) bool {
	if s.Mode == OutputGroup && r.res != nil {
		s.printGrouped(t.ID, r.res)
	}

	switch {
	case r.err != nil:
		s.Log.Error("task failed to execute",
			zap.String("task", t.ID), zap.Error(r.err))

	case r.res.TimedOut:
		s.Log.Error("task timed out",
			zap.String("task", t.ID),
			zap.Duration("timeout", s.timeoutFor(t)),
			zap.Duration("ran_for", r.res.Duration))

	case r.res.ExitCode != 0:
		s.Log.Error("task failed",
			zap.String("task", t.ID), zap.Int("exit_code", r.res.ExitCode))

	default:
		summary.Executed++
		s.Log.Info("task completed",
			zap.String("task", t.ID), zap.Duration("duration", r.res.Duration))

		if len(t.Inputs) > 0 {
			fingerprint, err := s.Resolver.Fingerprint(t.Inputs)
			if err != nil {
				s.Log.Warn("could not fingerprint inputs after run",
					zap.String("task", t.ID), zap.Error(err))
			} else {
				s.Cache.Insert(fingerprint)
			}
		}

		if (s.RemoveOutputs || t.AutoRemove) && len(t.Outputs) > 0 {
			if err := s.Resolver.RemoveOutputs(t.Outputs); err != nil {
				s.Log.Warn("output cleanup failed",
					zap.String("task", t.ID), zap.Error(err))
			}
		}
		return true
	}

	summary.Failed = append(summary.Failed, t.ID)
	return false
}

// timeoutFor resolves a task's effective timeout: its own setting when
// present (including an explicit zero meaning "no timeout"), the scheduler
// default otherwise.
func (s *Scheduler) timeoutFor(t *task.Task) time.Duration {
	if t.Timeout != nil {
		return *t.Timeout
	}
	return s.DefaultTimeout
}

func (s *Scheduler) printGrouped(id string, res *shell.Result) {
	if s.Console == nil {
		return
	}
	s.Console.Printf("%s\n", taskHeader(id))
	if len(res.Stdout) > 0 {
		s.Console.WriteOut(res.Stdout)
	}
	if len(res.Stderr) > 0 {
		s.Console.WriteErr(res.Stderr)
	}
}

func taskHeader(id string) string {
	return color.New(color.FgCyan).Sprintf("[%s]", id)
}

// DryRun prints the staleness decision and resolved command for every task
// in the levels without executing anything or touching the cache.
func (s *Scheduler) DryRun(levels []dag.Level) {
	for _, level := range levels {
		for _, id := range level.TaskIDs {
			t, ok := s.Graph.Task(id)
			if !ok {
				continue
			}
			decision := s.Detector.ShouldRun(t)
			if decision.Run {
				s.Console.Printf("would run  %s (%s): %s\n", t.ID, decision.Reason, t.Command)
			} else {
				s.Console.Printf("would skip %s (%s)\n", t.ID, decision.Reason)
			}
		}
	}
}
