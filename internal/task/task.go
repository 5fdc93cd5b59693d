// Package task defines the declarative task model and loads it from TOML
// configuration, including variable substitution.
//
// Tasks are constructed once from configuration and are immutable for the
// duration of a run; the dag package owns them afterwards.
package task

import "time"

// Task is a named unit of work: a shell command plus its declared
// dependencies and file relationships.
type Task struct {
	// ID uniquely identifies the task across the graph.
	// Defaults to the task's declaration key when unset.
	ID string

	// Command is the shell invocation executed when the task is stale.
	Command string

	// Dependencies lists task IDs that must complete before this task runs.
	Dependencies []string

	// Aliases are alternate names resolving to this task. They must not
	// collide with any task ID or another task's alias.
	Aliases []string

	// Inputs and Outputs are literal paths or glob patterns. Inputs drive
	// change detection and fingerprinting; Outputs drive staleness checks
	// and cleanup.
	Inputs  []string
	Outputs []string

	// AutoRemove deletes the task's resolved outputs after a successful run.
	AutoRemove bool

	// Timeout bounds a single execution attempt. nil means no per-task
	// override (the scheduler's default applies); a zero value explicitly
	// disables the timeout for this task.
	Timeout *time.Duration

	// Retries is the number of additional attempts made after a failed
	// execution, with exponential backoff between attempts.
	Retries uint64
}
