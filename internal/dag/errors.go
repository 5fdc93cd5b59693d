package dag

import "fmt"

// DependencyError reports an invalid task graph: a missing or self-referential
// dependency, an alias collision, or a cycle. It is fatal before any task
// executes.
type DependencyError struct {
	Msg string
}

func (e *DependencyError) Error() string {
	return "dependency error: " + e.Msg
}

// TaskNotFoundError reports a target that resolves to neither a task ID nor
// an alias.
type TaskNotFoundError struct {
	Target string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task '%s' not found", e.Target)
}

func dependencyErrorf(format string, args ...any) error {
	return &DependencyError{Msg: fmt.Sprintf(format, args...)}
}
