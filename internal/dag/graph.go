package dag

import (
	"strings"

	"taskforge/internal/task"
)

// Graph is an immutable, validated dependency graph over tasks.
//
// Validation runs in New and rejects:
//   - empty or duplicate task IDs
//   - dependencies referencing unknown tasks
//   - self-dependencies
//   - aliases colliding with any task ID or another task's alias
//   - any cycle (direct or indirect)
type Graph struct {
	tasks   map[string]*task.Task
	order   []string          // task IDs in declaration order
	aliases map[string]string // alias -> task ID
}

// New builds and validates a Graph. The task slice is copied; the graph owns
// its tasks for the duration of a run.
func New(tasks []task.Task) (*Graph, error) {
	g := &Graph{
		tasks:   make(map[string]*task.Task, len(tasks)),
		order:   make([]string, 0, len(tasks)),
		aliases: make(map[string]string),
	}

	owned := make([]task.Task, len(tasks))
	copy(owned, tasks)

	for i := range owned {
		t := &owned[i]
		if t.ID == "" {
			return nil, dependencyErrorf("task with empty id")
		}
		if _, dup := g.tasks[t.ID]; dup {
			return nil, dependencyErrorf("duplicate task id '%s'", t.ID)
		}
		g.tasks[t.ID] = t
		g.order = append(g.order, t.ID)
	}

	if err := g.validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Task returns the task with the given ID.
func (g *Graph) Task(id string) (*task.Task, bool) {
	t, ok := g.tasks[id]
	return t, ok
}

// Tasks returns all tasks in declaration order.
func (g *Graph) Tasks() []*task.Task {
	out := make([]*task.Task, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.tasks[id])
	}
	return out
}

// Len returns the number of tasks in the graph.
func (g *Graph) Len() int { return len(g.order) }

func (g *Graph) validate() error {
	for _, id := range g.order {
		t := g.tasks[id]

		for _, dep := range t.Dependencies {
			if dep == t.ID {
				return dependencyErrorf("task '%s' depends on itself", t.ID)
			}
			if _, ok := g.tasks[dep]; !ok {
				return dependencyErrorf("task '%s' depends on '%s' which doesn't exist", t.ID, dep)
			}
		}

		for _, alias := range t.Aliases {
			if _, ok := g.tasks[alias]; ok {
				return dependencyErrorf("task '%s' defines alias '%s' which conflicts with a task id", t.ID, alias)
			}
			if owner, ok := g.aliases[alias]; ok {
				return dependencyErrorf("task '%s' defines alias '%s' which is already used by task '%s'", t.ID, alias, owner)
			}
			g.aliases[alias] = t.ID
		}
	}

	return g.detectCycles()
}

// detectCycles walks every task depth-first. The visited set is shared across
// roots so already-cleared subtrees are not re-traversed.
func (g *Graph) detectCycles() error {
	visited := make(map[string]bool, len(g.order))
	for _, id := range g.order {
		if path := g.findCycle(id, visited); path != nil {
			return dependencyErrorf("circular dependency: %s", strings.Join(path, " -> "))
		}
	}
	return nil
}

type cycleFrame struct {
	id   string
	next int
}

// findCycle runs an iterative depth-first search from root, maintaining the
// active path. The search uses an explicit stack so deep graphs cannot
// overflow the call stack. On detecting a back-edge it returns the active
// path plus the closing node, in traversal order.
func (g *Graph) findCycle(root string, visited map[string]bool) []string {
	if visited[root] {
		return nil
	}

	stack := []cycleFrame{{id: root}}
	onPath := map[string]bool{root: true}
	path := []string{root}
	visited[root] = true

	for len(stack) > 0 {
		top := len(stack) - 1
		t := g.tasks[stack[top].id]

		if stack[top].next < len(t.Dependencies) {
			dep := t.Dependencies[stack[top].next]
			stack[top].next++

			if onPath[dep] {
				return append(append([]string(nil), path...), dep)
			}
			if visited[dep] {
				continue
			}

			visited[dep] = true
			onPath[dep] = true
			path = append(path, dep)
			stack = append(stack, cycleFrame{id: dep})
			continue
		}

		onPath[stack[top].id] = false
		path = path[:len(path)-1]
		stack = stack[:top]
	}
	return nil
}
