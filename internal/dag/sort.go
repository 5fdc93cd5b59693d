package dag

import "taskforge/internal/task"

// TopologicalOrder returns every task ID ordered so that each task appears
// after all of its dependencies.
//
// Order among tasks that become ready at the same step follows declaration
// order, but callers must only rely on the dependency-before-dependent
// property.
func (g *Graph) TopologicalOrder() []string {
	return topoSort(g.order, g.tasks)
}

// RequiredTasks resolves target as a task ID or alias and returns the
// topologically ordered closure of tasks it transitively depends on.
func (g *Graph) RequiredTasks(target string) ([]string, error) {
	id, ok := g.resolve(target)
	if !ok {
		return nil, &TaskNotFoundError{Target: target}
	}

	needed := make(map[string]bool, len(g.order))
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if needed[cur] {
			continue
		}
		needed[cur] = true
		for _, dep := range g.tasks[cur].Dependencies {
			if !needed[dep] {
				queue = append(queue, dep)
			}
		}
	}

	subset := make([]string, 0, len(needed))
	for _, tid := range g.order {
		if needed[tid] {
			subset = append(subset, tid)
		}
	}
	return topoSort(subset, g.tasks), nil
}

// resolve maps a target to a task ID. IDs win over aliases; validation
// guarantees the two namespaces are disjoint, so the order is immaterial.
func (g *Graph) resolve(target string) (string, bool) {
	if _, ok := g.tasks[target]; ok {
		return target, true
	}
	if id, ok := g.aliases[target]; ok {
		return id, true
	}
	return "", false
}

// topoSort is Kahn's algorithm restricted to ids. The caller guarantees ids
// is dependency-complete: every dependency of a member that matters is also
// a member.
func topoSort(ids []string, byID map[string]*task.Task) []string {
	inSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		inSet[id] = true
	}

	inDegree := make(map[string]int, len(ids))
	for _, id := range ids {
		n := 0
		for _, dep := range byID[id].Dependencies {
			if inSet[dep] {
				n++
			}
		}
		inDegree[id] = n
	}

	queue := make([]string, 0, len(ids))
	for _, id := range ids {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	sorted := make([]string, 0, len(ids))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, id)

		for _, other := range ids {
			if !dependsOn(byID[other], id) {
				continue
			}
			inDegree[other]--
			if inDegree[other] == 0 {
				queue = append(queue, other)
			}
		}
	}
	return sorted
}

func dependsOn(t *task.Task, id string) bool {
	for _, dep := range t.Dependencies {
		if dep == id {
			return true
		}
	}
	return false
}
