package dag

import "sort"

// Level groups the task IDs that share a dependency depth. Executing levels
// in ascending depth order guarantees dependency-before-dependent execution.
type Level struct {
	Depth   int
	TaskIDs []string
}

// Levels partitions ids by dependency depth and returns the levels in
// ascending order.
//
// depth(t) is 0 for tasks without dependencies, otherwise
// 1 + max(depth(d)) over t's dependencies. Depth is computed against the
// full graph, so a dependency-complete subset (a target closure) yields the
// same depths as the whole graph would.
//
// Task IDs within a level are sorted so output is deterministic; the
// scheduler is free to interleave them.
func (g *Graph) Levels(ids []string) []Level {
	memo := make(map[string]int, len(g.order))
	maxDepth := 0
	for _, id := range ids {
		if d := g.depthOf(id, memo); d > maxDepth {
			maxDepth = d
		}
	}

	byDepth := make([][]string, maxDepth+1)
	for _, id := range ids {
		d := memo[id]
		byDepth[d] = append(byDepth[d], id)
	}

	levels := make([]Level, 0, len(byDepth))
	for depth, members := range byDepth {
		if len(members) == 0 {
			continue
		}
		sort.Strings(members)
		levels = append(levels, Level{Depth: depth, TaskIDs: members})
	}
	return levels
}

type depthFrame struct {
	id   string
	next int
	max  int
}

// depthOf computes the memoized dependency depth of id with an explicit
// stack; deep dependency chains must not grow the call stack.
func (g *Graph) depthOf(id string, memo map[string]int) int {
	if d, ok := memo[id]; ok {
		return d
	}

	stack := []depthFrame{{id: id}}
	for len(stack) > 0 {
		top := len(stack) - 1
		t := g.tasks[stack[top].id]

		if stack[top].next < len(t.Dependencies) {
			dep := t.Dependencies[stack[top].next]
			stack[top].next++

			if d, ok := memo[dep]; ok {
				if d+1 > stack[top].max {
					stack[top].max = d + 1
				}
				continue
			}
			stack = append(stack, depthFrame{id: dep})
			continue
		}

		finished := stack[top]
		memo[finished.id] = finished.max
		stack = stack[:top]
		if top > 0 && finished.max+1 > stack[top-1].max {
			stack[top-1].max = finished.max + 1
		}
	}
	return memo[id]
}
