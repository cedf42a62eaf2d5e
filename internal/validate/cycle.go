package validate

import (
	"github.com/danieleschmidt/nerf-edge-sched/internal/task"
)

// DetectDependencyCycle detects a dependency cycle in the task set using a
// DFS with an explicit recursion stack. It returns the task IDs forming the
// first cycle found (first and last entry identical), or nil when the set
// is acyclic. Runtime is linear in tasks plus dependency edges.
func DetectDependencyCycle(tasks map[string]*task.Task) []string {
	visited := make(map[string]bool, len(tasks))
	recStack := make(map[string]bool, len(tasks))
	parent := make(map[string]string, len(tasks))

	var dfs func(id string) []string
	dfs = func(id string) []string {
		visited[id] = true
		recStack[id] = true

		t, ok := tasks[id]
		if !ok {
			recStack[id] = false
			return nil
		}

		for _, depID := range t.Dependencies {
			if _, ok := tasks[depID]; !ok {
				continue // unresolved references are reported separately
			}
			if !visited[depID] {
				parent[depID] = id
				if cycle := dfs(depID); cycle != nil {
					return cycle
				}
			} else if recStack[depID] {
				// Found a cycle - reconstruct it from the parent chain.
				cycle := []string{depID}
				current := id
				for current != depID {
					cycle = append([]string{current}, cycle...)
					current = parent[current]
				}
				cycle = append([]string{depID}, cycle...)
				return cycle
			}
		}

		recStack[id] = false
		return nil
	}

	// Iterate deterministically enough for stable tests: any start order
	// yields some concrete cycle if one exists.
	for id := range tasks {
		if !visited[id] {
			if cycle := dfs(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
