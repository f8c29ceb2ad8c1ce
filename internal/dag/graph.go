// Package dag runs named tasks in dependency order.
package dag

import (
	"context"
	"sort"
)

// Task is one node of the graph. Run must honour ctx.
//
// Every task in DependsOn must succeed before the task runs, otherwise it is
// skipped. Tasks in After only have to finish first; their outcome is ignored.
type Task struct {
	Name      string
	DependsOn []string
	After     []string
	Run       func(ctx context.Context) error
}

func (t Task) upstream() []string {
	return append(append([]string(nil), t.DependsOn...), t.After...)
}

// Graph is a validated, acyclic set of tasks grouped into topological levels.
// Tasks within a level do not depend on each other.
type Graph struct {
	tasks  []Task
	index  map[string]int
	levels [][]int
}

// New validates tasks and computes their levels. It rejects empty or duplicate
// names, unknown or self dependencies, missing Run funcs and cycles. Both
// edge kinds count for ordering.
func New(tasks []Task) (*Graph, error) {
	g := &Graph{
		tasks: append([]Task(nil), tasks...),
		index: make(map[string]int, len(tasks)),
	}
	for i, t := range g.tasks {
		if t.Name == "" {
			return nil, invalidf("task %d has no name", i)
		}
		if _, dup := g.index[t.Name]; dup {
			return nil, invalidf("duplicate task %q", t.Name)
		}
		if t.Run == nil {
			return nil, invalidf("task %q has no Run func", t.Name)
		}
		g.index[t.Name] = i
	}
	for _, t := range g.tasks {
		for _, dep := range t.upstream() {
			if dep == t.Name {
				return nil, invalidf("task %q depends on itself", t.Name)
			}
			if _, ok := g.index[dep]; !ok {
				return nil, invalidf("task %q depends on unknown task %q", t.Name, dep)
			}
		}
	}
	if err := g.computeLevels(); err != nil {
		return nil, err
	}
	return g, nil
}

// computeLevels runs Kahn's algorithm, keeping declaration order inside a level.
func (g *Graph) computeLevels() error {
	indeg := make([]int, len(g.tasks))
	children := make([][]int, len(g.tasks))
	for i, t := range g.tasks {
		for _, dep := range t.upstream() {
			d := g.index[dep]
			children[d] = append(children[d], i)
			indeg[i]++
		}
	}

	var current []int
	for i := range g.tasks {
		if indeg[i] == 0 {
			current = append(current, i)
		}
	}
	placed := 0
	for len(current) > 0 {
		g.levels = append(g.levels, current)
		placed += len(current)
		var next []int
		for _, n := range current {
			for _, c := range children[n] {
				indeg[c]--
				if indeg[c] == 0 {
					next = append(next, c)
				}
			}
		}
		sort.Ints(next)
		current = next
	}

	if placed != len(g.tasks) {
		var stuck []string
		for i, d := range indeg {
			if d > 0 {
				stuck = append(stuck, g.tasks[i].Name)
			}
		}
		sort.Strings(stuck)
		return cycleError(stuck)
	}
	return nil
}

// Levels returns task names per topological level.
func (g *Graph) Levels() [][]string {
	out := make([][]string, len(g.levels))
	for i, lvl := range g.levels {
		for _, n := range lvl {
			out[i] = append(out[i], g.tasks[n].Name)
		}
	}
	return out
}

// Order returns task names in execution order.
func (g *Graph) Order() []string {
	var out []string
	for _, lvl := range g.Levels() {
		out = append(out, lvl...)
	}
	return out
}

func (g *Graph) Len() int { return len(g.tasks) }
