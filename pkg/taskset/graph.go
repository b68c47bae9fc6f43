package taskset

import (
	"fmt"
	"strings"
)

// DepGraph is the dependency structure of one definition, computed once at
// build time: forward and reverse adjacency plus the layer decomposition.
// All slices preserve definition order for deterministic iteration.
type DepGraph struct {
	order      []string
	deps       map[string][]string
	dependents map[string][]string
	layers     [][]string
}

// BuildGraph checks dependency references and acyclicity and computes the
// layer decomposition by iterative peeling: each pass removes every task
// whose dependencies are all already peeled, forming one layer. A pass
// that removes nothing while tasks remain means those tasks form or
// depend on a cycle; the error names them.
func BuildGraph(def *Definition) (*DepGraph, error) {
	g := &DepGraph{
		deps:       make(map[string][]string, len(def.Tasks)),
		dependents: make(map[string][]string, len(def.Tasks)),
	}
	for i := range def.Tasks {
		t := &def.Tasks[i]
		g.order = append(g.order, t.ID)
		g.deps[t.ID] = append([]string(nil), t.DependsOn...)
	}
	for i := range def.Tasks {
		t := &def.Tasks[i]
		for _, dep := range t.DependsOn {
			if _, ok := g.deps[dep]; !ok {
				return nil, invalidf("task %q depends on unknown task %q", t.ID, dep)
			}
			g.dependents[dep] = append(g.dependents[dep], t.ID)
		}
	}

	remaining := make(map[string]bool, len(g.order))
	for _, id := range g.order {
		remaining[id] = true
	}
	peeled := make(map[string]bool, len(g.order))
	for len(remaining) > 0 {
		var layer []string
		for _, id := range g.order {
			if !remaining[id] {
				continue
			}
			ready := true
			for _, dep := range g.deps[id] {
				if !peeled[dep] {
					ready = false
					break
				}
			}
			if ready {
				layer = append(layer, id)
			}
		}
		if len(layer) == 0 {
			var stuck []string
			for _, id := range g.order {
				if remaining[id] {
					stuck = append(stuck, id)
				}
			}
			return nil, fmt.Errorf("%w: unresolved tasks: %s", ErrCycle, strings.Join(stuck, ", "))
		}
		for _, id := range layer {
			peeled[id] = true
			delete(remaining, id)
		}
		g.layers = append(g.layers, layer)
	}
	return g, nil
}

// Layers returns tasks grouped by dependency depth: layer 0 has no
// dependencies, layer n depends only on earlier layers. Within a layer,
// definition order. The result is a copy.
func (g *DepGraph) Layers() [][]string {
	out := make([][]string, len(g.layers))
	for i, layer := range g.layers {
		out[i] = append([]string(nil), layer...)
	}
	return out
}

// Order returns all task IDs in definition order.
func (g *DepGraph) Order() []string {
	return append([]string(nil), g.order...)
}

// Dependencies returns the direct dependencies of a task in definition order.
func (g *DepGraph) Dependencies(id string) []string {
	return append([]string(nil), g.deps[id]...)
}

// Dependents returns the tasks that depend directly on id, in definition order.
func (g *DepGraph) Dependents(id string) []string {
	return append([]string(nil), g.dependents[id]...)
}

// Entry returns the tasks with no dependencies (layer 0).
func (g *DepGraph) Entry() []string {
	if len(g.layers) == 0 {
		return nil
	}
	return append([]string(nil), g.layers[0]...)
}

// Terminal returns the tasks nothing depends on, in definition order.
func (g *DepGraph) Terminal() []string {
	var out []string
	for _, id := range g.order {
		if len(g.dependents[id]) == 0 {
			out = append(out, id)
		}
	}
	return out
}
