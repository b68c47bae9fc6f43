package taskset

import (
	"fmt"
	"strings"
)

// Render generates a Mermaid flowchart for a definition's task DAG.
// Layers become subgraphs so the parallel structure is visible at a
// glance; conditional tasks render as hexagons.
func Render(def *Definition) (string, error) {
	g, err := BuildGraph(def)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("graph LR\n")
	for i, layer := range g.layers {
		fmt.Fprintf(&b, "    subgraph tier_%d [Tier %d]\n", i+1, i+1)
		for _, id := range layer {
			t := def.Task(id)
			label := t.Name
			if label == "" {
				label = id
			}
			if t.Condition != nil {
				fmt.Fprintf(&b, "        %s{{\"%s\"}}\n", sanitizeID(id), label)
			} else {
				fmt.Fprintf(&b, "        %s[\"%s\"]\n", sanitizeID(id), label)
			}
		}
		b.WriteString("    end\n")
	}
	for _, id := range g.order {
		for _, dep := range g.deps[id] {
			fmt.Fprintf(&b, "    %s --> %s\n", sanitizeID(dep), sanitizeID(id))
		}
	}
	return b.String(), nil
}

func sanitizeID(s string) string {
	return strings.ReplaceAll(s, "-", "_")
}
