package taskset

import (
	"errors"
	"strings"
	"testing"
)

func TestRender_DiamondFlowchart(t *testing.T) {
	def := diamondDef()
	def.Tasks[2].Condition = &Condition{
		Kind:     CondNodeStatus,
		Node:     &NodeRef{Kind: RefID, ID: "n"},
		Expected: []string{"open"},
	}
	def.Tasks[0].Name = "Start here"

	out, err := Render(def)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{
		"graph LR",
		"subgraph tier_1 [Tier 1]",
		"subgraph tier_2 [Tier 2]",
		"subgraph tier_3 [Tier 3]",
		`a["Start here"]`,
		`c{{"C"}}`,
		"a --> b",
		"b --> d",
		"c --> d",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRender_SanitizesIDs(t *testing.T) {
	def := &Definition{
		ID: "dashes", Version: 1, RootNodeType: "ticket",
		Tasks: []Task{
			{ID: "build-image"},
			{ID: "push-image", DependsOn: []string{"build-image"}},
		},
	}
	out, err := Render(def)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "build_image --> push_image") {
		t.Errorf("dashed IDs not sanitized:\n%s", out)
	}
	if strings.Contains(out, "build-image -->") {
		t.Errorf("raw dashed ID leaked into edges:\n%s", out)
	}
}

func TestRender_FallsBackToIDLabel(t *testing.T) {
	def := &Definition{
		ID: "bare", Version: 1, RootNodeType: "ticket",
		Tasks: []Task{{ID: "solo"}},
	}
	out, err := Render(def)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, `solo["solo"]`) {
		t.Errorf("missing fallback label:\n%s", out)
	}
}

func TestRender_CyclicDefinitionFails(t *testing.T) {
	def := &Definition{
		ID: "bad", Version: 1, RootNodeType: "ticket",
		Tasks: []Task{
			{ID: "x", DependsOn: []string{"y"}},
			{ID: "y", DependsOn: []string{"x"}},
		},
	}
	if _, err := Render(def); !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
}
