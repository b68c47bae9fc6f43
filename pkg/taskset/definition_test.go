package taskset

import (
	"errors"
	"strings"
	"testing"
)

func validDef() *Definition {
	return &Definition{
		ID: "release", Name: "Release", Version: 1, RootNodeType: "release",
		Tasks: []Task{
			{ID: "build", Name: "Build", Assignee: AssigneeAgent, Delta: &Delta{
				Kind: DeltaCreateNode, NodeType: "artifact", InitialStatus: "built",
			}},
			{ID: "test", Name: "Test", DependsOn: []string{"build"}, Condition: &Condition{
				Kind: CondNodeStatus,
				Node: &NodeRef{Kind: RefTaskOutput, Task: "build"},
				Expected: []string{"built"},
			}},
			{ID: "ship", Name: "Ship", Assignee: AssigneeUser, DependsOn: []string{"test"}, Delta: &Delta{
				Kind:     DeltaUpdateStatus,
				Target:   &NodeRef{Kind: RefTaskOutput, Task: "build"},
				ToStatus: "shipped",
			}},
		},
	}
}

// --- Structural validation tests ---

func TestDefinitionValidate_OK(t *testing.T) {
	if err := validDef().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestDefinitionValidate_GlobalScope(t *testing.T) {
	def := validDef()
	def.RootNodeType = ""
	if err := def.Validate(); err != nil {
		t.Fatalf("Validate without root_node_type: %v", err)
	}
}

func TestDefinitionValidate_Structural(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Definition)
		wantErr string
	}{
		{"missing id", func(d *Definition) { d.ID = "" }, "id is required"},
		{"version zero", func(d *Definition) { d.Version = 0 }, "version"},
		{"no tasks", func(d *Definition) { d.Tasks = nil }, "at least one task"},
		{"task without id", func(d *Definition) { d.Tasks[0].ID = "" }, "has no id"},
		{"duplicate task id", func(d *Definition) { d.Tasks[1].ID = "build" }, "duplicate task id"},
		{"bad assignee", func(d *Definition) { d.Tasks[0].Assignee = "robot" }, "unknown assignee"},
		{"self dependency", func(d *Definition) { d.Tasks[0].DependsOn = []string{"build"} }, "depends on itself"},
		{"unknown dependency", func(d *Definition) { d.Tasks[1].DependsOn = []string{"ghost"} }, "unknown task"},
		{"duplicate dependency", func(d *Definition) { d.Tasks[2].DependsOn = []string{"test", "test"} }, "twice"},
		{
			"invalid condition",
			func(d *Definition) { d.Tasks[1].Condition = &Condition{Kind: CondNodeStatus} },
			"condition",
		},
		{
			"invalid delta",
			func(d *Definition) { d.Tasks[0].Delta = &Delta{Kind: DeltaCreateNode} },
			"delta",
		},
		{
			"task_output of unknown task",
			func(d *Definition) {
				d.Tasks[2].Delta.Target = &NodeRef{Kind: RefTaskOutput, Task: "ghost"}
			},
			"unknown task",
		},
		{
			"step_output outside compound",
			func(d *Definition) {
				d.Tasks[2].Delta.Target = &NodeRef{Kind: RefStepOutput, Step: "s"}
			},
			"step_output",
		},
	}
	for _, tc := range cases {
		def := validDef()
		tc.mutate(def)
		err := def.Validate()
		if err == nil {
			t.Errorf("%s: Validate() = nil, want error containing %q", tc.name, tc.wantErr)
			continue
		}
		if !errors.Is(err, ErrInvalidDefinition) {
			t.Errorf("%s: error %v does not wrap ErrInvalidDefinition", tc.name, err)
		}
		if !strings.Contains(err.Error(), tc.wantErr) {
			t.Errorf("%s: Validate() = %v, want error containing %q", tc.name, err, tc.wantErr)
		}
	}
}

func TestDefinitionValidate_Cycle(t *testing.T) {
	def := validDef()
	def.Tasks[0].DependsOn = []string{"ship"}
	err := def.Validate()
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
}

func TestDefinitionValidate_CompoundStepTaskRefs(t *testing.T) {
	def := validDef()
	def.Tasks[2].Delta = &Delta{
		Kind: DeltaCompound,
		Steps: []DeltaStep{
			{Key: "note", Delta: Delta{Kind: DeltaCreateNode, NodeType: "note"}},
			{Key: "link", Delta: Delta{
				Kind: DeltaCreateEdge, EdgeType: "annotates",
				From: &NodeRef{Kind: RefStepOutput, Step: "note"},
				To:   &NodeRef{Kind: RefTaskOutput, Task: "missing"},
			}},
		},
	}
	err := def.Validate()
	if err == nil || !strings.Contains(err.Error(), "unknown task") {
		t.Fatalf("compound step task_output should be checked, got %v", err)
	}
}

// --- Lookup tests ---

func TestDefinitionTask(t *testing.T) {
	def := validDef()
	if got := def.Task("test"); got == nil || got.ID != "test" {
		t.Errorf("Task(test) = %+v", got)
	}
	if got := def.Task("ghost"); got != nil {
		t.Errorf("Task(ghost) = %+v, want nil", got)
	}
}
