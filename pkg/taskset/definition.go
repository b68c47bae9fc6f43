package taskset

import "fmt"

// AssigneeKind hints who performs a task. The engine records assignments
// and never interprets them.
type AssigneeKind string

const (
	AssigneeUser       AssigneeKind = "user"
	AssigneeAgent      AssigneeKind = "agent"
	AssigneeUnassigned AssigneeKind = "unassigned"
)

// Task is one authored task in a Definition: what it depends on, whether a
// condition gates it, and the delta applied when it completes. A nil Delta
// means completing the task changes nothing in the graph.
type Task struct {
	ID          string       `yaml:"id" json:"id"`
	Name        string       `yaml:"name" json:"name"`
	Description string       `yaml:"description,omitempty" json:"description,omitempty"`
	Assignee    AssigneeKind `yaml:"assignee,omitempty" json:"assignee,omitempty"`
	DependsOn   []string     `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Condition   *Condition   `yaml:"condition,omitempty" json:"condition,omitempty"`
	Delta       *Delta       `yaml:"delta,omitempty" json:"delta,omitempty"`
}

// Definition is an authored TaskSet: a named, versioned list of tasks
// wired by dependency edges. RootNodeType, when set, requires every
// instance to be scoped to a root node of that type; without it,
// instances run globally over the whole graph. Definitions are immutable
// once instantiated; edits land in a new version.
type Definition struct {
	ID           string   `yaml:"id" json:"id"`
	Name         string   `yaml:"name" json:"name"`
	Description  string   `yaml:"description,omitempty" json:"description,omitempty"`
	Version      int      `yaml:"version" json:"version"`
	RootNodeType string   `yaml:"root_node_type,omitempty" json:"root_node_type,omitempty"`
	Tags         []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Tasks        []Task   `yaml:"tasks" json:"tasks"`
}

// invalidf wraps a structural validation failure in ErrInvalidDefinition.
func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidDefinition}, args...)...)
}

// Task returns the task with the given ID, or nil.
func (d *Definition) Task(id string) *Task {
	for i := range d.Tasks {
		if d.Tasks[i].ID == id {
			return &d.Tasks[i]
		}
	}
	return nil
}

// Validate checks the definition structurally: IDs, dependency references,
// conditions, deltas, and acyclicity. Returns ErrInvalidDefinition or
// ErrCycle wrapped with detail. A valid definition instantiates cleanly.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return invalidf("definition id is required")
	}
	if d.Version < 1 {
		return invalidf("definition %q: version must be >= 1", d.ID)
	}
	if len(d.Tasks) == 0 {
		return invalidf("definition %q: at least one task is required", d.ID)
	}

	ids := make(map[string]bool, len(d.Tasks))
	for i := range d.Tasks {
		t := &d.Tasks[i]
		if t.ID == "" {
			return invalidf("definition %q: task %d has no id", d.ID, i)
		}
		if ids[t.ID] {
			return invalidf("definition %q: duplicate task id %q", d.ID, t.ID)
		}
		ids[t.ID] = true

		switch t.Assignee {
		case "", AssigneeUser, AssigneeAgent, AssigneeUnassigned:
		default:
			return invalidf("task %q: unknown assignee %q", t.ID, t.Assignee)
		}
	}

	for i := range d.Tasks {
		t := &d.Tasks[i]
		seen := make(map[string]bool, len(t.DependsOn))
		for _, dep := range t.DependsOn {
			if dep == t.ID {
				return invalidf("task %q depends on itself", t.ID)
			}
			if !ids[dep] {
				return invalidf("task %q depends on unknown task %q", t.ID, dep)
			}
			if seen[dep] {
				return invalidf("task %q lists dependency %q twice", t.ID, dep)
			}
			seen[dep] = true
		}

		if t.Condition != nil {
			if err := t.Condition.Validate(); err != nil {
				return invalidf("task %q condition: %v", t.ID, err)
			}
			if err := checkTaskRefs(t.Condition.refs(), ids, t.ID); err != nil {
				return err
			}
		}
		if t.Delta != nil {
			if err := t.Delta.Validate(); err != nil {
				return invalidf("task %q delta: %v", t.ID, err)
			}
			if t.Delta.Kind != DeltaCompound {
				for _, ref := range t.Delta.refs() {
					if ref.Kind == RefStepOutput {
						return invalidf("task %q delta: step_output reference outside a compound delta", t.ID)
					}
				}
			}
			if err := checkTaskRefs(deltaTaskRefs(t.Delta), ids, t.ID); err != nil {
				return err
			}
		}
	}

	// Acyclicity: building the graph runs the peel.
	if _, err := BuildGraph(d); err != nil {
		return err
	}
	return nil
}

// checkTaskRefs verifies that every task_output reference names a task
// defined in this definition.
func checkTaskRefs(refs []*NodeRef, ids map[string]bool, taskID string) error {
	for _, ref := range refs {
		if ref.Kind == RefTaskOutput && !ids[ref.Task] {
			return invalidf("task %q references output of unknown task %q", taskID, ref.Task)
		}
	}
	return nil
}

// deltaTaskRefs collects refs from a delta including compound steps.
func deltaTaskRefs(d *Delta) []*NodeRef {
	out := d.refs()
	for i := range d.Steps {
		out = append(out, d.Steps[i].Delta.refs()...)
	}
	return out
}
