package taskset

import (
	"context"
	"fmt"

	"loom/adapters/store"
)

// RefKind selects how a NodeRef is resolved.
type RefKind string

const (
	// RefID names a concrete node by its graph ID.
	RefID RefKind = "id"
	// RefTaskOutput names the output node recorded by a completed task in
	// the same instance.
	RefTaskOutput RefKind = "task_output"
	// RefQuery finds the node by type plus equality filters. Resolution
	// requires exactly one match.
	RefQuery RefKind = "query"
	// RefStepOutput names the node produced by an earlier step of the same
	// compound delta. Only meaningful during compound application.
	RefStepOutput RefKind = "step_output"
)

// NodeRef is an indirect name for a graph node. Which fields are read
// depends on Kind.
type NodeRef struct {
	Kind     RefKind        `yaml:"ref" json:"ref"`
	ID       string         `yaml:"id,omitempty" json:"id,omitempty"`
	Task     string         `yaml:"task,omitempty" json:"task,omitempty"`
	NodeType string         `yaml:"node_type,omitempty" json:"node_type,omitempty"`
	Filters  map[string]any `yaml:"filters,omitempty" json:"filters,omitempty"`
	Step     string         `yaml:"step,omitempty" json:"step,omitempty"`
}

func (r NodeRef) String() string {
	switch r.Kind {
	case RefID:
		return "id:" + r.ID
	case RefTaskOutput:
		return "task_output:" + r.Task
	case RefQuery:
		return "query:" + r.NodeType
	case RefStepOutput:
		return "step_output:" + r.Step
	}
	return string(r.Kind)
}

// Validate checks that the fields required by Kind are present.
func (r *NodeRef) Validate() error {
	switch r.Kind {
	case RefID:
		if r.ID == "" {
			return fmt.Errorf("id reference requires an id")
		}
	case RefTaskOutput:
		if r.Task == "" {
			return fmt.Errorf("task_output reference requires a task")
		}
	case RefQuery:
		if r.NodeType == "" {
			return fmt.Errorf("query reference requires a node_type")
		}
	case RefStepOutput:
		if r.Step == "" {
			return fmt.Errorf("step_output reference requires a step")
		}
	case "":
		return fmt.Errorf("node reference kind is required")
	default:
		return fmt.Errorf("unknown node reference kind %q", r.Kind)
	}
	return nil
}

// resolver turns NodeRefs into concrete node IDs. outputs maps task IDs to
// recorded output nodes; steps maps compound step keys to produced nodes
// and is nil outside compound application.
type resolver struct {
	graph   store.Graph
	rootID  string
	outputs map[string]string
	steps   map[string]string
}

func (r *resolver) resolve(ctx context.Context, ref *NodeRef) (string, error) {
	if ref == nil {
		return "", fmt.Errorf("%w: nil node reference", ErrNotFound)
	}
	switch ref.Kind {
	case RefID:
		// A literal id still has to name a live node.
		if _, err := r.graph.GetStatus(ctx, ref.ID); err != nil {
			return "", fmt.Errorf("resolve %s: %w", ref, mapStoreErr(err))
		}
		return ref.ID, nil
	case RefTaskOutput:
		id, ok := r.outputs[ref.Task]
		if !ok || id == "" {
			return "", fmt.Errorf("%w: no output recorded for task %q", ErrNotFound, ref.Task)
		}
		return id, nil
	case RefQuery:
		nodes, err := r.graph.QueryNodes(ctx, ref.NodeType, ref.Filters)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", ref, err)
		}
		if len(nodes) != 1 {
			return "", fmt.Errorf("%w: %s matched %d nodes, want exactly 1", ErrAmbiguousRef, ref, len(nodes))
		}
		return nodes[0].ID, nil
	case RefStepOutput:
		if r.steps == nil {
			return "", fmt.Errorf("%w: %s used outside a compound delta", ErrNotFound, ref)
		}
		id, ok := r.steps[ref.Step]
		if !ok || id == "" {
			return "", fmt.Errorf("%w: no output recorded for step %q", ErrNotFound, ref.Step)
		}
		return id, nil
	}
	return "", fmt.Errorf("%w: unknown reference kind %q", ErrNotFound, ref.Kind)
}
