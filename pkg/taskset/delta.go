package taskset

import "fmt"

// DeltaKind selects the graph mutation a Delta describes.
type DeltaKind string

const (
	DeltaCreateNode   DeltaKind = "create_node"
	DeltaUpdateStatus DeltaKind = "update_node_status"
	DeltaUpdateField  DeltaKind = "update_node_field"
	DeltaCreateEdge   DeltaKind = "create_edge"
	DeltaCompound     DeltaKind = "compound"
)

// Delta is the declarative mutation a task applies to the workflow graph
// when it completes. It is a tagged union: which fields are read depends
// on Kind.
type Delta struct {
	Kind DeltaKind `yaml:"type" json:"type"`

	// create_node
	NodeType      string         `yaml:"node_type,omitempty" json:"node_type,omitempty"`
	InitialStatus string         `yaml:"initial_status,omitempty" json:"initial_status,omitempty"`
	InitialValues map[string]any `yaml:"initial_values,omitempty" json:"initial_values,omitempty"`

	// update_node_status / update_node_field
	Target *NodeRef `yaml:"target,omitempty" json:"target,omitempty"`
	// FromStatus guards update_node_status: when non-empty the node's
	// current status must be one of these.
	FromStatus []string `yaml:"from_status,omitempty" json:"from_status,omitempty"`
	ToStatus   string   `yaml:"to_status,omitempty" json:"to_status,omitempty"`
	FieldKey   string   `yaml:"field_key,omitempty" json:"field_key,omitempty"`
	Value      any      `yaml:"value,omitempty" json:"value,omitempty"`
	// Expected guards update_node_field: when non-nil the field's current
	// value must equal it.
	Expected any `yaml:"expected,omitempty" json:"expected,omitempty"`
	// CaptureTarget records the resolved target node as the delta's output.
	CaptureTarget bool `yaml:"capture_target,omitempty" json:"capture_target,omitempty"`

	// create_edge
	EdgeType string   `yaml:"edge_type,omitempty" json:"edge_type,omitempty"`
	From     *NodeRef `yaml:"from,omitempty" json:"from,omitempty"`
	To       *NodeRef `yaml:"to,omitempty" json:"to,omitempty"`

	// compound
	Steps []DeltaStep `yaml:"steps,omitempty" json:"steps,omitempty"`
	// OutputStep names the step whose produced node becomes the compound's
	// output. Empty means the compound records no output.
	OutputStep string `yaml:"output_step,omitempty" json:"output_step,omitempty"`
}

// DeltaStep is one ordered piece of a compound delta. Key is the handle
// later steps use in step_output references.
type DeltaStep struct {
	Key   string `yaml:"key" json:"key"`
	Label string `yaml:"label,omitempty" json:"label,omitempty"`
	Delta Delta  `yaml:"delta" json:"delta"`
}

// refs returns the node references the delta reads, for validation.
func (d *Delta) refs() []*NodeRef {
	var out []*NodeRef
	for _, r := range []*NodeRef{d.Target, d.From, d.To} {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// producesNode reports whether applying the delta records an output node.
func (d *Delta) producesNode() bool {
	switch d.Kind {
	case DeltaCreateNode:
		return true
	case DeltaUpdateStatus, DeltaUpdateField:
		return d.CaptureTarget
	case DeltaCompound:
		return d.OutputStep != ""
	}
	return false
}

// Validate checks the per-kind required fields and, for compounds, the
// step structure: atomic steps only, unique keys, step_output references
// pointing at strictly earlier steps.
func (d *Delta) Validate() error {
	switch d.Kind {
	case DeltaCreateNode:
		if d.NodeType == "" {
			return fmt.Errorf("create_node requires node_type")
		}
	case DeltaUpdateStatus:
		if d.Target == nil {
			return fmt.Errorf("update_node_status requires target")
		}
		if err := d.Target.Validate(); err != nil {
			return fmt.Errorf("update_node_status target: %w", err)
		}
		if d.ToStatus == "" {
			return fmt.Errorf("update_node_status requires to_status")
		}
	case DeltaUpdateField:
		if d.Target == nil {
			return fmt.Errorf("update_node_field requires target")
		}
		if err := d.Target.Validate(); err != nil {
			return fmt.Errorf("update_node_field target: %w", err)
		}
		if d.FieldKey == "" {
			return fmt.Errorf("update_node_field requires field_key")
		}
	case DeltaCreateEdge:
		if d.EdgeType == "" {
			return fmt.Errorf("create_edge requires edge_type")
		}
		if d.CaptureTarget {
			return fmt.Errorf("capture_target is only valid for update deltas")
		}
		if d.From == nil || d.To == nil {
			return fmt.Errorf("create_edge requires from and to")
		}
		if err := d.From.Validate(); err != nil {
			return fmt.Errorf("create_edge from: %w", err)
		}
		if err := d.To.Validate(); err != nil {
			return fmt.Errorf("create_edge to: %w", err)
		}
	case DeltaCompound:
		return d.validateCompound()
	case "":
		return fmt.Errorf("delta type is required")
	default:
		return fmt.Errorf("unknown delta type %q", d.Kind)
	}
	return nil
}

func (d *Delta) validateCompound() error {
	if len(d.Steps) == 0 {
		return fmt.Errorf("compound requires at least one step")
	}
	seen := make(map[string]bool, len(d.Steps))
	for i, step := range d.Steps {
		if step.Key == "" {
			return fmt.Errorf("step %d: key is required", i)
		}
		if seen[step.Key] {
			return fmt.Errorf("step %d: duplicate key %q", i, step.Key)
		}
		if step.Delta.Kind == DeltaCompound {
			return fmt.Errorf("step %q: compound steps must be atomic", step.Key)
		}
		if err := step.Delta.Validate(); err != nil {
			return fmt.Errorf("step %q: %w", step.Key, err)
		}
		for _, ref := range step.Delta.refs() {
			if ref.Kind == RefStepOutput && !seen[ref.Step] {
				return fmt.Errorf("step %q: step_output reference %q does not name an earlier step", step.Key, ref.Step)
			}
		}
		seen[step.Key] = true
	}
	if d.OutputStep != "" {
		var found bool
		for _, step := range d.Steps {
			if step.Key == d.OutputStep {
				if !step.Delta.producesNode() {
					return fmt.Errorf("output_step %q names a step that records no node", d.OutputStep)
				}
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("output_step %q does not name a step", d.OutputStep)
		}
	}
	return nil
}
