package taskset

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"loom/adapters/store"
)

// ApplyResult counts the effects of one delta application.
type ApplyResult struct {
	NodesCreated int    `json:"nodes_created"`
	NodesUpdated int    `json:"nodes_updated"`
	EdgesCreated int    `json:"edges_created"`
	OutputNodeID string `json:"output_node_id,omitempty"`
}

// applyDelta applies a delta against the graph through the resolver and
// returns the effect counts. vals is the completion-time payload: its
// entries override the delta's authored initial_values on node creation
// and supply the written value for update_node_field, keyed by field.
// Failures come back as *DeltaError. Compound steps run strictly in
// order; a failing step stops the run, and effects of earlier steps stay
// unless the caller wrapped the application in a store transaction.
func applyDelta(ctx context.Context, res *resolver, d *Delta, vals map[string]any) (*ApplyResult, error) {
	if d.Kind == DeltaCompound {
		return applyCompound(ctx, res, d, vals)
	}
	result := &ApplyResult{}
	if err := applyAtomic(ctx, res, d, vals, result); err != nil {
		return nil, &DeltaError{StepIndex: -1, Err: err}
	}
	return result, nil
}

func applyCompound(ctx context.Context, res *resolver, d *Delta, vals map[string]any) (*ApplyResult, error) {
	// Step outputs accumulate in a scoped copy of the resolver so later
	// steps can reference earlier ones via step_output.
	sub := *res
	sub.steps = make(map[string]string, len(d.Steps))

	result := &ApplyResult{}
	for i := range d.Steps {
		step := &d.Steps[i]
		var stepResult ApplyResult
		if err := applyAtomic(ctx, &sub, &step.Delta, vals, &stepResult); err != nil {
			return nil, &DeltaError{StepIndex: i, StepKey: step.Key, Err: err}
		}
		result.NodesCreated += stepResult.NodesCreated
		result.NodesUpdated += stepResult.NodesUpdated
		result.EdgesCreated += stepResult.EdgesCreated
		if stepResult.OutputNodeID != "" {
			sub.steps[step.Key] = stepResult.OutputNodeID
		}
	}
	if d.OutputStep != "" {
		result.OutputNodeID = sub.steps[d.OutputStep]
	}
	return result, nil
}

func applyAtomic(ctx context.Context, res *resolver, d *Delta, vals map[string]any, result *ApplyResult) error {
	switch d.Kind {
	case DeltaCreateNode:
		n, err := res.graph.CreateNode(ctx, d.NodeType, d.InitialStatus, mergeValues(d.InitialValues, vals))
		if err != nil {
			return err
		}
		result.NodesCreated++
		result.OutputNodeID = n.ID
		return nil

	case DeltaUpdateStatus:
		id, err := res.resolve(ctx, d.Target)
		if err != nil {
			return err
		}
		if len(d.FromStatus) > 0 {
			current, err := res.graph.GetStatus(ctx, id)
			if err != nil {
				return mapStoreErr(err)
			}
			if !slices.Contains(d.FromStatus, current) {
				return fmt.Errorf("%w: node %s has status %q, want one of %v",
					ErrPreconditionFailed, id, current, d.FromStatus)
			}
		}
		if err := res.graph.SetStatus(ctx, id, d.ToStatus); err != nil {
			return mapStoreErr(err)
		}
		result.NodesUpdated++
		if d.CaptureTarget {
			result.OutputNodeID = id
		}
		return nil

	case DeltaUpdateField:
		id, err := res.resolve(ctx, d.Target)
		if err != nil {
			return err
		}
		if d.Expected != nil {
			node, err := res.graph.GetNode(ctx, id)
			if err != nil {
				return mapStoreErr(err)
			}
			got, ok := node.Fields[d.FieldKey]
			if !ok || !looseEqual(got, d.Expected) {
				return fmt.Errorf("%w: node %s field %q is %v, want %v",
					ErrPreconditionFailed, id, d.FieldKey, got, d.Expected)
			}
		}
		value, ok := vals[d.FieldKey]
		if !ok {
			if d.Value == nil {
				return fmt.Errorf("update_node_field %q: no value in completion payload and no authored default", d.FieldKey)
			}
			value = d.Value
		}
		if err := res.graph.SetField(ctx, id, d.FieldKey, value); err != nil {
			return mapStoreErr(err)
		}
		result.NodesUpdated++
		if d.CaptureTarget {
			result.OutputNodeID = id
		}
		return nil

	case DeltaCreateEdge:
		from, err := res.resolve(ctx, d.From)
		if err != nil {
			return err
		}
		to, err := res.resolve(ctx, d.To)
		if err != nil {
			return err
		}
		if _, err := res.graph.CreateEdge(ctx, d.EdgeType, from, to); err != nil {
			return mapStoreErr(err)
		}
		result.EdgesCreated++
		return nil
	}
	return fmt.Errorf("unknown delta type %q", d.Kind)
}

// mergeValues lays the completion payload over the authored defaults.
// Returns nil when both are empty so stores see the same shape as an
// authored delta without initial_values.
func mergeValues(authored, payload map[string]any) map[string]any {
	if len(payload) == 0 {
		return authored
	}
	merged := make(map[string]any, len(authored)+len(payload))
	for k, v := range authored {
		merged[k] = v
	}
	for k, v := range payload {
		merged[k] = v
	}
	return merged
}

// mapStoreErr lifts a store not-found into the engine's taxonomy so
// callers can errors.Is against ErrNotFound without importing the store.
func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
