package taskset

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"loom/adapters/store"
)

// CondKind selects what a Condition checks.
type CondKind string

const (
	CondNodeStatus CondKind = "node_status"
	CondFieldValue CondKind = "field_value"
	CondEdgeExists CondKind = "edge_exists"
	CondExpression CondKind = "expression"
)

// Operator compares a field value in a field_value condition.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNeq      Operator = "neq"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpContains Operator = "contains"
	OpExists   Operator = "exists"
	OpAbsent   Operator = "absent"
)

// Condition gates a task: evaluated against live graph state once the task
// becomes dependency-satisfied. False means the task is skipped, not held.
type Condition struct {
	Kind CondKind `yaml:"type" json:"type"`

	// node_status / field_value
	Node *NodeRef `yaml:"node,omitempty" json:"node,omitempty"`
	// Expected is the any-of status set for node_status.
	Expected []string `yaml:"expected,omitempty" json:"expected,omitempty"`

	// field_value
	FieldKey string   `yaml:"field_key,omitempty" json:"field_key,omitempty"`
	Op       Operator `yaml:"op,omitempty" json:"op,omitempty"`
	Value    any      `yaml:"value,omitempty" json:"value,omitempty"`

	// edge_exists
	EdgeType string   `yaml:"edge_type,omitempty" json:"edge_type,omitempty"`
	From     *NodeRef `yaml:"from,omitempty" json:"from,omitempty"`
	To       *NodeRef `yaml:"to,omitempty" json:"to,omitempty"`

	// expression: a boolean expr program over root, status(id),
	// field(id, key), output(task), exists(id), edge(type, from, to).
	Expr string `yaml:"expr,omitempty" json:"expr,omitempty"`
}

func (c *Condition) refs() []*NodeRef {
	var out []*NodeRef
	for _, r := range []*NodeRef{c.Node, c.From, c.To} {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// Validate checks per-kind required fields and compiles expressions so
// syntax errors surface at author time.
func (c *Condition) Validate() error {
	for _, ref := range c.refs() {
		if ref.Kind == RefStepOutput {
			return fmt.Errorf("conditions cannot use step_output references")
		}
	}
	switch c.Kind {
	case CondNodeStatus:
		if c.Node == nil {
			return fmt.Errorf("node_status requires node")
		}
		if err := c.Node.Validate(); err != nil {
			return fmt.Errorf("node_status node: %w", err)
		}
		if len(c.Expected) == 0 {
			return fmt.Errorf("node_status requires expected statuses")
		}
	case CondFieldValue:
		if c.Node == nil {
			return fmt.Errorf("field_value requires node")
		}
		if err := c.Node.Validate(); err != nil {
			return fmt.Errorf("field_value node: %w", err)
		}
		if c.FieldKey == "" {
			return fmt.Errorf("field_value requires field_key")
		}
		if err := validateOperator(c.Op); err != nil {
			return err
		}
	case CondEdgeExists:
		if c.EdgeType == "" {
			return fmt.Errorf("edge_exists requires edge_type")
		}
		if c.From == nil || c.To == nil {
			return fmt.Errorf("edge_exists requires from and to")
		}
		if err := c.From.Validate(); err != nil {
			return fmt.Errorf("edge_exists from: %w", err)
		}
		if err := c.To.Validate(); err != nil {
			return fmt.Errorf("edge_exists to: %w", err)
		}
	case CondExpression:
		if c.Expr == "" {
			return fmt.Errorf("expression requires expr")
		}
		if _, err := compileExpr(c.Expr); err != nil {
			return fmt.Errorf("expression: %w", err)
		}
	case "":
		return fmt.Errorf("condition type is required")
	default:
		return fmt.Errorf("unknown condition type %q", c.Kind)
	}
	return nil
}

func validateOperator(op Operator) error {
	switch op {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpContains, OpExists, OpAbsent:
		return nil
	case "":
		return fmt.Errorf("field_value requires op")
	}
	return fmt.Errorf("unknown operator %q", op)
}

// evalCondition reports whether the condition holds against live graph
// state. An error means the condition could not be evaluated at all
// (unresolvable reference, store failure, bad expression); the caller
// decides the failure policy.
func evalCondition(ctx context.Context, res *resolver, c *Condition) (bool, error) {
	switch c.Kind {
	case CondNodeStatus:
		id, err := res.resolve(ctx, c.Node)
		if err != nil {
			return false, err
		}
		status, err := res.graph.GetStatus(ctx, id)
		if err != nil {
			return false, err
		}
		return slices.Contains(c.Expected, status), nil

	case CondFieldValue:
		id, err := res.resolve(ctx, c.Node)
		if err != nil {
			return false, err
		}
		node, err := res.graph.GetNode(ctx, id)
		if err != nil {
			return false, err
		}
		got, ok := node.Fields[c.FieldKey]
		switch c.Op {
		case OpExists:
			return ok, nil
		case OpAbsent:
			return !ok, nil
		}
		if !ok {
			// A missing field fails every comparison.
			return false, nil
		}
		return compareValues(c.Op, got, c.Value)

	case CondEdgeExists:
		from, err := res.resolve(ctx, c.From)
		if err != nil {
			return false, err
		}
		to, err := res.resolve(ctx, c.To)
		if err != nil {
			return false, err
		}
		return res.graph.EdgeExists(ctx, c.EdgeType, from, to)

	case CondExpression:
		program, err := compileExpr(c.Expr)
		if err != nil {
			return false, fmt.Errorf("compile expression: %w", err)
		}
		out, err := expr.Run(program, exprEnv(ctx, res))
		if err != nil {
			return false, fmt.Errorf("evaluate expression: %w", err)
		}
		b, ok := out.(bool)
		if !ok {
			return false, fmt.Errorf("expression returned %T, want bool", out)
		}
		return b, nil
	}
	return false, fmt.Errorf("unknown condition type %q", c.Kind)
}

// exprEnvTemplate fixes the names and types available to expressions, so
// compilation can reject unknown identifiers at author time.
var exprEnvTemplate = map[string]any{
	"root":   "",
	"status": func(id string) (string, error) { return "", nil },
	"field":  func(id, key string) (any, error) { return nil, nil },
	"output": func(task string) (string, error) { return "", nil },
	"exists": func(id string) (bool, error) { return false, nil },
	"edge":   func(edgeType, from, to string) (bool, error) { return false, nil },
}

func compileExpr(src string) (*vm.Program, error) {
	return expr.Compile(src, expr.Env(exprEnvTemplate), expr.AsBool())
}

// exprEnv binds the template names to the live graph and instance context.
func exprEnv(ctx context.Context, res *resolver) map[string]any {
	return map[string]any{
		"root": res.rootID,
		"status": func(id string) (string, error) {
			return res.graph.GetStatus(ctx, id)
		},
		"field": func(id, key string) (any, error) {
			n, err := res.graph.GetNode(ctx, id)
			if err != nil {
				return nil, err
			}
			return n.Fields[key], nil
		},
		"output": func(task string) (string, error) {
			id, ok := res.outputs[task]
			if !ok || id == "" {
				return "", fmt.Errorf("no output recorded for task %q", task)
			}
			return id, nil
		},
		"exists": func(id string) (bool, error) {
			_, err := res.graph.GetStatus(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			return true, nil
		},
		"edge": func(edgeType, from, to string) (bool, error) {
			return res.graph.EdgeExists(ctx, edgeType, from, to)
		},
	}
}

func compareValues(op Operator, got, want any) (bool, error) {
	switch op {
	case OpEq:
		return looseEqual(got, want), nil
	case OpNeq:
		return !looseEqual(got, want), nil
	case OpGt, OpGte, OpLt, OpLte:
		gn, ok1 := toNumber(got)
		wn, ok2 := toNumber(want)
		if !ok1 || !ok2 {
			return false, fmt.Errorf("operator %s requires numeric operands", op)
		}
		switch op {
		case OpGt:
			return gn > wn, nil
		case OpGte:
			return gn >= wn, nil
		case OpLt:
			return gn < wn, nil
		default:
			return gn <= wn, nil
		}
	case OpContains:
		switch g := got.(type) {
		case string:
			w, ok := want.(string)
			if !ok {
				return false, fmt.Errorf("contains on a string field requires a string value")
			}
			return strings.Contains(g, w), nil
		case []any:
			for _, item := range g {
				if looseEqual(item, want) {
					return true, nil
				}
			}
			return false, nil
		}
		return false, fmt.Errorf("contains requires a string or list field, got %T", got)
	}
	return false, fmt.Errorf("unknown operator %q", op)
}

// looseEqual compares values with numeric coercion: JSON and YAML decoding
// produce a mix of int and float64 for the same written number.
func looseEqual(a, b any) bool {
	an, aok := toNumber(a)
	bn, bok := toNumber(b)
	if aok && bok {
		return an == bn
	}
	return reflect.DeepEqual(a, b)
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
