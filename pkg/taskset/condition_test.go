package taskset

import (
	"context"
	"strings"
	"testing"

	"loom/adapters/store"
)

func condFixture(t *testing.T) (context.Context, *resolver, *store.Node) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemStore()
	root, err := st.CreateNode(ctx, "ticket", "open", map[string]any{
		"severity": 7,
		"title":    "payment gateway timeout",
		"labels":   []any{"backend", "urgent"},
	})
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	res := &resolver{graph: st, rootID: root.ID, outputs: map[string]string{}}
	return ctx, res, root
}

func mustEval(t *testing.T, ctx context.Context, res *resolver, c *Condition) bool {
	t.Helper()
	got, err := evalCondition(ctx, res, c)
	if err != nil {
		t.Fatalf("evalCondition: %v", err)
	}
	return got
}

// --- node_status tests ---

func TestEval_NodeStatus(t *testing.T) {
	ctx, res, root := condFixture(t)
	c := &Condition{
		Kind:     CondNodeStatus,
		Node:     &NodeRef{Kind: RefID, ID: root.ID},
		Expected: []string{"open", "reopened"},
	}
	if !mustEval(t, ctx, res, c) {
		t.Error("status open should match {open, reopened}")
	}

	c.Expected = []string{"closed"}
	if mustEval(t, ctx, res, c) {
		t.Error("status open should not match {closed}")
	}
}

func TestEval_NodeStatusMissingNode(t *testing.T) {
	ctx, res, _ := condFixture(t)
	c := &Condition{
		Kind:     CondNodeStatus,
		Node:     &NodeRef{Kind: RefID, ID: "ghost"},
		Expected: []string{"open"},
	}
	if _, err := evalCondition(ctx, res, c); err == nil {
		t.Error("expected error for missing node, got nil")
	}
}

// --- field_value tests ---

func TestEval_FieldValueOperators(t *testing.T) {
	ctx, res, root := condFixture(t)
	ref := &NodeRef{Kind: RefID, ID: root.ID}

	cases := []struct {
		name string
		cond Condition
		want bool
	}{
		{"eq match", Condition{Kind: CondFieldValue, Node: ref, FieldKey: "severity", Op: OpEq, Value: 7}, true},
		{"eq float vs int", Condition{Kind: CondFieldValue, Node: ref, FieldKey: "severity", Op: OpEq, Value: 7.0}, true},
		{"neq", Condition{Kind: CondFieldValue, Node: ref, FieldKey: "severity", Op: OpNeq, Value: 3}, true},
		{"gt true", Condition{Kind: CondFieldValue, Node: ref, FieldKey: "severity", Op: OpGt, Value: 5}, true},
		{"gt false", Condition{Kind: CondFieldValue, Node: ref, FieldKey: "severity", Op: OpGt, Value: 7}, false},
		{"gte boundary", Condition{Kind: CondFieldValue, Node: ref, FieldKey: "severity", Op: OpGte, Value: 7}, true},
		{"lt false", Condition{Kind: CondFieldValue, Node: ref, FieldKey: "severity", Op: OpLt, Value: 7}, false},
		{"lte boundary", Condition{Kind: CondFieldValue, Node: ref, FieldKey: "severity", Op: OpLte, Value: 7}, true},
		{"contains substring", Condition{Kind: CondFieldValue, Node: ref, FieldKey: "title", Op: OpContains, Value: "gateway"}, true},
		{"contains miss", Condition{Kind: CondFieldValue, Node: ref, FieldKey: "title", Op: OpContains, Value: "refund"}, false},
		{"contains list member", Condition{Kind: CondFieldValue, Node: ref, FieldKey: "labels", Op: OpContains, Value: "urgent"}, true},
		{"contains list miss", Condition{Kind: CondFieldValue, Node: ref, FieldKey: "labels", Op: OpContains, Value: "frontend"}, false},
		{"exists", Condition{Kind: CondFieldValue, Node: ref, FieldKey: "title", Op: OpExists}, true},
		{"exists miss", Condition{Kind: CondFieldValue, Node: ref, FieldKey: "ghost", Op: OpExists}, false},
		{"absent", Condition{Kind: CondFieldValue, Node: ref, FieldKey: "ghost", Op: OpAbsent}, true},
		{"missing field fails eq", Condition{Kind: CondFieldValue, Node: ref, FieldKey: "ghost", Op: OpEq, Value: 1}, false},
		{"missing field fails gt", Condition{Kind: CondFieldValue, Node: ref, FieldKey: "ghost", Op: OpGt, Value: 1}, false},
	}
	for _, tc := range cases {
		got, err := evalCondition(ctx, res, &tc.cond)
		if err != nil {
			t.Errorf("%s: evalCondition: %v", tc.name, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestEval_FieldValueNonNumericComparison(t *testing.T) {
	ctx, res, root := condFixture(t)
	c := &Condition{
		Kind:     CondFieldValue,
		Node:     &NodeRef{Kind: RefID, ID: root.ID},
		FieldKey: "title",
		Op:       OpGt,
		Value:    5,
	}
	if _, err := evalCondition(ctx, res, c); err == nil {
		t.Error("gt on a string field should error, got nil")
	}
}

// --- edge_exists tests ---

func TestEval_EdgeExists(t *testing.T) {
	ctx, res, root := condFixture(t)
	other, err := res.graph.CreateNode(ctx, "artifact", "ready", nil)
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	if _, err := res.graph.CreateEdge(ctx, "produces", root.ID, other.ID); err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}

	c := &Condition{
		Kind:     CondEdgeExists,
		EdgeType: "produces",
		From:     &NodeRef{Kind: RefID, ID: root.ID},
		To:       &NodeRef{Kind: RefID, ID: other.ID},
	}
	if !mustEval(t, ctx, res, c) {
		t.Error("edge produces should exist")
	}

	c.EdgeType = "blocks"
	if mustEval(t, ctx, res, c) {
		t.Error("edge blocks should not exist")
	}
}

// --- expression tests ---

func TestEval_Expression(t *testing.T) {
	ctx, res, root := condFixture(t)
	res.outputs["triage"] = root.ID

	cases := []struct {
		name string
		expr string
		want bool
	}{
		{"status of root", `status(root) == "open"`, true},
		{"field comparison", `field(root, "severity") >= 5`, true},
		{"field comparison false", `field(root, "severity") > 9`, false},
		{"boolean combination", `status(root) == "open" && field(root, "severity") > 3`, true},
		{"exists hit", `exists(root)`, true},
		{"exists miss", `exists("ghost")`, false},
		{"output lookup", `output("triage") == root`, true},
	}
	for _, tc := range cases {
		got, err := evalCondition(ctx, res, &Condition{Kind: CondExpression, Expr: tc.expr})
		if err != nil {
			t.Errorf("%s: evalCondition: %v", tc.name, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestEval_ExpressionEdgeHelper(t *testing.T) {
	ctx, res, root := condFixture(t)
	other, err := res.graph.CreateNode(ctx, "artifact", "ready", nil)
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	if _, err := res.graph.CreateEdge(ctx, "produces", root.ID, other.ID); err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}
	c := &Condition{Kind: CondExpression, Expr: `edge("produces", root, "` + other.ID + `")`}
	if !mustEval(t, ctx, res, c) {
		t.Error("edge helper should find the edge")
	}
}

func TestEval_ExpressionRuntimeError(t *testing.T) {
	ctx, res, _ := condFixture(t)
	c := &Condition{Kind: CondExpression, Expr: `status("ghost") == "open"`}
	if _, err := evalCondition(ctx, res, c); err == nil {
		t.Error("expected error for status of missing node, got nil")
	}
}

// --- validation tests ---

func TestConditionValidate(t *testing.T) {
	ref := &NodeRef{Kind: RefID, ID: "n1"}
	cases := []struct {
		name    string
		cond    Condition
		wantErr string
	}{
		{"node_status ok", Condition{Kind: CondNodeStatus, Node: ref, Expected: []string{"open"}}, ""},
		{"node_status no node", Condition{Kind: CondNodeStatus, Expected: []string{"open"}}, "requires node"},
		{"node_status no expected", Condition{Kind: CondNodeStatus, Node: ref}, "expected"},
		{"field_value ok", Condition{Kind: CondFieldValue, Node: ref, FieldKey: "k", Op: OpEq, Value: 1}, ""},
		{"field_value no op", Condition{Kind: CondFieldValue, Node: ref, FieldKey: "k"}, "requires op"},
		{"field_value bad op", Condition{Kind: CondFieldValue, Node: ref, FieldKey: "k", Op: "like"}, "unknown operator"},
		{"edge_exists ok", Condition{Kind: CondEdgeExists, EdgeType: "e", From: ref, To: ref}, ""},
		{"edge_exists no type", Condition{Kind: CondEdgeExists, From: ref, To: ref}, "edge_type"},
		{"expression ok", Condition{Kind: CondExpression, Expr: `status(root) == "open"`}, ""},
		{"expression empty", Condition{Kind: CondExpression}, "requires expr"},
		{"expression syntax", Condition{Kind: CondExpression, Expr: "status(root) =="}, "expression"},
		{"expression non-bool", Condition{Kind: CondExpression, Expr: "1 + 2"}, "expression"},
		{"expression unknown name", Condition{Kind: CondExpression, Expr: "nonsense(1)"}, "expression"},
		{"empty kind", Condition{}, "type is required"},
		{"unknown kind", Condition{Kind: "astrology"}, "unknown condition type"},
		{
			"step_output rejected",
			Condition{Kind: CondNodeStatus, Node: &NodeRef{Kind: RefStepOutput, Step: "s"}, Expected: []string{"x"}},
			"step_output",
		},
	}
	for _, tc := range cases {
		err := tc.cond.Validate()
		if tc.wantErr == "" {
			if err != nil {
				t.Errorf("%s: Validate() = %v, want nil", tc.name, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
			t.Errorf("%s: Validate() = %v, want error containing %q", tc.name, err, tc.wantErr)
		}
	}
}
