package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"loom/adapters/store"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func instanceIDFrom(t *testing.T, out string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "Instance:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "Instance:"))
		}
	}
	t.Fatalf("no instance ID in output:\n%s", out)
	return ""
}

// seedIncidentDB creates a graph database holding one incident node and
// returns the db path and node ID.
func seedIncidentDB(t *testing.T, dir string, severity int) (string, string) {
	t.Helper()
	dbPath := filepath.Join(dir, "loom.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()
	node, err := st.CreateNode(context.Background(), "incident", "open", map[string]any{
		"severity": severity,
	})
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	return dbPath, node.ID
}

func TestValidate_GoodAndBadFiles(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	bad := filepath.Join(dir, "bad.yaml")

	goodYAML := `
id: hotfix
name: Hotfix
version: 1
tasks:
  - id: patch
    name: Apply patch
    delta:
      type: create_node
      node_type: patch
      initial_status: applied
  - id: verify
    name: Verify
    depends_on: [patch]
`
	badYAML := `
id: tangle
name: Tangle
version: 1
tasks:
  - id: a
    name: A
    depends_on: [b]
  - id: b
    name: B
    depends_on: [a]
`
	if err := os.WriteFile(good, []byte(goodYAML), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte(badYAML), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, "validate", good)
	if err != nil {
		t.Fatalf("validate good: %v\n%s", err, out)
	}
	if !strings.Contains(out, "OK") || !strings.Contains(out, "hotfix v1, 2 tasks, 2 layers") {
		t.Fatalf("unexpected validate output:\n%s", out)
	}

	out, err = runCLI(t, "validate", good, bad)
	if err == nil {
		t.Fatalf("expected error for cyclic definition:\n%s", out)
	}
	if !strings.Contains(out, "FAIL "+bad) {
		t.Fatalf("expected FAIL line for %s:\n%s", bad, out)
	}
	if !strings.Contains(err.Error(), "1 of 2 files invalid") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateTaskStatus_PersistAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	snaps := filepath.Join(dir, "instances")
	dbPath, rootID := seedIncidentDB(t, dir, 8)

	out, err := runCLI(t, "create",
		"--definition", "incident-response", "--root", rootID, "--workflow", "wf-1",
		"--db", dbPath, "--snapshots", snaps)
	if err != nil {
		t.Fatalf("create: %v\n%s", err, out)
	}
	id := instanceIDFrom(t, out)
	if !strings.Contains(out, "Available:  triage") {
		t.Fatalf("expected triage available:\n%s", out)
	}

	// Each command runs against a fresh engine; state flows through the
	// graph db and the snapshot directory.
	out, err = runCLI(t, "task", "start",
		"--instance", id, "--task", "triage", "--assignee", "alice",
		"--db", dbPath, "--snapshots", snaps)
	if err != nil {
		t.Fatalf("task start: %v\n%s", err, out)
	}
	if !strings.Contains(out, "triage: In Progress (alice)") {
		t.Fatalf("unexpected start output:\n%s", out)
	}

	out, err = runCLI(t, "task", "complete",
		"--instance", id, "--task", "triage", "--by", "alice",
		"--db", dbPath, "--snapshots", snaps)
	if err != nil {
		t.Fatalf("task complete: %v\n%s", err, out)
	}
	if !strings.Contains(out, "triage: Completed") {
		t.Fatalf("unexpected complete output:\n%s", out)
	}
	if !strings.Contains(out, "Available: mitigate, escalate") {
		t.Fatalf("expected unlocked tasks:\n%s", out)
	}

	// List view first: the --instance flag sticks to the shared command
	// state once set, as cobra flags do across in-process runs.
	out, err = runCLI(t, "status", "--db", dbPath, "--snapshots", snaps)
	if err != nil {
		t.Fatalf("status list: %v\n%s", err, out)
	}
	if !strings.Contains(out, id) {
		t.Fatalf("instance missing from list:\n%s", out)
	}

	out, err = runCLI(t, "status", "--instance", id,
		"--db", dbPath, "--snapshots", snaps)
	if err != nil {
		t.Fatalf("status: %v\n%s", err, out)
	}
	if !strings.Contains(out, "1/4 done") {
		t.Fatalf("expected progress in footer:\n%s", out)
	}
	if !strings.Contains(out, "alice [user]") {
		t.Fatalf("expected assignee tag:\n%s", out)
	}
}

func TestTaskComplete_ValuePairs(t *testing.T) {
	dir := t.TempDir()
	snaps := filepath.Join(dir, "instances")
	dbPath, rootID := seedIncidentDB(t, dir, 2)

	out, err := runCLI(t, "create",
		"--definition", "incident-response", "--root", rootID,
		"--db", dbPath, "--snapshots", snaps)
	if err != nil {
		t.Fatalf("create: %v\n%s", err, out)
	}
	id := instanceIDFrom(t, out)

	out, err = runCLI(t, "task", "complete",
		"--instance", id, "--task", "triage",
		"--db", dbPath, "--snapshots", snaps,
		"template=incident-v3", "pages=2")
	if err != nil {
		t.Fatalf("task complete: %v\n%s", err, out)
	}

	// The pairs land on the created triage report node.
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()
	nodes, err := st.QueryNodes(context.Background(), "triage_report", nil)
	if err != nil || len(nodes) != 1 {
		t.Fatalf("expected one triage report, got %d (err %v)", len(nodes), err)
	}
	if nodes[0].Fields["template"] != "incident-v3" {
		t.Fatalf("pair should override authored value, got %v", nodes[0].Fields["template"])
	}
	if got, ok := nodes[0].Fields["pages"].(float64); !ok || got != 2 {
		t.Fatalf("numeric pair should decode as a number, got %#v", nodes[0].Fields["pages"])
	}
}

func TestDefinitionsAndGraph(t *testing.T) {
	snaps := t.TempDir()

	out, err := runCLI(t, "definitions", "--db", "", "--snapshots", snaps)
	if err != nil {
		t.Fatalf("definitions: %v\n%s", err, out)
	}
	if !strings.Contains(out, "incident-response") || !strings.Contains(out, "content-pipeline") {
		t.Fatalf("expected embedded samples listed:\n%s", out)
	}

	out, err = runCLI(t, "graph", "--definition", "incident-response",
		"--db", "", "--snapshots", snaps)
	if err != nil {
		t.Fatalf("graph: %v\n%s", err, out)
	}
	if !strings.Contains(out, "graph LR") {
		t.Fatalf("expected mermaid header:\n%s", out)
	}
	if !strings.Contains(out, "escalate{{") {
		t.Fatalf("conditional task should render as hexagon:\n%s", out)
	}
	if !strings.Contains(out, "triage --> mitigate") {
		t.Fatalf("expected dependency edge:\n%s", out)
	}
}

// --- helper tests ---

func TestParseValues(t *testing.T) {
	cases := []struct {
		name    string
		json    string
		pairs   []string
		want    map[string]any
		wantErr bool
	}{
		{name: "empty", want: nil},
		{name: "json only", json: `{"a": 1}`, want: map[string]any{"a": float64(1)}},
		{name: "pairs only", pairs: []string{"a=x", "n=8", "ok=true"},
			want: map[string]any{"a": "x", "n": float64(8), "ok": true}},
		{name: "pairs override json", json: `{"a": "old"}`, pairs: []string{"a=new"},
			want: map[string]any{"a": "new"}},
		{name: "bad json", json: `{`, wantErr: true},
		{name: "bad pair", pairs: []string{"novalue"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseValues(tc.json, tc.pairs)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseValues: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %#v, want %#v", got, tc.want)
			}
			for k, v := range tc.want {
				if got[k] != v {
					t.Errorf("key %q: got %#v, want %#v", k, got[k], v)
				}
			}
		})
	}
}
