package display

import "testing"

func TestTaskStatus(t *testing.T) {
	cases := []struct {
		code, want string
	}{
		{"pending", "Pending"},
		{"available", "Available"},
		{"in_progress", "In Progress"},
		{"completed", "Completed"},
		{"skipped", "Skipped"},
		{"blocked", "Blocked"},
		{"unknown", "unknown"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := TaskStatus(tc.code); got != tc.want {
			t.Errorf("TaskStatus(%q) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestTaskStatusWithCode(t *testing.T) {
	if got := TaskStatusWithCode("in_progress"); got != "In Progress (in_progress)" {
		t.Errorf("got %q", got)
	}
	if got := TaskStatusWithCode("unknown"); got != "unknown" {
		t.Errorf("got %q", got)
	}
}

func TestInstanceStatus(t *testing.T) {
	cases := []struct {
		code, want string
	}{
		{"active", "Active"},
		{"completed", "Completed"},
		{"paused", "Paused"},
		{"cancelled", "Cancelled"},
		{"limbo", "limbo"},
	}
	for _, tc := range cases {
		if got := InstanceStatus(tc.code); got != tc.want {
			t.Errorf("InstanceStatus(%q) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestEvent(t *testing.T) {
	cases := []struct {
		code, want string
	}{
		{"instance_created", "Instance Created"},
		{"instance_completed", "Instance Completed"},
		{"instance_paused", "Instance Paused"},
		{"instance_resumed", "Instance Resumed"},
		{"instance_cancelled", "Instance Cancelled"},
		{"task_available", "Task Available"},
		{"task_started", "Task Started"},
		{"task_completed", "Task Completed"},
		{"task_skipped", "Task Skipped"},
		{"task_blocked", "Task Blocked"},
		{"condition_error", "Condition Error"},
		{"big_bang", "big_bang"},
	}
	for _, tc := range cases {
		if got := Event(tc.code); got != tc.want {
			t.Errorf("Event(%q) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestDeltaKind(t *testing.T) {
	if got := DeltaKind("create_node"); got != "Create Node" {
		t.Errorf("got %q", got)
	}
	if got := DeltaKind("compound"); got != "Compound" {
		t.Errorf("got %q", got)
	}
	if got := DeltaKind("teleport"); got != "teleport" {
		t.Errorf("got %q", got)
	}
}

func TestConditionKind(t *testing.T) {
	if got := ConditionKind("edge_exists"); got != "Edge Exists" {
		t.Errorf("got %q", got)
	}
	if got := ConditionKind("expression"); got != "Expression" {
		t.Errorf("got %q", got)
	}
	if got := ConditionKind("vibes"); got != "vibes" {
		t.Errorf("got %q", got)
	}
}

func TestAssignee(t *testing.T) {
	cases := []struct {
		code, want string
	}{
		{"user", "User"},
		{"agent", "Agent"},
		{"any", "Any"},
		{"", "Any"},
		{"cron", "cron"},
	}
	for _, tc := range cases {
		if got := Assignee(tc.code); got != tc.want {
			t.Errorf("Assignee(%q) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestAssigneeTag(t *testing.T) {
	if got := AssigneeTag("agent", "bot-7"); got != "bot-7 [agent]" {
		t.Errorf("got %q", got)
	}
	if got := AssigneeTag("", "carol"); got != "carol" {
		t.Errorf("got %q", got)
	}
	if got := AssigneeTag("user", ""); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestTaskPath(t *testing.T) {
	got := TaskPath([]string{"triage", "mitigate", "postmortem"})
	want := "triage → mitigate → postmortem"
	if got != want {
		t.Errorf("TaskPath = %q, want %q", got, want)
	}
	if got := TaskPath(nil); got != "" {
		t.Errorf("TaskPath(nil) = %q, want empty", got)
	}
}

func TestProgress(t *testing.T) {
	cases := []struct {
		completed, skipped, total int
		want                      string
	}{
		{3, 0, 5, "3/5 done"},
		{2, 1, 5, "3/5 done, 1 skipped"},
		{0, 0, 4, "0/4 done"},
		{4, 0, 4, "4/4 done"},
	}
	for _, tc := range cases {
		if got := Progress(tc.completed, tc.skipped, tc.total); got != tc.want {
			t.Errorf("Progress(%d, %d, %d) = %q, want %q", tc.completed, tc.skipped, tc.total, got, tc.want)
		}
	}
}
