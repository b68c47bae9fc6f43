// Package display provides human-readable names for machine codes.
//
// Rule: code is for machines, words are for humans.
// Use these functions in CLI output, markdown reports, logs, and docs.
// Keep raw codes for JSON fields, map keys, and equality comparisons.
package display

import (
	"fmt"
	"strings"
)

// --- Task Statuses ---

var taskStatuses = map[string]string{
	"pending":     "Pending",
	"available":   "Available",
	"in_progress": "In Progress",
	"completed":   "Completed",
	"skipped":     "Skipped",
	"blocked":     "Blocked",
}

// TaskStatus returns the human-readable name for a task status code.
// Unknown codes are returned as-is.
func TaskStatus(code string) string {
	if name, ok := taskStatuses[code]; ok {
		return name
	}
	return code
}

// TaskStatusWithCode returns "In Progress (in_progress)" format.
func TaskStatusWithCode(code string) string {
	if name, ok := taskStatuses[code]; ok {
		return name + " (" + code + ")"
	}
	return code
}

// --- Instance Statuses ---

var instanceStatuses = map[string]string{
	"active":    "Active",
	"completed": "Completed",
	"paused":    "Paused",
	"cancelled": "Cancelled",
}

// InstanceStatus returns the human-readable name for an instance status code.
func InstanceStatus(code string) string {
	if name, ok := instanceStatuses[code]; ok {
		return name
	}
	return code
}

// --- Events ---

var events = map[string]string{
	"instance_created":   "Instance Created",
	"instance_completed": "Instance Completed",
	"instance_paused":    "Instance Paused",
	"instance_resumed":   "Instance Resumed",
	"instance_cancelled": "Instance Cancelled",
	"task_available":     "Task Available",
	"task_started":       "Task Started",
	"task_completed":     "Task Completed",
	"task_skipped":       "Task Skipped",
	"task_blocked":       "Task Blocked",
	"condition_error":    "Condition Error",
}

// Event returns the human-readable name for an engine event code.
// "task_completed" -> "Task Completed".
func Event(code string) string {
	if name, ok := events[code]; ok {
		return name
	}
	return code
}

// --- Delta Kinds ---

var deltaKinds = map[string]string{
	"create_node":        "Create Node",
	"update_node_status": "Update Node Status",
	"update_node_field":  "Update Node Field",
	"create_edge":        "Create Edge",
	"compound":           "Compound",
}

// DeltaKind returns the human-readable name for a delta kind.
func DeltaKind(code string) string {
	if name, ok := deltaKinds[code]; ok {
		return name
	}
	return code
}

// --- Condition Kinds ---

var conditionKinds = map[string]string{
	"node_status": "Node Status",
	"field_value": "Field Value",
	"edge_exists": "Edge Exists",
	"expression":  "Expression",
}

// ConditionKind returns the human-readable name for a condition kind.
func ConditionKind(code string) string {
	if name, ok := conditionKinds[code]; ok {
		return name
	}
	return code
}

// --- Assignees ---

var assignees = map[string]string{
	"user":  "User",
	"agent": "Agent",
	"any":   "Any",
}

// Assignee returns the human-readable name for an assignee kind.
// Empty input means no constraint and renders as "Any".
func Assignee(code string) string {
	if code == "" {
		return assignees["any"]
	}
	if name, ok := assignees[code]; ok {
		return name
	}
	return code
}

// AssigneeTag formats who actually worked a task next to its declared
// assignee kind. kind="agent", actor="bot-7" -> "bot-7 [agent]".
// Returns "" when actor is empty.
func AssigneeTag(kind, actor string) string {
	if actor == "" {
		return ""
	}
	if kind == "" {
		return actor
	}
	return actor + " [" + kind + "]"
}

// --- Paths ---

// TaskPath converts a slice of task IDs to a human-readable chain.
// ["triage", "mitigate", "postmortem"] → "triage → mitigate → postmortem"
func TaskPath(ids []string) string {
	return strings.Join(ids, " → ")
}

// --- Progress ---

// Progress formats terminal counts against the task total.
// Skipped tasks count toward done but get called out separately:
// "3/5 done, 1 skipped". With nothing skipped: "3/5 done".
func Progress(completed, skipped, total int) string {
	done := completed + skipped
	if skipped > 0 {
		return fmt.Sprintf("%d/%d done, %d skipped", done, total, skipped)
	}
	return fmt.Sprintf("%d/%d done", done, total)
}
