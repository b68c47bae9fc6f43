package taskset

import "time"

// TaskStatus is the lifecycle state of one task within an instance.
type TaskStatus string

const (
	// TaskPending: dependencies not yet resolved.
	TaskPending TaskStatus = "pending"
	// TaskAvailable: dependencies resolved, condition passed, ready to start.
	TaskAvailable TaskStatus = "available"
	// TaskInProgress: started by an assignee.
	TaskInProgress TaskStatus = "in_progress"
	// TaskCompleted: finished, delta applied. Terminal.
	TaskCompleted TaskStatus = "completed"
	// TaskSkipped: condition false or operator override. Terminal, counts
	// as resolved for dependents.
	TaskSkipped TaskStatus = "skipped"
	// TaskBlocked: a dependency reference could not be resolved inside the
	// instance. Structural error, held for diagnosis.
	TaskBlocked TaskStatus = "blocked"
)

// Terminal reports whether the status is final. Terminal tasks never
// change again.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskSkipped
}

// resolved reports whether the status satisfies dependents.
func (s TaskStatus) resolved() bool {
	return s == TaskCompleted || s == TaskSkipped
}

// InstanceStatus is the lifecycle state of a whole TaskSet instance.
type InstanceStatus string

const (
	InstanceActive    InstanceStatus = "active"
	InstanceCompleted InstanceStatus = "completed"
	InstancePaused    InstanceStatus = "paused"
	InstanceCancelled InstanceStatus = "cancelled"
)

// TaskInstance is the live state of one task within an instance.
type TaskInstance struct {
	TaskID       string     `json:"task_id"`
	Status       TaskStatus `json:"status"`
	Assignee     string     `json:"assignee,omitempty"`
	OutputNodeID string     `json:"output_node_id,omitempty"`
	Note         string     `json:"note,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Instance is one live run of a Definition, bound to a root node in the
// workflow graph. It serializes to JSON as-is for snapshot persistence.
type Instance struct {
	ID           string                   `json:"id"`
	DefinitionID string                   `json:"definition_id"`
	Version      int                      `json:"definition_version"`
	WorkflowID   string                   `json:"workflow_id,omitempty"`
	RootNodeID   string                   `json:"root_node_id"`
	Status       InstanceStatus           `json:"status"`
	Tasks        map[string]*TaskInstance `json:"tasks"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`

	// Progress counters, recomputed after every pass.
	TotalTasks     int `json:"total_tasks"`
	CompletedTasks int `json:"completed_tasks"`
	SkippedTasks   int `json:"skipped_tasks"`
	AvailableTasks int `json:"available_tasks"`
}

// Task returns the named task instance, or nil.
func (in *Instance) Task(taskID string) *TaskInstance {
	return in.Tasks[taskID]
}

// outputs maps completed task IDs to their recorded output nodes.
func (in *Instance) outputs() map[string]string {
	out := make(map[string]string)
	for id, t := range in.Tasks {
		if t.Status == TaskCompleted && t.OutputNodeID != "" {
			out[id] = t.OutputNodeID
		}
	}
	return out
}

// refreshCounters recomputes the progress counters from task statuses.
func (in *Instance) refreshCounters() {
	in.TotalTasks = len(in.Tasks)
	in.CompletedTasks = 0
	in.SkippedTasks = 0
	in.AvailableTasks = 0
	for _, t := range in.Tasks {
		switch t.Status {
		case TaskCompleted:
			in.CompletedTasks++
		case TaskSkipped:
			in.SkippedTasks++
		case TaskAvailable:
			in.AvailableTasks++
		}
	}
}

// allTerminal reports whether every task is completed or skipped.
func (in *Instance) allTerminal() bool {
	for _, t := range in.Tasks {
		if !t.Status.Terminal() {
			return false
		}
	}
	return true
}

// clone returns a deep copy, safe to hand out of the manager.
func (in *Instance) clone() *Instance {
	cp := *in
	cp.Tasks = make(map[string]*TaskInstance, len(in.Tasks))
	for id, t := range in.Tasks {
		tc := *t
		if t.StartedAt != nil {
			ts := *t.StartedAt
			tc.StartedAt = &ts
		}
		if t.CompletedAt != nil {
			ts := *t.CompletedAt
			tc.CompletedAt = &ts
		}
		cp.Tasks[id] = &tc
	}
	return &cp
}
