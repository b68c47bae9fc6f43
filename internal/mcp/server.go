package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"loom/internal/display"
	"loom/internal/logging"
	"loom/internal/wiring"
	"loom/pkg/taskset"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the MCP SDK server around an opened engine. Engine state is
// durable (graph store plus instance snapshots), so tools call the manager
// directly and every mutating tool persists a snapshot before returning.
type Server struct {
	MCPServer *sdkmcp.Server

	eng *wiring.Engine
	log *slog.Logger
}

// NewServer creates an MCP server with task set tools registered over eng.
func NewServer(eng *wiring.Engine) *Server {
	s := &Server{
		eng: eng,
		log: logging.New("mcp"),
	}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "loom", Version: "dev"},
		nil,
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "create_instance",
		Description: "Create a task set instance from a registered definition, scoped to a root node. Returns the instance with its initially available tasks.",
	}, s.handleCreateInstance)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "start_task",
		Description: "Claim an available task and move it to in_progress.",
	}, s.handleStartTask)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "complete_task",
		Description: "Complete a task. Applies its graph delta with the given values, records the output node, and unlocks dependents.",
	}, s.handleCompleteTask)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "skip_task",
		Description: "Skip a task with a reason. Dependents treat a skipped task as satisfied.",
	}, s.handleSkipTask)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "refresh",
		Description: "Recompute task availability against live graph state. Refreshes one instance, or every active instance when no ID is given.",
	}, s.handleRefresh)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "instance_status",
		Description: "Get full instance state: status, progress, and every task with its current status.",
	}, s.handleInstanceStatus)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_definitions",
		Description: "List registered task set definitions, optionally filtered by tag.",
	}, s.handleListDefinitions)
}

// --- Tool input/output types ---

type createInstanceInput struct {
	DefinitionID string `json:"definition_id" jsonschema:"registered definition ID"`
	Version      int    `json:"version,omitempty" jsonschema:"definition version (0 = latest)"`
	WorkflowID   string `json:"workflow_id,omitempty" jsonschema:"workflow this instance belongs to"`
	RootNodeID   string `json:"root_node_id,omitempty" jsonschema:"graph node the instance is scoped to; empty runs globally when the definition allows it"`
}

type createInstanceOutput struct {
	InstanceID   string   `json:"instance_id"`
	DefinitionID string   `json:"definition_id"`
	Version      int      `json:"definition_version"`
	WorkflowID   string   `json:"workflow_id,omitempty"`
	RootNodeID   string   `json:"root_node_id,omitempty"`
	Status       string   `json:"status"`
	TotalTasks   int      `json:"total_tasks"`
	Available    []string `json:"available_tasks"`
	Progress     string   `json:"progress"`
}

type startTaskInput struct {
	InstanceID string `json:"instance_id" jsonschema:"instance ID from create_instance"`
	TaskID     string `json:"task_id" jsonschema:"task to start; must be available"`
	Assignee   string `json:"assignee,omitempty" jsonschema:"who is doing the work (user name, agent name)"`
}

type startTaskOutput struct {
	InstanceID string `json:"instance_id"`
	TaskID     string `json:"task_id"`
	Status     string `json:"status"`
	Assignee   string `json:"assignee,omitempty"`
}

type completeTaskInput struct {
	InstanceID  string         `json:"instance_id" jsonschema:"instance ID from create_instance"`
	TaskID      string         `json:"task_id" jsonschema:"task to complete; must be in_progress or available"`
	CompletedBy string         `json:"completed_by,omitempty" jsonschema:"who finished the work"`
	Note        string         `json:"note,omitempty" jsonschema:"free-form completion note"`
	Values      map[string]any `json:"values,omitempty" jsonschema:"values produced by the work; merged into the task's graph delta"`
}

type completeTaskOutput struct {
	InstanceID     string   `json:"instance_id"`
	TaskID         string   `json:"task_id"`
	Status         string   `json:"status"`
	OutputNodeID   string   `json:"output_node_id,omitempty"`
	InstanceStatus string   `json:"instance_status"`
	Progress       string   `json:"progress"`
	Available      []string `json:"available_tasks"`
}

type skipTaskInput struct {
	InstanceID string `json:"instance_id" jsonschema:"instance ID from create_instance"`
	TaskID     string `json:"task_id" jsonschema:"task to skip"`
	Reason     string `json:"reason" jsonschema:"why the task is being skipped"`
}

type skipTaskOutput struct {
	InstanceID     string   `json:"instance_id"`
	TaskID         string   `json:"task_id"`
	Status         string   `json:"status"`
	InstanceStatus string   `json:"instance_status"`
	Progress       string   `json:"progress"`
	Available      []string `json:"available_tasks"`
}

type refreshInput struct {
	InstanceID string `json:"instance_id,omitempty" jsonschema:"instance to refresh; empty refreshes every active instance"`
	Parallel   int    `json:"parallel,omitempty" jsonschema:"worker count when refreshing all (default 1 = serial)"`
}

type refreshOutput struct {
	Refreshed int      `json:"refreshed"`
	Status    string   `json:"status,omitempty"`
	Progress  string   `json:"progress,omitempty"`
	Available []string `json:"available_tasks,omitempty"`
}

type instanceStatusInput struct {
	InstanceID string `json:"instance_id" jsonschema:"instance ID from create_instance"`
}

type taskLine struct {
	TaskID       string     `json:"task_id"`
	Name         string     `json:"name,omitempty"`
	Status       string     `json:"status"`
	StatusName   string     `json:"status_name"`
	Assignee     string     `json:"assignee,omitempty"`
	OutputNodeID string     `json:"output_node_id,omitempty"`
	Note         string     `json:"note,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

type instanceStatusOutput struct {
	InstanceID   string     `json:"instance_id"`
	DefinitionID string     `json:"definition_id"`
	Version      int        `json:"definition_version"`
	WorkflowID   string     `json:"workflow_id,omitempty"`
	RootNodeID   string     `json:"root_node_id,omitempty"`
	Status       string     `json:"status"`
	StatusName   string     `json:"status_name"`
	Progress     string     `json:"progress"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Tasks        []taskLine `json:"tasks"`
}

type listDefinitionsInput struct {
	Tag string `json:"tag,omitempty" jsonschema:"only definitions carrying this tag"`
}

type definitionInfo struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Version      int      `json:"version"`
	Description  string   `json:"description,omitempty"`
	RootNodeType string   `json:"root_node_type,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	TaskCount    int      `json:"task_count"`
	Frozen       bool     `json:"frozen"`
}

type listDefinitionsOutput struct {
	Definitions []definitionInfo `json:"definitions"`
	Total       int              `json:"total"`
}

// --- Tool handlers ---

func (s *Server) handleCreateInstance(ctx context.Context, _ *sdkmcp.CallToolRequest, input createInstanceInput) (*sdkmcp.CallToolResult, createInstanceOutput, error) {
	if input.DefinitionID == "" {
		return nil, createInstanceOutput{}, fmt.Errorf("definition_id is required")
	}

	in, err := s.eng.Manager.CreateInstance(ctx, input.DefinitionID, input.Version, input.WorkflowID, input.RootNodeID)
	if err != nil {
		return nil, createInstanceOutput{}, fmt.Errorf("create_instance: %w", err)
	}
	s.persist(in)
	s.log.Info("instance created", "instance", in.ID, "definition", in.DefinitionID, "version", in.Version)

	return nil, createInstanceOutput{
		InstanceID:   in.ID,
		DefinitionID: in.DefinitionID,
		Version:      in.Version,
		WorkflowID:   in.WorkflowID,
		RootNodeID:   in.RootNodeID,
		Status:       string(in.Status),
		TotalTasks:   in.TotalTasks,
		Available:    s.availableTasks(in),
		Progress:     progress(in),
	}, nil
}

func (s *Server) handleStartTask(ctx context.Context, _ *sdkmcp.CallToolRequest, input startTaskInput) (*sdkmcp.CallToolResult, startTaskOutput, error) {
	if input.InstanceID == "" || input.TaskID == "" {
		return nil, startTaskOutput{}, fmt.Errorf("instance_id and task_id are required")
	}

	in, err := s.eng.Manager.StartTask(ctx, input.InstanceID, input.TaskID, input.Assignee)
	if err != nil {
		return nil, startTaskOutput{}, fmt.Errorf("start_task: %w", err)
	}
	s.persist(in)

	t := in.Task(input.TaskID)
	return nil, startTaskOutput{
		InstanceID: in.ID,
		TaskID:     input.TaskID,
		Status:     string(t.Status),
		Assignee:   t.Assignee,
	}, nil
}

func (s *Server) handleCompleteTask(ctx context.Context, _ *sdkmcp.CallToolRequest, input completeTaskInput) (*sdkmcp.CallToolResult, completeTaskOutput, error) {
	if input.InstanceID == "" || input.TaskID == "" {
		return nil, completeTaskOutput{}, fmt.Errorf("instance_id and task_id are required")
	}

	in, err := s.eng.Manager.CompleteTask(ctx, input.InstanceID, input.TaskID, taskset.Completion{
		CompletedBy: input.CompletedBy,
		Note:        input.Note,
		Values:      input.Values,
	})
	if err != nil {
		return nil, completeTaskOutput{}, fmt.Errorf("complete_task: %w", err)
	}
	s.persist(in)

	t := in.Task(input.TaskID)
	return nil, completeTaskOutput{
		InstanceID:     in.ID,
		TaskID:         input.TaskID,
		Status:         string(t.Status),
		OutputNodeID:   t.OutputNodeID,
		InstanceStatus: string(in.Status),
		Progress:       progress(in),
		Available:      s.availableTasks(in),
	}, nil
}

func (s *Server) handleSkipTask(ctx context.Context, _ *sdkmcp.CallToolRequest, input skipTaskInput) (*sdkmcp.CallToolResult, skipTaskOutput, error) {
	if input.InstanceID == "" || input.TaskID == "" {
		return nil, skipTaskOutput{}, fmt.Errorf("instance_id and task_id are required")
	}
	if input.Reason == "" {
		return nil, skipTaskOutput{}, fmt.Errorf("reason is required")
	}

	in, err := s.eng.Manager.SkipTask(ctx, input.InstanceID, input.TaskID, input.Reason)
	if err != nil {
		return nil, skipTaskOutput{}, fmt.Errorf("skip_task: %w", err)
	}
	s.persist(in)

	t := in.Task(input.TaskID)
	return nil, skipTaskOutput{
		InstanceID:     in.ID,
		TaskID:         input.TaskID,
		Status:         string(t.Status),
		InstanceStatus: string(in.Status),
		Progress:       progress(in),
		Available:      s.availableTasks(in),
	}, nil
}

func (s *Server) handleRefresh(ctx context.Context, _ *sdkmcp.CallToolRequest, input refreshInput) (*sdkmcp.CallToolResult, refreshOutput, error) {
	if input.InstanceID == "" {
		if err := s.eng.Manager.RefreshAll(ctx, input.Parallel); err != nil {
			return nil, refreshOutput{}, fmt.Errorf("refresh: %w", err)
		}
		instances := s.eng.Manager.Instances()
		for _, in := range instances {
			s.persist(in)
		}
		return nil, refreshOutput{Refreshed: len(instances)}, nil
	}

	in, err := s.eng.Manager.Refresh(ctx, input.InstanceID)
	if err != nil {
		return nil, refreshOutput{}, fmt.Errorf("refresh: %w", err)
	}
	s.persist(in)

	return nil, refreshOutput{
		Refreshed: 1,
		Status:    string(in.Status),
		Progress:  progress(in),
		Available: s.availableTasks(in),
	}, nil
}

func (s *Server) handleInstanceStatus(_ context.Context, _ *sdkmcp.CallToolRequest, input instanceStatusInput) (*sdkmcp.CallToolResult, instanceStatusOutput, error) {
	if input.InstanceID == "" {
		return nil, instanceStatusOutput{}, fmt.Errorf("instance_id is required")
	}

	in, err := s.eng.Manager.Instance(input.InstanceID)
	if err != nil {
		return nil, instanceStatusOutput{}, fmt.Errorf("instance_status: %w", err)
	}

	out := instanceStatusOutput{
		InstanceID:   in.ID,
		DefinitionID: in.DefinitionID,
		Version:      in.Version,
		WorkflowID:   in.WorkflowID,
		RootNodeID:   in.RootNodeID,
		Status:       string(in.Status),
		StatusName:   display.InstanceStatus(string(in.Status)),
		Progress:     progress(in),
		CreatedAt:    in.CreatedAt,
		UpdatedAt:    in.UpdatedAt,
		Tasks:        make([]taskLine, 0, len(in.Tasks)),
	}
	for _, t := range s.orderedTasks(in) {
		ti := in.Task(t.ID)
		out.Tasks = append(out.Tasks, taskLine{
			TaskID:       t.ID,
			Name:         t.Name,
			Status:       string(ti.Status),
			StatusName:   display.TaskStatus(string(ti.Status)),
			Assignee:     ti.Assignee,
			OutputNodeID: ti.OutputNodeID,
			Note:         ti.Note,
			StartedAt:    ti.StartedAt,
			CompletedAt:  ti.CompletedAt,
		})
	}
	return nil, out, nil
}

func (s *Server) handleListDefinitions(_ context.Context, _ *sdkmcp.CallToolRequest, input listDefinitionsInput) (*sdkmcp.CallToolResult, listDefinitionsOutput, error) {
	defs := s.eng.Manager.Definitions()
	out := listDefinitionsOutput{Definitions: make([]definitionInfo, 0, len(defs))}
	for _, def := range defs {
		if input.Tag != "" && !hasTag(def, input.Tag) {
			continue
		}
		out.Definitions = append(out.Definitions, definitionInfo{
			ID:           def.ID,
			Name:         def.Name,
			Version:      def.Version,
			Description:  def.Description,
			RootNodeType: def.RootNodeType,
			Tags:         def.Tags,
			TaskCount:    len(def.Tasks),
			Frozen:       s.eng.Manager.Frozen(def.ID, def.Version),
		})
	}
	out.Total = len(out.Definitions)
	return nil, out, nil
}

// Shutdown persists every instance snapshot so the next process restores
// where this one left off.
func (s *Server) Shutdown() {
	instances := s.eng.Manager.Instances()
	for _, in := range instances {
		s.persist(in)
	}
	s.log.Info("shutdown complete", "instances_saved", len(instances))
}

func (s *Server) persist(in *taskset.Instance) {
	if err := s.eng.SaveSnapshot(in); err != nil {
		s.log.Warn("snapshot save failed", "instance", in.ID, "error", err)
	}
}

// orderedTasks returns the instance's task definitions in authored order.
func (s *Server) orderedTasks(in *taskset.Instance) []taskset.Task {
	def, err := s.eng.Manager.Definition(in.DefinitionID, in.Version)
	if err != nil {
		ids := make([]string, 0, len(in.Tasks))
		for id := range in.Tasks {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		tasks := make([]taskset.Task, 0, len(ids))
		for _, id := range ids {
			tasks = append(tasks, taskset.Task{ID: id})
		}
		return tasks
	}
	return def.Tasks
}

func (s *Server) availableTasks(in *taskset.Instance) []string {
	avail := []string{}
	for _, t := range s.orderedTasks(in) {
		if ti := in.Task(t.ID); ti != nil && ti.Status == taskset.TaskAvailable {
			avail = append(avail, t.ID)
		}
	}
	return avail
}

func progress(in *taskset.Instance) string {
	return display.Progress(in.CompletedTasks, in.SkippedTasks, in.TotalTasks)
}

func hasTag(def *taskset.Definition, tag string) bool {
	for _, t := range def.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
