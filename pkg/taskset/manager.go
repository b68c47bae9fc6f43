package taskset

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"loom/adapters/store"
)

// Manager owns registered definitions and live instances. Every mutation
// of an instance runs under that instance's lock, so concurrent callers
// serialize per instance while independent instances proceed in parallel.
type Manager struct {
	graph store.Graph
	log   *slog.Logger
	sink  Sink

	mu          sync.RWMutex
	definitions map[defKey]*registeredDef
	instances   map[string]*managedInstance
}

type defKey struct {
	id      string
	version int
}

type registeredDef struct {
	def   *Definition
	graph *DepGraph
	// frozen marks a version with at least one instance; the authoring
	// side must bump the version instead of editing it.
	frozen bool
}

type managedInstance struct {
	mu   sync.Mutex
	inst *Instance
}

// ManagerOption configures a Manager during construction.
type ManagerOption func(*Manager)

// WithLogger sets the manager's logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// WithSink attaches an event sink that receives engine events from every
// operation and recompute pass.
func WithSink(s Sink) ManagerOption {
	return func(m *Manager) { m.sink = s }
}

// NewManager returns a Manager bound to the given workflow graph.
func NewManager(g store.Graph, opts ...ManagerOption) *Manager {
	m := &Manager{
		graph:       g,
		definitions: make(map[defKey]*registeredDef),
		instances:   make(map[string]*managedInstance),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	return m
}

// Register validates and registers a definition version. The definition
// must not be mutated by the caller afterward. Re-registering an already
// known id and version is an error.
func (m *Manager) Register(def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	g, err := BuildGraph(def)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := defKey{def.ID, def.Version}
	if _, ok := m.definitions[key]; ok {
		return fmt.Errorf("taskset: definition %q version %d already registered", def.ID, def.Version)
	}
	m.definitions[key] = &registeredDef{def: def, graph: g}
	return nil
}

// Definition returns a registered definition. Version 0 means the highest
// registered version.
func (m *Manager) Definition(id string, version int) (*Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rd, err := m.lookupDef(id, version)
	if err != nil {
		return nil, err
	}
	return rd.def, nil
}

// Definitions lists registered definitions sorted by id then version.
func (m *Manager) Definitions() []*Definition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Definition, 0, len(m.definitions))
	for _, rd := range m.definitions {
		out = append(out, rd.def)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Version < out[j].Version
	})
	return out
}

// Frozen reports whether the definition version has been instantiated.
func (m *Manager) Frozen(id string, version int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rd, ok := m.definitions[defKey{id, version}]
	return ok && rd.frozen
}

// Layers returns the dependency layers of a registered definition, for
// display and DAG rendering.
func (m *Manager) Layers(id string, version int) ([][]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rd, err := m.lookupDef(id, version)
	if err != nil {
		return nil, err
	}
	return rd.graph.Layers(), nil
}

// lookupDef resolves id and version under m.mu. Version 0 picks the
// highest registered version.
func (m *Manager) lookupDef(id string, version int) (*registeredDef, error) {
	if version != 0 {
		rd, ok := m.definitions[defKey{id, version}]
		if !ok {
			return nil, fmt.Errorf("%w: definition %q version %d", ErrNotFound, id, version)
		}
		return rd, nil
	}
	var best *registeredDef
	for key, rd := range m.definitions {
		if key.id != id {
			continue
		}
		if best == nil || rd.def.Version > best.def.Version {
			best = rd
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: definition %q", ErrNotFound, id)
	}
	return best, nil
}

// CreateInstance materializes a new instance of a definition. When the
// definition declares a root node type, rootNodeID must name an existing
// node of that type; an empty rootNodeID scopes the instance globally and
// is only valid for definitions without a root node type. All tasks start
// pending; the initial recompute pass unlocks the entry layer before the
// instance is returned.
func (m *Manager) CreateInstance(ctx context.Context, defID string, version int, workflowID, rootNodeID string) (*Instance, error) {
	m.mu.Lock()
	rd, err := m.lookupDef(defID, version)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()

	if rootNodeID == "" {
		if rd.def.RootNodeType != "" {
			return nil, fmt.Errorf("taskset: definition %q requires a root node of type %q",
				rd.def.ID, rd.def.RootNodeType)
		}
	} else {
		root, err := m.graph.GetNode(ctx, rootNodeID)
		if err != nil {
			return nil, mapStoreErr(err)
		}
		if rd.def.RootNodeType != "" && root.Type != rd.def.RootNodeType {
			return nil, fmt.Errorf("taskset: root node %s has type %q, definition %q wants %q",
				rootNodeID, root.Type, rd.def.ID, rd.def.RootNodeType)
		}
	}

	now := time.Now().UTC()
	in := &Instance{
		ID:           uuid.NewString(),
		DefinitionID: rd.def.ID,
		Version:      rd.def.Version,
		WorkflowID:   workflowID,
		RootNodeID:   rootNodeID,
		Status:       InstanceActive,
		Tasks:        make(map[string]*TaskInstance, len(rd.def.Tasks)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for i := range rd.def.Tasks {
		t := &rd.def.Tasks[i]
		in.Tasks[t.ID] = &TaskInstance{TaskID: t.ID, Status: TaskPending}
	}

	mi := &managedInstance{inst: in}
	m.mu.Lock()
	m.instances[in.ID] = mi
	rd.frozen = true
	m.mu.Unlock()

	mi.mu.Lock()
	defer mi.mu.Unlock()
	emit(m.sink, Event{Type: EventInstanceCreated, InstanceID: in.ID})
	m.recompute(ctx, in, rd)
	m.log.Info("instance created",
		"instance", in.ID, "definition", rd.def.ID, "version", rd.def.Version, "root", rootNodeID)
	return in.clone(), nil
}

// RestoreInstance registers a previously snapshotted instance. The
// definition version it references must already be registered, and the
// snapshot must carry exactly the definition's tasks.
func (m *Manager) RestoreInstance(in *Instance) error {
	if in == nil || in.ID == "" {
		return fmt.Errorf("taskset: empty instance snapshot")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rd, ok := m.definitions[defKey{in.DefinitionID, in.Version}]
	if !ok {
		return fmt.Errorf("%w: definition %q version %d", ErrNotFound, in.DefinitionID, in.Version)
	}
	if _, exists := m.instances[in.ID]; exists {
		return fmt.Errorf("taskset: instance %s already registered", in.ID)
	}
	for i := range rd.def.Tasks {
		if in.Tasks[rd.def.Tasks[i].ID] == nil {
			return fmt.Errorf("taskset: snapshot %s is missing task %q", in.ID, rd.def.Tasks[i].ID)
		}
	}
	for id := range in.Tasks {
		if rd.def.Task(id) == nil {
			return fmt.Errorf("taskset: snapshot %s carries unknown task %q", in.ID, id)
		}
	}
	m.instances[in.ID] = &managedInstance{inst: in.clone()}
	rd.frozen = true
	return nil
}

// Instance returns a copy of the named instance.
func (m *Manager) Instance(id string) (*Instance, error) {
	mi, err := m.managed(id)
	if err != nil {
		return nil, err
	}
	mi.mu.Lock()
	defer mi.mu.Unlock()
	return mi.inst.clone(), nil
}

// Instances returns copies of all instances, oldest first.
func (m *Manager) Instances() []*Instance {
	m.mu.RLock()
	managed := make([]*managedInstance, 0, len(m.instances))
	for _, mi := range m.instances {
		managed = append(managed, mi)
	}
	m.mu.RUnlock()

	out := make([]*Instance, 0, len(managed))
	for _, mi := range managed {
		mi.mu.Lock()
		out = append(out, mi.inst.clone())
		mi.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// StartTask moves an available task to in_progress and records who took it.
func (m *Manager) StartTask(ctx context.Context, instanceID, taskID, assignee string) (*Instance, error) {
	mi, err := m.managed(instanceID)
	if err != nil {
		return nil, err
	}
	mi.mu.Lock()
	defer mi.mu.Unlock()
	in := mi.inst
	if in.Status != InstanceActive {
		return nil, fmt.Errorf("%w: instance %s is %s", ErrInstanceNotActive, in.ID, in.Status)
	}
	t := in.Tasks[taskID]
	if t == nil {
		return nil, fmt.Errorf("%w: task %q in instance %s", ErrNotFound, taskID, in.ID)
	}
	if t.Status != TaskAvailable {
		return nil, fmt.Errorf("%w: cannot start task %q from %s", ErrInvalidTransition, taskID, t.Status)
	}
	now := time.Now().UTC()
	t.Status = TaskInProgress
	t.Assignee = assignee
	t.StartedAt = &now
	in.UpdatedAt = now
	in.refreshCounters()
	emit(m.sink, Event{Type: EventTaskStarted, InstanceID: in.ID, TaskID: taskID})
	m.log.Info("task started", "instance", in.ID, "task", taskID, "assignee", assignee)
	return in.clone(), nil
}

// Completion carries the outcome of a completed task: who finished it, an
// optional note, and the values produced by doing the work. Values lay
// over the delta's authored initial_values on created nodes and supply
// the written value for update_node_field deltas, keyed by field.
type Completion struct {
	CompletedBy string         `json:"completed_by,omitempty"`
	Note        string         `json:"note,omitempty"`
	Values      map[string]any `json:"values,omitempty"`
}

// CompleteTask applies the task's delta and marks the task completed, then
// recomputes availability. A task may be completed from in_progress or
// directly from available; in the latter case StartedAt is set to the
// completion time. If the delta fails the task keeps its prior status and
// the error is returned.
func (m *Manager) CompleteTask(ctx context.Context, instanceID, taskID string, c Completion) (*Instance, error) {
	mi, err := m.managed(instanceID)
	if err != nil {
		return nil, err
	}
	mi.mu.Lock()
	defer mi.mu.Unlock()
	in := mi.inst
	if in.Status != InstanceActive {
		return nil, fmt.Errorf("%w: instance %s is %s", ErrInstanceNotActive, in.ID, in.Status)
	}
	t := in.Tasks[taskID]
	if t == nil {
		return nil, fmt.Errorf("%w: task %q in instance %s", ErrNotFound, taskID, in.ID)
	}
	if t.Status != TaskInProgress && t.Status != TaskAvailable {
		return nil, fmt.Errorf("%w: cannot complete task %q from %s", ErrInvalidTransition, taskID, t.Status)
	}
	rd, err := m.defFor(in)
	if err != nil {
		return nil, err
	}
	task := rd.def.Task(taskID)

	var result *ApplyResult
	if task.Delta != nil {
		res := &resolver{graph: m.graph, rootID: in.RootNodeID, outputs: in.outputs()}
		result, err = m.applyWithTx(ctx, res, task.Delta, c.Values)
		if err != nil {
			m.log.Warn("delta application failed",
				"instance", in.ID, "task", taskID, "error", err)
			return nil, err
		}
	}

	now := time.Now().UTC()
	t.Status = TaskCompleted
	if t.StartedAt == nil {
		t.StartedAt = &now
	}
	t.CompletedAt = &now
	if c.CompletedBy != "" {
		t.Assignee = c.CompletedBy
	}
	if c.Note != "" {
		t.Note = c.Note
	}
	if result != nil {
		t.OutputNodeID = result.OutputNodeID
	}
	in.UpdatedAt = now

	ev := Event{Type: EventTaskCompleted, InstanceID: in.ID, TaskID: taskID}
	if result != nil {
		ev.Metadata = map[string]any{
			"nodes_created": result.NodesCreated,
			"nodes_updated": result.NodesUpdated,
			"edges_created": result.EdgesCreated,
		}
	}
	emit(m.sink, ev)
	m.log.Info("task completed", "instance", in.ID, "task", taskID)
	m.recompute(ctx, in, rd)
	return in.clone(), nil
}

// applyWithTx applies a delta, wrapping compound deltas in the store's
// transaction when the store supports it so a failing step leaves no
// partial effects. Stores without Transact keep the documented
// no-rollback behavior.
func (m *Manager) applyWithTx(ctx context.Context, res *resolver, d *Delta, vals map[string]any) (*ApplyResult, error) {
	tr, ok := m.graph.(store.Transactor)
	if !ok || d.Kind != DeltaCompound {
		return applyDelta(ctx, res, d, vals)
	}
	var result *ApplyResult
	err := tr.Transact(ctx, func(g store.Graph) error {
		sub := *res
		sub.graph = g
		r, err := applyDelta(ctx, &sub, d, vals)
		result = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SkipTask marks a task skipped by operator decision. Allowed from
// pending, available and in_progress; skipped counts as resolved for
// dependents, so a recompute pass follows.
func (m *Manager) SkipTask(ctx context.Context, instanceID, taskID, reason string) (*Instance, error) {
	mi, err := m.managed(instanceID)
	if err != nil {
		return nil, err
	}
	mi.mu.Lock()
	defer mi.mu.Unlock()
	in := mi.inst
	if in.Status != InstanceActive {
		return nil, fmt.Errorf("%w: instance %s is %s", ErrInstanceNotActive, in.ID, in.Status)
	}
	t := in.Tasks[taskID]
	if t == nil {
		return nil, fmt.Errorf("%w: task %q in instance %s", ErrNotFound, taskID, in.ID)
	}
	switch t.Status {
	case TaskPending, TaskAvailable, TaskInProgress:
	default:
		return nil, fmt.Errorf("%w: cannot skip task %q from %s", ErrInvalidTransition, taskID, t.Status)
	}
	rd, err := m.defFor(in)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	t.Status = TaskSkipped
	t.CompletedAt = &now
	t.Note = reason
	in.UpdatedAt = now
	emit(m.sink, Event{Type: EventTaskSkipped, InstanceID: in.ID, TaskID: taskID})
	m.log.Info("task skipped", "instance", in.ID, "task", taskID, "reason", reason)
	m.recompute(ctx, in, rd)
	return in.clone(), nil
}

// Refresh recomputes availability against live graph state. A no-op when
// nothing changed, and skipped entirely on paused or cancelled instances.
func (m *Manager) Refresh(ctx context.Context, instanceID string) (*Instance, error) {
	mi, err := m.managed(instanceID)
	if err != nil {
		return nil, err
	}
	mi.mu.Lock()
	defer mi.mu.Unlock()
	in := mi.inst
	if in.Status != InstanceActive {
		return in.clone(), nil
	}
	rd, err := m.defFor(in)
	if err != nil {
		return nil, err
	}
	m.recompute(ctx, in, rd)
	return in.clone(), nil
}

// RefreshAll refreshes every instance with bounded concurrency. Instances
// are independent, so refreshes run in parallel; each one still holds its
// instance lock.
func (m *Manager) RefreshAll(ctx context.Context, parallel int) error {
	if parallel < 1 {
		parallel = 4
	}
	m.mu.RLock()
	ids := make([]string, 0, len(m.instances))
	for id := range m.instances {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, id := range ids {
		g.Go(func() error {
			_, err := m.Refresh(ctx, id)
			return err
		})
	}
	return g.Wait()
}

// Pause suspends an active instance. Start, complete and skip fail with
// ErrInstanceNotActive until Resume.
func (m *Manager) Pause(instanceID string) (*Instance, error) {
	return m.setInstanceStatus(instanceID, InstanceActive, InstancePaused, EventInstancePaused)
}

// Resume reactivates a paused instance and recomputes availability, since
// the graph may have moved while paused.
func (m *Manager) Resume(ctx context.Context, instanceID string) (*Instance, error) {
	if _, err := m.setInstanceStatus(instanceID, InstancePaused, InstanceActive, EventInstanceResumed); err != nil {
		return nil, err
	}
	return m.Refresh(ctx, instanceID)
}

// Cancel terminates an active or paused instance. Terminal.
func (m *Manager) Cancel(instanceID string) (*Instance, error) {
	mi, err := m.managed(instanceID)
	if err != nil {
		return nil, err
	}
	mi.mu.Lock()
	defer mi.mu.Unlock()
	in := mi.inst
	if in.Status != InstanceActive && in.Status != InstancePaused {
		return nil, fmt.Errorf("%w: cannot cancel instance %s from %s", ErrInvalidTransition, in.ID, in.Status)
	}
	in.Status = InstanceCancelled
	in.UpdatedAt = time.Now().UTC()
	emit(m.sink, Event{Type: EventInstanceCancelled, InstanceID: in.ID})
	m.log.Info("instance cancelled", "instance", in.ID)
	return in.clone(), nil
}

func (m *Manager) setInstanceStatus(instanceID string, from, to InstanceStatus, ev EventType) (*Instance, error) {
	mi, err := m.managed(instanceID)
	if err != nil {
		return nil, err
	}
	mi.mu.Lock()
	defer mi.mu.Unlock()
	in := mi.inst
	if in.Status != from {
		return nil, fmt.Errorf("%w: instance %s is %s, want %s", ErrInvalidTransition, in.ID, in.Status, from)
	}
	in.Status = to
	in.UpdatedAt = time.Now().UTC()
	emit(m.sink, Event{Type: ev, InstanceID: in.ID})
	return in.clone(), nil
}

func (m *Manager) managed(id string) (*managedInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mi, ok := m.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: instance %s", ErrNotFound, id)
	}
	return mi, nil
}

func (m *Manager) defFor(in *Instance) (*registeredDef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rd, ok := m.definitions[defKey{in.DefinitionID, in.Version}]
	if !ok {
		return nil, fmt.Errorf("%w: definition %q version %d", ErrNotFound, in.DefinitionID, in.Version)
	}
	return rd, nil
}

// recompute promotes pending tasks whose dependencies are all resolved,
// walking layers in order so a skip cascades within a single pass.
// Terminal and in-progress tasks are never touched, which makes the pass
// idempotent on unchanged graph state. A condition evaluation error is
// fail-safe: warn and skip rather than hold the task forever.
func (m *Manager) recompute(ctx context.Context, in *Instance, rd *registeredDef) {
	res := &resolver{graph: m.graph, rootID: in.RootNodeID, outputs: in.outputs()}
	changed := false
	for _, layer := range rd.graph.layers {
		for _, taskID := range layer {
			t := in.Tasks[taskID]
			if t == nil || t.Status != TaskPending {
				continue
			}

			missing := false
			ready := true
			for _, dep := range rd.graph.deps[taskID] {
				dt := in.Tasks[dep]
				if dt == nil {
					missing = true
					break
				}
				if !dt.Status.resolved() {
					ready = false
					break
				}
			}
			if missing {
				t.Status = TaskBlocked
				changed = true
				m.log.Error("dependency missing from instance", "instance", in.ID, "task", taskID)
				emit(m.sink, Event{Type: EventTaskBlocked, InstanceID: in.ID, TaskID: taskID})
				continue
			}
			if !ready {
				continue
			}

			if task := rd.def.Task(taskID); task != nil && task.Condition != nil {
				ok, err := evalCondition(ctx, res, task.Condition)
				if err != nil {
					m.log.Warn("condition evaluation failed, skipping task",
						"instance", in.ID, "task", taskID, "error", err)
					emit(m.sink, Event{Type: EventConditionError, InstanceID: in.ID, TaskID: taskID, Error: err})
					m.autoSkip(in, t, "condition evaluation failed: "+err.Error())
					changed = true
					continue
				}
				if !ok {
					m.autoSkip(in, t, "condition not met")
					changed = true
					continue
				}
			}

			t.Status = TaskAvailable
			changed = true
			emit(m.sink, Event{Type: EventTaskAvailable, InstanceID: in.ID, TaskID: taskID})
		}
	}
	in.refreshCounters()
	if changed {
		in.UpdatedAt = time.Now().UTC()
	}
	if in.Status == InstanceActive && in.allTerminal() {
		in.Status = InstanceCompleted
		in.UpdatedAt = time.Now().UTC()
		emit(m.sink, Event{Type: EventInstanceCompleted, InstanceID: in.ID})
		m.log.Info("instance completed", "instance", in.ID)
	}
}

func (m *Manager) autoSkip(in *Instance, t *TaskInstance, reason string) {
	now := time.Now().UTC()
	t.Status = TaskSkipped
	t.CompletedAt = &now
	t.Note = reason
	emit(m.sink, Event{Type: EventTaskSkipped, InstanceID: in.ID, TaskID: t.TaskID})
}
