package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Graph for tests and examples. Implements Graph
// and Transactor.
type MemStore struct {
	mu   sync.Mutex
	data memData
}

// memData is the unguarded graph state. MemStore methods lock around it;
// Transact hands it to the callback without re-locking.
type memData struct {
	nodes map[string]*Node
	order []string // node IDs in creation order
	edges []*Edge
}

// NewMemStore returns a new in-memory Graph.
func NewMemStore() *MemStore {
	return &MemStore{data: memData{nodes: make(map[string]*Node)}}
}

// CreateNode implements Graph.
func (s *MemStore) CreateNode(ctx context.Context, nodeType, status string, fields map[string]any) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.createNode(nodeType, status, fields)
}

// GetNode implements Graph.
func (s *MemStore) GetNode(ctx context.Context, id string) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.getNode(id)
}

// GetStatus implements Graph.
func (s *MemStore) GetStatus(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.data.nodes[id]
	if !ok {
		return "", fmt.Errorf("%w: node %s", ErrNotFound, id)
	}
	return n.Status, nil
}

// SetStatus implements Graph.
func (s *MemStore) SetStatus(ctx context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.setStatus(id, status)
}

// SetField implements Graph.
func (s *MemStore) SetField(ctx context.Context, id, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.setField(id, key, value)
}

// CreateEdge implements Graph.
func (s *MemStore) CreateEdge(ctx context.Context, edgeType, fromID, toID string) (*Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.createEdge(edgeType, fromID, toID)
}

// EdgeExists implements Graph.
func (s *MemStore) EdgeExists(ctx context.Context, edgeType, fromID, toID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.edgeExists(edgeType, fromID, toID), nil
}

// QueryNodes implements Graph.
func (s *MemStore) QueryNodes(ctx context.Context, nodeType string, filters map[string]any) ([]*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.queryNodes(nodeType, filters), nil
}

// Transact implements Transactor. The callback runs against the live state
// under the store lock; on error the state is restored from a snapshot, so
// a failed batch leaves no partial mutations behind.
func (s *MemStore) Transact(ctx context.Context, fn func(Graph) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	backup := s.data.clone()
	if err := fn(&memTx{data: &s.data}); err != nil {
		s.data = backup
		return err
	}
	return nil
}

// memTx exposes memData as a Graph without locking. Only handed out by
// Transact, which already holds the store lock.
type memTx struct {
	data *memData
}

func (t *memTx) CreateNode(ctx context.Context, nodeType, status string, fields map[string]any) (*Node, error) {
	return t.data.createNode(nodeType, status, fields)
}

func (t *memTx) GetNode(ctx context.Context, id string) (*Node, error) {
	return t.data.getNode(id)
}

func (t *memTx) GetStatus(ctx context.Context, id string) (string, error) {
	n, ok := t.data.nodes[id]
	if !ok {
		return "", fmt.Errorf("%w: node %s", ErrNotFound, id)
	}
	return n.Status, nil
}

func (t *memTx) SetStatus(ctx context.Context, id, status string) error {
	return t.data.setStatus(id, status)
}

func (t *memTx) SetField(ctx context.Context, id, key string, value any) error {
	return t.data.setField(id, key, value)
}

func (t *memTx) CreateEdge(ctx context.Context, edgeType, fromID, toID string) (*Edge, error) {
	return t.data.createEdge(edgeType, fromID, toID)
}

func (t *memTx) EdgeExists(ctx context.Context, edgeType, fromID, toID string) (bool, error) {
	return t.data.edgeExists(edgeType, fromID, toID), nil
}

func (t *memTx) QueryNodes(ctx context.Context, nodeType string, filters map[string]any) ([]*Node, error) {
	return t.data.queryNodes(nodeType, filters), nil
}

// --- unguarded operations ---

func (d *memData) createNode(nodeType, status string, fields map[string]any) (*Node, error) {
	if nodeType == "" {
		return nil, fmt.Errorf("node type is required")
	}
	now := time.Now().UTC()
	n := &Node{
		ID:        uuid.NewString(),
		Type:      nodeType,
		Status:    status,
		Fields:    cloneFields(fields),
		CreatedAt: now,
		UpdatedAt: now,
	}
	d.nodes[n.ID] = n
	d.order = append(d.order, n.ID)
	cp := *n
	cp.Fields = cloneFields(n.Fields)
	return &cp, nil
}

func (d *memData) getNode(id string) (*Node, error) {
	n, ok := d.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: node %s", ErrNotFound, id)
	}
	cp := *n
	cp.Fields = cloneFields(n.Fields)
	return &cp, nil
}

func (d *memData) setStatus(id, status string) error {
	n, ok := d.nodes[id]
	if !ok {
		return fmt.Errorf("%w: node %s", ErrNotFound, id)
	}
	n.Status = status
	n.UpdatedAt = time.Now().UTC()
	return nil
}

func (d *memData) setField(id, key string, value any) error {
	n, ok := d.nodes[id]
	if !ok {
		return fmt.Errorf("%w: node %s", ErrNotFound, id)
	}
	if n.Fields == nil {
		n.Fields = make(map[string]any)
	}
	n.Fields[key] = value
	n.UpdatedAt = time.Now().UTC()
	return nil
}

func (d *memData) createEdge(edgeType, fromID, toID string) (*Edge, error) {
	if edgeType == "" {
		return nil, fmt.Errorf("edge type is required")
	}
	if _, ok := d.nodes[fromID]; !ok {
		return nil, fmt.Errorf("%w: node %s", ErrNotFound, fromID)
	}
	if _, ok := d.nodes[toID]; !ok {
		return nil, fmt.Errorf("%w: node %s", ErrNotFound, toID)
	}
	e := &Edge{
		ID:        uuid.NewString(),
		Type:      edgeType,
		FromID:    fromID,
		ToID:      toID,
		CreatedAt: time.Now().UTC(),
	}
	d.edges = append(d.edges, e)
	cp := *e
	return &cp, nil
}

func (d *memData) edgeExists(edgeType, fromID, toID string) bool {
	for _, e := range d.edges {
		if e.Type == edgeType && e.FromID == fromID && e.ToID == toID {
			return true
		}
	}
	return false
}

func (d *memData) queryNodes(nodeType string, filters map[string]any) []*Node {
	var out []*Node
	for _, id := range d.order {
		n := d.nodes[id]
		if n.Type != nodeType {
			continue
		}
		if !matchFilters(n, filters) {
			continue
		}
		cp := *n
		cp.Fields = cloneFields(n.Fields)
		out = append(out, &cp)
	}
	return out
}

func (d *memData) clone() memData {
	nodes := make(map[string]*Node, len(d.nodes))
	for id, n := range d.nodes {
		cp := *n
		cp.Fields = cloneFields(n.Fields)
		nodes[id] = &cp
	}
	order := make([]string, len(d.order))
	copy(order, d.order)
	edges := make([]*Edge, len(d.edges))
	copy(edges, d.edges)
	return memData{nodes: nodes, order: order, edges: edges}
}

func matchFilters(n *Node, filters map[string]any) bool {
	for k, want := range filters {
		if k == "status" {
			if sw, ok := want.(string); !ok || n.Status != sw {
				return false
			}
			continue
		}
		got, ok := n.Fields[k]
		if !ok || !fieldEquals(got, want) {
			return false
		}
	}
	return true
}

func cloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
