// Package store persists the workflow graph the task engine operates on:
// typed nodes with a status and free-form fields, connected by typed edges.
// Engine and CLI code use only the Graph interface; implementations are
// SQLite or in-memory.
package store

import (
	"context"
	"errors"
	"reflect"
	"time"
)

// DefaultDBPath is the default relative path for the SQLite DB (per-workspace).
// Resolve against cwd or workspace root; Open() creates the parent dir (e.g. .loom).
const DefaultDBPath = ".loom/loom.db"

// ErrNotFound is returned when a node or edge referenced by ID does not exist.
var ErrNotFound = errors.New("store: not found")

// Node is one graph node: a typed entity with a status string and a bag of
// named field values. Fields hold JSON-compatible values (strings, numbers,
// bools, lists, maps).
type Node struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Status    string         `json:"status"`
	Fields    map[string]any `json:"fields,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Edge is a typed directed connection between two nodes.
type Edge struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	FromID    string    `json:"from_id"`
	ToID      string    `json:"to_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Graph is the persistence facade for workflow graph state.
// All mutating methods are individually atomic; batching across calls is
// the Transactor's affair.
type Graph interface {
	// Nodes
	CreateNode(ctx context.Context, nodeType, status string, fields map[string]any) (*Node, error)
	GetNode(ctx context.Context, id string) (*Node, error)
	GetStatus(ctx context.Context, id string) (string, error)
	SetStatus(ctx context.Context, id, status string) error
	SetField(ctx context.Context, id, key string, value any) error
	// Edges
	CreateEdge(ctx context.Context, edgeType, fromID, toID string) (*Edge, error)
	EdgeExists(ctx context.Context, edgeType, fromID, toID string) (bool, error)
	// QueryNodes returns nodes of the given type whose fields match every
	// filter entry (equality; the key "status" matches the node status).
	// Results come back in creation order. A nil filter map matches all
	// nodes of the type.
	QueryNodes(ctx context.Context, nodeType string, filters map[string]any) ([]*Node, error)
}

// Transactor is an optional capability: stores that can run a batch of graph
// mutations atomically implement it. Callers type-assert; when the store
// does not support it they fall back to individually atomic calls.
type Transactor interface {
	Transact(ctx context.Context, fn func(Graph) error) error
}

// fieldEquals compares a stored field value with a filter value. Numeric
// values compare as float64 regardless of concrete type, because JSON and
// YAML decoding produce a mix of int, int64 and float64.
func fieldEquals(stored, want any) bool {
	sf, sok := toFloat(stored)
	wf, wok := toFloat(want)
	if sok && wok {
		return sf == wf
	}
	return reflect.DeepEqual(stored, want)
}

func toFloat(v any) (float64, bool) {
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
