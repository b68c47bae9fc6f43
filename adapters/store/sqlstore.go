package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// nowUTC returns the current UTC time as an ISO 8601 string.
func nowUTC() string { return time.Now().UTC().Format(time.RFC3339) }

// SqlStore implements Graph and Transactor with SQLite.
type SqlStore struct {
	db *sql.DB
	sqlGraph
}

// Open opens or creates a SQLite DB at path and runs migrations.
// Creates the parent directory (e.g. .loom) if it does not exist.
func Open(path string) (*SqlStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SqlStore{db: db, sqlGraph: sqlGraph{q: db}}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SqlStore) Close() error { return s.db.Close() }

func (s *SqlStore) migrate() error {
	// Check if schema_version table exists to detect database state.
	var tableCount int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableCount == 0 {
		// Fresh database.
		if _, err := s.db.Exec(schemaV1); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersion1); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return nil
	}

	var v int
	err = s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read schema version: %w", err)
	}
	if errors.Is(err, sql.ErrNoRows) {
		// schema_version exists but is empty: stamp the current version.
		v = schemaVersion1
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", v); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
	}

	switch v {
	case currentSchemaVersion:
		return nil
	default:
		return fmt.Errorf("unknown schema version %d", v)
	}
}

// CreateNode implements Graph. The node row and its field rows are written
// in one transaction.
func (s *SqlStore) CreateNode(ctx context.Context, nodeType, status string, fields map[string]any) (*Node, error) {
	var out *Node
	err := s.Transact(ctx, func(g Graph) error {
		n, err := g.CreateNode(ctx, nodeType, status, fields)
		out = n
		return err
	})
	return out, err
}

// Transact implements Transactor: fn runs against a transaction-backed
// Graph, committed on nil and rolled back on error.
func (s *SqlStore) Transact(ctx context.Context, fn func(Graph) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&sqlGraph{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqlGraph implements Graph over either a live DB handle or a transaction.
type sqlGraph struct {
	q querier
}

func (g *sqlGraph) CreateNode(ctx context.Context, nodeType, status string, fields map[string]any) (*Node, error) {
	if nodeType == "" {
		return nil, fmt.Errorf("node type is required")
	}
	// Encode every field value up front so a bad value fails before any write.
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	encoded := make(map[string]string, len(fields))
	for _, k := range keys {
		blob, err := json.Marshal(fields[k])
		if err != nil {
			return nil, fmt.Errorf("encode field %q: %w", k, err)
		}
		encoded[k] = string(blob)
	}

	id := uuid.NewString()
	now := nowUTC()
	_, err := g.q.ExecContext(ctx,
		"INSERT INTO nodes(id, node_type, status, created_at, updated_at) VALUES(?,?,?,?,?)",
		id, nodeType, status, now, now)
	if err != nil {
		return nil, fmt.Errorf("insert node: %w", err)
	}
	for _, k := range keys {
		_, err := g.q.ExecContext(ctx,
			"INSERT INTO node_fields(node_id, field_key, field_value) VALUES(?,?,?)",
			id, k, encoded[k])
		if err != nil {
			return nil, fmt.Errorf("insert field %q: %w", k, err)
		}
	}
	return g.GetNode(ctx, id)
}

func (g *sqlGraph) GetNode(ctx context.Context, id string) (*Node, error) {
	row := g.q.QueryRowContext(ctx,
		"SELECT id, node_type, status, created_at, updated_at FROM nodes WHERE id = ?", id)
	var n Node
	var created, updated string
	err := row.Scan(&n.ID, &n.Type, &n.Status, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: node %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get node: %w", err)
	}
	if n.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if n.UpdatedAt, err = time.Parse(time.RFC3339, updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if n.Fields, err = g.loadFields(ctx, id); err != nil {
		return nil, err
	}
	return &n, nil
}

func (g *sqlGraph) loadFields(ctx context.Context, nodeID string) (map[string]any, error) {
	rows, err := g.q.QueryContext(ctx,
		"SELECT field_key, field_value FROM node_fields WHERE node_id = ? ORDER BY field_key", nodeID)
	if err != nil {
		return nil, fmt.Errorf("load fields: %w", err)
	}
	defer rows.Close()
	var fields map[string]any
	for rows.Next() {
		var key, blob string
		if err := rows.Scan(&key, &blob); err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		var v any
		if err := json.Unmarshal([]byte(blob), &v); err != nil {
			return nil, fmt.Errorf("decode field %q: %w", key, err)
		}
		if fields == nil {
			fields = make(map[string]any)
		}
		fields[key] = v
	}
	return fields, rows.Err()
}

func (g *sqlGraph) GetStatus(ctx context.Context, id string) (string, error) {
	row := g.q.QueryRowContext(ctx, "SELECT status FROM nodes WHERE id = ?", id)
	var status string
	err := row.Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: node %s", ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("get status: %w", err)
	}
	return status, nil
}

func (g *sqlGraph) SetStatus(ctx context.Context, id, status string) error {
	res, err := g.q.ExecContext(ctx,
		"UPDATE nodes SET status = ?, updated_at = ? WHERE id = ?", status, nowUTC(), id)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: node %s", ErrNotFound, id)
	}
	return nil
}

func (g *sqlGraph) SetField(ctx context.Context, id, key string, value any) error {
	blob, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode field %q: %w", key, err)
	}
	// Touch the node first; zero rows affected means it does not exist.
	res, err := g.q.ExecContext(ctx,
		"UPDATE nodes SET updated_at = ? WHERE id = ?", nowUTC(), id)
	if err != nil {
		return fmt.Errorf("set field: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set field: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: node %s", ErrNotFound, id)
	}
	_, err = g.q.ExecContext(ctx,
		`INSERT INTO node_fields(node_id, field_key, field_value) VALUES(?,?,?)
		 ON CONFLICT(node_id, field_key) DO UPDATE SET field_value = excluded.field_value`,
		id, key, string(blob))
	if err != nil {
		return fmt.Errorf("upsert field %q: %w", key, err)
	}
	return nil
}

func (g *sqlGraph) CreateEdge(ctx context.Context, edgeType, fromID, toID string) (*Edge, error) {
	if edgeType == "" {
		return nil, fmt.Errorf("edge type is required")
	}
	for _, id := range []string{fromID, toID} {
		var count int
		if err := g.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM nodes WHERE id = ?", id).Scan(&count); err != nil {
			return nil, fmt.Errorf("check node: %w", err)
		}
		if count == 0 {
			return nil, fmt.Errorf("%w: node %s", ErrNotFound, id)
		}
	}
	e := &Edge{
		ID:        uuid.NewString(),
		Type:      edgeType,
		FromID:    fromID,
		ToID:      toID,
		CreatedAt: time.Now().UTC(),
	}
	_, err := g.q.ExecContext(ctx,
		"INSERT INTO edges(id, edge_type, from_id, to_id, created_at) VALUES(?,?,?,?,?)",
		e.ID, e.Type, e.FromID, e.ToID, e.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("insert edge: %w", err)
	}
	return e, nil
}

func (g *sqlGraph) EdgeExists(ctx context.Context, edgeType, fromID, toID string) (bool, error) {
	var count int
	err := g.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM edges WHERE edge_type = ? AND from_id = ? AND to_id = ?",
		edgeType, fromID, toID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check edge: %w", err)
	}
	return count > 0, nil
}

func (g *sqlGraph) QueryNodes(ctx context.Context, nodeType string, filters map[string]any) ([]*Node, error) {
	rows, err := g.q.QueryContext(ctx,
		"SELECT id FROM nodes WHERE node_type = ? ORDER BY rowid", nodeType)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan node id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Field filters are matched in Go after loading each node.
	var out []*Node
	for _, id := range ids {
		n, err := g.GetNode(ctx, id)
		if err != nil {
			return nil, err
		}
		if matchFilters(n, filters) {
			out = append(out, n)
		}
	}
	return out, nil
}
