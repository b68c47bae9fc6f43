package store

// schemaVersion1 is the graph schema: nodes, node_fields, edges.
const schemaVersion1 = 1

// currentSchemaVersion is the target schema version for this build.
const currentSchemaVersion = schemaVersion1

// schemaV1 is the graph DDL (fresh install).
// Field values are stored JSON-encoded in node_fields.field_value.
var schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

CREATE TABLE IF NOT EXISTS nodes (
	id         TEXT PRIMARY KEY,
	node_type  TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS node_fields (
	node_id     TEXT NOT NULL REFERENCES nodes(id),
	field_key   TEXT NOT NULL,
	field_value TEXT NOT NULL,
	PRIMARY KEY (node_id, field_key)
);

CREATE TABLE IF NOT EXISTS edges (
	id         TEXT PRIMARY KEY,
	edge_type  TEXT NOT NULL,
	from_id    TEXT NOT NULL REFERENCES nodes(id),
	to_id      TEXT NOT NULL REFERENCES nodes(id),
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(node_type);
CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_id);
CREATE INDEX IF NOT EXISTS idx_edges_lookup ON edges(edge_type, from_id, to_id);
`
