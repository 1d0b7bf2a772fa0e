// ABOUTME: SQLite schema for the device-local key-value store
// ABOUTME: One table of opaque values keyed by string
package sqlite

// KVSchema creates the local key-value table
const KVSchema = `
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// SchemaVersion is the current schema version for migrations
const SchemaVersion = 1
