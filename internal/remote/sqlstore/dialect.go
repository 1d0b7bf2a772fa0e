// ABOUTME: SQL dialects supported by the relational remote store
// ABOUTME: Holds per-dialect DDL and value encoding for sqlite and postgres
package sqlstore

import (
	"encoding/json"
	"time"

	"github.com/harper/om/internal/remote"
)

// Dialect captures what differs between the supported databases
type Dialect struct {
	Name       string
	DriverName string
	Schema     []string
	// TextTime stores timestamps as fixed-width UTC text
	TextTime bool
}

// SQLite stores timestamps as text so ordering is lexical and driver independent
var SQLite = Dialect{
	Name:       "sqlite",
	DriverName: "sqlite",
	TextTime:   true,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS user_profiles (
			id TEXT PRIMARY KEY,
			attributes TEXT NOT NULL DEFAULT '{}',
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS streaks (
			id TEXT PRIMARY KEY,
			count INTEGER NOT NULL CHECK (count >= 1),
			last_update TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chat_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			message TEXT NOT NULL,
			response TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_history_user_created ON chat_history(user_id, created_at)`,
	},
}

// Postgres uses the pgx stdlib driver
var Postgres = Dialect{
	Name:       "postgres",
	DriverName: "pgx",
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS user_profiles (
			id TEXT PRIMARY KEY,
			attributes JSONB NOT NULL DEFAULT '{}'::jsonb,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS streaks (
			id TEXT PRIMARY KEY,
			count INTEGER NOT NULL CHECK (count >= 1),
			last_update TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chat_history (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			message TEXT NOT NULL,
			response TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_history_user_created ON chat_history(user_id, created_at)`,
	},
}

// encode converts a row value into a driver argument
func (d Dialect) encode(v any) (any, error) {
	switch val := v.(type) {
	case time.Time:
		if d.TextTime {
			return val.UTC().Format(remote.TimeLayout), nil
		}
		return val.UTC(), nil
	case map[string]string, map[string]any:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return v, nil
	}
}
