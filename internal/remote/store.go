// ABOUTME: Remote store contract: keyed relational tables reachable over an unreliable network
// ABOUTME: Point get, ordered range query, insert, upsert and predicate delete over generic rows
package remote

import (
	"context"
	"fmt"
)

// Store is a keyed relational store. Every method may fail; callers must be able
// to tell ErrNotFound apart from transport errors.
type Store interface {
	// Get returns the row whose primary key equals key, or ErrNotFound
	Get(ctx context.Context, table, key string) (Row, error)
	// Query returns rows matching q. An empty result is not an error.
	Query(ctx context.Context, table string, q Query) ([]Row, error)
	Insert(ctx context.Context, table string, row Row) error
	// Upsert inserts row or replaces the row that shares conflictKey
	Upsert(ctx context.Context, table string, row Row, conflictKey string) error
	// Delete removes every row matching filter
	Delete(ctx context.Context, table string, filter Filter) error
}

// Filter is a conjunction of column equality predicates
type Filter map[string]any

// Query describes a filtered, ordered and limited range read
type Query struct {
	Filter     Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// Table names
const (
	TableProfiles = "user_profiles"
	TableStreaks  = "streaks"
	TableHistory  = "chat_history"
)

// Table describes a remote table the engine is allowed to touch
type Table struct {
	Name       string
	PrimaryKey string
	Columns    []string
}

// Tables is the catalogue of remote tables
var Tables = map[string]Table{
	TableProfiles: {Name: TableProfiles, PrimaryKey: "id", Columns: []string{"id", "attributes", "updated_at"}},
	TableStreaks:  {Name: TableStreaks, PrimaryKey: "id", Columns: []string{"id", "count", "last_update", "updated_at"}},
	TableHistory:  {Name: TableHistory, PrimaryKey: "id", Columns: []string{"id", "user_id", "message", "response", "created_at"}},
}

// Lookup returns the catalogue entry for name
func Lookup(name string) (Table, error) {
	t, ok := Tables[name]
	if !ok {
		return Table{}, Irrecoverablef("lookup", name, "unknown table %q", name)
	}
	return t, nil
}

// HasColumn reports whether col belongs to the table
func (t Table) HasColumn(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// CheckColumns rejects any column outside the table definition
func (t Table) CheckColumns(cols ...string) error {
	for _, c := range cols {
		if !t.HasColumn(c) {
			return Irrecoverablef("validate", t.Name, "unknown column %q", c)
		}
	}
	return nil
}

// Check validates a query against the table definition
func (q Query) Check(t Table) error {
	for col := range q.Filter {
		if err := t.CheckColumns(col); err != nil {
			return err
		}
	}
	if q.OrderBy != "" {
		if err := t.CheckColumns(q.OrderBy); err != nil {
			return err
		}
	}
	if q.Limit < 0 {
		return Irrecoverablef("validate", t.Name, "negative limit %d", q.Limit)
	}
	return nil
}

func (q Query) String() string {
	dir := "asc"
	if q.Descending {
		dir = "desc"
	}
	return fmt.Sprintf("filter=%v order=%s %s limit=%d", q.Filter, q.OrderBy, dir, q.Limit)
}
