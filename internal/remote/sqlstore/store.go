// ABOUTME: Relational remote store over database/sql and sqlx
// ABOUTME: Builds catalogue-checked statements for sqlite (modernc) and postgres (pgx)
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/harper/om/internal/remote"
	"github.com/harper/om/internal/storage/sqlite"
)

// Store implements remote.Store on a SQL database
type Store struct {
	db      *sqlx.DB
	dialect Dialect
	timeout time.Duration
	closer  io.Closer
}

var _ remote.Store = (*Store)(nil)

// Option configures a Store
type Option func(*Store)

// WithTimeout bounds every call; zero disables the bound
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// New wraps an open connection. Call Migrate before first use.
func New(db *sqlx.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{db: db, dialect: dialect, closer: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenSQLite opens (or creates) a sqlite remote at path and migrates it
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*Store, error) {
	var (
		db  *sqlite.DB
		err error
	)
	if path == ":memory:" {
		db, err = sqlite.OpenInMemory()
	} else {
		db, err = sqlite.Open(path)
	}
	if err != nil {
		return nil, err
	}
	s := New(db.Conn(), SQLite, opts...)
	s.closer = db
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenPostgres connects with the pgx stdlib driver and migrates
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sqlx.Open(Postgres.DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	s := New(db, Postgres, opts...)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the remote tables if missing
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate %s schema: %w", s.dialect.Name, err)
		}
	}
	return nil
}

// Ping checks connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) Get(ctx context.Context, table, key string) (remote.Row, error) {
	t, err := remote.Lookup(table)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := s.db.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		strings.Join(t.Columns, ", "), t.Name, t.PrimaryKey))

	row := remote.Row{}
	if err := s.db.QueryRowxContext(ctx, query, key).MapScan(row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, remote.ErrNotFound
		}
		return nil, remote.Wrap("get", table, err)
	}
	return row, nil
}

func (s *Store) Query(ctx context.Context, table string, q remote.Query) ([]remote.Row, error) {
	t, err := remote.Lookup(table)
	if err != nil {
		return nil, err
	}
	if err := q.Check(t); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	where, args, err := s.where(q.Filter)
	if err != nil {
		return nil, remote.Irrecoverablef("query", table, "%v", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(t.Columns, ", "), t.Name)
	b.WriteString(where)
	if q.OrderBy != "" {
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		// id breaks ties between rows sharing a timestamp
		fmt.Fprintf(&b, " ORDER BY %s %s, %s %s", q.OrderBy, dir, t.PrimaryKey, dir)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}

	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(b.String()), args...)
	if err != nil {
		return nil, remote.Wrap("query", table, err)
	}
	defer func() { _ = rows.Close() }()

	var out []remote.Row
	for rows.Next() {
		row := remote.Row{}
		if err := rows.MapScan(row); err != nil {
			return nil, remote.Wrap("query", table, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, remote.Wrap("query", table, err)
	}
	return out, nil
}

func (s *Store) Insert(ctx context.Context, table string, row remote.Row) error {
	t, err := remote.Lookup(table)
	if err != nil {
		return err
	}
	cols, args, err := s.columns(t, row)
	if err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.Name, strings.Join(cols, ", "), placeholders(len(cols)))
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return remote.Wrap("insert", table, err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, table string, row remote.Row, conflictKey string) error {
	t, err := remote.Lookup(table)
	if err != nil {
		return err
	}
	if err := t.CheckColumns(conflictKey); err != nil {
		return err
	}
	if _, ok := row[conflictKey]; !ok {
		return remote.Irrecoverablef("upsert", table, "row is missing conflict key %q", conflictKey)
	}
	cols, args, err := s.columns(t, row)
	if err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var sets []string
	for _, c := range cols {
		if c != conflictKey {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}
	action := "DO NOTHING"
	if len(sets) > 0 {
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		t.Name, strings.Join(cols, ", "), placeholders(len(cols)), conflictKey, action)
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return remote.Wrap("upsert", table, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table string, filter remote.Filter) error {
	t, err := remote.Lookup(table)
	if err != nil {
		return err
	}
	if len(filter) == 0 {
		return remote.Irrecoverablef("delete", table, "refusing unfiltered delete")
	}
	if err := (remote.Query{Filter: filter}).Check(t); err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	where, args, err := s.where(filter)
	if err != nil {
		return remote.Irrecoverablef("delete", table, "%v", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM "+t.Name+where), args...); err != nil {
		return remote.Wrap("delete", table, err)
	}
	return nil
}

// columns returns the row's columns in stable order with encoded values
func (s *Store) columns(t remote.Table, row remote.Row) ([]string, []any, error) {
	if len(row) == 0 {
		return nil, nil, remote.Irrecoverablef("write", t.Name, "empty row")
	}
	cols := row.Columns()
	sort.Strings(cols)
	if err := t.CheckColumns(cols...); err != nil {
		return nil, nil, err
	}
	args := make([]any, len(cols))
	for i, c := range cols {
		v, err := s.dialect.encode(row[c])
		if err != nil {
			return nil, nil, remote.Irrecoverablef("write", t.Name, "encode %s: %v", c, err)
		}
		args[i] = v
	}
	return cols, args, nil
}

func (s *Store) where(filter remote.Filter) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}
	cols := make([]string, 0, len(filter))
	for c := range filter {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	conds := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		conds[i] = c + " = ?"
		v, err := s.dialect.encode(filter[c])
		if err != nil {
			return "", nil, err
		}
		args[i] = v
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
