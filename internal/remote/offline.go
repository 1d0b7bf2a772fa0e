// ABOUTME: Remote store that is never reachable
// ABOUTME: Used for local-only operation and for exercising degraded paths
package remote

import "context"

// Offline fails every call with a transient ErrOffline
type Offline struct{}

func (Offline) Get(_ context.Context, table, _ string) (Row, error) {
	return nil, Wrap("get", table, ErrOffline)
}

func (Offline) Query(_ context.Context, table string, _ Query) ([]Row, error) {
	return nil, Wrap("query", table, ErrOffline)
}

func (Offline) Insert(_ context.Context, table string, _ Row) error {
	return Wrap("insert", table, ErrOffline)
}

func (Offline) Upsert(_ context.Context, table string, _ Row, _ string) error {
	return Wrap("upsert", table, ErrOffline)
}

func (Offline) Delete(_ context.Context, table string, _ Filter) error {
	return Wrap("delete", table, ErrOffline)
}
