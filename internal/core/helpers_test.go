// ABOUTME: Shared fixtures for engine tests
// ABOUTME: Fake remote with failure and query gating, plus a controllable clock
package core

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/harper/om/internal/localstore"
	"github.com/harper/om/internal/outbox"
	"github.com/harper/om/internal/remote"
)

// fakeRemote is an in-memory remote store with switchable failures
type fakeRemote struct {
	mu         sync.Mutex
	rows       map[string]map[string]remote.Row
	history    []remote.Row
	nextID     int
	failReads  bool
	failWrites bool
	calls      map[string]int

	// when set, Query signals queryEntered and blocks until queryGate closes
	queryGate    chan struct{}
	queryEntered chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		rows:  map[string]map[string]remote.Row{},
		calls: map[string]int{},
	}
}

var errNetwork = errors.New("network unreachable")

func (f *fakeRemote) count(op, table string) {
	f.calls[op+":"+table]++
}

func (f *fakeRemote) Calls(op, table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op+":"+table]
}

func (f *fakeRemote) SetFailing(reads, writes bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failReads, f.failWrites = reads, writes
}

func (f *fakeRemote) Get(_ context.Context, table, key string) (remote.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("get", table)
	if f.failReads {
		return nil, remote.Wrap("get", table, errNetwork)
	}
	row, ok := f.rows[table][key]
	if !ok {
		return nil, remote.ErrNotFound
	}
	return copyRow(row), nil
}

// holdQueries makes the next queries block until the returned release is called
func (f *fakeRemote) holdQueries() (entered <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.queryGate = gate
	f.queryEntered = make(chan struct{}, 1)
	var once sync.Once
	return f.queryEntered, func() { once.Do(func() { close(gate) }) }
}

func (f *fakeRemote) Query(ctx context.Context, table string, q remote.Query) ([]remote.Row, error) {
	f.mu.Lock()
	gate, entered := f.queryGate, f.queryEntered
	f.mu.Unlock()
	if gate != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-gate
	}
	if err := ctx.Err(); err != nil {
		return nil, remote.Wrap("query", table, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("query", table)
	if f.failReads {
		return nil, remote.Wrap("query", table, errNetwork)
	}
	var out []remote.Row
	for _, r := range f.history {
		if matches(r, q.Filter) {
			out = append(out, copyRow(r))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, _ := out[i].Time("created_at")
		b, _ := out[j].Time("created_at")
		if q.Descending {
			return a.After(b)
		}
		return a.Before(b)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *fakeRemote) Insert(_ context.Context, table string, row remote.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("insert", table)
	if f.failWrites {
		return remote.Wrap("insert", table, errNetwork)
	}
	f.nextID++
	r := copyRow(row)
	r["id"] = strconv.Itoa(f.nextID)
	f.history = append(f.history, r)
	return nil
}

func (f *fakeRemote) Upsert(_ context.Context, table string, row remote.Row, conflictKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("upsert", table)
	if f.failWrites {
		return remote.Wrap("upsert", table, errNetwork)
	}
	if f.rows[table] == nil {
		f.rows[table] = map[string]remote.Row{}
	}
	f.rows[table][row.String(conflictKey)] = copyRow(row)
	return nil
}

func (f *fakeRemote) Delete(_ context.Context, table string, filter remote.Filter) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count("delete", table)
	if f.failWrites {
		return remote.Wrap("delete", table, errNetwork)
	}
	kept := f.history[:0]
	for _, r := range f.history {
		if !matches(r, filter) {
			kept = append(kept, r)
		}
	}
	f.history = kept
	return nil
}

// seedExchange stores a remote exchange directly
func (f *fakeRemote) seedExchange(user, msg, resp string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.history = append(f.history, remote.Row{
		"id":         strconv.Itoa(f.nextID),
		"user_id":    user,
		"message":    msg,
		"response":   resp,
		"created_at": at,
	})
}

func (f *fakeRemote) seed(table, key string, row remote.Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rows[table] == nil {
		f.rows[table] = map[string]remote.Row{}
	}
	f.rows[table][key] = row
}

func (f *fakeRemote) row(table, key string) (remote.Row, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[table][key]
	return r, ok
}

func (f *fakeRemote) historyRows() []remote.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.Row(nil), f.history...)
}

func matches(r remote.Row, filter remote.Filter) bool {
	for col, v := range filter {
		if r.String(col) != v {
			return false
		}
	}
	return true
}

func copyRow(r remote.Row) remote.Row {
	out := make(remote.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// testClock is a settable wall clock
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(day string) *testClock {
	t, err := time.Parse("2006-01-02 15:04", day+" 09:00")
	if err != nil {
		panic(err)
	}
	return &testClock{now: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(day string) {
	t, err := time.Parse("2006-01-02 15:04", day+" 09:00")
	if err != nil {
		panic(err)
	}
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	engine *Engine
	local  *localstore.Memory
	remote *fakeRemote
	clock  *testClock
	sess   *Session
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		local:  localstore.NewMemory(),
		remote: newFakeRemote(),
		clock:  newTestClock("2024-01-02"),
	}
	ob := outbox.New(outbox.Config{Shards: 1, MaxAttempts: 2, BaseBackoff: time.Millisecond}, zerolog.Nop())
	t.Cleanup(ob.Stop)

	base := []Option{WithClock(f.clock.Now), WithOutbox(ob)}
	f.engine = New(f.local, f.remote, append(base, opts...)...)
	t.Cleanup(func() { _ = f.engine.Close() })

	sess, err := f.engine.SignIn("u1")
	require.NoError(t, err)
	f.sess = sess
	return f
}

// restart simulates a new app session over the same stores
func (f *fixture) restart(t *testing.T) {
	t.Helper()
	sess, err := f.engine.SignIn(f.sess.UserID())
	require.NoError(t, err)
	f.sess = sess
}

func (f *fixture) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.engine.Flush(ctx, f.sess))
}

func (f *fixture) setLocalStreak(t *testing.T, count int, day string) {
	t.Helper()
	require.NoError(t, localstore.SetJSON(f.local, "streak_u1", map[string]any{"count": count, "last_update": day}))
}
