// ABOUTME: Engine orchestrates local-first reads, remote reconciliation and write-back
// ABOUTME: Serializes work per (user, kind) and routes remote writes through the outbox
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/harper/om/internal/localstore"
	"github.com/harper/om/internal/metrics"
	"github.com/harper/om/internal/models"
	"github.com/harper/om/internal/outbox"
	"github.com/harper/om/internal/remote"
)

// DefaultHistoryLimit is how many recent exchanges a history reconciliation fetches
const DefaultHistoryLimit = 50

// FallbackGuidance is shown when no guidance text can be produced
const FallbackGuidance = "ॐ Apologies, divine guidance is temporarily unavailable. Please try again. Shanti."

// Responder turns a user message into guidance text
type Responder interface {
	Respond(ctx context.Context, message string) (string, error)
}

// Engine is the local-first sync engine shared by every surface
type Engine struct {
	local        localstore.Store
	remote       remote.Store
	outbox       *outbox.Executor
	ownsOutbox   bool
	responder    Responder
	now          func() time.Time
	log          zerolog.Logger
	historyLimit int

	locks  keyedMutex
	flight singleflight.Group
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithClock overrides the wall clock; the returned time's location defines calendar days
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithResponder sets how guidance text is produced for Ask
func WithResponder(r Responder) Option {
	return func(e *Engine) { e.responder = r }
}

// WithHistoryLimit bounds the remote history fetch
func WithHistoryLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.historyLimit = n
		}
	}
}

// WithOutbox supplies a shared outbox; the engine will not stop it on Close
func WithOutbox(x *outbox.Executor) Option {
	return func(e *Engine) { e.outbox = x }
}

// New builds an engine over a local and a remote store
func New(local localstore.Store, rem remote.Store, opts ...Option) *Engine {
	e := &Engine{
		local:        local,
		remote:       rem,
		now:          time.Now,
		log:          zerolog.Nop(),
		historyLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	if rem == nil {
		e.remote = remote.Offline{}
	}
	e.log = e.log.With().Str("component", "engine").Logger()
	if e.outbox == nil {
		e.outbox = outbox.New(outbox.Config{}, e.log)
		e.ownsOutbox = true
	}
	return e
}

// Close drains the outbox if the engine created it
func (e *Engine) Close() error {
	if e.ownsOutbox {
		e.outbox.Stop()
	}
	return nil
}

// OutboxStats reports remote write progress
func (e *Engine) OutboxStats() outbox.Stats {
	return e.outbox.Stats()
}

// SignIn opens a session for userID
func (e *Engine) SignIn(userID string) (*Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	return newSession(userID), nil
}

// SignOut flushes the user's pending remote writes, deletes every per-user
// local key and clears the session. The session cannot be reused.
func (e *Engine) SignOut(ctx context.Context, sess *Session) error {
	if err := sess.active(); err != nil {
		return err
	}
	if err := e.Flush(ctx, sess); err != nil {
		e.log.Warn().Err(err).Str("user", sess.userID).Msg("sign-out flush incomplete")
	}
	for _, key := range localstore.UserKeys(sess.userID) {
		if err := e.local.Delete(key); err != nil {
			return fmt.Errorf("failed to clear local %s: %w", key, err)
		}
	}
	sess.reset()
	return nil
}

// Flush waits until every remote write queued for the session's user has run
func (e *Engine) Flush(ctx context.Context, sess *Session) error {
	return e.outbox.Barrier(ctx, sess.userID)
}

// Warm reconciles every kind concurrently. Unavailable kinds are skipped.
func (e *Engine) Warm(ctx context.Context, sess *Session) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, kind := range models.Kinds {
		kind := kind
		g.Go(func() error {
			_, err := e.LoadAndReconcile(ctx, sess, kind)
			if errors.Is(err, ErrUnavailable) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// Record is the outcome of a reconciliation; exactly one field is meaningful per kind
type Record struct {
	Kind    models.Kind
	Profile *models.Profile
	Streak  models.Streak
	History []models.Entry
}

// LoadAndReconcile runs the read-through sequence for one kind.
// Concurrent calls for the same (user, kind) share one execution. A caller whose
// ctx ends stops waiting; the shared execution and the other callers carry on.
func (e *Engine) LoadAndReconcile(ctx context.Context, sess *Session, kind models.Kind) (Record, error) {
	if err := sess.active(); err != nil {
		return Record{}, err
	}
	if !kind.Valid() {
		return Record{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	// the shared load outlives any one caller; store timeouts bound it
	shared := context.WithoutCancel(ctx)
	ch := e.flight.DoChan(lockKey(sess.userID, kind), func() (interface{}, error) {
		switch kind {
		case models.KindProfile:
			p, err := e.loadProfile(shared, sess)
			return Record{Kind: kind, Profile: p}, err
		case models.KindStreak:
			s, err := e.streak(shared, sess)
			return Record{Kind: kind, Streak: s}, err
		default:
			h, err := e.loadHistory(shared, sess)
			return Record{Kind: kind, History: h}, err
		}
	})

	var v interface{}
	var err error
	select {
	case <-ctx.Done():
		return Record{}, ctx.Err()
	case res := <-ch:
		v, err = res.Val, res.Err
	}
	rec, _ := v.(Record)
	// shared results must not alias between callers
	rec.Profile = rec.Profile.Clone()
	if rec.History != nil {
		history := make([]models.Entry, len(rec.History))
		copy(history, rec.History)
		rec.History = history
	}
	return rec, err
}

func lockKey(userID string, kind models.Kind) string {
	return userID + "\x00" + string(kind)
}

func (e *Engine) lock(sess *Session, kind models.Kind) func() {
	return e.locks.Lock(lockKey(sess.userID, kind))
}

// readLocal decodes the local record. Corrupt values count as absent.
func (e *Engine) readLocal(sess *Session, kind models.Kind, dest interface{}) (bool, error) {
	key := localstore.Key(kind, sess.userID)
	err := localstore.GetJSON(e.local, key, dest)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, localstore.ErrNotFound):
		return false, nil
	case errors.Is(err, localstore.ErrCorrupt):
		e.log.Warn().Err(err).Str("user", sess.userID).Str("kind", kind.String()).Msg("discarding corrupt local record")
		return false, nil
	default:
		return false, fmt.Errorf("read local %s: %w", kind, err)
	}
}

func (e *Engine) writeLocal(sess *Session, kind models.Kind, value interface{}) error {
	if err := localstore.SetJSON(e.local, localstore.Key(kind, sess.userID), value); err != nil {
		return fmt.Errorf("persist %s: %w", kind, err)
	}
	return nil
}

// remoteFailed logs and counts a remote failure. NotFound never reaches here.
func (e *Engine) remoteFailed(sess *Session, kind models.Kind, op string, err error) {
	class := remote.Transient.String()
	if remote.IsIrrecoverable(err) {
		class = remote.Irrecoverable.String()
	}
	metrics.RemoteErrors.WithLabelValues(op, class).Inc()
	e.log.Warn().Err(err).
		Str("user", sess.userID).
		Str("kind", kind.String()).
		Str("op", op).
		Msg("remote unavailable, using local state")
}

func observe(kind models.Kind, outcome string) {
	metrics.Reconciliations.WithLabelValues(kind.String(), outcome).Inc()
}

// push queues a best-effort remote write for the session's user.
// The write outlives ctx cancellation; failures are logged, never returned.
func (e *Engine) push(ctx context.Context, sess *Session, kind models.Kind, op string, fn func(ctx context.Context) error) {
	err := e.outbox.Submit(context.WithoutCancel(ctx), sess.userID, outbox.JobFunc(fn))
	if err != nil {
		metrics.RemoteErrors.WithLabelValues(op, "enqueue").Inc()
		e.log.Warn().Err(err).
			Str("user", sess.userID).
			Str("kind", kind.String()).
			Str("op", op).
			Msg("remote write not queued")
	}
}
