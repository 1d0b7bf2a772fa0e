// ABOUTME: History merge store: ordered user/guidance turns per user
// ABOUTME: Appends optimistically, merges remote exchanges once per session, deletes by pair
package core

import (
	"context"
	"fmt"

	"github.com/harper/om/internal/metrics"
	"github.com/harper/om/internal/models"
	"github.com/harper/om/internal/remote"
)

// Exchange is the pair of turns produced by one submission
type Exchange struct {
	User     models.Entry `json:"user"`
	Guidance models.Entry `json:"guidance"`
}

// LoadHistory returns the merged history. The first call per session merges the
// most recent remote exchanges; later calls serve the local sequence.
func (e *Engine) LoadHistory(ctx context.Context, sess *Session) ([]models.Entry, error) {
	rec, err := e.LoadAndReconcile(ctx, sess, models.KindHistory)
	if err != nil {
		return nil, err
	}
	return rec.History, nil
}

// LocalHistory returns the local sequence without any remote I/O
func (e *Engine) LocalHistory(sess *Session) ([]models.Entry, error) {
	if err := sess.active(); err != nil {
		return nil, err
	}
	var entries []models.Entry
	if _, err := e.readLocal(sess, models.KindHistory, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.Entry{}
	}
	return entries, nil
}

func (e *Engine) loadHistory(ctx context.Context, sess *Session) ([]models.Entry, error) {
	unlock := e.lock(sess, models.KindHistory)
	defer unlock()

	var local []models.Entry
	found, err := e.readLocal(sess, models.KindHistory, &local)
	if err != nil {
		return nil, err
	}
	if local == nil {
		local = []models.Entry{}
	}
	if found && sess.Reconciled(models.KindHistory) {
		observe(models.KindHistory, metrics.OutcomeLocal)
		sess.publishHistory(local)
		return local, nil
	}

	exchanges, err := e.fetchExchanges(ctx, sess)
	if err != nil {
		e.remoteFailed(sess, models.KindHistory, "query", err)
		if !found {
			observe(models.KindHistory, metrics.OutcomeFailed)
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		observe(models.KindHistory, metrics.OutcomeDegraded)
		sess.publishHistory(local)
		return local, nil
	}

	merged := MergeHistory(local, exchanges)
	if err := e.writeLocal(sess, models.KindHistory, merged); err != nil {
		return nil, err
	}
	sess.markReconciled(models.KindHistory)

	outcome := metrics.OutcomeMerged
	if !found && len(exchanges) == 0 {
		outcome = metrics.OutcomeDefault
	}
	observe(models.KindHistory, outcome)
	e.log.Debug().
		Str("user", sess.userID).
		Int("local", len(local)).
		Int("remote_exchanges", len(exchanges)).
		Int("merged", len(merged)).
		Msg("history reconciled")

	sess.publishHistory(merged)
	return merged, nil
}

// fetchExchanges returns the most recent exchanges in ascending order
func (e *Engine) fetchExchanges(ctx context.Context, sess *Session) ([]models.Exchange, error) {
	rows, err := e.remote.Query(ctx, remote.TableHistory, remote.Query{
		Filter:     remote.Filter{"user_id": sess.userID},
		OrderBy:    "created_at",
		Descending: true,
		Limit:      e.historyLimit,
	})
	if err != nil {
		return nil, err
	}

	exchanges := make([]models.Exchange, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		x, err := exchangeFromRow(rows[i])
		if err != nil {
			e.log.Warn().Err(err).Str("user", sess.userID).Msg("skipping malformed remote exchange")
			continue
		}
		exchanges = append(exchanges, x)
	}
	return exchanges, nil
}

// AppendExchange records a user message with already-known guidance text
func (e *Engine) AppendExchange(ctx context.Context, sess *Session, userText, guidanceText string) (Exchange, error) {
	return e.appendExchange(ctx, sess, userText, func(context.Context, string) string {
		return guidanceText
	})
}

// Ask records a user message, resolves guidance through the responder and
// records the reply. The user turn is persisted before guidance is requested.
func (e *Engine) Ask(ctx context.Context, sess *Session, userText string) (Exchange, error) {
	return e.appendExchange(ctx, sess, userText, e.resolveGuidance)
}

func (e *Engine) resolveGuidance(ctx context.Context, message string) string {
	if e.responder == nil {
		return FallbackGuidance
	}
	text, err := e.responder.Respond(ctx, message)
	if err != nil || text == "" {
		e.log.Warn().Err(err).Msg("guidance unavailable, using fallback")
		return FallbackGuidance
	}
	return text
}

func (e *Engine) appendExchange(ctx context.Context, sess *Session, userText string, resolve func(context.Context, string) string) (Exchange, error) {
	if err := sess.active(); err != nil {
		return Exchange{}, err
	}
	user, err := models.NewUserEntry(userText, e.now())
	if err != nil {
		return Exchange{}, err
	}

	unlock := e.lock(sess, models.KindHistory)
	defer unlock()

	var entries []models.Entry
	if _, err := e.readLocal(sess, models.KindHistory, &entries); err != nil {
		return Exchange{}, err
	}

	entries = append(entries, user)
	if err := e.writeLocal(sess, models.KindHistory, entries); err != nil {
		return Exchange{}, err
	}
	sess.publishHistory(entries)

	guidance := models.GuidanceFor(user, resolve(ctx, user.Text))
	entries = append(entries, guidance)
	if err := e.writeLocal(sess, models.KindHistory, entries); err != nil {
		return Exchange{User: user}, err
	}
	sess.publishHistory(entries)

	row := exchangeRow(sess.userID, user, guidance)
	e.push(ctx, sess, models.KindHistory, "insert", func(ctx context.Context) error {
		return e.remote.Insert(ctx, remote.TableHistory, row)
	})

	return Exchange{User: user, Guidance: guidance}, nil
}

// DeleteEntry removes an entry and its pair from the local sequence and queues a
// remote delete of every exchange for this user whose message matches the
// exchange's user text. Identical messages sent at different times are
// deleted remotely together.
func (e *Engine) DeleteEntry(ctx context.Context, sess *Session, entryID string) ([]models.Entry, error) {
	if err := sess.active(); err != nil {
		return nil, err
	}
	unlock := e.lock(sess, models.KindHistory)
	defer unlock()

	var entries []models.Entry
	if _, err := e.readLocal(sess, models.KindHistory, &entries); err != nil {
		return nil, err
	}

	kept, removed, err := RemoveEntry(entries, entryID)
	if err != nil {
		return nil, err
	}
	if err := e.writeLocal(sess, models.KindHistory, kept); err != nil {
		return nil, err
	}
	sess.publishHistory(kept)

	if text, ok := pairUserText(removed); ok {
		filter := remote.Filter{"user_id": sess.userID, "message": text}
		e.push(ctx, sess, models.KindHistory, "delete", func(ctx context.Context) error {
			return e.remote.Delete(ctx, remote.TableHistory, filter)
		})
	}
	return removed, nil
}
