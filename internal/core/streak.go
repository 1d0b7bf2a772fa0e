// ABOUTME: Streak tracker: consecutive-day engagement counter per user
// ABOUTME: Recomputed on read, written local first and pushed remotely through the outbox
package core

import (
	"context"

	"github.com/harper/om/internal/metrics"
	"github.com/harper/om/internal/models"
	"github.com/harper/om/internal/remote"
)

// GetStreak returns today's streak count for the session's user.
// Two calls on the same calendar day return the same count.
func (e *Engine) GetStreak(ctx context.Context, sess *Session) (int, error) {
	rec, err := e.LoadAndReconcile(ctx, sess, models.KindStreak)
	if err != nil {
		return 0, err
	}
	return rec.Streak.Count, nil
}

func (e *Engine) streak(ctx context.Context, sess *Session) (models.Streak, error) {
	unlock := e.lock(sess, models.KindStreak)
	defer unlock()

	var stored models.Streak
	found, err := e.readLocal(sess, models.KindStreak, &stored)
	if err != nil {
		return models.Streak{}, err
	}
	var local *models.Streak
	if found {
		local = &stored
	}

	now := e.now()
	base := local
	outcome := metrics.OutcomeLocal

	// remoteView is meaningful only when remoteKnown
	var remoteView *models.Streak
	remoteKnown := false

	if local == nil || !sess.Reconciled(models.KindStreak) {
		row, err := e.remote.Get(ctx, remote.TableStreaks, sess.userID)
		switch {
		case err == nil:
			rs, derr := streakFromRow(row)
			if derr != nil {
				e.log.Warn().Err(derr).Str("user", sess.userID).Msg("ignoring malformed remote streak")
			} else {
				remoteView = rs
			}
			remoteKnown = true
		case remote.IsNotFound(err):
			remoteKnown = true
		default:
			e.remoteFailed(sess, models.KindStreak, "get", err)
			if local == nil {
				observe(models.KindStreak, metrics.OutcomeFailed)
				return models.Streak{}, ErrUnavailable
			}
			outcome = metrics.OutcomeDegraded
		}

		if remoteKnown {
			sess.markReconciled(models.KindStreak)
			base = PickStreakBase(local, remoteView, now.Location())
			outcome = metrics.OutcomeMerged
			if base == nil {
				outcome = metrics.OutcomeDefault
			}
		}
	}

	next, changed := NextStreak(base, now)

	if local == nil || !local.Equal(next) {
		if err := e.writeLocal(sess, models.KindStreak, next); err != nil {
			return models.Streak{}, err
		}
	}
	if changed || (remoteKnown && (remoteView == nil || !remoteView.Equal(next))) {
		row := streakRow(sess.userID, next, now)
		e.push(ctx, sess, models.KindStreak, "upsert", func(ctx context.Context) error {
			return e.remote.Upsert(ctx, remote.TableStreaks, row, "id")
		})
	}

	observe(models.KindStreak, outcome)
	sess.publishStreak(next)
	e.log.Debug().Str("user", sess.userID).Int("count", next.Count).Bool("changed", changed).Msg("streak resolved")
	return next, nil
}
