// ABOUTME: Profile cache: one onboarding record per user, local-first
// ABOUTME: Absence is a valid state meaning onboarding is incomplete
package core

import (
	"context"
	"fmt"

	"github.com/harper/om/internal/metrics"
	"github.com/harper/om/internal/models"
	"github.com/harper/om/internal/remote"
)

// LoadProfile returns the user's profile, or nil when the user has not onboarded.
// A local hit never touches the remote.
func (e *Engine) LoadProfile(ctx context.Context, sess *Session) (*models.Profile, error) {
	rec, err := e.LoadAndReconcile(ctx, sess, models.KindProfile)
	if err != nil {
		return nil, err
	}
	return rec.Profile, nil
}

func (e *Engine) loadProfile(ctx context.Context, sess *Session) (*models.Profile, error) {
	unlock := e.lock(sess, models.KindProfile)
	defer unlock()

	local, err := e.readLocalProfile(sess)
	if err != nil {
		return nil, err
	}
	if local != nil {
		observe(models.KindProfile, metrics.OutcomeLocal)
		sess.publishProfile(local)
		return local, nil
	}

	rp, err := e.fetchProfile(ctx, sess)
	if err != nil {
		observe(models.KindProfile, metrics.OutcomeFailed)
		return nil, err
	}
	sess.markReconciled(models.KindProfile)
	if rp == nil {
		observe(models.KindProfile, metrics.OutcomeAbsent)
		e.log.Debug().Str("user", sess.userID).Msg("no profile, onboarding incomplete")
		return nil, nil
	}

	if err := e.writeLocal(sess, models.KindProfile, rp); err != nil {
		return nil, err
	}
	observe(models.KindProfile, metrics.OutcomeMerged)
	sess.publishProfile(rp)
	return rp, nil
}

// readLocalProfile returns the local profile or nil, folding in remote-only
// fields discovered by an earlier push
func (e *Engine) readLocalProfile(sess *Session) (*models.Profile, error) {
	var p models.Profile
	found, err := e.readLocal(sess, models.KindProfile, &p)
	if err != nil || !found {
		return nil, err
	}
	extras := sess.takeProfileExtras()
	changed := false
	for k, v := range extras {
		if _, ok := p.Attributes[k]; ok {
			continue
		}
		if p.Attributes == nil {
			p.Attributes = make(map[string]string, len(extras))
		}
		p.Attributes[k] = v
		changed = true
	}
	if changed {
		if err := e.writeLocal(sess, models.KindProfile, &p); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

// pushProfile queues a read-merge-write of p. The remote row is re-read when the
// job runs so fields this device has never seen are kept.
func (e *Engine) pushProfile(ctx context.Context, sess *Session, p *models.Profile) {
	local := p.Clone()
	e.push(ctx, sess, models.KindProfile, "upsert", func(ctx context.Context) error {
		merged := local
		row, err := e.remote.Get(ctx, remote.TableProfiles, sess.userID)
		switch {
		case remote.IsNotFound(err):
		case err != nil:
			return err
		default:
			rp, err := profileFromRow(row)
			if err != nil {
				e.log.Warn().Err(err).Str("user", sess.userID).Msg("overwriting malformed remote profile")
				break
			}
			var extras map[string]string
			merged, extras = OverlayProfile(rp, local)
			sess.addProfileExtras(extras)
		}
		return e.remote.Upsert(ctx, remote.TableProfiles, profileRow(merged), "id")
	})
}

// fetchProfile returns (nil, nil) when the remote has no row and ErrUnavailable on failure
func (e *Engine) fetchProfile(ctx context.Context, sess *Session) (*models.Profile, error) {
	row, err := e.remote.Get(ctx, remote.TableProfiles, sess.userID)
	if remote.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		e.remoteFailed(sess, models.KindProfile, "get", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	p, err := profileFromRow(row)
	if err != nil {
		e.log.Warn().Err(err).Str("user", sess.userID).Msg("ignoring malformed remote profile")
		return nil, nil
	}
	p.UserID = sess.userID
	return p, nil
}

// CompleteProfile merges partial fields into the profile, stamps updated_at,
// persists locally and queues a remote upsert. Fields not supplied are kept,
// locally and remotely, even when the remote could not be read first.
func (e *Engine) CompleteProfile(ctx context.Context, sess *Session, partial map[string]string) (*models.Profile, error) {
	if err := sess.active(); err != nil {
		return nil, err
	}
	unlock := e.lock(sess, models.KindProfile)
	defer unlock()

	current, err := e.readLocalProfile(sess)
	if err != nil {
		return nil, err
	}

	p := &models.Profile{UserID: sess.userID}
	if current != nil {
		p = current
	} else if rp, err := e.fetchProfile(ctx, sess); err == nil && rp != nil {
		p = rp
	}
	p.UserID = sess.userID

	if applied := p.Merge(partial, e.now()); applied == 0 {
		return nil, ErrEmptyProfile
	}

	if err := e.writeLocal(sess, models.KindProfile, p); err != nil {
		return nil, err
	}
	e.pushProfile(ctx, sess, p)

	sess.publishProfile(p)
	return p.Clone(), nil
}

// RefreshProfile reconciles local and remote last-write-wins regardless of the
// local fast path. A newer local record is pushed to the remote.
func (e *Engine) RefreshProfile(ctx context.Context, sess *Session) (*models.Profile, error) {
	if err := sess.active(); err != nil {
		return nil, err
	}
	unlock := e.lock(sess, models.KindProfile)
	defer unlock()

	local, err := e.readLocalProfile(sess)
	if err != nil {
		return nil, err
	}

	rp, err := e.fetchProfile(ctx, sess)
	if err != nil {
		if local == nil {
			observe(models.KindProfile, metrics.OutcomeFailed)
			return nil, err
		}
		observe(models.KindProfile, metrics.OutcomeDegraded)
		sess.publishProfile(local)
		return local, nil
	}
	sess.markReconciled(models.KindProfile)

	winner, pushLocal := MergeProfile(local, rp)
	if winner == nil {
		observe(models.KindProfile, metrics.OutcomeAbsent)
		return nil, nil
	}
	if winner != local {
		if err := e.writeLocal(sess, models.KindProfile, winner); err != nil {
			return nil, err
		}
	}
	if pushLocal {
		e.pushProfile(ctx, sess, winner)
	}

	observe(models.KindProfile, metrics.OutcomeMerged)
	sess.publishProfile(winner)
	return winner.Clone(), nil
}
