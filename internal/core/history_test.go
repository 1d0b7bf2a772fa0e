// ABOUTME: Tests for the history merge store
// ABOUTME: Append, ask, load, merge and delete
package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/harper/om/internal/localstore"
	"github.com/harper/om/internal/models"
	"github.com/harper/om/internal/remote"
)

type stubResponder struct {
	mu    sync.Mutex
	reply string
	err   error
	seen  []string
	// local is read while the responder runs to prove the user turn was persisted first
	local localstore.Store
	saw   []models.Entry
}

func (s *stubResponder) Respond(_ context.Context, message string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, message)
	if s.local != nil {
		_ = localstore.GetJSON(s.local, "chat_u1", &s.saw)
	}
	return s.reply, s.err
}

func localHistory(t *testing.T, f *fixture) []models.Entry {
	t.Helper()
	var entries []models.Entry
	require.NoError(t, localstore.GetJSON(f.local, "chat_u1", &entries))
	return entries
}

func TestAppendExchange_PersistsAndPushes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	x, err := f.engine.AppendExchange(ctx, f.sess, "What is dharma?", "Righteous duty.")
	require.NoError(t, err)
	require.Equal(t, x.User.ExchangeID, x.Guidance.ExchangeID)
	require.True(t, x.User.Timestamp.Equal(x.Guidance.Timestamp))

	entries := localHistory(t, f)
	require.Len(t, entries, 2)
	require.Equal(t, models.EntryUser, entries[0].Kind)
	require.Equal(t, models.EntryGuidance, entries[1].Kind)

	f.flush(t)
	rows := f.remote.historyRows()
	require.Len(t, rows, 1, "one remote row per exchange")
	require.Equal(t, "What is dharma?", rows[0].String("message"))
	require.Equal(t, "Righteous duty.", rows[0].String("response"))
	created, err := rows[0].Time("created_at")
	require.NoError(t, err)
	require.True(t, created.Equal(x.User.Timestamp))
}

func TestAppendExchange_RemoteFailureNotSurfaced(t *testing.T) {
	f := newFixture(t)
	f.remote.SetFailing(false, true)

	_, err := f.engine.AppendExchange(context.Background(), f.sess, "hello", "om")
	require.NoError(t, err)
	require.Len(t, localHistory(t, f), 2)
}

func TestAppendExchange_RejectsEmptyMessage(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.AppendExchange(context.Background(), f.sess, "   ", "om")
	require.ErrorIs(t, err, ErrEmptyMessage)
	_, err = f.local.Get("chat_u1")
	require.ErrorIs(t, err, localstore.ErrNotFound)
}

func TestAsk_UserTurnPersistedBeforeGuidance(t *testing.T) {
	resp := &stubResponder{reply: "Be still."}
	f := newFixture(t, WithResponder(resp))
	resp.local = f.local

	x, err := f.engine.Ask(context.Background(), f.sess, "How do I find peace?")
	require.NoError(t, err)
	require.Equal(t, "Be still.", x.Guidance.Text)
	require.Equal(t, []string{"How do I find peace?"}, resp.seen)

	require.Len(t, resp.saw, 1, "user turn must be stored before guidance resolves")
	require.Equal(t, models.EntryUser, resp.saw[0].Kind)
}

func TestAsk_ResponderFailureUsesFallback(t *testing.T) {
	f := newFixture(t, WithResponder(&stubResponder{err: errors.New("rate limited")}))

	x, err := f.engine.Ask(context.Background(), f.sess, "Anyone there?")
	require.NoError(t, err)
	require.Equal(t, FallbackGuidance, x.Guidance.Text)
}

func TestAsk_NoResponderUsesFallback(t *testing.T) {
	f := newFixture(t)

	x, err := f.engine.Ask(context.Background(), f.sess, "Anyone there?")
	require.NoError(t, err)
	require.Equal(t, FallbackGuidance, x.Guidance.Text)
}

func TestLoadHistory_MergesRemoteOncePerSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remote.seedExchange("u1", "older question", "older answer", t0)
	f.remote.seedExchange("u2", "someone else", "not mine", t0)

	_, err := f.engine.AppendExchange(ctx, f.sess, "new question", "new answer")
	require.NoError(t, err)

	entries, err := f.engine.LoadHistory(ctx, f.sess)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	require.Equal(t, "older question", entries[0].Text)
	requirePaired(t, entries)
	requireSorted(t, entries)

	_, err = f.engine.LoadHistory(ctx, f.sess)
	require.NoError(t, err)
	require.Equal(t, 1, f.remote.Calls("query", remote.TableHistory))
}

func TestLoadHistory_OwnExchangesDoNotDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.AppendExchange(ctx, f.sess, "q1", "a1")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.engine.AppendExchange(ctx, f.sess, "q2", "a2")
	require.NoError(t, err)
	f.flush(t)

	for i := 0; i < 2; i++ {
		f.restart(t)
		entries, err := f.engine.LoadHistory(ctx, f.sess)
		require.NoError(t, err)
		require.Len(t, entries, 4, "merging the same remote batch again must not duplicate")
	}
}

func TestLoadHistory_RespectsLimit(t *testing.T) {
	f := newFixture(t, WithHistoryLimit(2))
	for i := 0; i < 5; i++ {
		f.remote.seedExchange("u1", "q", "a", t0.Add(time.Duration(i)*time.Minute))
	}

	entries, err := f.engine.LoadHistory(context.Background(), f.sess)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	require.True(t, entries[0].Timestamp.Equal(t0.Add(3*time.Minute)), "the most recent exchanges are kept")
}

func TestLoadHistory_EmptyDefault(t *testing.T) {
	f := newFixture(t)

	entries, err := f.engine.LoadHistory(context.Background(), f.sess)
	require.NoError(t, err)
	require.NotNil(t, entries)
	require.Empty(t, entries)
	require.Empty(t, localHistory(t, f))
}

func TestLoadHistory_RemoteFailure(t *testing.T) {
	t.Run("local present is served", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.AppendExchange(context.Background(), f.sess, "q", "a")
		require.NoError(t, err)
		f.remote.SetFailing(true, true)

		entries, err := f.engine.LoadHistory(context.Background(), f.sess)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		require.False(t, f.sess.Reconciled(models.KindHistory))
	})

	t.Run("nothing local is unavailable", func(t *testing.T) {
		f := newFixture(t)
		f.remote.SetFailing(true, false)

		_, err := f.engine.LoadHistory(context.Background(), f.sess)
		require.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestLocalHistory_NoRemoteIO(t *testing.T) {
	f := newFixture(t)
	f.remote.seedExchange("u1", "remote only", "r", t0)

	entries, err := f.engine.LocalHistory(f.sess)
	require.NoError(t, err)
	require.Empty(t, entries)
	require.Zero(t, f.remote.Calls("query", remote.TableHistory))
}

func TestDeleteEntry_GuidanceRemovesPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.engine.AppendExchange(ctx, f.sess, "same words", "reply one")
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	_, err = f.engine.AppendExchange(ctx, f.sess, "same words", "reply two")
	require.NoError(t, err)
	_, err = f.engine.AppendExchange(ctx, f.sess, "different", "reply three")
	require.NoError(t, err)
	f.flush(t)

	removed, err := f.engine.DeleteEntry(ctx, f.sess, first.Guidance.ID)
	require.NoError(t, err)
	require.Len(t, removed, 2)
	require.Equal(t, first.User.ID, removed[0].ID)

	entries := localHistory(t, f)
	require.Len(t, entries, 4)
	requirePaired(t, entries)

	f.flush(t)
	rows := f.remote.historyRows()
	require.Len(t, rows, 1, "remote delete matches message text, so identical messages go together")
	require.Equal(t, "different", rows[0].String("message"))
}

func TestDeleteEntry_LoneUserTurn(t *testing.T) {
	f := newFixture(t)
	user, err := models.NewUserEntry("unanswered", f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, localstore.SetJSON(f.local, "chat_u1", []models.Entry{user}))

	removed, err := f.engine.DeleteEntry(context.Background(), f.sess, user.ID)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	require.Empty(t, localHistory(t, f))
}

func TestDeleteEntry_Unknown(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.DeleteEntry(context.Background(), f.sess, "missing")
	require.ErrorIs(t, err, ErrEntryNotFound)
}
