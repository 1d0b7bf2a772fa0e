// ABOUTME: Tests for the per-user session registry
// ABOUTME: Sign out must yield a fresh session
package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessions_ReusesPerUser(t *testing.T) {
	f := newFixture(t)
	reg := NewSessions(f.engine)

	a, err := reg.Get("u1")
	require.NoError(t, err)
	b, err := reg.Get(" u1 ")
	require.NoError(t, err)
	require.Same(t, a, b)

	c, err := reg.Get("u2")
	require.NoError(t, err)
	require.NotSame(t, a, c)
	require.Equal(t, 2, reg.Len())

	_, err = reg.Get("")
	require.ErrorIs(t, err, ErrEmptyUserID)
}

func TestSessions_SignOutStartsNewSession(t *testing.T) {
	f := newFixture(t)
	reg := NewSessions(f.engine)
	ctx := context.Background()

	first, err := reg.Get("u1")
	require.NoError(t, err)
	_, err = f.engine.GetStreak(ctx, first)
	require.NoError(t, err)

	require.NoError(t, reg.SignOut(ctx, "u1"))
	require.Equal(t, 0, reg.Len())
	_, err = f.local.Get("streak_u1")
	require.Error(t, err)

	second, err := reg.Get("u1")
	require.NoError(t, err)
	require.NotSame(t, first, second)
	_, err = f.engine.GetStreak(ctx, second)
	require.NoError(t, err)
}
