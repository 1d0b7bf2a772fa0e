// ABOUTME: Registry of live sessions keyed by user id
// ABOUTME: Long-running surfaces (HTTP, MCP) share one session per user
package core

import (
	"context"
	"strings"
	"sync"
)

// Sessions keeps one live session per user for long-running surfaces
type Sessions struct {
	engine *Engine

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessions creates an empty registry over engine
func NewSessions(engine *Engine) *Sessions {
	return &Sessions{engine: engine, sessions: make(map[string]*Session)}
}

// Get returns the user's session, signing in on first use
func (s *Sessions) Get(userID string) (*Session, error) {
	userID = strings.TrimSpace(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		return sess, nil
	}
	sess, err := s.engine.SignIn(userID)
	if err != nil {
		return nil, err
	}
	s.sessions[userID] = sess
	return sess, nil
}

// SignOut ends the user's session and clears their local data.
// Users without a live session are signed in first so their keys are still cleared.
func (s *Sessions) SignOut(ctx context.Context, userID string) error {
	sess, err := s.Get(userID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.sessions, sess.UserID())
	s.mu.Unlock()
	return s.engine.SignOut(ctx, sess)
}

// Len reports the number of live sessions
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
