// ABOUTME: Session is the explicit per-user context the engine operates on
// ABOUTME: Tracks which kinds were reconciled this session and the last published records
package core

import (
	"sync"

	"github.com/harper/om/internal/models"
)

// Session holds state for one signed-in user.
// Create with Engine.SignIn; discard after Engine.SignOut.
type Session struct {
	userID string

	mu         sync.RWMutex
	reconciled map[models.Kind]bool
	signedOut  bool

	profile *models.Profile
	streak  *models.Streak
	history []models.Entry

	// remote-only profile fields found by a push, folded into local on the next read
	profileExtras map[string]string
}

func newSession(userID string) *Session {
	return &Session{
		userID:     userID,
		reconciled: make(map[models.Kind]bool),
	}
}

// UserID returns the session's user
func (s *Session) UserID() string { return s.userID }

// Reconciled reports whether kind was reconciled with the remote this session
func (s *Session) Reconciled(kind models.Kind) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reconciled[kind]
}

func (s *Session) markReconciled(kind models.Kind) {
	s.mu.Lock()
	s.reconciled[kind] = true
	s.mu.Unlock()
}

func (s *Session) active() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.signedOut {
		return ErrSignedOut
	}
	return nil
}

// Profile returns the last published profile, nil when absent or not yet loaded
func (s *Session) Profile() *models.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile.Clone()
}

// Streak returns the last published streak
func (s *Session) Streak() (models.Streak, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.streak == nil {
		return models.Streak{}, false
	}
	return *s.streak, true
}

// History returns a copy of the last published history
func (s *Session) History() []models.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Entry(nil), s.history...)
}

func (s *Session) publishProfile(p *models.Profile) {
	s.mu.Lock()
	s.profile = p.Clone()
	s.mu.Unlock()
}

func (s *Session) publishStreak(st models.Streak) {
	s.mu.Lock()
	s.streak = &st
	s.mu.Unlock()
}

func (s *Session) publishHistory(entries []models.Entry) {
	s.mu.Lock()
	s.history = append([]models.Entry(nil), entries...)
	s.mu.Unlock()
}

func (s *Session) addProfileExtras(extras map[string]string) {
	if len(extras) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signedOut {
		return
	}
	if s.profileExtras == nil {
		s.profileExtras = make(map[string]string, len(extras))
	}
	for k, v := range extras {
		s.profileExtras[k] = v
	}
}

func (s *Session) takeProfileExtras() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	extras := s.profileExtras
	s.profileExtras = nil
	return extras
}

func (s *Session) reset() {
	s.mu.Lock()
	s.reconciled = make(map[models.Kind]bool)
	s.profileExtras = nil
	s.signedOut = true
	s.profile = nil
	s.streak = nil
	s.history = nil
	s.mu.Unlock()
}
