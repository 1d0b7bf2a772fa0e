// ABOUTME: Sentinel errors returned by the sync engine
// ABOUTME: Callers match them with errors.Is
package core

import (
	"errors"

	"github.com/harper/om/internal/models"
)

var (
	// ErrUnavailable means the remote failed and nothing usable exists locally.
	// Callers choose the fallback display.
	ErrUnavailable = errors.New("record unavailable: remote unreachable and no local copy")

	ErrEntryNotFound = errors.New("history entry not found")
	ErrEmptyUserID   = errors.New("user id is required")
	ErrEmptyProfile  = errors.New("profile update has no fields")
	ErrSignedOut     = errors.New("session is signed out")
	ErrUnknownKind   = errors.New("unknown record kind")

	ErrEmptyMessage = models.ErrEmptyMessage
)
