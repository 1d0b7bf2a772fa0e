// ABOUTME: History entries are the display turns of user/guidance exchanges
// ABOUTME: An Exchange is one remote row pairing a user message with its guidance reply
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntryKind distinguishes user turns from guidance turns
type EntryKind string

const (
	EntryUser     EntryKind = "user"
	EntryGuidance EntryKind = "guidance"
)

// ErrEmptyMessage is returned when a user turn has no text
var ErrEmptyMessage = errors.New("user message cannot be empty")

// Entry is one displayed turn of the history sequence.
// Timestamp is truncated to whole seconds and, together with Text, is the de-duplication key.
type Entry struct {
	ID         string    `json:"id"`
	Kind       EntryKind `json:"type"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	ExchangeID string    `json:"exchange_id"`
}

// Exchange is a persisted user message with its guidance response
type Exchange struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

// DisplayTime truncates an instant to the display resolution
func DisplayTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// NewUserEntry starts an exchange with a user turn.
// The returned entry carries a fresh exchange id that the guidance turn must reuse.
func NewUserEntry(text string, now time.Time) (Entry, error) {
	if strings.TrimSpace(text) == "" {
		return Entry{}, ErrEmptyMessage
	}
	exchangeID := uuid.NewString()
	return Entry{
		ID:         "user_" + exchangeID,
		Kind:       EntryUser,
		Text:       text,
		Timestamp:  DisplayTime(now),
		ExchangeID: exchangeID,
	}, nil
}

// GuidanceFor builds the guidance turn paired with a user turn, sharing its timestamp
func GuidanceFor(user Entry, text string) Entry {
	return Entry{
		ID:         "guidance_" + user.ExchangeID,
		Kind:       EntryGuidance,
		Text:       text,
		Timestamp:  user.Timestamp,
		ExchangeID: user.ExchangeID,
	}
}

// Entries expands a remote exchange row into its user and guidance turns
func (x Exchange) Entries() (Entry, Entry) {
	ts := DisplayTime(x.CreatedAt)
	user := Entry{
		ID:         x.ID,
		Kind:       EntryUser,
		Text:       x.Message,
		Timestamp:  ts,
		ExchangeID: x.ID,
	}
	guidance := Entry{
		ID:         fmt.Sprintf("%s_guidance", x.ID),
		Kind:       EntryGuidance,
		Text:       x.Response,
		Timestamp:  ts,
		ExchangeID: x.ID,
	}
	return user, guidance
}
