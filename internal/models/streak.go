// ABOUTME: Streak counts consecutive calendar days of engagement
// ABOUTME: Days are civil dates with no time component, compared in the device location
package models

import (
	"errors"
	"strings"
	"time"
)

// DayLayout is the stored form of Streak.LastUpdate
const DayLayout = "2006-01-02"

// legacyDayLayout matches JavaScript's Date.toDateString output written by older clients
const legacyDayLayout = "Mon Jan 02 2006"

// ErrInvalidDay is returned when a stored day cannot be parsed
var ErrInvalidDay = errors.New("invalid calendar day")

// Streak is the per-user engagement counter
type Streak struct {
	Count      int    `json:"count"`
	LastUpdate string `json:"last_update"`
}

// Day truncates t to midnight of its calendar day in t's location
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// FormatDay renders the calendar day of t
func FormatDay(t time.Time) string {
	return t.Format(DayLayout)
}

// ParseDay parses a stored day into midnight in loc.
// Both the canonical layout and the legacy toDateString layout are accepted.
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDay
	}
	for _, layout := range []string{DayLayout, legacyDayLayout} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDay
}

// Equal reports whether two streak records hold the same value
func (s Streak) Equal(o Streak) bool {
	return s.Count == o.Count && s.LastUpdate == o.LastUpdate
}
