// ABOUTME: Profile represents a user's onboarding answers and preferences
// ABOUTME: One record per user, merged field by field and reconciled last-write-wins
package models

import (
	"strings"
	"time"
)

// Profile holds arbitrary onboarding attributes for one user
type Profile struct {
	UserID     string            `json:"id"`
	Attributes map[string]string `json:"attributes"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Merge folds partial fields into the profile and stamps UpdatedAt.
// Fields not present in partial are preserved. Blank keys are ignored and values are trimmed.
// Returns the number of fields applied.
func (p *Profile) Merge(partial map[string]string, now time.Time) int {
	if p.Attributes == nil {
		p.Attributes = make(map[string]string, len(partial))
	}
	applied := 0
	for k, v := range partial {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		p.Attributes[key] = strings.TrimSpace(v)
		applied++
	}
	p.UpdatedAt = now.UTC()
	return applied
}

// Get returns a single attribute
func (p *Profile) Get(key string) (string, bool) {
	if p == nil || p.Attributes == nil {
		return "", false
	}
	v, ok := p.Attributes[key]
	return v, ok
}

// Clone returns a deep copy so callers can mutate without touching cached state
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	out := &Profile{UserID: p.UserID, UpdatedAt: p.UpdatedAt}
	out.Attributes = make(map[string]string, len(p.Attributes))
	for k, v := range p.Attributes {
		out.Attributes[k] = v
	}
	return out
}
