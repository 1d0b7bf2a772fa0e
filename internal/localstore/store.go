// ABOUTME: Durable local key-value store contract used as the authoritative per-device cache
// ABOUTME: Defines per-user key layout and JSON helpers shared by every driver
package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/harper/om/internal/models"
)

// ErrNotFound is returned by Get when a key is absent
var ErrNotFound = errors.New("local key not found")

// ErrCorrupt wraps a stored value that cannot be decoded
var ErrCorrupt = errors.New("local value corrupt")

// Store is an opaque, durable, string-keyed byte store scoped to the device.
// Single writes are assumed crash-consistent; there are no transactions or expiry.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// Lister is implemented by drivers that can enumerate keys
type Lister interface {
	Keys(prefix string) ([]string, error)
}

// Key prefixes, one per record kind
const (
	ProfilePrefix = "profile_"
	StreakPrefix  = "streak_"
	HistoryPrefix = "chat_"
)

// Key returns the local key for a user's record of the given kind
func Key(kind models.Kind, userID string) string {
	switch kind {
	case models.KindProfile:
		return ProfilePrefix + userID
	case models.KindStreak:
		return StreakPrefix + userID
	case models.KindHistory:
		return HistoryPrefix + userID
	}
	return string(kind) + "_" + userID
}

// UserKeys returns every local key owned by a user
func UserKeys(userID string) []string {
	keys := make([]string, 0, len(models.Kinds))
	for _, k := range models.Kinds {
		keys = append(keys, Key(k, userID))
	}
	return keys
}

// CachedUsers returns the ids of users with at least one local record, sorted.
// Drivers that cannot enumerate keys yield nil.
func CachedUsers(s Store) ([]string, error) {
	l, ok := s.(Lister)
	if !ok {
		return nil, nil
	}
	seen := make(map[string]struct{})
	for _, prefix := range []string{ProfilePrefix, StreakPrefix, HistoryPrefix} {
		keys, err := l.Keys(prefix)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			if id := strings.TrimPrefix(k, prefix); id != "" {
				seen[id] = struct{}{}
			}
		}
	}
	users := make([]string, 0, len(seen))
	for id := range seen {
		users = append(users, id)
	}
	sort.Strings(users)
	return users, nil
}

// GetJSON decodes the value at key into dest.
// Returns ErrNotFound when absent and an ErrCorrupt-wrapped error when the bytes do not decode.
func GetJSON(s Store, key string, dest interface{}) error {
	data, err := s.Get(key)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return ErrNotFound
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return nil
}

// SetJSON encodes value and stores it at key
func SetJSON(s Store, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return s.Set(key, data)
}
