// ABOUTME: Pure merge rules for streaks, profiles and history
// ABOUTME: No I/O; the orchestrator feeds these the local and remote views
package core

import (
	"sort"
	"time"

	"github.com/harper/om/internal/models"
)

// NextStreak advances prev to today. A nil prev starts a new streak.
// Same day keeps the record; the day after increments; any other gap,
// a future day or an unparseable day resets to 1.
func NextStreak(prev *models.Streak, today time.Time) (models.Streak, bool) {
	today = models.Day(today)
	fresh := models.Streak{Count: 1, LastUpdate: models.FormatDay(today)}
	if prev == nil {
		return fresh, true
	}

	last, err := models.ParseDay(prev.LastUpdate, today.Location())
	if err != nil || prev.Count < 1 {
		return fresh, true
	}

	switch {
	case last.Equal(today):
		// normalize legacy day spellings without counting a new day
		if prev.LastUpdate != fresh.LastUpdate {
			return models.Streak{Count: prev.Count, LastUpdate: fresh.LastUpdate}, true
		}
		return *prev, false
	case last.Equal(today.AddDate(0, 0, -1)):
		return models.Streak{Count: prev.Count + 1, LastUpdate: fresh.LastUpdate}, true
	default:
		return fresh, true
	}
}

// PickStreakBase chooses which record to advance when both views exist.
// The later day wins; equal days prefer the higher count; parseable beats unparseable.
func PickStreakBase(local, remote *models.Streak, loc *time.Location) *models.Streak {
	if local == nil {
		return remote
	}
	if remote == nil {
		return local
	}
	ld, lerr := models.ParseDay(local.LastUpdate, loc)
	rd, rerr := models.ParseDay(remote.LastUpdate, loc)
	switch {
	case lerr != nil && rerr != nil:
		return local
	case lerr != nil:
		return remote
	case rerr != nil:
		return local
	case rd.After(ld):
		return remote
	case ld.After(rd):
		return local
	case remote.Count > local.Count:
		return remote
	default:
		return local
	}
}

// MergeProfile reconciles last-write-wins on UpdatedAt.
// pushLocal reports that the local record is newer than (or missing from) the remote.
func MergeProfile(local, remote *models.Profile) (winner *models.Profile, pushLocal bool) {
	switch {
	case local == nil && remote == nil:
		return nil, false
	case local == nil:
		return remote, false
	case remote == nil:
		return local, true
	case remote.UpdatedAt.After(local.UpdatedAt):
		return remote, false
	case local.UpdatedAt.After(remote.UpdatedAt):
		return local, true
	default:
		return local, false
	}
}

// OverlayProfile lays the local attributes over the remote row so a push never
// drops a field only the remote holds. extras are the remote-only fields.
func OverlayProfile(remote, local *models.Profile) (merged *models.Profile, extras map[string]string) {
	merged = local.Clone()
	if remote == nil {
		return merged, nil
	}
	for k, v := range remote.Attributes {
		if _, ok := merged.Attributes[k]; ok {
			continue
		}
		merged.Attributes[k] = v
		if extras == nil {
			extras = make(map[string]string)
		}
		extras[k] = v
	}
	if remote.UpdatedAt.After(merged.UpdatedAt) {
		merged.UpdatedAt = remote.UpdatedAt
	}
	return merged, extras
}

type entryKey struct {
	text string
	at   int64
}

func keyOf(e models.Entry) entryKey {
	return entryKey{text: e.Text, at: models.DisplayTime(e.Timestamp).Unix()}
}

// MergeHistory folds remote exchanges (ascending) into the local sequence.
//
// A remote turn is appended only when no entry already has the same text and
// display timestamp. When the user turn is a duplicate but the guidance turn is
// not, the guidance joins the matching local user turn if that turn has no reply
// yet; otherwise both remote turns are appended so no guidance is left unpaired.
// The result is stably sorted by timestamp. Merging the same batch again is a no-op.
func MergeHistory(local []models.Entry, exchanges []models.Exchange) []models.Entry {
	merged := make([]models.Entry, len(local), len(local)+2*len(exchanges))
	copy(merged, local)

	users := make(map[entryKey]int)
	seen := make(map[entryKey]bool)
	paired := make(map[string]bool)
	index := func(i int) {
		e := merged[i]
		k := keyOf(e)
		seen[k] = true
		switch e.Kind {
		case models.EntryUser:
			if _, ok := users[k]; !ok {
				users[k] = i
			}
		case models.EntryGuidance:
			paired[e.ExchangeID] = true
		}
	}
	for i := range merged {
		index(i)
	}
	add := func(e models.Entry) {
		merged = append(merged, e)
		index(len(merged) - 1)
	}

	for _, x := range exchanges {
		user, guidance := x.Entries()
		userDup := seen[keyOf(user)]
		guidanceDup := seen[keyOf(guidance)]

		switch {
		case userDup && guidanceDup:
		case !userDup && !guidanceDup:
			add(user)
			add(guidance)
		case !userDup:
			add(user)
		default:
			if i, ok := users[keyOf(user)]; ok && !paired[merged[i].ExchangeID] {
				owner := merged[i]
				guidance.ExchangeID = owner.ExchangeID
				guidance.ID = "guidance_" + owner.ExchangeID
				add(guidance)
				continue
			}
			add(user)
			add(guidance)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	return merged
}

// RemoveEntry deletes an entry and keeps pairs intact: removing either turn of
// an answered exchange removes both, while a lone user turn is removed alone.
// It returns the remaining sequence and the removed entries, user turn first.
func RemoveEntry(entries []models.Entry, id string) ([]models.Entry, []models.Entry, error) {
	target := -1
	for i, e := range entries {
		if e.ID == id {
			target = i
			break
		}
	}
	if target < 0 {
		return entries, nil, ErrEntryNotFound
	}
	exchangeID := entries[target].ExchangeID

	var kept, removed []models.Entry
	for i, e := range entries {
		if i == target || (exchangeID != "" && e.ExchangeID == exchangeID && pairedWith(entries[target], e)) {
			removed = append(removed, e)
			continue
		}
		kept = append(kept, e)
	}
	sort.SliceStable(removed, func(i, j int) bool {
		return removed[i].Kind == models.EntryUser && removed[j].Kind != models.EntryUser
	})
	if kept == nil {
		kept = []models.Entry{}
	}
	return kept, removed, nil
}

// pairedWith reports whether other is the opposite turn of target's exchange
func pairedWith(target, other models.Entry) bool {
	return target.Kind != other.Kind && target.ID != other.ID
}

// pairUserText returns the user message of the exchange among removed entries
func pairUserText(removed []models.Entry) (string, bool) {
	for _, e := range removed {
		if e.Kind == models.EntryUser {
			return e.Text, true
		}
	}
	return "", false
}
