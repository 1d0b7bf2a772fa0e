// ABOUTME: Conversion between domain records and remote rows
// ABOUTME: Remote rows are untrusted; decoding failures are reported, never panicked on
package core

import (
	"fmt"
	"time"

	"github.com/harper/om/internal/models"
	"github.com/harper/om/internal/remote"
)

func profileRow(p *models.Profile) remote.Row {
	return remote.Row{
		"id":         p.UserID,
		"attributes": p.Attributes,
		"updated_at": p.UpdatedAt,
	}
}

func profileFromRow(row remote.Row) (*models.Profile, error) {
	attrs, err := row.Attributes("attributes")
	if err != nil {
		return nil, err
	}
	updated, err := row.Time("updated_at")
	if err != nil {
		return nil, err
	}
	return &models.Profile{
		UserID:     row.String("id"),
		Attributes: attrs,
		UpdatedAt:  updated,
	}, nil
}

func streakRow(userID string, s models.Streak, now time.Time) remote.Row {
	return remote.Row{
		"id":          userID,
		"count":       s.Count,
		"last_update": s.LastUpdate,
		"updated_at":  now,
	}
}

func streakFromRow(row remote.Row) (*models.Streak, error) {
	count, err := row.Int("count")
	if err != nil {
		return nil, err
	}
	if count < 1 {
		return nil, fmt.Errorf("streak count %d below 1", count)
	}
	return &models.Streak{Count: count, LastUpdate: row.String("last_update")}, nil
}

func exchangeRow(userID string, user, guidance models.Entry) remote.Row {
	return remote.Row{
		"user_id":    userID,
		"message":    user.Text,
		"response":   guidance.Text,
		"created_at": user.Timestamp,
	}
}

func exchangeFromRow(row remote.Row) (models.Exchange, error) {
	created, err := row.Time("created_at")
	if err != nil {
		return models.Exchange{}, err
	}
	id := row.String("id")
	if id == "" {
		return models.Exchange{}, fmt.Errorf("exchange row has no id")
	}
	return models.Exchange{
		ID:        id,
		UserID:    row.String("user_id"),
		Message:   row.String("message"),
		Response:  row.String("response"),
		CreatedAt: created,
	}, nil
}
