// Package preferences remembers each user's answers to past clarification
// questions so the same question is not asked twice.
package preferences

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-grounding/pkg/models"
)

// Backend names accepted by NewStore.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// DefaultHistoryLimit bounds History when callers pass a non-positive limit.
const DefaultHistoryLimit = 50

// Store persists user preferences and the clarification history.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the user's remembered choice for mention, or nil when there
	// is none or when it was recorded for a differently shaped question.
	Get(ctx context.Context, userID, mention, query string) (*models.UserPreference, error)

	// Put upserts a preference keyed by (UserID, lower(Mention)).
	Put(ctx context.Context, pref *models.UserPreference) error

	// AppendHistory records a user's final choice.
	AppendHistory(ctx context.Context, record *models.ClarificationRecord) error

	// History returns the newest records for userID first.
	History(ctx context.Context, userID string, limit int) ([]*models.ClarificationRecord, error)
}

// MentionKey normalizes a mention for use as a preference key.
func MentionKey(mention string) string {
	return strings.ToLower(strings.Join(strings.Fields(mention), " "))
}

// matchShape returns pref only when its recorded shape equals the shape of
// query. Equality is strict.
func matchShape(pref *models.UserPreference, mention, query string) *models.UserPreference {
	if pref == nil {
		return nil
	}
	if pref.QueryShape != QueryShape(query, mention) {
		return nil
	}
	return pref
}

// prepare validates pref and fills derived fields before it is written.
func prepare(pref *models.UserPreference) error {
	if pref == nil || pref.UserID == "" || MentionKey(pref.Mention) == "" {
		return fmt.Errorf("preference requires user id and mention")
	}
	pref.Mention = MentionKey(pref.Mention)
	if pref.Confidence == 0 {
		pref.Confidence = models.PreferenceConfidence
	}
	if pref.UpdatedAt.IsZero() {
		pref.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// prepareRecord assigns the ID and creation time of a history record that
// does not have them yet.
func prepareRecord(record *models.ClarificationRecord) error {
	if record == nil || record.UserID == "" {
		return fmt.Errorf("clarification record requires user id")
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	return nil
}

func historyLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}
