package preferences

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ekaya-inc/ekaya-grounding/pkg/models"
)

const (
	redisKeyPrefix = "grounding"
	// maxRedisHistory caps each user's history list.
	maxRedisHistory = 1000
)

// RedisStore keeps preferences as JSON strings and the history as a
// per-user list, newest first.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing client. An empty prefix uses "grounding".
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = redisKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) prefKey(userID, mention string) string {
	return fmt.Sprintf("%s:pref:%s:%s", s.prefix, userID, MentionKey(mention))
}

func (s *RedisStore) historyKey(userID string) string {
	return fmt.Sprintf("%s:history:%s", s.prefix, userID)
}

func (s *RedisStore) Get(ctx context.Context, userID, mention, query string) (*models.UserPreference, error) {
	data, err := s.client.Get(ctx, s.prefKey(userID, mention)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preference: %w", err)
	}

	var pref models.UserPreference
	if err := json.Unmarshal(data, &pref); err != nil {
		return nil, fmt.Errorf("failed to decode preference: %w", err)
	}
	return matchShape(&pref, mention, query), nil
}

func (s *RedisStore) Put(ctx context.Context, pref *models.UserPreference) error {
	if err := prepare(pref); err != nil {
		return err
	}
	data, err := json.Marshal(pref)
	if err != nil {
		return fmt.Errorf("failed to encode preference: %w", err)
	}
	// Preferences never expire.
	if err := s.client.Set(ctx, s.prefKey(pref.UserID, pref.Mention), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store preference: %w", err)
	}
	return nil
}

func (s *RedisStore) AppendHistory(ctx context.Context, record *models.ClarificationRecord) error {
	if err := prepareRecord(record); err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode clarification record: %w", err)
	}

	key := s.historyKey(record.UserID)
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, maxRedisHistory-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append clarification record: %w", err)
	}
	return nil
}

func (s *RedisStore) History(ctx context.Context, userID string, limit int) ([]*models.ClarificationRecord, error) {
	limit = historyLimit(limit)
	items, err := s.client.LRange(ctx, s.historyKey(userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list clarification history: %w", err)
	}

	out := make([]*models.ClarificationRecord, 0, len(items))
	for _, item := range items {
		var rec models.ClarificationRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode clarification record: %w", err)
		}
		out = append(out, &rec)
	}
	return out, nil
}
