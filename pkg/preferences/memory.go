package preferences

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/ekaya-inc/ekaya-grounding/pkg/models"
)

const memoryShards = 16

// MemoryStore keeps preferences in process memory, sharded by user so
// distinct users rarely contend on a lock. Contents are lost on restart.
type MemoryStore struct {
	shards [memoryShards]*memoryShard
}

type memoryShard struct {
	mu      sync.RWMutex
	prefs   map[string]models.UserPreference // userID + "\x00" + mention
	history map[string][]models.ClarificationRecord
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i] = &memoryShard{
			prefs:   make(map[string]models.UserPreference),
			history: make(map[string][]models.ClarificationRecord),
		}
	}
	return s
}

func (s *MemoryStore) shard(userID string) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return s.shards[h.Sum32()%memoryShards]
}

func prefKey(userID, mention string) string {
	return userID + "\x00" + MentionKey(mention)
}

func (s *MemoryStore) Get(_ context.Context, userID, mention, query string) (*models.UserPreference, error) {
	sh := s.shard(userID)
	sh.mu.RLock()
	pref, ok := sh.prefs[prefKey(userID, mention)]
	sh.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return matchShape(&pref, mention, query), nil
}

func (s *MemoryStore) Put(_ context.Context, pref *models.UserPreference) error {
	if err := prepare(pref); err != nil {
		return err
	}
	sh := s.shard(pref.UserID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.prefs[prefKey(pref.UserID, pref.Mention)] = *pref
	return nil
}

func (s *MemoryStore) AppendHistory(_ context.Context, record *models.ClarificationRecord) error {
	if err := prepareRecord(record); err != nil {
		return err
	}
	sh := s.shard(record.UserID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.history[record.UserID] = append(sh.history[record.UserID], *record)
	return nil
}

func (s *MemoryStore) History(_ context.Context, userID string, limit int) ([]*models.ClarificationRecord, error) {
	limit = historyLimit(limit)
	sh := s.shard(userID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	records := sh.history[userID]
	out := make([]*models.ClarificationRecord, 0, min(limit, len(records)))
	for i := len(records) - 1; i >= 0 && len(out) < limit; i-- {
		r := records[i]
		out = append(out, &r)
	}
	return out, nil
}
