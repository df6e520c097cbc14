package preferences

import (
	"context"
	"errors"

	"github.com/ekaya-inc/ekaya-grounding/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-grounding/pkg/models"
	"github.com/ekaya-inc/ekaya-grounding/pkg/repositories"
)

// PostgresStore persists preferences and history through the preference repository.
type PostgresStore struct {
	repo repositories.UserPreferenceRepository
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps repo.
func NewPostgresStore(repo repositories.UserPreferenceRepository) *PostgresStore {
	return &PostgresStore{repo: repo}
}

func (s *PostgresStore) Get(ctx context.Context, userID, mention, query string) (*models.UserPreference, error) {
	pref, err := s.repo.Get(ctx, userID, MentionKey(mention))
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return matchShape(pref, mention, query), nil
}

func (s *PostgresStore) Put(ctx context.Context, pref *models.UserPreference) error {
	if err := prepare(pref); err != nil {
		return err
	}
	return s.repo.Upsert(ctx, pref)
}

func (s *PostgresStore) AppendHistory(ctx context.Context, record *models.ClarificationRecord) error {
	if err := prepareRecord(record); err != nil {
		return err
	}
	return s.repo.InsertHistory(ctx, record)
}

func (s *PostgresStore) History(ctx context.Context, userID string, limit int) ([]*models.ClarificationRecord, error) {
	return s.repo.ListHistory(ctx, userID, historyLimit(limit))
}
