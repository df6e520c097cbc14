package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-grounding/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-grounding/pkg/database"
	"github.com/ekaya-inc/ekaya-grounding/pkg/models"
)

// UserPreferenceRepository provides data access for remembered clarification
// choices and the clarification history.
type UserPreferenceRepository interface {
	// Get returns apperrors.ErrNotFound when no preference exists.
	Get(ctx context.Context, userID, mention string) (*models.UserPreference, error)
	Upsert(ctx context.Context, pref *models.UserPreference) error
	InsertHistory(ctx context.Context, record *models.ClarificationRecord) error
	ListHistory(ctx context.Context, userID string, limit int) ([]*models.ClarificationRecord, error)
}

type userPreferenceRepository struct {
	db *database.DB
}

// NewUserPreferenceRepository returns a repository backed by db.
func NewUserPreferenceRepository(db *database.DB) UserPreferenceRepository {
	return &userPreferenceRepository{db: db}
}

var _ UserPreferenceRepository = (*userPreferenceRepository)(nil)

func (r *userPreferenceRepository) Get(ctx context.Context, userID, mention string) (*models.UserPreference, error) {
	query := `
		SELECT user_id, mention,
		       table_name, column_name, canonical_value, entity_type, frequency, variations,
		       confidence, query_shape, updated_at
		FROM grounding_user_preferences
		WHERE user_id = $1 AND mention = $2`

	var pref models.UserPreference
	var entityType string
	err := r.db.QueryRow(ctx, query, userID, mention).Scan(
		&pref.UserID,
		&pref.Mention,
		&pref.Entry.Table,
		&pref.Entry.Column,
		&pref.Entry.CanonicalValue,
		&entityType,
		&pref.Entry.Frequency,
		&pref.Entry.Variations,
		&pref.Confidence,
		&pref.QueryShape,
		&pref.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user preference: %w", err)
	}
	pref.Entry.EntityType = models.ParseEntityType(entityType)
	return &pref, nil
}

func (r *userPreferenceRepository) Upsert(ctx context.Context, pref *models.UserPreference) error {
	variations := pref.Entry.Variations
	if variations == nil {
		variations = []string{}
	}

	query := `
		INSERT INTO grounding_user_preferences (
			user_id, mention,
			table_name, column_name, canonical_value, entity_type, frequency, variations,
			confidence, query_shape, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id, mention) DO UPDATE SET
			table_name = EXCLUDED.table_name,
			column_name = EXCLUDED.column_name,
			canonical_value = EXCLUDED.canonical_value,
			entity_type = EXCLUDED.entity_type,
			frequency = EXCLUDED.frequency,
			variations = EXCLUDED.variations,
			confidence = EXCLUDED.confidence,
			query_shape = EXCLUDED.query_shape,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.Exec(ctx, query,
		pref.UserID,
		pref.Mention,
		pref.Entry.Table,
		pref.Entry.Column,
		pref.Entry.CanonicalValue,
		pref.Entry.EntityType.String(),
		pref.Entry.Frequency,
		variations,
		pref.Confidence,
		pref.QueryShape,
		pref.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user preference: %w", err)
	}
	return nil
}

func (r *userPreferenceRepository) InsertHistory(ctx context.Context, record *models.ClarificationRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	offered := record.Offered
	if offered == nil {
		offered = []models.EntryKey{}
	}
	offeredJSON, err := json.Marshal(offered)
	if err != nil {
		return fmt.Errorf("failed to marshal offered candidates: %w", err)
	}

	query := `
		INSERT INTO grounding_clarification_history (
			id, user_id, mention, query, query_shape, offered,
			selected_table, selected_column, selected_value,
			required_clarification, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.db.Exec(ctx, query,
		record.ID,
		record.UserID,
		record.Mention,
		record.Query,
		record.QueryShape,
		offeredJSON,
		record.Selected.Table,
		record.Selected.Column,
		record.Selected.CanonicalValue,
		record.RequiredClarification,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert clarification record: %w", err)
	}
	return nil
}

func (r *userPreferenceRepository) ListHistory(ctx context.Context, userID string, limit int) ([]*models.ClarificationRecord, error) {
	query := `
		SELECT id, user_id, mention, query, query_shape, offered,
		       selected_table, selected_column, selected_value,
		       required_clarification, created_at
		FROM grounding_clarification_history
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list clarification history: %w", err)
	}
	defer rows.Close()

	var records []*models.ClarificationRecord
	for rows.Next() {
		var rec models.ClarificationRecord
		var offeredJSON []byte
		if err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.Mention,
			&rec.Query,
			&rec.QueryShape,
			&offeredJSON,
			&rec.Selected.Table,
			&rec.Selected.Column,
			&rec.Selected.CanonicalValue,
			&rec.RequiredClarification,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan clarification record: %w", err)
		}
		if err := json.Unmarshal(offeredJSON, &rec.Offered); err != nil {
			return nil, fmt.Errorf("failed to unmarshal offered candidates: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clarification history: %w", err)
	}
	return records, nil
}
