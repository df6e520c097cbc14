//go:build integration

package preferences

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-grounding/pkg/models"
	"github.com/ekaya-inc/ekaya-grounding/pkg/testhelpers"
)

func TestRedisStore_RoundTrip(t *testing.T) {
	client := testhelpers.GetRedis(t)
	ctx := context.Background()
	s := NewRedisStore(client, "test-"+uuid.NewString())

	got, err := s.Get(ctx, "u", "Acme", "What is Acme's revenue?")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.Put(ctx, &models.UserPreference{
		UserID:     "u",
		Mention:    "Acme",
		Entry:      acmeCorp(),
		QueryShape: QueryShape("What is Acme's revenue?", "Acme"),
	}))

	got, err = s.Get(ctx, "u", "acme", "What is Acme's revenue?")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, acmeCorp(), got.Entry)

	got, err = s.Get(ctx, "u", "acme", "Who manages Acme?")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStore_History(t *testing.T) {
	client := testhelpers.GetRedis(t)
	ctx := context.Background()
	s := NewRedisStore(client, "test-"+uuid.NewString())

	for _, m := range []string{"first", "second", "third"} {
		require.NoError(t, s.AppendHistory(ctx, &models.ClarificationRecord{
			UserID:   "u",
			Mention:  m,
			Selected: models.EntryKey{Table: "clients", Column: "name", CanonicalValue: "Acme Corp"},
		}))
	}

	records, err := s.History(ctx, "u", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "third", records[0].Mention)
	assert.Equal(t, "Acme Corp", records[0].Selected.CanonicalValue)
	assert.NotEqual(t, uuid.Nil, records[0].ID)
	assert.False(t, records[0].CreatedAt.IsZero())
}
