package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/ekaya-grounding/pkg/models"
)

func TestClassify(t *testing.T) {
	a := New()

	tests := []struct {
		name   string
		query  string
		intent models.Intent
	}{
		{"revenue", "What is LBG's revenue?", models.IntentRevenueAnalysis},
		{"billing", "How much have we billed Acme this quarter?", models.IntentRevenueAnalysis},
		{"engagement", "List meetings and calls with Acme", models.IntentEngagementTracking},
		{"client", "Which clients were onboarded last month?", models.IntentClientManagement},
		{"performance", "Show KPI trends for the Acme Initiative", models.IntentPerformanceReview},
		{"company", "Which industry sector is Acme in?", models.IntentCompanyAnalysis},
		{"general", "Tell me about Acme", models.IntentGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, score := a.Classify(tt.query)
			assert.Equal(t, tt.intent, got)
			if tt.intent == models.IntentGeneral {
				assert.Equal(t, 0.0, score)
			} else {
				assert.Greater(t, score, 0.0)
				assert.LessOrEqual(t, score, 1.0)
			}
		})
	}
}

func TestClassify_ScoreIsFractionOfPatterns(t *testing.T) {
	a := New()
	_, score := a.Classify("revenue")
	assert.InDelta(t, 1.0/8.0, score, 1e-9)

	_, score = a.Classify("revenue and profit from sales")
	assert.InDelta(t, 3.0/8.0, score, 1e-9)
}

func TestClassify_TiesGoToDeclarationOrder(t *testing.T) {
	a := New()
	// One revenue pattern (1/8) vs one client pattern (1/6): client wins on score.
	got, _ := a.Classify("client revenue")
	assert.Equal(t, models.IntentClientManagement, got)

	// engagement (7 patterns) and performance (7 patterns) tie; engagement is declared first.
	got, _ = a.Classify("meeting growth")
	assert.Equal(t, models.IntentEngagementTracking, got)
}

func TestClassify_WordBoundaries(t *testing.T) {
	got, _ := New().Classify("the salesforce integration")
	assert.Equal(t, models.IntentGeneral, got)
}

func TestEntityTypeAffinity(t *testing.T) {
	a := New()
	assert.Equal(t, 0.9, a.EntityTypeAffinity(models.IntentRevenueAnalysis, models.EntityTypeClient))
	assert.Equal(t, 0.5, a.EntityTypeAffinity(models.IntentRevenueAnalysis, models.EntityTypeProject))
	assert.Equal(t, 1.0, a.EntityTypeAffinity(models.IntentCompanyAnalysis, models.EntityTypeCompany))
	assert.Equal(t, UnknownTypeAffinity, a.EntityTypeAffinity(models.IntentRevenueAnalysis, models.EntityTypePerson))
	assert.Equal(t, UnknownIntentAffinity, a.EntityTypeAffinity(models.IntentGeneral, models.EntityTypeClient))
}

func TestIntents(t *testing.T) {
	assert.Equal(t, []models.Intent{
		models.IntentRevenueAnalysis,
		models.IntentEngagementTracking,
		models.IntentClientManagement,
		models.IntentPerformanceReview,
		models.IntentCompanyAnalysis,
	}, New().Intents())
}
