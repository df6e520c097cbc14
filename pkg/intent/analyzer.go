// Package intent classifies the dominant business intent of a question from
// keyword patterns and scores how well an entity type fits that intent.
package intent

import (
	"regexp"

	"github.com/ekaya-inc/ekaya-grounding/pkg/models"
)

const (
	// UnknownIntentAffinity is returned for intents without an affinity row.
	UnknownIntentAffinity = 0.3
	// UnknownTypeAffinity is returned for entity types missing from a known intent's row.
	UnknownTypeAffinity = 0.5
)

type category struct {
	intent   models.Intent
	patterns []*regexp.Regexp
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)\b` + p + `\b`)
	}
	return out
}

// categories are evaluated in declaration order; ties go to the earlier one.
var categories = []category{
	{models.IntentRevenueAnalysis, compile(
		`revenues?`, `sales`, `income`, `earnings`, `profits?`,
		`bill(ing|ed)`, `invoices?`, `turnover`,
	)},
	{models.IntentEngagementTracking, compile(
		`engagements?`, `meetings?`, `interactions?`, `activit(y|ies)`,
		`contacts?`, `calls?`, `emails?`,
	)},
	{models.IntentClientManagement, compile(
		`clients?`, `customers?`, `accounts?`, `relationships?`,
		`portfolios?`, `onboard(ing|ed)?`,
	)},
	{models.IntentPerformanceReview, compile(
		`performance`, `kpis?`, `metrics?`, `targets?`, `growth`,
		`trends?`, `compar(e|ed|ison)`,
	)},
	{models.IntentCompanyAnalysis, compile(
		`compan(y|ies)`, `industr(y|ies)`, `sectors?`, `markets?`,
		`competitors?`, `headquarter(s|ed)?`,
	)},
}

// affinity is how strongly each intent suggests each entity type.
var affinity = map[models.Intent]map[models.EntityType]float64{
	models.IntentRevenueAnalysis: {
		models.EntityTypeClient:  0.9,
		models.EntityTypeCompany: 0.7,
		models.EntityTypeProject: 0.5,
		models.EntityTypeProduct: 0.6,
	},
	models.IntentEngagementTracking: {
		models.EntityTypeClient:  0.8,
		models.EntityTypeProject: 0.6,
		models.EntityTypeCompany: 0.5,
		models.EntityTypeProduct: 0.3,
	},
	models.IntentClientManagement: {
		models.EntityTypeClient:  1.0,
		models.EntityTypeCompany: 0.6,
		models.EntityTypeProject: 0.4,
		models.EntityTypeProduct: 0.3,
	},
	models.IntentPerformanceReview: {
		models.EntityTypeProject: 0.8,
		models.EntityTypeClient:  0.6,
		models.EntityTypeProduct: 0.7,
		models.EntityTypeCompany: 0.5,
	},
	models.IntentCompanyAnalysis: {
		models.EntityTypeCompany: 1.0,
		models.EntityTypeClient:  0.7,
		models.EntityTypeProject: 0.3,
		models.EntityTypeProduct: 0.4,
	},
}

// Analyzer classifies questions. The zero value is not usable; use New.
type Analyzer struct {
	categories []category
}

// New returns an analyzer over the built-in categories.
func New() *Analyzer {
	return &Analyzer{categories: categories}
}

// Classify returns the best-matching intent and its score, the fraction of
// that category's patterns found in query. Returns IntentGeneral with score 0
// when nothing matches.
func (a *Analyzer) Classify(query string) (models.Intent, float64) {
	best := models.IntentGeneral
	bestScore := 0.0
	for _, c := range a.categories {
		matched := 0
		for _, p := range c.patterns {
			if p.MatchString(query) {
				matched++
			}
		}
		score := float64(matched) / float64(len(c.patterns))
		if score > bestScore {
			best = c.intent
			bestScore = score
		}
	}
	return best, bestScore
}

// EntityTypeAffinity returns how well entityType fits intent, in [0,1].
func (a *Analyzer) EntityTypeAffinity(intent models.Intent, entityType models.EntityType) float64 {
	row, ok := affinity[intent]
	if !ok {
		return UnknownIntentAffinity
	}
	if v, ok := row[entityType]; ok {
		return v
	}
	return UnknownTypeAffinity
}

// Intents lists the known categories in declaration order.
func (a *Analyzer) Intents() []models.Intent {
	out := make([]models.Intent, len(a.categories))
	for i, c := range a.categories {
		out[i] = c.intent
	}
	return out
}
