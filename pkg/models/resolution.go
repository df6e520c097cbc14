package models

// ============================================================================
// Match Type
// ============================================================================

// MatchType tags how a candidate was found.
type MatchType string

const (
	MatchTypeExact        MatchType = "exact"
	MatchTypeFuzzy        MatchType = "fuzzy"
	MatchTypeAbbreviation MatchType = "abbreviation"
	MatchTypePreference   MatchType = "preference"
)

// ValueMatch is a scored candidate produced during a single resolve call.
type ValueMatch struct {
	Entry     ValueEntry `json:"entry"`
	Score     float64    `json:"score"` // 0.0-1.0 heuristic, not a probability
	MatchType MatchType  `json:"match_type"`
}

// ============================================================================
// Resolution
// ============================================================================

// ResolutionSource names the pipeline stage that produced a result.
type ResolutionSource string

const (
	ResolutionSourcePreference    ResolutionSource = "user_preference"
	ResolutionSourceExact         ResolutionSource = "exact"
	ResolutionSourceAbbreviation  ResolutionSource = "abbreviation"
	ResolutionSourceFuzzy         ResolutionSource = "fuzzy"
	ResolutionSourceContext       ResolutionSource = "context"
	ResolutionSourceClarification ResolutionSource = "clarification"
	ResolutionSourceNoMatch       ResolutionSource = "no_match"
)

// Intent is the dominant business intent of a question.
type Intent string

const (
	IntentRevenueAnalysis    Intent = "revenue_analysis"
	IntentEngagementTracking Intent = "engagement_tracking"
	IntentClientManagement   Intent = "client_management"
	IntentPerformanceReview  Intent = "performance_review"
	IntentCompanyAnalysis    Intent = "company_analysis"
	IntentGeneral            Intent = "general"
)

// QueryContext carries what is known about the question a mention came from.
type QueryContext struct {
	Query           string   `json:"query"`
	UserID          string   `json:"user_id"`
	Intent          Intent   `json:"intent"`
	IntentScore     float64  `json:"intent_score"`
	MentionedTables []string `json:"mentioned_tables,omitempty"`
}

// ResolutionResult is the outcome of resolving one mention.
// No-match and ambiguity are reported here, never as errors.
type ResolutionResult struct {
	Mention               string           `json:"mention"`
	Match                 *ValueMatch      `json:"match,omitempty"`
	Confidence            float64          `json:"confidence"`
	Source                ResolutionSource `json:"source"`
	RequiresClarification bool             `json:"requires_clarification"`
	Candidates            []ValueMatch     `json:"candidates,omitempty"` // At most 3, best first
	ClarificationQuestion string           `json:"clarification_question,omitempty"`
	Reasoning             string           `json:"reasoning"`
	Intent                Intent           `json:"intent,omitempty"`
}

// IsMatch reports whether a value was chosen without needing confirmation.
func (r *ResolutionResult) IsMatch() bool {
	return r != nil && r.Match != nil && !r.RequiresClarification
}

// NoMatchResult returns a result for a mention nothing could be found for.
func NoMatchResult(mention, reasoning string) *ResolutionResult {
	return &ResolutionResult{
		Mention:    mention,
		Confidence: 0,
		Source:     ResolutionSourceNoMatch,
		Reasoning:  reasoning,
	}
}
