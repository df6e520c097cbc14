package models

import (
	"time"

	"github.com/google/uuid"
)

// PreferenceConfidence is the confidence assigned to every remembered choice.
const PreferenceConfidence = 0.95

// UserPreference is a user's remembered answer to a past clarification.
// Keyed by (UserID, Mention); Mention is stored lower-cased.
type UserPreference struct {
	UserID     string     `json:"user_id"`
	Mention    string     `json:"mention"`
	Entry      ValueEntry `json:"entry"`
	Confidence float64    `json:"confidence"`
	QueryShape string     `json:"query_shape"` // Question with proper-noun spans replaced
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ClarificationRecord is an append-only log line of a user's final choice.
type ClarificationRecord struct {
	ID                    uuid.UUID  `json:"id"`
	UserID                string     `json:"user_id"`
	Mention               string     `json:"mention"`
	Query                 string     `json:"query"`
	QueryShape            string     `json:"query_shape"`
	Offered               []EntryKey `json:"offered"`
	Selected              EntryKey   `json:"selected"`
	RequiredClarification bool       `json:"required_clarification"`
	CreatedAt             time.Time  `json:"created_at"`
}
