package models

// RuleSource records which strategy produced an abbreviation rule.
type RuleSource string

const (
	RuleSourceAcronym   RuleSource = "acronym"
	RuleSourceFirstWord RuleSource = "first_word"
	RuleSourcePattern   RuleSource = "pattern"
	RuleSourceManual    RuleSource = "manual"
)

// IsValid returns true if the source is a known rule source.
func (s RuleSource) IsValid() bool {
	switch s {
	case RuleSourceAcronym, RuleSourceFirstWord, RuleSourcePattern, RuleSourceManual:
		return true
	default:
		return false
	}
}

// AbbreviationRule maps a short form ("LBG") to the long form stored in the
// database ("Lloyds Banking Group").
type AbbreviationRule struct {
	ShortForm  string     `json:"short_form" yaml:"short_form"`
	LongForm   string     `json:"long_form" yaml:"long_form"`
	Confidence float64    `json:"confidence" yaml:"confidence"` // 0.0-1.0
	Source     RuleSource `json:"source" yaml:"source"`
	Examples   []string   `json:"examples,omitempty" yaml:"examples,omitempty"`
}
