package abbreviations

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-grounding/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-grounding/pkg/models"
)

// dumpedRule is the JSON shape of one rule in a dump, keyed by short form.
type dumpedRule struct {
	LongForm   string            `json:"long_form"`
	Confidence float64           `json:"confidence"`
	Source     models.RuleSource `json:"source"`
	Examples   []string          `json:"examples,omitempty"`
}

// manualRulesFile is the YAML layout of a manual rules file:
//
//	rules:
//	  - short_form: GS
//	    long_form: Goldman Sachs Group
type manualRulesFile struct {
	Rules []models.AbbreviationRule `yaml:"rules"`
}

// MarshalRules encodes every rule as {short_form: {long_form, confidence,
// source, examples}}. The dump is for inspection and reuse between runs,
// not a versioned format.
func (l *Learner) MarshalRules() ([]byte, error) {
	rules := l.Rules()
	out := make(map[string]dumpedRule, len(rules))
	for _, r := range rules {
		out[r.ShortForm] = dumpedRule{
			LongForm:   r.LongForm,
			Confidence: r.Confidence,
			Source:     r.Source,
			Examples:   r.Examples,
		}
	}
	return json.MarshalIndent(out, "", "  ")
}

// ParseRules decodes a dump produced by MarshalRules, sorted by short form.
func ParseRules(data []byte) ([]models.AbbreviationRule, error) {
	var in map[string]dumpedRule
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("decode abbreviation rules: %w", err)
	}

	shorts := make([]string, 0, len(in))
	for short := range in {
		shorts = append(shorts, short)
	}
	sort.Strings(shorts)

	rules := make([]models.AbbreviationRule, 0, len(shorts))
	for _, short := range shorts {
		d := in[short]
		if err := validateRule(short, d.LongForm, d.Source); err != nil {
			return nil, err
		}
		rules = append(rules, models.AbbreviationRule{
			ShortForm:  short,
			LongForm:   d.LongForm,
			Confidence: d.Confidence,
			Source:     d.Source,
			Examples:   d.Examples,
		})
	}
	return rules, nil
}

// LoadRules reads a dump written by WriteJSON.
func LoadRules(path string) ([]models.AbbreviationRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read abbreviation rules %s: %w", path, err)
	}
	return ParseRules(data)
}

// WriteJSON writes MarshalRules output to path.
func (l *Learner) WriteJSON(path string) error {
	data, err := l.MarshalRules()
	if err != nil {
		return fmt.Errorf("encode abbreviation rules: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write abbreviation rules to %s: %w", path, err)
	}
	return nil
}

// LoadManualRules reads a YAML manual rules file. Only short_form and
// long_form are honored; every rule loads as a manual rule.
func LoadManualRules(path string) ([]models.AbbreviationRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manual rules %s: %w", path, err)
	}
	return ParseManualRules(data)
}

// ParseManualRules decodes the YAML body of a manual rules file.
func ParseManualRules(data []byte) ([]models.AbbreviationRule, error) {
	var file manualRulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode manual rules: %w", err)
	}

	rules := make([]models.AbbreviationRule, 0, len(file.Rules))
	for i, r := range file.Rules {
		short := strings.TrimSpace(r.ShortForm)
		long := strings.TrimSpace(r.LongForm)
		if err := validateRule(short, long, models.RuleSourceManual); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, models.AbbreviationRule{
			ShortForm:  short,
			LongForm:   long,
			Confidence: manualRuleConfidence,
			Source:     models.RuleSourceManual,
			Examples:   r.Examples,
		})
	}
	return rules, nil
}

// ApplyManualRules registers every rule through AddManualRule.
func (l *Learner) ApplyManualRules(rules []models.AbbreviationRule) error {
	for _, r := range rules {
		if err := l.AddManualRule(r.ShortForm, r.LongForm); err != nil {
			return err
		}
	}
	return nil
}

func validateRule(short, long string, source models.RuleSource) error {
	if short == "" || long == "" {
		return fmt.Errorf("%w: short and long form are required", apperrors.ErrInvalidRule)
	}
	if !source.IsValid() {
		return fmt.Errorf("%w: unknown source %q for %s", apperrors.ErrInvalidRule, source, short)
	}
	return nil
}
