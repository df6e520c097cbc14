package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-grounding/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-grounding/pkg/intent"
	"github.com/ekaya-inc/ekaya-grounding/pkg/logging"
	"github.com/ekaya-inc/ekaya-grounding/pkg/metrics"
	"github.com/ekaya-inc/ekaya-grounding/pkg/models"
	"github.com/ekaya-inc/ekaya-grounding/pkg/preferences"
	"github.com/ekaya-inc/ekaya-grounding/pkg/sql"
)

// Resolution thresholds. Confidence values are heuristic scores used only
// for branching, not probabilities.
const (
	// AutoAcceptThreshold is the confidence at which a match is returned
	// without asking the user.
	AutoAcceptThreshold = 0.85

	// ClarificationFloor is the lowest context score a candidate may have and
	// still be offered in a clarification question.
	ClarificationFloor = 0.60

	// ContextAcceptThreshold is the context score above which the top
	// candidate is accepted, provided it leads by at least MinContextLead.
	ContextAcceptThreshold = 0.75

	// DecisiveMargin is the lead over the runner-up that makes the top
	// candidate win outright.
	DecisiveMargin = 0.2

	// MinContextLead keeps exact ties from being auto-accepted.
	MinContextLead = 0.05

	// FuzzyThreshold is the similarity cutoff for fuzzy search.
	FuzzyThreshold = 0.75

	// FuzzyAcceptThreshold is the fuzzy score above which an unambiguous top
	// match is returned directly.
	FuzzyAcceptThreshold = 0.9

	// PreferenceMinConfidence is the confidence a remembered choice needs to be used.
	PreferenceMinConfidence = 0.9

	// MaxResultCandidates bounds the candidates returned to the caller.
	MaxResultCandidates = 3

	// MaxFuzzyCandidates bounds the fuzzy candidates carried into disambiguation.
	MaxFuzzyCandidates = 5
)

const (
	exactSingleConfidence    = 0.95
	exactAmbiguousConfidence = 0.7
	exactCandidateScore      = 0.9

	contextConfidenceCap = 0.95
	intentWeight         = 0.2
	tableMentionBonus    = 0.15
	maxFrequencyBonus    = 0.05
	frequencyScale       = 10000.0
)

// EntityResolver grounds mentions against the published snapshot.
type EntityResolver interface {
	// Resolve maps mention, found in query, to a canonical value. No match
	// and ambiguity are reported in the result. An error is returned only
	// when no snapshot is published or the preference store fails.
	Resolve(ctx context.Context, mention, query, userID string) (*models.ResolutionResult, error)

	// RecordResolution stores the user's final choice for mention. The choice
	// is remembered when the result asked for clarification or when the user
	// picked something other than the returned match. Every call is appended
	// to the clarification history.
	RecordResolution(ctx context.Context, userID, mention, query string, result *models.ResolutionResult, selected models.EntryKey) error
}

type entityResolver struct {
	snapshots *SnapshotHolder
	prefs     preferences.Store
	analyzer  *intent.Analyzer
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewEntityResolver creates a resolver. prefs may be nil to disable the
// preference stage and RecordResolution.
func NewEntityResolver(snapshots *SnapshotHolder, prefs preferences.Store, analyzer *intent.Analyzer, m *metrics.Metrics, logger *zap.Logger) EntityResolver {
	if analyzer == nil {
		analyzer = intent.New()
	}
	return &entityResolver{
		snapshots: snapshots,
		prefs:     prefs,
		analyzer:  analyzer,
		metrics:   m,
		logger:    logger.Named("entity-resolver"),
	}
}

var _ EntityResolver = (*entityResolver)(nil)

// stage is one step of the resolution pipeline.
type stage int

const (
	stagePreference stage = iota
	stageExact
	stageFuzzy
	stageCombine
	stageContext
	stageClarification
	stageNoMatch
	stageDone
)

func (s stage) String() string {
	switch s {
	case stagePreference:
		return "preference"
	case stageExact:
		return "exact"
	case stageFuzzy:
		return "fuzzy"
	case stageCombine:
		return "combine"
	case stageContext:
		return "context"
	case stageClarification:
		return "clarification"
	case stageNoMatch:
		return "no_match"
	case stageDone:
		return "done"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// resolution is the working state of one Resolve call.
type resolution struct {
	mention string
	userID  string
	snap    *Snapshot
	qctx    models.QueryContext

	exact      []models.ValueMatch
	fuzzy      []models.ValueMatch
	candidates []models.ValueMatch
	baseScores map[models.EntryKey]float64
	ambiguous  bool
	reasons    []string

	result *models.ResolutionResult
}

func (r *resolution) note(format string, args ...any) {
	r.reasons = append(r.reasons, fmt.Sprintf(format, args...))
}

func (s *entityResolver) Resolve(ctx context.Context, mention, query, userID string) (*models.ResolutionResult, error) {
	start := time.Now()

	snap := s.snapshots.Load()
	if snap == nil {
		return nil, apperrors.ErrIndexNotReady
	}

	mention = strings.TrimSpace(mention)
	intentName, intentScore := s.analyzer.Classify(query)
	st := &resolution{
		mention: mention,
		userID:  userID,
		snap:    snap,
		qctx: models.QueryContext{
			Query:           query,
			UserID:          userID,
			Intent:          intentName,
			IntentScore:     intentScore,
			MentionedTables: mentionedTables(query, snap.Tables()),
		},
	}

	if mention == "" {
		st.result = models.NoMatchResult(mention, "empty mention")
	} else if check := sql.CheckInput("mention", mention); check != nil && len(snap.Index.Lookup(mention)) == 0 {
		// Indexed values are never malformed, whatever their fingerprint.
		s.logger.Warn("Rejected malformed mention",
			zap.String("fingerprint", check.Fingerprint),
			zap.String("user_id", userID))
		st.result = models.NoMatchResult(mention, "mention rejected as malformed input")
	} else if err := s.run(ctx, st); err != nil {
		return nil, err
	}

	st.result.Mention = mention
	st.result.Intent = intentName
	s.metrics.RecordResolution(string(st.result.Source), st.result.RequiresClarification, time.Since(start))
	s.logger.Debug("Resolved mention",
		zap.String("mention", mention),
		zap.String("query", logging.TruncateQuery(query)),
		zap.String("source", string(st.result.Source)),
		zap.Float64("confidence", st.result.Confidence),
		zap.Bool("requires_clarification", st.result.RequiresClarification),
		zap.String("intent", string(intentName)))

	return st.result, nil
}

// run drives the stage machine until a result is produced.
func (s *entityResolver) run(ctx context.Context, st *resolution) error {
	for current := stagePreference; current != stageDone; {
		s.metrics.RecordStage(current.String())
		next, err := s.step(ctx, current, st)
		if err != nil {
			return err
		}
		current = next
	}
	return nil
}

// step executes one stage and returns the next.
func (s *entityResolver) step(ctx context.Context, current stage, st *resolution) (stage, error) {
	switch current {
	case stagePreference:
		return s.fromPreference(ctx, st)
	case stageExact:
		return s.fromExact(st), nil
	case stageFuzzy:
		if err := ctx.Err(); err != nil {
			return stageDone, err
		}
		return s.fromFuzzy(st), nil
	case stageCombine:
		return s.combine(st), nil
	case stageContext:
		return s.disambiguate(st), nil
	case stageClarification:
		return s.clarify(st), nil
	case stageNoMatch:
		reason := fmt.Sprintf("no indexed value matches %q", st.mention)
		if len(st.reasons) > 0 {
			reason = strings.Join(st.reasons, "; ")
		}
		st.result = models.NoMatchResult(st.mention, reason)
		return stageDone, nil
	default:
		return stageDone, fmt.Errorf("unknown resolution stage %s", current)
	}
}

func (s *entityResolver) fromPreference(ctx context.Context, st *resolution) (stage, error) {
	if s.prefs == nil || st.userID == "" {
		return stageExact, nil
	}

	pref, err := s.prefs.Get(ctx, st.userID, st.mention, st.qctx.Query)
	if err != nil {
		return stageDone, fmt.Errorf("failed to read user preference: %w", err)
	}
	if pref == nil || pref.Confidence <= PreferenceMinConfidence {
		return stageExact, nil
	}

	// The preference stores a copy of the entry; use the current one.
	entry, ok := st.snap.Index.GetByKey(pref.Entry.Key())
	if !ok {
		s.logger.Debug("Remembered value is no longer indexed",
			zap.String("user_id", st.userID),
			zap.String("entry", pref.Entry.Key().String()))
		return stageExact, nil
	}

	match := models.ValueMatch{Entry: entry, Score: pref.Confidence, MatchType: models.MatchTypePreference}
	st.result = &models.ResolutionResult{
		Match:      &match,
		Confidence: pref.Confidence,
		Source:     models.ResolutionSourcePreference,
		Candidates: []models.ValueMatch{match},
		Reasoning:  fmt.Sprintf("user previously chose %q for %q in a question of the same shape", entry.CanonicalValue, st.mention),
	}
	return stageDone, nil
}

func (s *entityResolver) fromExact(st *resolution) stage {
	source := models.ResolutionSourceExact
	matchType := models.MatchTypeExact
	hits := st.snap.Index.Lookup(st.mention)

	if len(hits) == 0 {
		if long, ok := st.snap.Learner.Expand(st.mention); ok {
			hits = st.snap.Index.Lookup(long)
			source = models.ResolutionSourceAbbreviation
			matchType = models.MatchTypeAbbreviation
			if len(hits) > 0 {
				st.note("%q expands to %q", st.mention, long)
			}
		}
	}

	switch {
	case len(hits) == 0:
		return stageFuzzy

	case len(hits) == 1 && exactSingleConfidence >= AutoAcceptThreshold:
		match := models.ValueMatch{Entry: hits[0], Score: exactSingleConfidence, MatchType: matchType}
		st.note("%q is a known form of %s %q", st.mention, hits[0].EntityType, hits[0].CanonicalValue)
		st.result = &models.ResolutionResult{
			Match:      &match,
			Confidence: exactSingleConfidence,
			Source:     source,
			Candidates: []models.ValueMatch{match},
			Reasoning:  strings.Join(st.reasons, "; "),
		}
		return stageDone

	default:
		for _, e := range hits {
			st.exact = append(st.exact, models.ValueMatch{Entry: e, Score: exactCandidateScore, MatchType: matchType})
		}
		st.ambiguous = true
		st.note("%q matches %d indexed values exactly", st.mention, len(hits))
		return stageFuzzy
	}
}

func (s *entityResolver) fromFuzzy(st *resolution) stage {
	matches := dedupeMatches(st.snap.Index.FuzzySearch(st.mention, FuzzyThreshold))
	if len(matches) == 0 {
		return stageCombine
	}

	top := matches[0]
	shared := len(matches) > 1 && matches[1].Score >= top.Score
	if !st.ambiguous && !shared && top.Score > FuzzyAcceptThreshold {
		st.note("%q is a close spelling of %q (similarity %.2f)", st.mention, top.Entry.CanonicalValue, top.Score)
		st.result = &models.ResolutionResult{
			Match:      &top,
			Confidence: top.Score,
			Source:     models.ResolutionSourceFuzzy,
			Candidates: capMatches(matches, MaxResultCandidates),
			Reasoning:  strings.Join(st.reasons, "; "),
		}
		return stageDone
	}

	st.fuzzy = capMatches(matches, MaxFuzzyCandidates)
	st.ambiguous = true
	st.note("%d similar values found", len(st.fuzzy))
	return stageCombine
}

func (s *entityResolver) combine(st *resolution) stage {
	merged := make([]models.ValueMatch, 0, len(st.exact)+len(st.fuzzy))
	merged = append(merged, st.exact...)
	merged = append(merged, st.fuzzy...)

	st.candidates = dedupeMatches(merged)
	if len(st.candidates) == 0 {
		return stageNoMatch
	}

	st.baseScores = make(map[models.EntryKey]float64, len(st.candidates))
	for _, c := range st.candidates {
		st.baseScores[c.Entry.Key()] = c.Score
	}
	return stageContext
}

func (s *entityResolver) disambiguate(st *resolution) stage {
	for i := range st.candidates {
		st.candidates[i].Score = s.contextScore(st, st.candidates[i])
	}
	sortMatches(st.candidates)

	top := st.candidates[0]
	second := 0.0
	if len(st.candidates) > 1 {
		second = st.candidates[1].Score
	}
	lead := top.Score - second

	if lead > DecisiveMargin || (top.Score > ContextAcceptThreshold && lead >= MinContextLead) {
		st.note("%s %q fits the question best (intent %s, lead %.2f)",
			top.Entry.EntityType, top.Entry.CanonicalValue, st.qctx.Intent, lead)
		candidates := outputMatches(st.candidates, MaxResultCandidates)
		match := candidates[0]
		st.result = &models.ResolutionResult{
			Match:      &match,
			Confidence: math.Min(top.Score, contextConfidenceCap),
			Source:     models.ResolutionSourceContext,
			Candidates: candidates,
			Reasoning:  strings.Join(st.reasons, "; "),
		}
		return stageDone
	}

	st.note("context does not separate the top candidates (lead %.2f)", lead)
	return stageClarification
}

// contextScore rescores a candidate by how well it fits the question.
func (s *entityResolver) contextScore(st *resolution, c models.ValueMatch) float64 {
	score := c.Score + intentWeight*s.analyzer.EntityTypeAffinity(st.qctx.Intent, c.Entry.EntityType)
	for _, t := range st.qctx.MentionedTables {
		if t == c.Entry.Table {
			score += tableMentionBonus
			break
		}
	}
	return score + math.Min(float64(c.Entry.Frequency)/frequencyScale, maxFrequencyBonus)
}

func (s *entityResolver) clarify(st *resolution) stage {
	var offered []models.ValueMatch
	for _, c := range st.candidates {
		if c.Score >= ClarificationFloor {
			offered = append(offered, c)
		}
	}
	if len(offered) == 0 {
		st.note("no candidate scored above %.2f", ClarificationFloor)
		return stageNoMatch
	}

	offered = outputMatches(offered, MaxResultCandidates)
	best := offered[0]
	st.result = &models.ResolutionResult{
		Match:                 &best,
		Confidence:            math.Min(st.baseScores[best.Entry.Key()], exactAmbiguousConfidence),
		Source:                models.ResolutionSourceClarification,
		RequiresClarification: true,
		Candidates:            offered,
		ClarificationQuestion: ClarificationQuestion(st.mention, offered),
		Reasoning:             strings.Join(st.reasons, "; "),
	}
	return stageDone
}

func (s *entityResolver) RecordResolution(ctx context.Context, userID, mention, query string, result *models.ResolutionResult, selected models.EntryKey) error {
	if s.prefs == nil {
		return fmt.Errorf("no preference store configured")
	}
	if userID == "" || strings.TrimSpace(mention) == "" {
		return fmt.Errorf("user id and mention are required")
	}

	entry, ok := s.selectedEntry(result, selected)
	if !ok {
		return fmt.Errorf("selected value %s: %w", selected, apperrors.ErrNotFound)
	}

	shape := preferences.QueryShape(query, mention)
	clarified := result == nil || result.RequiresClarification || result.Match == nil ||
		result.Match.Entry.Key() != selected

	if clarified {
		if err := s.prefs.Put(ctx, &models.UserPreference{
			UserID:     userID,
			Mention:    mention,
			Entry:      entry,
			Confidence: models.PreferenceConfidence,
			QueryShape: shape,
		}); err != nil {
			return fmt.Errorf("failed to store user preference: %w", err)
		}
	}

	record := &models.ClarificationRecord{
		UserID:                userID,
		Mention:               mention,
		Query:                 query,
		QueryShape:            shape,
		Selected:              selected,
		RequiredClarification: result != nil && result.RequiresClarification,
	}
	if result != nil {
		for _, c := range result.Candidates {
			record.Offered = append(record.Offered, c.Entry.Key())
		}
	}
	if err := s.prefs.AppendHistory(ctx, record); err != nil {
		return fmt.Errorf("failed to append clarification history: %w", err)
	}

	s.metrics.RecordChoice(clarified)
	s.logger.Info("Recorded entity choice",
		zap.String("user_id", userID),
		zap.String("mention", mention),
		zap.String("selected", selected.String()),
		zap.Bool("remembered", clarified))
	return nil
}

// selectedEntry finds the chosen entry in the current snapshot, falling back
// to the candidates the user was shown.
func (s *entityResolver) selectedEntry(result *models.ResolutionResult, selected models.EntryKey) (models.ValueEntry, bool) {
	if snap := s.snapshots.Load(); snap != nil {
		if e, ok := snap.Index.GetByKey(selected); ok {
			return e, true
		}
	}
	if result != nil {
		for _, c := range result.Candidates {
			if c.Entry.Key() == selected {
				return c.Entry, true
			}
		}
	}
	return models.ValueEntry{}, false
}

// ClarificationQuestion phrases a question offering candidates. When the
// candidates span exactly two entity types the question names one value of
// each; otherwise it lists the candidates.
func ClarificationQuestion(mention string, candidates []models.ValueMatch) string {
	var types []models.EntityType
	firstOfType := make(map[models.EntityType]models.ValueEntry)
	for _, c := range candidates {
		if _, ok := firstOfType[c.Entry.EntityType]; !ok {
			firstOfType[c.Entry.EntityType] = c.Entry
			types = append(types, c.Entry.EntityType)
		}
	}

	if len(types) == 2 {
		a, b := firstOfType[types[0]], firstOfType[types[1]]
		return fmt.Sprintf("Did you mean the %s %q or the %s %q?",
			a.EntityType, a.CanonicalValue, b.EntityType, b.CanonicalValue)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Which %q did you mean?", mention)
	for i, c := range capMatches(candidates, MaxResultCandidates) {
		fmt.Fprintf(&sb, "\n%d. %s (%s, %s)", i+1, c.Entry.CanonicalValue, c.Entry.EntityType, c.Entry.Location())
	}
	return sb.String()
}

// dedupeMatches keeps the best-scoring match per entry and sorts the result.
func dedupeMatches(matches []models.ValueMatch) []models.ValueMatch {
	best := make(map[models.EntryKey]int, len(matches))
	out := make([]models.ValueMatch, 0, len(matches))
	for _, m := range matches {
		k := m.Entry.Key()
		if i, ok := best[k]; ok {
			if m.Score > out[i].Score {
				out[i] = m
			}
			continue
		}
		best[k] = len(out)
		out = append(out, m)
	}
	sortMatches(out)
	return out
}

// sortMatches orders by score, then frequency, then canonical value and location.
func sortMatches(matches []models.ValueMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Entry.Frequency != b.Entry.Frequency {
			return a.Entry.Frequency > b.Entry.Frequency
		}
		if a.Entry.CanonicalValue != b.Entry.CanonicalValue {
			return a.Entry.CanonicalValue < b.Entry.CanonicalValue
		}
		return a.Entry.Location() < b.Entry.Location()
	})
}

func capMatches(matches []models.ValueMatch, n int) []models.ValueMatch {
	if len(matches) > n {
		matches = matches[:n]
	}
	return append([]models.ValueMatch(nil), matches...)
}

// outputMatches caps matches at n with scores clamped to [0,1].
func outputMatches(matches []models.ValueMatch, n int) []models.ValueMatch {
	out := capMatches(matches, n)
	for i := range out {
		out[i].Score = math.Min(out[i].Score, 1)
	}
	return out
}

// mentionedTables returns the tables whose name, or singular name, appears
// as a word in query.
func mentionedTables(query string, tables []string) []string {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	}) {
		words[w] = true
	}

	var out []string
	for _, t := range tables {
		lt := strings.ToLower(t)
		if words[lt] || words[inflection.Singular(lt)] {
			out = append(out, t)
		}
	}
	return out
}
