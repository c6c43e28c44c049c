package normalize

import (
	"sort"
	"strings"
	"time"

	"github.com/hkjang/codelens/internal/analysis"
)

// Categorized is a raw finding annotated with its taxonomy cell. Produced by
// the CATEGORIZE stage, consumed by NORMALIZE.
type Categorized struct {
	analysis.RawFinding
	Main analysis.MainCategory
	Sub  string
}

// Categorize maps every raw finding onto the closed taxonomy. Findings with
// unknown raw categories land in the fallback cell with their confidence
// scaled down.
func Categorize(raws []analysis.RawFinding) []Categorized {
	out := make([]Categorized, 0, len(raws))
	for _, raw := range raws {
		cell, known := MapCategory(raw.Category)
		if !known {
			raw.Confidence = analysis.ClampConfidence(raw.Confidence * unknownCategoryPenalty)
		}
		raw.Confidence = analysis.ClampConfidence(raw.Confidence)
		out = append(out, Categorized{RawFinding: raw, Main: cell.Main, Sub: cell.Sub})
	}
	return out
}

// locationKey is the dedup identity: findings at the same file, start line
// and rule are the same issue observed more than once.
type locationKey struct {
	filePath  string
	lineStart int
	ruleID    string
}

// Build deduplicates categorized findings into normalized results.
//
// Findings sharing a location key merge into one result keeping the highest
// severity observed, concatenating distinct suggestions in arrival order and
// unioning sources. AI findings never override a deterministic sibling at
// the same location: they contribute only their suggestion and source. The
// output is sorted; the whole construction is reproducible across runs.
func Build(executionID string, findings []Categorized, now time.Time) []analysis.NormalizedResult {
	results := buildGroups(executionID, findings, now)
	Sort(results)
	return results
}

// buildGroups groups findings by location key and merges each group, leaving
// the output unsorted.
func buildGroups(executionID string, findings []Categorized, now time.Time) []analysis.NormalizedResult {
	groups := make(map[locationKey][]Categorized)
	var order []locationKey
	for _, f := range findings {
		key := locationKey{f.FilePath, f.LineStart, f.RuleID}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], f)
	}

	results := make([]analysis.NormalizedResult, 0, len(order))
	for _, key := range order {
		results = append(results, mergeGroup(executionID, groups[key], now))
	}
	return results
}

// mergeGroup collapses all findings at one location into a single result.
func mergeGroup(executionID string, group []Categorized, now time.Time) analysis.NormalizedResult {
	deterministic := make([]Categorized, 0, len(group))
	var aiOnly []Categorized
	for _, f := range group {
		if f.Agent == analysis.AgentAI {
			aiOnly = append(aiOnly, f)
		} else {
			deterministic = append(deterministic, f)
		}
	}

	base := deterministic
	isDeterministic := true
	if len(base) == 0 {
		base = aiOnly
		isDeterministic = false
	}

	// The highest-severity contributor defines the result body; arrival
	// order breaks ties. Confidence is the maximum among body contributors.
	lead := base[0]
	confidence := base[0].Confidence
	for _, f := range base[1:] {
		if f.Severity.Rank() > lead.Severity.Rank() {
			lead = f
		}
		if f.Confidence > confidence {
			confidence = f.Confidence
		}
	}

	res := analysis.NormalizedResult{
		ID:            analysis.ResultID(lead.FilePath, lead.LineStart, lead.RuleID),
		ExecutionID:   executionID,
		FilePath:      lead.FilePath,
		LineStart:     lead.LineStart,
		LineEnd:       lead.LineEnd,
		Language:      lead.Language,
		MainCategory:  lead.Main,
		SubCategory:   lead.Sub,
		RuleID:        lead.RuleID,
		Severity:      lead.Severity,
		Message:       lead.Message,
		Confidence:    confidence,
		Deterministic: isDeterministic,
		CreatedAt:     now,
	}

	for _, f := range group {
		if f.LineEnd > res.LineEnd {
			res.LineEnd = f.LineEnd
		}
		res.Suggestion = appendSuggestion(res.Suggestion, f.Suggestion)
		res.Sources = appendSource(res.Sources, f.Agent)
	}
	return res
}

// appendSuggestion concatenates distinct non-empty suggestions in arrival
// order, separated by "; ".
func appendSuggestion(existing, next string) string {
	next = strings.TrimSpace(next)
	if next == "" {
		return existing
	}
	if existing == "" {
		return next
	}
	for _, part := range strings.Split(existing, "; ") {
		if part == next {
			return existing
		}
	}
	return existing + "; " + next
}

func appendSource(sources []analysis.AgentType, agent analysis.AgentType) []analysis.AgentType {
	for _, s := range sources {
		if s == agent {
			return sources
		}
	}
	return append(sources, agent)
}

// Enhance folds AI findings into an already normalized result set. An AI
// finding at an existing location attaches its suggestion and source to that
// result, never altering its severity, category or deterministic flag. AI
// findings at fresh locations become new non-deterministic results. The
// input slice is not mutated; the returned slice is re-sorted.
func Enhance(executionID string, existing []analysis.NormalizedResult, aiRaws []analysis.RawFinding, now time.Time) []analysis.NormalizedResult {
	out := make([]analysis.NormalizedResult, len(existing))
	copy(out, existing)

	index := make(map[locationKey]int, len(out))
	for i, r := range out {
		index[locationKey{r.FilePath, r.LineStart, r.RuleID}] = i
	}

	var fresh []Categorized
	for _, raw := range Categorize(aiRaws) {
		raw.Agent = analysis.AgentAI
		key := locationKey{raw.FilePath, raw.LineStart, raw.RuleID}
		if i, ok := index[key]; ok {
			out[i].Suggestion = appendSuggestion(out[i].Suggestion, raw.Suggestion)
			out[i].Sources = appendSource(out[i].Sources, analysis.AgentAI)
			continue
		}
		fresh = append(fresh, raw)
	}

	if len(fresh) > 0 {
		out = append(out, buildGroups(executionID, fresh, now)...)
	}
	Sort(out)
	return out
}

// Sort orders results severity descending, then file path ascending, then
// start line ascending, with rule ID as the final tiebreak. The sort is
// total, so equal inputs always produce equal output order.
func Sort(results []analysis.NormalizedResult) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		if a.LineStart != b.LineStart {
			return a.LineStart < b.LineStart
		}
		return a.RuleID < b.RuleID
	})
}
