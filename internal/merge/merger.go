// Package merge collapses near-duplicate risk findings produced by different
// model roles and document chunks into single corroborated findings,
// preserving provenance. Grouping and ordering are deterministic for a fixed
// input multiset regardless of input order.
package merge

import (
	"sort"
	"strings"

	"clauseguard/internal/logging"
	"clauseguard/internal/types"
)

// DefaultThreshold is the empirically chosen title-similarity cutoff for
// joining a group. Exposed as configuration, not assumed correct.
const DefaultThreshold = 0.65

// Config tunes grouping and ranking. Zero values fall back to defaults.
type Config struct {
	// Threshold joins two findings into one group when their title
	// similarity exceeds it.
	Threshold float64 `yaml:"threshold" json:"threshold"`

	// ConfidenceWeight scales confidence into the priority score.
	ConfidenceWeight float64 `yaml:"confidence_weight" json:"confidence_weight"`

	// CorroborationBonus is added per extra corroborating source.
	CorroborationBonus float64 `yaml:"corroboration_bonus" json:"corroboration_bonus"`
}

// DefaultConfig returns the default merge tuning.
func DefaultConfig() Config {
	return Config{
		Threshold:          DefaultThreshold,
		ConfidenceWeight:   20,
		CorroborationBonus: 10,
	}
}

// Merger groups and collapses candidate findings.
type Merger struct {
	config Config
}

// New creates a merger with the given config.
func New(config Config) *Merger {
	if config.Threshold <= 0 {
		config.Threshold = DefaultThreshold
	}
	if config.ConfidenceWeight <= 0 {
		config.ConfidenceWeight = 20
	}
	if config.CorroborationBonus <= 0 {
		config.CorroborationBonus = 10
	}
	return &Merger{config: config}
}

// group is a transient similarity cluster. It collapses into one finding and
// is discarded afterwards; a finding belongs to exactly one group.
type group struct {
	members []types.RiskFinding
	keyword string
}

// Merge deduplicates and collapses candidates. Output length never exceeds
// input length; singleton groups pass through unchanged apart from ordering.
// Merge is idempotent and order-independent.
func (m *Merger) Merge(candidates []types.RiskFinding) []types.RiskFinding {
	if len(candidates) == 0 {
		return nil
	}

	// Canonical order first: grouping below is greedy, so a fixed scan
	// order is what makes the result independent of input order.
	sorted := make([]types.RiskFinding, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Title != sorted[j].Title {
			return sorted[i].Title < sorted[j].Title
		}
		if sorted[i].Severity.Rank() != sorted[j].Severity.Rank() {
			return sorted[i].Severity.Rank() > sorted[j].Severity.Rank()
		}
		return sorted[i].Confidence > sorted[j].Confidence
	})

	deduped := dedupExact(sorted)

	// Bucket by coarse category, then cluster within each bucket.
	buckets := make(map[string][]types.RiskFinding)
	for _, f := range deduped {
		cat := Categorize(f)
		buckets[cat] = append(buckets[cat], f)
	}

	catNames := make([]string, 0, len(buckets))
	for cat := range buckets {
		catNames = append(catNames, cat)
	}
	sort.Strings(catNames)

	var merged []types.RiskFinding
	for _, cat := range catNames {
		for _, g := range m.cluster(buckets[cat]) {
			merged = append(merged, collapse(g))
		}
	}

	m.sortByPriority(merged)
	logging.Merge("merged %d candidates into %d findings", len(candidates), len(merged))
	return merged
}

// dedupExact removes findings with identical signatures
// (severity + category + evidence prefix), folding provenance into the kept
// member instead of discarding it.
func dedupExact(findings []types.RiskFinding) []types.RiskFinding {
	seen := make(map[string]int)
	var out []types.RiskFinding
	for _, f := range findings {
		sig := signature(f)
		if idx, ok := seen[sig]; ok {
			out[idx].SourceRoles = unionStrings(out[idx].SourceRoles, f.SourceRoles)
			out[idx].SourceCount = len(out[idx].SourceRoles)
			if f.Confidence > out[idx].Confidence {
				out[idx].Confidence = f.Confidence
			}
			continue
		}
		seen[sig] = len(out)
		out = append(out, f)
	}
	return out
}

func signature(f types.RiskFinding) string {
	evidence := f.Title
	if len(f.Reasons) > 0 {
		evidence = f.Reasons[0]
	}
	return string(f.Severity) + "|" + Categorize(f) + "|" + prefix(evidence, 24)
}

func prefix(s string, n int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n])
}

// cluster greedily assigns each finding to the first group whose
// representative title is similar enough; otherwise it opens a new group.
func (m *Merger) cluster(findings []types.RiskFinding) []group {
	var groups []group
	for _, f := range findings {
		kw := dominantKeyword(f.Title)
		placed := false
		for gi := range groups {
			rep := groups[gi].members[0]
			shared := kw != "" && kw == groups[gi].keyword
			if titleSimilarity(f.Title, rep.Title, shared) > m.config.Threshold {
				groups[gi].members = append(groups[gi].members, f)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, group{members: []types.RiskFinding{f}, keyword: kw})
		}
	}
	return groups
}

// collapse folds one group into a single finding: the highest-severity
// member is the base, evidence and provenance are unioned.
func collapse(g group) types.RiskFinding {
	base := g.members[0]
	for _, f := range g.members[1:] {
		if f.Severity.Rank() > base.Severity.Rank() ||
			(f.Severity.Rank() == base.Severity.Rank() && f.Confidence > base.Confidence) {
			base = f
		}
	}

	out := base
	out.Reasons = nil
	out.Suggestions = nil
	out.SourceRoles = nil
	for _, f := range g.members {
		out.Reasons = unionStrings(out.Reasons, f.Reasons)
		out.Suggestions = unionStrings(out.Suggestions, f.Suggestions)
		out.SourceRoles = unionStrings(out.SourceRoles, f.SourceRoles)
		if f.Confidence > out.Confidence {
			out.Confidence = f.Confidence
		}
	}
	sort.Strings(out.SourceRoles)
	out.SourceCount = len(out.SourceRoles)
	if out.SourceCount == 0 {
		out.SourceCount = 1
	}
	return out
}

// sortByPriority orders findings by the configured priority score,
// descending, with title as the deterministic tie-break.
func (m *Merger) sortByPriority(findings []types.RiskFinding) {
	score := func(f types.RiskFinding) float64 {
		extra := f.SourceCount - 1
		if extra < 0 {
			extra = 0
		}
		return f.Severity.Weight() + f.Confidence*m.config.ConfidenceWeight +
			m.config.CorroborationBonus*float64(extra)
	}
	sort.SliceStable(findings, func(i, j int) bool {
		si, sj := score(findings[i]), score(findings[j])
		if si != sj {
			return si > sj
		}
		return findings[i].Title < findings[j].Title
	})
}

// unionStrings merges items preserving first-seen order. The result is a
// fresh slice: appending onto dst directly would write through a backing
// array merge may share with the caller's findings.
func unionStrings(dst, src []string) []string {
	out := make([]string, 0, len(dst)+len(src))
	seen := make(map[string]bool, len(dst)+len(src))
	for _, s := range dst {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	for _, s := range src {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
