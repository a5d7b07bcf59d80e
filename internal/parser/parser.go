// Package parser turns raw, semi-structured model output into validated risk
// records. Models routinely wrap JSON in prose or code fences, leave keys
// unquoted, or trail commas; parsing therefore runs layered fallback
// strategies and reports failure as a value instead of an error that could
// abort sibling work.
package parser

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"clauseguard/internal/logging"
	"clauseguard/internal/types"
)

// DefaultConfidence fills records whose source text carried no confidence.
const DefaultConfidence = 0.6

// ParseFailure reports that every parse layer failed. The original text is
// attached so callers can log or degrade without losing evidence.
type ParseFailure struct {
	Reason string
	Raw    string
}

func (f *ParseFailure) Error() string { return "parse failure: " + f.Reason }

// Verdict is the referee model's consolidated output shape.
type Verdict struct {
	Summary         string   `json:"summary"`
	RiskLevel       string   `json:"risk_level"`
	CoreRisks       []string `json:"core_risks"`
	Recommendation  string   `json:"recommendation"`
	ConfirmedTitles []string `json:"confirmed_titles"`
	TotalConfidence float64  `json:"total_confidence"`
}

// rawFinding is the wire shape before validation. Confidence is a pointer so
// an absent field is distinguishable from an explicit zero.
type rawFinding struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    string   `json:"severity"`
	Confidence  *float64 `json:"confidence"`
	Reasons     []string `json:"reasons"`
	Suggestions []string `json:"suggestions"`
}

// findingList accepts the common list wrappers models produce.
type findingList struct {
	Findings []rawFinding `json:"findings"`
	Risks    []rawFinding `json:"risks"`
	Items    []rawFinding `json:"items"`
}

// ParseFinding parses one risk record through the layered strategies:
// direct decode, fenced/balanced extraction, auto-repair, field regexes.
// First success wins.
func ParseFinding(raw string) (types.RiskFinding, *ParseFailure) {
	for _, candidate := range candidates(raw, '{', '}') {
		var rf rawFinding
		if err := json.Unmarshal([]byte(candidate), &rf); err == nil && rf.Title != "" {
			return finalize(rf)
		}
	}

	// Layer 4: per-field regex scraping. Missing fields get defaults, the
	// layer itself never aborts.
	rf := scrapeFields(raw)
	if rf.Title == "" {
		logging.ParserWarn("all parse layers failed (%d chars)", len(raw))
		return types.RiskFinding{}, &ParseFailure{Reason: "no recognizable record", Raw: raw}
	}
	logging.ParserDebug("field-regex fallback recovered %q", rf.Title)
	return finalize(rf)
}

// ParseFindings parses a list of risk records. It accepts a bare JSON array,
// a wrapper object ({"findings": [...]}), or a single object. Records that
// fail validation are dropped, never coerced.
func ParseFindings(raw string) ([]types.RiskFinding, *ParseFailure) {
	for _, candidate := range candidates(raw, '[', ']') {
		var list []rawFinding
		if err := json.Unmarshal([]byte(candidate), &list); err == nil && len(list) > 0 {
			return finalizeList(list), nil
		}
	}
	for _, candidate := range candidates(raw, '{', '}') {
		var wrapper findingList
		if err := json.Unmarshal([]byte(candidate), &wrapper); err == nil {
			for _, list := range [][]rawFinding{wrapper.Findings, wrapper.Risks, wrapper.Items} {
				if len(list) > 0 {
					return finalizeList(list), nil
				}
			}
		}
	}

	// Maybe the model emitted a single object.
	if f, fail := ParseFinding(raw); fail == nil {
		return []types.RiskFinding{f}, nil
	}

	logging.ParserWarn("finding list unparsable (%d chars)", len(raw))
	return nil, &ParseFailure{Reason: "no finding list", Raw: raw}
}

// ParseVerdict parses the referee model's verdict through the same layers.
func ParseVerdict(raw string) (Verdict, *ParseFailure) {
	for _, candidate := range candidates(raw, '{', '}') {
		var v Verdict
		if err := json.Unmarshal([]byte(candidate), &v); err == nil && (v.Summary != "" || v.RiskLevel != "") {
			return v, nil
		}
	}
	return Verdict{}, &ParseFailure{Reason: "no verdict object", Raw: raw}
}

// candidates yields decode attempts in fallback order: the trimmed text
// itself, the fenced or balanced region, and the auto-repaired form of each.
func candidates(raw string, open, close rune) []string {
	trimmed := strings.TrimSpace(raw)
	out := []string{trimmed}
	if extracted := extract(trimmed, open, close); extracted != "" && extracted != trimmed {
		out = append(out, extracted)
	}
	n := len(out)
	for i := 0; i < n; i++ {
		if repaired := Repair(out[i]); repaired != out[i] {
			out = append(out, repaired)
		}
	}
	return out
}

var fenceRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// extract pulls a fenced code block, or failing that the first balanced
// open..close region, out of surrounding prose.
func extract(s string, open, close rune) string {
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		inner := strings.TrimSpace(m[1])
		if inner != "" {
			return inner
		}
	}
	return balanced(s, open, close)
}

// balanced returns the first balanced region delimited by open/close,
// respecting JSON string literals. Empty when none exists.
func balanced(s string, open, close rune) string {
	depth := 0
	start := -1
	inString := false
	escaped := false
	for i, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			if depth > 0 {
				inString = true
			}
		case open:
			if depth == 0 {
				start = i
			}
			depth++
		case close:
			if depth > 0 {
				depth--
				if depth == 0 {
					return s[start : i+len(string(close))]
				}
			}
		}
	}
	return ""
}

var (
	lineCommentRe  = regexp.MustCompile(`(?m)^\s*//.*$`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	bareKeyRe      = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_\-]*)\s*:`)
	trailingComma  = regexp.MustCompile(`,\s*([}\]])`)
	singleQuoted   = regexp.MustCompile(`'([^'\\]*)'`)
	smartQuotes    = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")
)

// Repair applies mechanical fixes for the malformations models actually
// produce: comments, smart quotes, single-quoted strings, bare keys and
// trailing commas.
func Repair(s string) string {
	s = blockCommentRe.ReplaceAllString(s, "")
	s = lineCommentRe.ReplaceAllString(s, "")
	s = smartQuotes.Replace(s)
	s = singleQuoted.ReplaceAllString(s, `"$1"`)
	s = bareKeyRe.ReplaceAllString(s, `$1"$2":`)
	s = trailingComma.ReplaceAllString(s, `$1`)
	return strings.TrimSpace(s)
}

// Field regexes tolerate unquoted values, single quotes and full-width
// colons. Used only by the last-resort layer.
var fieldRes = map[string]*regexp.Regexp{
	"title":       regexp.MustCompile(`["']?title["']?\s*[:：]\s*["']?([^"'\n,}]+)`),
	"description": regexp.MustCompile(`["']?description["']?\s*[:：]\s*["']?([^"'\n}]+)`),
	"severity":    regexp.MustCompile(`["']?severity["']?\s*[:：]\s*["']?([A-Za-z]+)`),
	"confidence":  regexp.MustCompile(`["']?confidence["']?\s*[:：]\s*([0-9.]+)`),
}

func scrapeFields(raw string) rawFinding {
	var rf rawFinding
	if m := fieldRes["title"].FindStringSubmatch(raw); m != nil {
		rf.Title = strings.TrimSpace(m[1])
	}
	if m := fieldRes["description"].FindStringSubmatch(raw); m != nil {
		rf.Description = strings.TrimSpace(m[1])
	}
	if m := fieldRes["severity"].FindStringSubmatch(raw); m != nil {
		rf.Severity = strings.TrimSpace(m[1])
	}
	if m := fieldRes["confidence"].FindStringSubmatch(raw); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			rf.Confidence = &v
		}
	}
	return rf
}

// finalize validates and defaults a decoded record. Severity defaults to
// medium only when the field is absent; a present-but-invalid severity
// rejects the record.
func finalize(rf rawFinding) (types.RiskFinding, *ParseFailure) {
	if rf.Severity == "" {
		rf.Severity = string(types.SeverityMedium)
	}
	severity, err := types.ParseSeverity(rf.Severity)
	if err != nil {
		return types.RiskFinding{}, &ParseFailure{Reason: err.Error(), Raw: rf.Title}
	}

	confidence := DefaultConfidence
	if rf.Confidence != nil {
		confidence = *rf.Confidence
	}

	f := types.RiskFinding{
		Title:       strings.TrimSpace(rf.Title),
		Description: strings.TrimSpace(rf.Description),
		Severity:    severity,
		Confidence:  confidence,
		Reasons:     rf.Reasons,
		Suggestions: rf.Suggestions,
	}
	if err := f.Validate(); err != nil {
		return types.RiskFinding{}, &ParseFailure{Reason: err.Error(), Raw: rf.Title}
	}
	return f, nil
}

func finalizeList(list []rawFinding) []types.RiskFinding {
	out := make([]types.RiskFinding, 0, len(list))
	for _, rf := range list {
		f, fail := finalize(rf)
		if fail != nil {
			logging.ParserWarn("dropping invalid record: %s", fail.Reason)
			continue
		}
		out = append(out, f)
	}
	return out
}
