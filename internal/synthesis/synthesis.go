// Package synthesis produces the single consensus verdict: a referee model
// prunes hallucinated candidates and narrates one ranked result, with a
// deterministic local fallback so the pipeline always yields a report.
package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"clauseguard/internal/analysis"
	"clauseguard/internal/logging"
	"clauseguard/internal/parser"
	"clauseguard/internal/types"
)

const refereeInstruction = `You are the referee for a multi-model legal risk review. Several specialist models reviewed the same document; their merged candidate findings are listed below.

Your job:
1. PRUNE: discard candidates that are not supported by the document context.
2. CONSOLIDATE: tighten the language of the survivors.
3. JUDGE: assign one overall risk level and a practical recommendation.

OUTPUT CONTRACT - respond with ONLY this JSON object:
{
  "summary": "2-4 sentence narrative of the overall risk picture",
  "risk_level": "low|medium|high|critical",
  "core_risks": ["the most important risk titles, max 5"],
  "recommendation": "what the reviewer should do next",
  "confirmed_titles": ["titles of candidates you confirm, verbatim"],
  "total_confidence": 0.0-1.0
}`

// Engine runs referee synthesis with local fallback.
type Engine struct {
	referee analysis.ModelRole
}

// New creates a synthesis engine around the referee role.
func New(referee analysis.ModelRole) *Engine {
	return &Engine{referee: referee}
}

// Synthesize asks the referee to prune and narrate the merged candidates.
// Referee failure or unparsable output falls back to deterministic local
// synthesis; this function never fails.
func (e *Engine) Synthesize(ctx context.Context, candidates []types.RiskFinding, actx *analysis.AnalysisContext) types.FinalResult {
	if e.referee.Client == nil {
		logging.SynthesisWarn("no referee configured, using local synthesis")
		return Fallback(candidates)
	}

	prompt, err := buildRefereePrompt(candidates, actx)
	if err != nil {
		logging.SynthesisWarn("referee prompt build failed: %v", err)
		return Fallback(candidates)
	}

	role := e.referee
	role.Lens = "" // the referee instruction replaces the review lens
	res := analysis.RawModelResult{}
	func() {
		defer func() {
			if r := recover(); r != nil {
				logging.SynthesisWarn("referee panicked: %v", r)
				res = analysis.RawModelResult{Succeeded: false, Error: fmt.Sprint(r)}
			}
		}()
		callCtx, cancel := context.WithTimeout(ctx, analysis.DefaultRoleTimeout)
		defer cancel()
		raw, cerr := role.Client.CompleteWithSystem(callCtx, refereeInstruction, prompt)
		if cerr != nil {
			res = analysis.RawModelResult{Succeeded: false, Error: cerr.Error()}
			return
		}
		res = analysis.RawModelResult{Succeeded: true, RawText: raw}
	}()

	if !res.Succeeded {
		logging.SynthesisWarn("referee call failed (%s), using local synthesis", res.Error)
		return Fallback(candidates)
	}

	verdict, fail := parser.ParseVerdict(res.RawText)
	if fail != nil {
		logging.SynthesisWarn("referee output unparsable, using local synthesis")
		return Fallback(candidates)
	}

	return applyVerdict(verdict, candidates)
}

// buildRefereePrompt serializes the candidates plus the narrative context
// the referee prunes against.
func buildRefereePrompt(candidates []types.RiskFinding, actx *analysis.AnalysisContext) (string, error) {
	data, err := json.MarshalIndent(candidates, "", "  ")
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("## Candidate Findings\n")
	sb.Write(data)
	sb.WriteString("\n\n## Document Context\n")
	// The referee sees a bounded excerpt; it judges support, it does not
	// re-review the whole document.
	sb.WriteString(excerpt(actx.DocumentText, 6000))
	return sb.String(), nil
}

func excerpt(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "\n...(truncated)"
}

// applyVerdict filters candidates by the referee's confirmations and shapes
// the final result. An invalid risk level from the referee falls back to the
// deterministic level; an empty confirmation list keeps everything.
func applyVerdict(v parser.Verdict, candidates []types.RiskFinding) types.FinalResult {
	items := candidates
	if len(v.ConfirmedTitles) > 0 {
		confirmed := make(map[string]bool, len(v.ConfirmedTitles))
		for _, t := range v.ConfirmedTitles {
			confirmed[strings.TrimSpace(t)] = true
		}
		kept := make([]types.RiskFinding, 0, len(candidates))
		for _, f := range candidates {
			if confirmed[f.Title] {
				kept = append(kept, f)
			}
		}
		if len(kept) > 0 {
			logging.Synthesis("referee pruned %d of %d candidates", len(candidates)-len(kept), len(candidates))
			items = kept
		}
	}

	level, err := types.ParseSeverity(v.RiskLevel)
	if err != nil {
		level = deriveRiskLevel(items)
	}

	confidence := v.TotalConfidence
	if confidence <= 0 || confidence > 1 {
		confidence = meanConfidence(items)
	}

	summary := strings.TrimSpace(v.Summary)
	if summary == "" {
		summary = localSummary(items)
	}

	coreRisks := v.CoreRisks
	if len(coreRisks) == 0 {
		coreRisks = topTitles(items, 5)
	}

	recommendation := strings.TrimSpace(v.Recommendation)
	if recommendation == "" {
		recommendation = defaultRecommendation(level)
	}

	return types.FinalResult{
		Summary: summary,
		OverallAssessment: types.OverallAssessment{
			RiskLevel:      level,
			CoreRisks:      coreRisks,
			Recommendation: recommendation,
		},
		RiskItems:       items,
		TotalConfidence: confidence,
	}
}

// Fallback is the deterministic local synthesis used when the referee is
// unusable. Same output shape, no model call.
func Fallback(candidates []types.RiskFinding) types.FinalResult {
	level := deriveRiskLevel(candidates)
	return types.FinalResult{
		Summary: localSummary(candidates),
		OverallAssessment: types.OverallAssessment{
			RiskLevel:      level,
			CoreRisks:      topTitles(candidates, 3),
			Recommendation: defaultRecommendation(level),
		},
		RiskItems:       candidates,
		TotalConfidence: meanConfidence(candidates),
	}
}

// FormatDirect shapes single-model results without a referee pass. Same
// FinalResult shape so downstream consumers are mode-agnostic.
func FormatDirect(candidates []types.RiskFinding) types.FinalResult {
	types.SortFindings(candidates)
	return Fallback(candidates)
}

// deriveRiskLevel applies the fixed local rule: more than 2 high or critical
// findings is "high", anything else with findings is "medium".
func deriveRiskLevel(candidates []types.RiskFinding) types.Severity {
	if len(candidates) == 0 {
		return types.SeverityLow
	}
	severe := 0
	for _, f := range candidates {
		if f.Severity.Rank() >= types.SeverityHigh.Rank() {
			severe++
		}
	}
	if severe > 2 {
		return types.SeverityHigh
	}
	return types.SeverityMedium
}

func localSummary(candidates []types.RiskFinding) string {
	if len(candidates) == 0 {
		return "No risks were identified in the reviewed documents."
	}
	titles := topTitles(candidates, 3)
	return fmt.Sprintf("%d risks identified. Top concerns: %s.",
		len(candidates), strings.Join(titles, "; "))
}

func topTitles(candidates []types.RiskFinding, n int) []string {
	titles := make([]string, 0, n)
	for i, f := range candidates {
		if i >= n {
			break
		}
		titles = append(titles, f.Title)
	}
	return titles
}

func defaultRecommendation(level types.Severity) string {
	switch level {
	case types.SeverityCritical, types.SeverityHigh:
		return "Do not sign as-is. Escalate the listed risks to counsel and renegotiate the flagged clauses."
	case types.SeverityMedium:
		return "Review the flagged clauses with the counterparty before signing."
	default:
		return "No blocking issues found. Proceed with standard review."
	}
}

func meanConfidence(candidates []types.RiskFinding) float64 {
	if len(candidates) == 0 {
		return 0
	}
	sum := 0.0
	for _, f := range candidates {
		sum += f.Confidence
	}
	return sum / float64(len(candidates))
}
