// Package report renders a FinalResult as a heading-structured text
// report. Rendering is purely presentational; export formats live upstream.
package report

import (
	"fmt"
	"strings"

	"clauseguard/internal/types"
)

var severityLabels = map[types.Severity]string{
	types.SeverityCritical: "CRITICAL",
	types.SeverityHigh:     "HIGH",
	types.SeverityMedium:   "MEDIUM",
	types.SeverityLow:      "LOW",
}

// Render produces the full text report: overview, overall assessment and
// one section per risk item, ranked by priority.
func Render(res *types.FinalResult, digests []types.DocumentDigest) string {
	var b strings.Builder

	b.WriteString("# Contract Risk Review\n\n")

	if len(digests) > 0 {
		b.WriteString("## Documents Reviewed\n\n")
		for _, d := range digests {
			fmt.Fprintf(&b, "- %s (%d chars", d.Filename, d.CharCount)
			if d.ChunkCount > 1 {
				fmt.Fprintf(&b, ", %d sections", d.ChunkCount)
			}
			b.WriteString(")\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("## Summary\n\n")
	b.WriteString(strings.TrimSpace(res.Summary))
	b.WriteString("\n\n")

	b.WriteString("## Overall Assessment\n\n")
	fmt.Fprintf(&b, "- Risk level: %s\n", label(res.OverallAssessment.RiskLevel))
	fmt.Fprintf(&b, "- Confidence: %.0f%%\n", res.TotalConfidence*100)
	if len(res.OverallAssessment.CoreRisks) > 0 {
		b.WriteString("- Core risks:\n")
		for _, r := range res.OverallAssessment.CoreRisks {
			fmt.Fprintf(&b, "  - %s\n", r)
		}
	}
	if res.OverallAssessment.Recommendation != "" {
		fmt.Fprintf(&b, "- Recommendation: %s\n", res.OverallAssessment.Recommendation)
	}
	b.WriteString("\n")

	if len(res.RiskItems) == 0 {
		b.WriteString("## Findings\n\nNo risk findings.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "## Findings (%d)\n\n", len(res.RiskItems))
	for i, item := range res.RiskItems {
		fmt.Fprintf(&b, "### %d. [%s] %s\n\n", i+1, label(item.Severity), item.Title)
		if item.Description != "" {
			b.WriteString(strings.TrimSpace(item.Description))
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "- Confidence: %.0f%%\n", item.Confidence*100)
		if item.SourceCount > 1 {
			fmt.Fprintf(&b, "- Corroborated by %d analyses (%s)\n",
				item.SourceCount, strings.Join(item.SourceRoles, ", "))
		}
		for _, reason := range item.Reasons {
			fmt.Fprintf(&b, "- Basis: %s\n", reason)
		}
		for _, sug := range item.Suggestions {
			fmt.Fprintf(&b, "- Suggestion: %s\n", sug)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func label(s types.Severity) string {
	if l, ok := severityLabels[s]; ok {
		return l
	}
	return strings.ToUpper(string(s))
}
