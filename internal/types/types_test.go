package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeverity(t *testing.T) {
	t.Run("accepts the four levels case-insensitively", func(t *testing.T) {
		for raw, want := range map[string]Severity{
			"low":      SeverityLow,
			"Medium":   SeverityMedium,
			" HIGH ":   SeverityHigh,
			"critical": SeverityCritical,
		} {
			got, err := ParseSeverity(raw)
			require.NoError(t, err, raw)
			assert.Equal(t, want, got)
		}
	})

	t.Run("rejects unknown values instead of coercing", func(t *testing.T) {
		for _, raw := range []string{"", "severe", "urgent", "3", "中等"} {
			_, err := ParseSeverity(raw)
			assert.Error(t, err, raw)
		}
	})
}

func TestSeverityWeight(t *testing.T) {
	assert.Equal(t, 100.0, SeverityCritical.Weight())
	assert.Equal(t, 80.0, SeverityHigh.Weight())
	assert.Equal(t, 60.0, SeverityMedium.Weight())
	assert.Equal(t, 40.0, SeverityLow.Weight())
}

func TestMaxSeverity(t *testing.T) {
	assert.Equal(t, SeverityCritical, MaxSeverity(SeverityHigh, SeverityCritical))
	assert.Equal(t, SeverityCritical, MaxSeverity(SeverityCritical, SeverityLow))
	assert.Equal(t, SeverityMedium, MaxSeverity(SeverityMedium, SeverityMedium))
}

func TestRiskFindingValidate(t *testing.T) {
	valid := RiskFinding{Title: "逾期违约金过高", Severity: SeverityHigh, Confidence: 0.8}
	require.NoError(t, valid.Validate())

	t.Run("empty title", func(t *testing.T) {
		f := valid
		f.Title = "   "
		assert.Error(t, f.Validate())
	})

	t.Run("invalid severity", func(t *testing.T) {
		f := valid
		f.Severity = "severe"
		assert.Error(t, f.Validate())
	})

	t.Run("confidence out of range", func(t *testing.T) {
		f := valid
		f.Confidence = 1.2
		assert.Error(t, f.Validate())
		f.Confidence = -0.1
		assert.Error(t, f.Validate())
	})
}

func TestPriorityScore(t *testing.T) {
	t.Run("severity plus confidence plus corroboration", func(t *testing.T) {
		f := RiskFinding{Severity: SeverityCritical, Confidence: 0.9, SourceCount: 2}
		// 100 + 0.9*20 + 10*1
		assert.InDelta(t, 128.0, f.PriorityScore(), 1e-9)
	})

	t.Run("single source earns no bonus", func(t *testing.T) {
		f := RiskFinding{Severity: SeverityLow, Confidence: 0.5, SourceCount: 1}
		assert.InDelta(t, 50.0, f.PriorityScore(), 1e-9)
	})

	t.Run("zero source count treated as one", func(t *testing.T) {
		f := RiskFinding{Severity: SeverityLow, Confidence: 0.5}
		assert.InDelta(t, 50.0, f.PriorityScore(), 1e-9)
	})
}

func TestSortFindings(t *testing.T) {
	findings := []RiskFinding{
		{Title: "b", Severity: SeverityLow, Confidence: 0.5, SourceCount: 1},
		{Title: "a", Severity: SeverityCritical, Confidence: 0.9, SourceCount: 2},
		{Title: "c", Severity: SeverityHigh, Confidence: 0.7, SourceCount: 1},
	}
	SortFindings(findings)
	assert.Equal(t, []string{"a", "c", "b"}, []string{findings[0].Title, findings[1].Title, findings[2].Title})

	t.Run("ties broken by title for stable output", func(t *testing.T) {
		tied := []RiskFinding{
			{Title: "zeta", Severity: SeverityHigh, Confidence: 0.7, SourceCount: 1},
			{Title: "alpha", Severity: SeverityHigh, Confidence: 0.7, SourceCount: 1},
		}
		SortFindings(tied)
		assert.Equal(t, "alpha", tied[0].Title)
	})
}

func TestTopTitles(t *testing.T) {
	res := FinalResult{RiskItems: []RiskFinding{
		{Title: "one"}, {Title: "two"}, {Title: "three"},
	}}
	assert.Equal(t, []string{"one", "two"}, res.TopTitles(2))
	assert.Equal(t, []string{"one", "two", "three"}, res.TopTitles(5))
}
