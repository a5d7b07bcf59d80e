package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clauseguard/internal/types"
)

func sampleResult() *types.FinalResult {
	return &types.FinalResult{
		Summary: "2 risks identified. Top concerns: 逾期违约金过高; 保密期限过短.",
		OverallAssessment: types.OverallAssessment{
			RiskLevel:      types.SeverityHigh,
			CoreRisks:      []string{"逾期违约金过高"},
			Recommendation: "修订第八条后再签署",
		},
		RiskItems: []types.RiskFinding{
			{
				Title:       "逾期违约金过高",
				Description: "日万分之五超过司法保护上限",
				Severity:    types.SeverityCritical,
				Confidence:  0.8,
				Reasons:     []string{"第八条"},
				Suggestions: []string{"改为日万分之三"},
				SourceRoles: []string{"commercial", "risk"},
				SourceCount: 2,
			},
			{
				Title:       "保密期限过短",
				Severity:    types.SeverityMedium,
				Confidence:  0.6,
				SourceCount: 1,
			},
		},
		TotalConfidence: 0.7,
	}
}

func TestRender(t *testing.T) {
	out := Render(sampleResult(), []types.DocumentDigest{
		{Filename: "loan.txt", CharCount: 1200, ChunkCount: 1},
	})

	t.Run("heading structure", func(t *testing.T) {
		for _, h := range []string{
			"# Contract Risk Review",
			"## Documents Reviewed",
			"## Summary",
			"## Overall Assessment",
			"## Findings (2)",
		} {
			assert.Contains(t, out, h)
		}
	})

	t.Run("items ranked and labeled", func(t *testing.T) {
		first := strings.Index(out, "逾期违约金过高")
		second := strings.Index(out, "保密期限过短")
		require.Greater(t, first, 0)
		require.Greater(t, second, 0)
		assert.Less(t, first, second)
		assert.Contains(t, out, "[CRITICAL]")
		assert.Contains(t, out, "[MEDIUM]")
	})

	t.Run("corroboration and evidence shown", func(t *testing.T) {
		assert.Contains(t, out, "Corroborated by 2 analyses (commercial, risk)")
		assert.Contains(t, out, "Basis: 第八条")
		assert.Contains(t, out, "Suggestion: 改为日万分之三")
	})

	t.Run("assessment section", func(t *testing.T) {
		assert.Contains(t, out, "Risk level: HIGH")
		assert.Contains(t, out, "Confidence: 70%")
		assert.Contains(t, out, "Recommendation: 修订第八条后再签署")
	})
}

func TestRenderNoFindings(t *testing.T) {
	res := &types.FinalResult{
		Summary: "No risks were identified in the reviewed documents.",
		OverallAssessment: types.OverallAssessment{
			RiskLevel:      types.SeverityLow,
			Recommendation: "Proceed with standard review.",
		},
	}
	out := Render(res, nil)
	assert.Contains(t, out, "No risk findings.")
	assert.NotContains(t, out, "## Documents Reviewed")
}

func TestRenderMultiChunkDigest(t *testing.T) {
	out := Render(sampleResult(), []types.DocumentDigest{
		{Filename: "big.txt", CharCount: 30000, ChunkCount: 4},
	})
	assert.Contains(t, out, "big.txt (30000 chars, 4 sections)")
}
