package synthesis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clauseguard/internal/analysis"
	"clauseguard/internal/types"
)

type stubReferee struct {
	response string
	err      error
	panics   bool
	called   bool
}

func (s *stubReferee) Complete(ctx context.Context, prompt string) (string, error) {
	return s.CompleteWithSystem(ctx, "", prompt)
}

func (s *stubReferee) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.called = true
	if s.panics {
		panic("referee exploded")
	}
	return s.response, s.err
}

func sampleCandidates() []types.RiskFinding {
	return []types.RiskFinding{
		{Title: "逾期违约金过高", Severity: types.SeverityCritical, Confidence: 0.8, SourceCount: 2, SourceRoles: []string{"commercial", "risk"}},
		{Title: "保密期限过短", Severity: types.SeverityMedium, Confidence: 0.6, SourceCount: 1, SourceRoles: []string{"compliance"}},
		{Title: "付款节点模糊", Severity: types.SeverityLow, Confidence: 0.5, SourceCount: 1, SourceRoles: []string{"commercial"}},
	}
}

func engineWith(client *stubReferee) *Engine {
	return New(analysis.ModelRole{Name: "referee", Client: client})
}

func testACtx() *analysis.AnalysisContext {
	return &analysis.AnalysisContext{DocumentText: "第八条 逾期付款的，按日万分之五支付违约金。"}
}

func TestSynthesizeAppliesVerdict(t *testing.T) {
	ref := &stubReferee{response: `{
		"summary": "违约金条款风险突出",
		"risk_level": "high",
		"core_risks": ["逾期违约金过高"],
		"recommendation": "修订第八条后再签署",
		"confirmed_titles": ["逾期违约金过高", "保密期限过短"],
		"total_confidence": 0.78
	}`}

	res := engineWith(ref).Synthesize(context.Background(), sampleCandidates(), testACtx())
	assert.True(t, ref.called)
	assert.Equal(t, "违约金条款风险突出", res.Summary)
	assert.Equal(t, types.SeverityHigh, res.OverallAssessment.RiskLevel)
	assert.InDelta(t, 0.78, res.TotalConfidence, 1e-9)

	// The unconfirmed candidate is pruned.
	require.Len(t, res.RiskItems, 2)
	titles := []string{res.RiskItems[0].Title, res.RiskItems[1].Title}
	assert.NotContains(t, titles, "付款节点模糊")
}

func TestSynthesizeVerdictEdgeCases(t *testing.T) {
	t.Run("empty confirmation list keeps everything", func(t *testing.T) {
		ref := &stubReferee{response: `{"summary": "ok", "risk_level": "medium"}`}
		res := engineWith(ref).Synthesize(context.Background(), sampleCandidates(), testACtx())
		assert.Len(t, res.RiskItems, 3)
	})

	t.Run("confirmations matching nothing keep everything", func(t *testing.T) {
		ref := &stubReferee{response: `{"summary": "ok", "risk_level": "medium", "confirmed_titles": ["不存在的标题"]}`}
		res := engineWith(ref).Synthesize(context.Background(), sampleCandidates(), testACtx())
		assert.Len(t, res.RiskItems, 3)
	})

	t.Run("invalid referee risk level replaced by local rule", func(t *testing.T) {
		ref := &stubReferee{response: `{"summary": "ok", "risk_level": "severe"}`}
		res := engineWith(ref).Synthesize(context.Background(), sampleCandidates(), testACtx())
		assert.Equal(t, types.SeverityMedium, res.OverallAssessment.RiskLevel)
	})

	t.Run("out-of-range confidence replaced by mean", func(t *testing.T) {
		ref := &stubReferee{response: `{"summary": "ok", "risk_level": "medium", "total_confidence": 3.5}`}
		res := engineWith(ref).Synthesize(context.Background(), sampleCandidates(), testACtx())
		assert.InDelta(t, (0.8+0.6+0.5)/3, res.TotalConfidence, 1e-9)
	})
}

func TestSynthesizeFallsBack(t *testing.T) {
	candidates := sampleCandidates()

	t.Run("nil referee client", func(t *testing.T) {
		res := New(analysis.ModelRole{}).Synthesize(context.Background(), candidates, testACtx())
		assert.Len(t, res.RiskItems, 3)
		assert.NotEmpty(t, res.Summary)
	})

	t.Run("referee transport error", func(t *testing.T) {
		ref := &stubReferee{err: errors.New("rate limited")}
		res := engineWith(ref).Synthesize(context.Background(), candidates, testACtx())
		assert.Len(t, res.RiskItems, 3)
	})

	t.Run("referee prose output", func(t *testing.T) {
		ref := &stubReferee{response: "I believe the contract is risky overall."}
		res := engineWith(ref).Synthesize(context.Background(), candidates, testACtx())
		assert.Len(t, res.RiskItems, 3)
		assert.NotEmpty(t, res.OverallAssessment.Recommendation)
	})

	t.Run("referee panic is contained", func(t *testing.T) {
		ref := &stubReferee{panics: true}
		res := engineWith(ref).Synthesize(context.Background(), candidates, testACtx())
		assert.Len(t, res.RiskItems, 3)
	})
}

func TestFallback(t *testing.T) {
	t.Run("empty candidates yield a low-risk result", func(t *testing.T) {
		res := Fallback(nil)
		assert.Equal(t, types.SeverityLow, res.OverallAssessment.RiskLevel)
		assert.Empty(t, res.RiskItems)
		assert.NotEmpty(t, res.Summary)
		assert.Equal(t, 0.0, res.TotalConfidence)
	})

	t.Run("more than two severe findings derive high", func(t *testing.T) {
		candidates := []types.RiskFinding{
			{Title: "a", Severity: types.SeverityCritical, Confidence: 0.9},
			{Title: "b", Severity: types.SeverityHigh, Confidence: 0.8},
			{Title: "c", Severity: types.SeverityHigh, Confidence: 0.7},
		}
		res := Fallback(candidates)
		assert.Equal(t, types.SeverityHigh, res.OverallAssessment.RiskLevel)
		assert.Equal(t, []string{"a", "b", "c"}, res.OverallAssessment.CoreRisks)
	})

	t.Run("two or fewer severe findings derive medium", func(t *testing.T) {
		candidates := []types.RiskFinding{
			{Title: "a", Severity: types.SeverityHigh, Confidence: 0.8},
			{Title: "b", Severity: types.SeverityLow, Confidence: 0.5},
		}
		res := Fallback(candidates)
		assert.Equal(t, types.SeverityMedium, res.OverallAssessment.RiskLevel)
	})

	t.Run("summary counts findings and names top titles", func(t *testing.T) {
		candidates := sampleCandidates()
		res := Fallback(candidates)
		assert.Contains(t, res.Summary, "3 risks")
		assert.Contains(t, res.Summary, "逾期违约金过高")
	})
}

func TestDeriveRiskLevel(t *testing.T) {
	assert.Equal(t, types.SeverityLow, deriveRiskLevel(nil))
	assert.Equal(t, types.SeverityMedium, deriveRiskLevel([]types.RiskFinding{
		{Severity: types.SeverityLow},
	}))
}
