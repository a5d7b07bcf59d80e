// Package analysis holds the per-session analysis context and the model
// fan-out machinery: one invoker per model role, joined by a bounded
// parallel orchestrator that tolerates partial failure.
package analysis

import (
	"time"

	"clauseguard/internal/llm"
	"clauseguard/internal/types"
)

// AnalysisContext is the immutable per-session input shared read-only by
// every invoker. Built once, never mutated afterwards.
type AnalysisContext struct {
	DocumentText string            // assembled document text or summaries
	Rules        []types.Rule      // pre-resolved, ordered review rules
	Scenario     map[string]string // bounded opaque scenario metadata
	Stance       string            // optional: neutral, ourside, counterparty
}

// ModelRole binds one backend to a review lens. Loaded at startup, immutable.
type ModelRole struct {
	Name    string        // e.g. "risk", "commercial", "compliance", "referee"
	Lens    string        // role-specific instruction prefix
	Client  llm.LLMClient // backend handle, owns model and token limits
	Timeout time.Duration
}

// RawModelResult is the outcome of one invocation, frozen once produced.
// A failed result carries the error string and nothing else.
type RawModelResult struct {
	RoleName  string              `json:"role_name"`
	RawText   string              `json:"raw_text,omitempty"`
	Error     string              `json:"error,omitempty"`
	Elapsed   time.Duration       `json:"elapsed"`
	Succeeded bool                `json:"succeeded"`
	Findings  []types.RiskFinding `json:"findings,omitempty"`
}
