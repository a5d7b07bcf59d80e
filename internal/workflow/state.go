// Package workflow drives the analysis pipeline as a checkpointed state
// machine: named steps executed strictly in sequence, state persisted after
// every step, one declared interruption point for human confirmation.
package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"clauseguard/internal/analysis"
	"clauseguard/internal/types"
)

// Step names. CurrentStep only ever advances along this sequence or jumps
// to a terminal state.
const (
	StepProcessDocuments = "process_documents"
	StepPreorganize      = "preorganize_documents"
	StepAssembleRules    = "assemble_rules"
	StepAnalyze          = "multi_model_analyze"
	StepGenerateReport   = "generate_report"
	StepDone             = "completed"
)

// ModeSingle routes report generation through the direct formatter instead
// of the merge and referee pass. Meant for singleton role sets.
const ModeSingle = "single"

// Status is the lifecycle status of a session.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// WorkflowState is the single entity that survives process restarts. Owned
// exclusively by the state machine; single-writer within a session.
type WorkflowState struct {
	SessionID   string `json:"session_id"`
	CurrentStep string `json:"current_step"`
	Status      Status `json:"status"`
	Error       string `json:"error,omitempty"`

	// Caller parameters. Stance and Mode may be overridden on resume.
	// Mode ModeSingle skips the merge and referee pass during report
	// generation; any other value is passed through to the models as a
	// scenario label.
	StopAfterPreorganization bool   `json:"stop_after_preorganization"`
	Stance                   string `json:"stance,omitempty"`
	Mode                     string `json:"mode,omitempty"`

	// Inputs, fixed at session start.
	Documents []types.Document `json:"documents"`
	Rules     []types.Rule     `json:"rules"`

	// Per-step outputs. Each step writes only its own fields.
	AssembledText  string                             `json:"assembled_text,omitempty"`
	Digests        []types.DocumentDigest             `json:"digests,omitempty"`
	Scenario       map[string]string                  `json:"scenario,omitempty"`
	AssembledRules []types.Rule                       `json:"assembled_rules,omitempty"`
	RawResults     map[string]analysis.RawModelResult `json:"raw_results,omitempty"`
	Result         *types.FinalResult                 `json:"result,omitempty"`
	Report         string                             `json:"report,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewState creates the initial state for a fresh session.
func NewState(sessionID string, docs []types.Document, rules []types.Rule) *WorkflowState {
	now := time.Now().UTC()
	return &WorkflowState{
		SessionID:   sessionID,
		CurrentStep: StepProcessDocuments,
		Status:      StatusPending,
		Documents:   docs,
		Rules:       rules,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Marshal serializes the state for checkpointing.
func (s *WorkflowState) Marshal() ([]byte, error) {
	s.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal workflow state: %w", err)
	}
	return data, nil
}

// UnmarshalState restores a state from a checkpoint blob.
func UnmarshalState(data []byte) (*WorkflowState, error) {
	var s WorkflowState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal workflow state: %w", err)
	}
	if s.SessionID == "" {
		return nil, fmt.Errorf("checkpoint has no session_id")
	}
	return &s, nil
}

// Terminal reports whether the session has stopped for good or for now.
func (s *WorkflowState) Terminal() bool {
	return s.Status == StatusPaused || s.Status == StatusCompleted || s.Status == StatusFailed
}
