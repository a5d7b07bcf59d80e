// Package types defines the shared data model for the clauseguard analysis
// pipeline: documents, rules, risk findings and the final verdict shape.
// Keeping these here avoids import cycles between the pipeline stages.
package types

import (
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// SEVERITY
// =============================================================================

// Severity is the ordinal risk classification for a finding.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity validates a raw severity string. Unknown values are rejected,
// never coerced.
func ParseSeverity(raw string) (Severity, error) {
	s := Severity(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return s, nil
	}
	return "", fmt.Errorf("invalid severity %q", raw)
}

// Valid reports whether the severity is one of the four known levels.
func (s Severity) Valid() bool {
	_, err := ParseSeverity(string(s))
	return err == nil
}

// Weight returns the priority-score weight for the severity.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityCritical:
		return 100
	case SeverityHigh:
		return 80
	case SeverityMedium:
		return 60
	case SeverityLow:
		return 40
	}
	return 0
}

// Rank returns an ordinal for comparisons (critical highest).
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// MaxSeverity returns the higher of two severities.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// =============================================================================
// INPUTS
// =============================================================================

// Rule is one entry of the pre-resolved, ordered review rule list.
type Rule struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Priority    int    `json:"priority" yaml:"priority"`
}

// DocumentMetadata carries the identifying fields of a source document.
// Anything beyond the named fields lives in Extra and is never structurally
// inspected outside adapters.
type DocumentMetadata struct {
	Filename string            `json:"filename"`
	FilePath string            `json:"file_path,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// Document is one pre-extracted input document: clean text plus metadata.
// Extraction (OCR/PDF) happens upstream.
type Document struct {
	Content  string           `json:"content"`
	Metadata DocumentMetadata `json:"metadata"`
}

// DocumentDigest is the preorganization summary of one input document,
// exposed to callers while a session is paused for confirmation.
type DocumentDigest struct {
	Filename   string `json:"filename"`
	CharCount  int    `json:"char_count"`
	ChunkCount int    `json:"chunk_count"`
	Excerpt    string `json:"excerpt"`
}

// =============================================================================
// FINDINGS
// =============================================================================

// RiskFinding is one identified risk. Produced by parsing model output,
// mutated only during merging, frozen after synthesis.
type RiskFinding struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	Confidence  float64  `json:"confidence"`
	Reasons     []string `json:"reasons,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	SourceRoles []string `json:"source_roles,omitempty"`
	SourceCount int      `json:"source_count"`
}

// Validate rejects findings with an invalid severity or out-of-range
// confidence. Callers drop rejected findings rather than repairing them.
func (f *RiskFinding) Validate() error {
	if strings.TrimSpace(f.Title) == "" {
		return fmt.Errorf("finding has empty title")
	}
	if !f.Severity.Valid() {
		return fmt.Errorf("finding %q: invalid severity %q", f.Title, f.Severity)
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return fmt.Errorf("finding %q: confidence %.3f out of [0,1]", f.Title, f.Confidence)
	}
	return nil
}

// PriorityScore computes the ranking score used for final ordering:
// severity weight + confidence*20 + 10 per extra corroborating source.
func (f *RiskFinding) PriorityScore() float64 {
	extra := f.SourceCount - 1
	if extra < 0 {
		extra = 0
	}
	return f.Severity.Weight() + f.Confidence*20 + 10*float64(extra)
}

// =============================================================================
// FINAL RESULT
// =============================================================================

// OverallAssessment is the single consolidated verdict over all findings.
type OverallAssessment struct {
	RiskLevel      Severity `json:"risk_level"`
	CoreRisks      []string `json:"core_risks"`
	Recommendation string   `json:"recommendation"`
}

// FinalResult is the synthesized output of one analysis session.
type FinalResult struct {
	Summary           string            `json:"summary"`
	OverallAssessment OverallAssessment `json:"overall_assessment"`
	RiskItems         []RiskFinding     `json:"risk_items"`
	TotalConfidence   float64           `json:"total_confidence"`
}

// TopTitles returns the titles of the first n risk items.
func (r *FinalResult) TopTitles(n int) []string {
	titles := make([]string, 0, n)
	for i, item := range r.RiskItems {
		if i >= n {
			break
		}
		titles = append(titles, item.Title)
	}
	return titles
}

// SortFindings orders findings by descending priority score, breaking ties by
// title so the ordering is stable for a fixed input set.
func SortFindings(findings []RiskFinding) {
	sort.SliceStable(findings, func(i, j int) bool {
		si, sj := findings[i].PriorityScore(), findings[j].PriorityScore()
		if si != sj {
			return si > sj
		}
		return findings[i].Title < findings[j].Title
	})
}
