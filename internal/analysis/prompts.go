package analysis

import (
	"fmt"
	"sort"
	"strings"
)

// baseInstruction is shared by every review role. Role lenses are prepended
// per invocation; the output contract is identical across roles so one
// parser handles all of them.
const baseInstruction = `You are a senior legal review specialist analyzing contract and legal documents for risk.

Review the document against the numbered rules provided. For every concrete risk you identify, report:
- which obligation or clause creates the risk
- how severe it is
- what evidence in the text supports it
- what the reviewer should do about it

OUTPUT CONTRACT:
Respond with ONLY a JSON array of findings, no prose before or after:
[
  {
    "title": "short risk title",
    "description": "what the risk is and where it appears",
    "severity": "low|medium|high|critical",
    "confidence": 0.0-1.0,
    "reasons": ["evidence from the text"],
    "suggestions": ["concrete remediation"]
  }
]

Report only risks grounded in the document text. An empty array is a valid answer.`

// Role lenses. Each role reads the same document through a different
// professional focus so the merger can corroborate across perspectives.
const (
	LensRisk = `FOCUS: legal risk. Prioritize liability exposure, penalty and damages clauses, termination traps, indemnities, and one-sided obligations.`

	LensCommercial = `FOCUS: commercial logic. Prioritize pricing and payment terms, delivery and acceptance conditions, renewal and lock-in mechanics, and whether the economic bargain is balanced.`

	LensCompliance = `FOCUS: regulatory compliance. Prioritize statutory caps (interest, penalties), mandatory clauses, data protection and confidentiality duties, and anything a regulator or court would strike down.`
)

// stanceNotes maps an evaluation stance to the instruction injected when the
// caller takes a side.
var stanceNotes = map[string]string{
	"ourside":      "STANCE: You represent the party submitting this document for review. Weight risks by their impact on our side.",
	"counterparty": "STANCE: You represent the counterparty. Weight risks by their impact on the counterparty.",
}

// BuildInstruction assembles the system prompt: role lens, shared base, and
// the optional stance note.
func BuildInstruction(role ModelRole, actx *AnalysisContext) string {
	var sb strings.Builder
	if role.Lens != "" {
		sb.WriteString(role.Lens)
		sb.WriteString("\n\n")
	}
	sb.WriteString(baseInstruction)
	if note, ok := stanceNotes[actx.Stance]; ok {
		sb.WriteString("\n\n")
		sb.WriteString(note)
	}
	return sb.String()
}

// BuildUserPrompt assembles the user message: rules in priority order,
// scenario metadata, then the document text.
func BuildUserPrompt(actx *AnalysisContext) string {
	var sb strings.Builder

	sb.WriteString("## Review Rules (in priority order)\n")
	for i, rule := range actx.Rules {
		name := rule.Name
		if name == "" {
			name = rule.ID
		}
		sb.WriteString(fmt.Sprintf("%d. [%s] %s: %s\n", i+1, rule.ID, name, rule.Description))
	}

	if len(actx.Scenario) > 0 {
		sb.WriteString("\n## Scenario\n")
		keys := make([]string, 0, len(actx.Scenario))
		for k := range actx.Scenario {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", k, actx.Scenario[k]))
		}
	}

	sb.WriteString("\n## Document\n")
	sb.WriteString(actx.DocumentText)
	return sb.String()
}
