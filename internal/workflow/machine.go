package workflow

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"clauseguard/internal/analysis"
	"clauseguard/internal/chunker"
	"clauseguard/internal/logging"
	"clauseguard/internal/merge"
	"clauseguard/internal/report"
	"clauseguard/internal/store"
	"clauseguard/internal/synthesis"
	"clauseguard/internal/types"
)

// digestExcerptLen is the number of runes of leading text kept per document
// during preorganization.
const digestExcerptLen = 120

// progressFor maps a step to its position in the overall pipeline.
var progressFor = map[string]float64{
	StepProcessDocuments: 0.1,
	StepPreorganize:      0.3,
	StepAssembleRules:    0.4,
	StepAnalyze:          0.7,
	StepGenerateReport:   0.9,
	StepDone:             1.0,
}

// Machine runs one session's pipeline step by step, checkpointing after
// every step. Steps are strictly sequential; the machine is the single
// writer of WorkflowState.
type Machine struct {
	store    store.CheckpointStore
	roles    []analysis.ModelRole
	synth    *synthesis.Engine
	merger   *merge.Merger
	orch     *analysis.Orchestrator
	reporter Reporter

	maxChunkSize int
	chunkOverlap int
}

// New builds a machine over a checkpoint store and a fixed set of model
// roles. The referee engine and merger use defaults until overridden.
func New(cs store.CheckpointStore, roles []analysis.ModelRole) *Machine {
	return &Machine{
		store:        cs,
		roles:        roles,
		synth:        synthesis.New(analysis.ModelRole{}),
		merger:       merge.New(merge.DefaultConfig()),
		orch:         analysis.NewOrchestrator(),
		maxChunkSize: chunker.DefaultMaxSize,
		chunkOverlap: chunker.DefaultOverlap,
	}
}

// WithSynthesis replaces the synthesis engine.
func (m *Machine) WithSynthesis(e *synthesis.Engine) *Machine {
	m.synth = e
	return m
}

// WithMerger replaces the merger.
func (m *Machine) WithMerger(mg *merge.Merger) *Machine {
	m.merger = mg
	return m
}

// WithReporter attaches a progress callback.
func (m *Machine) WithReporter(r Reporter) *Machine {
	m.reporter = r
	return m
}

// WithChunking overrides chunk sizing.
func (m *Machine) WithChunking(maxSize, overlap int) *Machine {
	if maxSize > 0 {
		m.maxChunkSize = maxSize
	}
	if overlap >= 0 {
		m.chunkOverlap = overlap
	}
	return m
}

// StartOptions are the caller parameters for a fresh session.
type StartOptions struct {
	SessionID                string
	Stance                   string
	Mode                     string
	StopAfterPreorganization bool
}

// Start creates a new session and runs it until a terminal state.
func (m *Machine) Start(ctx context.Context, docs []types.Document, rules []types.Rule, opts StartOptions) (*WorkflowState, error) {
	if opts.SessionID == "" {
		opts.SessionID = uuid.New().String()
	}
	st := NewState(opts.SessionID, docs, rules)
	st.Stance = opts.Stance
	st.Mode = opts.Mode
	st.StopAfterPreorganization = opts.StopAfterPreorganization

	logging.Workflow("Starting session %s: %d documents, %d rules, stop_after_preorg=%v",
		st.SessionID, len(docs), len(rules), opts.StopAfterPreorganization)
	return m.Run(ctx, st)
}

// ResumeOverrides are the parameters a caller may change when re-entering
// a paused or failed session.
type ResumeOverrides struct {
	Stance string
	Mode   string
}

// Resume reloads a session from its checkpoint and continues it. A paused
// session re-enters at assemble_rules; a failed one retries its failed step.
func (m *Machine) Resume(ctx context.Context, sessionID string, ov ResumeOverrides) (*WorkflowState, error) {
	data, err := m.store.Load(sessionID)
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", sessionID, err)
	}
	st, err := UnmarshalState(data)
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", sessionID, err)
	}
	if st.Status == StatusCompleted {
		return nil, fmt.Errorf("session %s already completed", sessionID)
	}
	if ov.Stance != "" {
		st.Stance = ov.Stance
	}
	if ov.Mode != "" {
		st.Mode = ov.Mode
	}
	st.StopAfterPreorganization = false
	st.Error = ""

	logging.Workflow("Resuming session %s at step %s (was %s)", sessionID, st.CurrentStep, st.Status)
	return m.Run(ctx, st)
}

// Run drives the state machine until it reaches a terminal state. The
// checkpoint write is the last action of every step.
func (m *Machine) Run(ctx context.Context, st *WorkflowState) (*WorkflowState, error) {
	st.Status = StatusRunning
	for !st.Terminal() {
		if err := ctx.Err(); err != nil {
			st.Status = StatusFailed
			st.Error = fmt.Sprintf("%s: %v", st.CurrentStep, err)
			m.checkpoint(st)
			return st, err
		}

		step := st.CurrentStep
		m.report(step, StepProcessing, "", progressFor[step])
		timer := logging.StartTimer(logging.CategoryWorkflow, step)

		err := m.runStep(ctx, st)
		timer.Stop()

		if err != nil {
			st.Status = StatusFailed
			st.Error = fmt.Sprintf("%s: %v", step, err)
			logging.WorkflowError("Session %s failed at %s: %v", st.SessionID, step, err)
			m.report(step, StepFailed, err.Error(), progressFor[step])
			m.checkpoint(st)
			return st, fmt.Errorf("step %s: %w", step, err)
		}

		m.report(step, StepCompleted, "", progressFor[step])
		if err := m.checkpoint(st); err != nil {
			st.Status = StatusFailed
			st.Error = fmt.Sprintf("checkpoint after %s: %v", step, err)
			return st, err
		}
	}
	logging.Workflow("Session %s stopped: status=%s step=%s", st.SessionID, st.Status, st.CurrentStep)
	return st, nil
}

// runStep executes the current step, converting panics into step errors so
// the machine always records a failure instead of crashing the session.
func (m *Machine) runStep(ctx context.Context, st *WorkflowState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	switch st.CurrentStep {
	case StepProcessDocuments:
		return m.processDocuments(st)
	case StepPreorganize:
		return m.preorganizeDocuments(st)
	case StepAssembleRules:
		return m.assembleRules(st)
	case StepAnalyze:
		return m.multiModelAnalyze(ctx, st)
	case StepGenerateReport:
		return m.generateReport(ctx, st)
	default:
		return fmt.Errorf("unknown step %q", st.CurrentStep)
	}
}

func (m *Machine) checkpoint(st *WorkflowState) error {
	data, err := st.Marshal()
	if err != nil {
		return err
	}
	if err := m.store.Save(st.SessionID, data); err != nil {
		return err
	}
	logging.WorkflowDebug("Checkpointed session %s after %s (%d bytes)", st.SessionID, st.CurrentStep, len(data))
	return nil
}

// processDocuments normalizes and assembles the input documents into one
// text body, separated by per-document headers.
func (m *Machine) processDocuments(st *WorkflowState) error {
	if len(st.Documents) == 0 {
		return fmt.Errorf("no documents to process")
	}
	var b strings.Builder
	for i, doc := range st.Documents {
		content := strings.TrimSpace(doc.Content)
		if content == "" {
			logging.WorkflowWarn("Document %q is empty, skipping", doc.Metadata.Filename)
			continue
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		name := doc.Metadata.Filename
		if name == "" {
			name = fmt.Sprintf("document-%d", i+1)
		}
		b.WriteString("## ")
		b.WriteString(name)
		b.WriteString("\n\n")
		b.WriteString(content)
	}
	if b.Len() == 0 {
		return fmt.Errorf("all documents are empty")
	}
	st.AssembledText = b.String()
	st.CurrentStep = StepPreorganize
	return nil
}

// preorganizeDocuments builds per-document digests and the scenario map.
// If the caller asked to stop here, the session pauses with the digests
// exposed; resume re-enters at assemble_rules.
func (m *Machine) preorganizeDocuments(st *WorkflowState) error {
	digests := make([]types.DocumentDigest, 0, len(st.Documents))
	for i, doc := range st.Documents {
		name := doc.Metadata.Filename
		if name == "" {
			name = fmt.Sprintf("document-%d", i+1)
		}
		runes := []rune(doc.Content)
		excerpt := doc.Content
		if len(runes) > digestExcerptLen {
			excerpt = string(runes[:digestExcerptLen])
		}
		chunks := chunker.Split(doc.Content, m.maxChunkSize, m.chunkOverlap)
		digests = append(digests, types.DocumentDigest{
			Filename:   name,
			CharCount:  len(runes),
			ChunkCount: len(chunks),
			Excerpt:    strings.TrimSpace(excerpt),
		})
	}
	st.Digests = digests

	names := make([]string, 0, len(digests))
	for _, d := range digests {
		names = append(names, d.Filename)
	}
	st.Scenario = map[string]string{
		"document_count": strconv.Itoa(len(st.Documents)),
		"documents":      strings.Join(names, ", "),
	}
	if st.Mode != "" {
		st.Scenario["mode"] = st.Mode
	}

	st.CurrentStep = StepAssembleRules
	if st.StopAfterPreorganization {
		st.Status = StatusPaused
		logging.Workflow("Session %s paused after preorganization (%d digests)", st.SessionID, len(digests))
	}
	return nil
}

// assembleRules orders the review rules by descending priority. Rule
// resolution happens upstream; without any rule there is nothing to review.
func (m *Machine) assembleRules(st *WorkflowState) error {
	if len(st.Rules) == 0 {
		return fmt.Errorf("no review rules provided")
	}
	assembled := make([]types.Rule, len(st.Rules))
	copy(assembled, st.Rules)
	sort.SliceStable(assembled, func(i, j int) bool {
		return assembled[i].Priority > assembled[j].Priority
	})
	st.AssembledRules = assembled
	st.CurrentStep = StepAnalyze
	return nil
}

// multiModelAnalyze fans the assembled text out to every model role. Long
// texts are analyzed window by window; findings are re-merged downstream.
func (m *Machine) multiModelAnalyze(ctx context.Context, st *WorkflowState) error {
	if len(m.roles) == 0 {
		return fmt.Errorf("no model roles configured")
	}

	chunks := chunker.Split(st.AssembledText, m.maxChunkSize, m.chunkOverlap)
	windows := chunker.Windows(chunks, m.chunkOverlap)
	logging.Analysis("Session %s: analyzing %d window(s) with %d role(s)", st.SessionID, len(windows), len(m.roles))

	results := make(map[string]analysis.RawModelResult)
	for i, win := range windows {
		actx := &analysis.AnalysisContext{
			DocumentText: win.Text,
			Rules:        st.AssembledRules,
			Scenario:     st.Scenario,
			Stance:       st.Stance,
		}
		if len(windows) > 1 {
			actx.Scenario = cloneScenario(st.Scenario)
			actx.Scenario["window"] = fmt.Sprintf("%d/%d (%s)", i+1, len(windows), win.Position)
		}

		batch, err := m.orch.AnalyzeParallel(ctx, actx, m.roles)
		if err != nil {
			return fmt.Errorf("window %d/%d: %w", i+1, len(windows), err)
		}
		for name, res := range batch {
			key := name
			if len(windows) > 1 {
				key = fmt.Sprintf("%s#%d", name, i+1)
			}
			results[key] = res
		}
	}
	st.RawResults = results
	st.CurrentStep = StepGenerateReport
	return nil
}

// generateReport merges all raw findings, synthesizes the final verdict and
// renders the text report.
func (m *Machine) generateReport(ctx context.Context, st *WorkflowState) error {
	candidates := analysis.CollectFindings(st.RawResults)

	if st.Mode == ModeSingle {
		logging.Workflow("Session %s: single mode, formatting %d finding(s) directly", st.SessionID, len(candidates))
		result := synthesis.FormatDirect(candidates)
		st.Result = &result
		st.Report = report.Render(&result, st.Digests)
		st.CurrentStep = StepDone
		st.Status = StatusCompleted
		return nil
	}

	merged := m.merger.Merge(candidates)
	logging.Workflow("Session %s: %d candidate(s) merged into %d finding(s)", st.SessionID, len(candidates), len(merged))

	actx := &analysis.AnalysisContext{
		DocumentText: st.AssembledText,
		Rules:        st.AssembledRules,
		Scenario:     st.Scenario,
		Stance:       st.Stance,
	}
	result := m.synth.Synthesize(ctx, merged, actx)
	st.Result = &result
	st.Report = report.Render(&result, st.Digests)
	st.CurrentStep = StepDone
	st.Status = StatusCompleted
	return nil
}

func cloneScenario(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src)+1)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
