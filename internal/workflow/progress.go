package workflow

import (
	"clauseguard/internal/logging"
)

// StepStatus is the status of a single step as seen by progress listeners.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepProcessing StepStatus = "processing"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// Reporter receives best-effort progress events. Implementations may block
// briefly or panic; the machine shields itself from both.
type Reporter func(step string, status StepStatus, message string, progress float64)

// report delivers one progress event, swallowing panics from the callback.
// A broken listener must never take a workflow step down with it.
func (m *Machine) report(step string, status StepStatus, message string, progress float64) {
	if m.reporter == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.WorkflowWarn("Progress reporter panicked on step %s: %v", step, r)
		}
	}()
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	m.reporter(step, status, message, progress)
}
