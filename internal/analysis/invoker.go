package analysis

import (
	"context"
	"fmt"
	"time"

	"clauseguard/internal/logging"
	"clauseguard/internal/parser"
)

// DefaultRoleTimeout bounds one model invocation when the role does not
// specify its own.
const DefaultRoleTimeout = 120 * time.Second

// Invoke runs one role against the shared context. It always completes with
// a RawModelResult: backend errors and timeouts become failure results, and
// unparsable output degrades to a succeeded result with no findings. It
// never panics and never hangs past the role timeout.
func Invoke(ctx context.Context, role ModelRole, actx *AnalysisContext) (result RawModelResult) {
	timeout := role.Timeout
	if timeout <= 0 {
		timeout = DefaultRoleTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			// A panicking backend fails its own role, not the batch.
			logging.AnalysisError("role %s panicked after %v: %v", role.Name, time.Since(start), r)
			result = RawModelResult{
				RoleName:  role.Name,
				Error:     fmt.Sprint(r),
				Elapsed:   time.Since(start),
				Succeeded: false,
			}
		}
	}()
	logging.AnalysisDebug("invoking role %s (timeout=%v)", role.Name, timeout)

	system := BuildInstruction(role, actx)
	user := BuildUserPrompt(actx)

	raw, err := role.Client.CompleteWithSystem(callCtx, system, user)
	elapsed := time.Since(start)
	if err != nil {
		// A failed result carries no partial data.
		logging.AnalysisWarn("role %s failed after %v: %v", role.Name, elapsed, err)
		return RawModelResult{
			RoleName:  role.Name,
			Error:     err.Error(),
			Elapsed:   elapsed,
			Succeeded: false,
		}
	}

	result = RawModelResult{
		RoleName:  role.Name,
		RawText:   raw,
		Elapsed:   elapsed,
		Succeeded: true,
	}

	findings, fail := parser.ParseFindings(raw)
	if fail != nil {
		// Content problem, not a transport one: the call succeeded, the
		// findings degrade to empty.
		logging.AnalysisWarn("role %s output unparsable, degrading to empty findings", role.Name)
		return result
	}

	for i := range findings {
		findings[i].SourceRoles = []string{role.Name}
		findings[i].SourceCount = 1
	}
	result.Findings = findings

	logging.Analysis("role %s returned %d findings in %v", role.Name, len(findings), elapsed)
	return result
}
