package matching

import (
	"fmt"
	"strings"
)

// InvalidSnapshotError reports an application that violates the snapshot
// invariants. No evaluation is attempted for it.
type InvalidSnapshotError struct {
	ApplicationID string
	Violations    []string
}

func (e *InvalidSnapshotError) Error() string {
	return fmt.Sprintf("matching: invalid application %s: %s", e.ApplicationID, strings.Join(e.Violations, "; "))
}

// PolicyEvaluationError reports an unexpected fault while evaluating one
// policy. It fails the whole run.
type PolicyEvaluationError struct {
	PolicyID string
	Lender   string
	Policy   string
	Err      error
}

func (e *PolicyEvaluationError) Error() string {
	return fmt.Sprintf("matching: evaluate policy %s/%s (%s): %v", e.Lender, e.Policy, e.PolicyID, e.Err)
}

func (e *PolicyEvaluationError) Unwrap() error {
	return e.Err
}
