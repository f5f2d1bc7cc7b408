package policy

import "fmt"

// ConfigurationError reports a malformed policy definition. Index is the
// zero-based rule position, or -1 when the problem is not tied to a rule.
type ConfigurationError struct {
	Lender string
	Policy string
	Index  int
	Kind   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("policy: %s/%s: %s", e.Lender, e.Policy, e.Reason)
	}
	return fmt.Sprintf("policy: %s/%s: rule %d (%s): %s", e.Lender, e.Policy, e.Index, e.Kind, e.Reason)
}
