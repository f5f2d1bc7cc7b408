package policy

import "github.com/sells-group/lender-match/internal/scorer"

// Policy is a validated, immutable lender policy. Callers must not modify
// a Policy or its Rules after Load returns it.
type Policy struct {
	ID         string
	LenderName string
	Name       string
	Version    int
	Active     bool
	Rules      []Rule
	Scoring    scorer.Profile
}

// Active returns the active policies of ps, preserving order.
func Active(ps []Policy) []Policy {
	out := make([]Policy, 0, len(ps))
	for _, p := range ps {
		if p.Active {
			out = append(out, p)
		}
	}
	return out
}
