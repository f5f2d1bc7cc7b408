package model

import (
	"strings"
	"time"
	"unicode"
)

// Lender is a financing partner that owns one or more policies.
type Lender struct {
	ID   string `json:"id"`
	Name string `json:"name" yaml:"name"`
	Slug string `json:"slug" yaml:"slug"`
	Type string `json:"type" yaml:"type"` // Bank, Lender, Fintech, ...

	Policies []PolicyRecord `json:"policies,omitempty" yaml:"policies,omitempty"`
}

// PolicyRecord is a lender policy as persisted by the policy store. Rules are
// kept in definition order; they are only turned into executable rules by
// policy.Load.
type PolicyRecord struct {
	ID         string            `json:"id"`
	LenderID   string            `json:"lender_id"`
	LenderName string            `json:"lender_name,omitempty"`
	Name       string            `json:"name" yaml:"name"`
	Version    int               `json:"version" yaml:"version"`
	Active     bool              `json:"active" yaml:"active"`
	Rules      []RuleDefinition  `json:"rules" yaml:"rules"`
	Scoring    ScoringDefinition `json:"scoring" yaml:"scoring"`
	CreatedAt  time.Time         `json:"created_at"`
}

// RuleDefinition is the stored, untyped form of one eligibility rule.
// Which of the parameters are required depends on Kind.
type RuleDefinition struct {
	Kind   string   `json:"kind" yaml:"kind"`
	Value  *float64 `json:"value,omitempty" yaml:"value,omitempty"`
	Min    *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max    *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Values []string `json:"values,omitempty" yaml:"values,omitempty"`
}

// ScoringDefinition holds per-policy scoring weights and optional overrides
// of the global normalization ranges.
type ScoringDefinition struct {
	Weights       map[string]float64 `json:"weights,omitempty" yaml:"weights,omitempty"`
	RevenueRange  *RangeDefinition   `json:"revenue_range,omitempty" yaml:"revenue_range,omitempty"`
	YearsRange    *RangeDefinition   `json:"years_range,omitempty" yaml:"years_range,omitempty"`
	PaynetNeutral *float64           `json:"paynet_neutral,omitempty" yaml:"paynet_neutral,omitempty"`
}

// RangeDefinition is a closed numeric interval.
type RangeDefinition struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Float returns a pointer to v, for building rule definitions in code.
func Float(v float64) *float64 { return &v }

// Slugify derives a URL-safe identifier from a display name:
// "Apex Commercial Capital" becomes "apex-commercial-capital".
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
