// Package scorer computes comparable scores for applications that pass every
// hard rule of a lender policy.
package scorer

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lender-match/internal/config"
)

// DefaultScorerConfig returns a config.ScorerConfig with sensible defaults.
func DefaultScorerConfig() config.ScorerConfig {
	return config.ScorerConfig{
		// Reference ranges.
		RevenueMin: 0,
		RevenueMax: 5_000_000, // $5M
		YearsMin:   0,
		YearsMax:   10,
		PaynetMin:  1,
		PaynetMax:  999,

		// Unknown paynet contributes half credit.
		PaynetNeutral: 0.5,

		MaxScore: 100,
	}
}

// ValidateConfig checks that a ScorerConfig is internally consistent.
func ValidateConfig(c config.ScorerConfig) error {
	var errs []string

	ranges := []struct {
		name     string
		min, max float64
	}{
		{"revenue", c.RevenueMin, c.RevenueMax},
		{"years", c.YearsMin, c.YearsMax},
		{"paynet", c.PaynetMin, c.PaynetMax},
	}
	for _, r := range ranges {
		if !finite(r.min) || !finite(r.max) {
			errs = append(errs, fmt.Sprintf("%s range must be finite", r.name))
			continue
		}
		if r.min < 0 {
			errs = append(errs, fmt.Sprintf("%s_min must be >= 0", r.name))
		}
		if r.max <= r.min {
			errs = append(errs, fmt.Sprintf("%s_max must be > %s_min", r.name, r.name))
		}
	}

	if c.PaynetNeutral < 0 || c.PaynetNeutral > 1 {
		errs = append(errs, "paynet_neutral must be between 0 and 1")
	}
	if c.MaxScore <= 0 || !finite(c.MaxScore) {
		errs = append(errs, "max_score must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidateProfile returns every problem found in a policy scoring profile.
// An empty result means the profile is usable.
func ValidateProfile(p Profile) []string {
	var errs []string

	for _, name := range sortedKeys(p.Weights) {
		w := p.Weights[name]
		if !IsFactor(name) {
			errs = append(errs, fmt.Sprintf("unknown scoring factor %q", name))
			continue
		}
		if !finite(w) || w < 0 {
			errs = append(errs, fmt.Sprintf("weight %q must be a finite number >= 0", name))
		}
	}

	if p.Revenue != nil {
		if msg := checkRange("revenue_range", *p.Revenue); msg != "" {
			errs = append(errs, msg)
		}
	}
	if p.Years != nil {
		if msg := checkRange("years_range", *p.Years); msg != "" {
			errs = append(errs, msg)
		}
	}
	if p.PaynetNeutral != nil {
		v := *p.PaynetNeutral
		if !finite(v) || v < 0 || v > 1 {
			errs = append(errs, "paynet_neutral must be between 0 and 1")
		}
	}

	return errs
}

func checkRange(name string, r Range) string {
	if !finite(r.Min) || !finite(r.Max) || r.Min < 0 || r.Max <= r.Min {
		return fmt.Sprintf("%s must satisfy 0 <= min < max", name)
	}
	return ""
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
