package ingest

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/lender-match/internal/model"
	"github.com/sells-group/lender-match/internal/policy"
	"github.com/sells-group/lender-match/internal/scorer"
)

var (
	ficoPattern   = regexp.MustCompile(`(?i)FICO.*?(\d{3})`)
	yearsPattern  = regexp.MustCompile(`(?i)(\d+)\+?\s*years?.*?business`)
	amountPattern = regexp.MustCompile(`\$(\d{1,3}(?:,\d{3})+|\d+)`)
	paynetPattern = regexp.MustCompile(`(?i)paynet.*?(\d{2,3})`)
)

// RegexParser recognises the handful of thresholds that rate sheets state
// in a predictable way. It is cheap and deterministic but brittle; only the
// first match of each pattern is used.
type RegexParser struct{}

// NewRegexParser creates a RegexParser.
func NewRegexParser() *RegexParser { return &RegexParser{} }

// Name implements Parser.
func (p *RegexParser) Name() string { return "regex" }

// Parse implements Parser.
func (p *RegexParser) Parse(_ context.Context, text string) ([]model.RuleDefinition, error) {
	var rules []model.RuleDefinition

	if m := ficoPattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil && v >= scorer.FICOMin && v <= scorer.FICOMax {
			rules = append(rules, model.RuleDefinition{Kind: policy.KindMinFico, Value: model.Float(float64(v))})
		}
	}

	if m := yearsPattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			rules = append(rules, model.RuleDefinition{Kind: policy.KindMinYearsInBusiness, Value: model.Float(float64(v))})
		}
	}

	if m := amountPattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil && v > 0 {
			rules = append(rules, model.RuleDefinition{Kind: policy.KindMaxAmount, Value: model.Float(float64(v))})
		}
	}

	if m := paynetPattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			rules = append(rules, model.RuleDefinition{Kind: policy.KindMinPaynetScore, Value: model.Float(float64(v))})
		}
	}

	return rules, nil
}
