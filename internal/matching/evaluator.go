package matching

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/lender-match/internal/model"
	"github.com/sells-group/lender-match/internal/policy"
)

var printer = message.NewPrinter(language.English)

// EvaluateRules runs every rule against s and returns one reason per failed
// rule, in rule order. It never short-circuits. An empty, non-nil slice
// means every rule passed. An error means a rule of an unsupported type.
func EvaluateRules(s *Snapshot, rules []policy.Rule) ([]string, error) {
	reasons := []string{}
	for i, r := range rules {
		reason, failed, err := evaluateRule(s, r)
		if err != nil {
			return nil, eris.Wrapf(err, "matching: rule %d", i)
		}
		if failed {
			reasons = append(reasons, reason)
		}
	}
	return reasons, nil
}

func evaluateRule(s *Snapshot, r policy.Rule) (string, bool, error) {
	switch r := r.(type) {
	case policy.MinFico:
		if s.ficoScore < r.Threshold {
			return printer.Sprintf("FICO score %d below minimum %d", s.ficoScore, r.Threshold), true, nil
		}

	case policy.MinYearsInBusiness:
		if s.yearsInBusiness < r.Threshold {
			return "Time in business " + formatYears(s.yearsInBusiness) +
				" years below minimum " + formatYears(r.Threshold), true, nil
		}

	case policy.MinAnnualRevenue:
		if s.annualRevenue < r.Threshold {
			return "Annual revenue " + formatCurrency(s.annualRevenue) +
				" below minimum " + formatCurrency(r.Threshold), true, nil
		}

	case policy.AmountRange:
		if s.amountRequested < r.Min {
			return "Requested amount " + formatCurrency(s.amountRequested) +
				" below minimum " + formatCurrency(r.Min), true, nil
		}
		if r.Max != nil && s.amountRequested > *r.Max {
			return "Requested amount " + formatCurrency(s.amountRequested) +
				" exceeds maximum " + formatCurrency(*r.Max), true, nil
		}

	case policy.AllowedEquipmentTypes:
		if !containsEquipment(r.Types, s.equipmentType) {
			names := make([]string, len(r.Types))
			for i, t := range r.Types {
				names[i] = string(t)
			}
			return "Equipment type " + string(s.equipmentType) +
				" not in allowed list [" + strings.Join(names, ", ") + "]", true, nil
		}

	case policy.ExcludedEquipmentTypes:
		if containsEquipment(r.Types, s.equipmentType) {
			return "Equipment type " + string(s.equipmentType) + " is excluded", true, nil
		}

	case policy.ExcludedStates:
		for _, st := range r.States {
			if st == s.state {
				return "State " + s.state + " is excluded", true, nil
			}
		}

	case policy.MinPaynetScore:
		if !s.hasPaynet {
			return printer.Sprintf("Paynet score unknown, minimum %d required", r.Threshold), true, nil
		}
		if s.paynetScore < r.Threshold {
			return printer.Sprintf("Paynet score %d below minimum %d", s.paynetScore, r.Threshold), true, nil
		}

	default:
		return "", false, eris.Errorf("unsupported rule type %T", r)
	}

	return "", false, nil
}

func containsEquipment(types []model.EquipmentType, t model.EquipmentType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

// formatCurrency renders v with English digit grouping: $500,000 or $1,250.50.
func formatCurrency(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return printer.Sprintf("$%d", int64(v))
	}
	return printer.Sprintf("$%.2f", v)
}

// formatYears renders v with the fewest digits needed: 3, 2.5.
func formatYears(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
