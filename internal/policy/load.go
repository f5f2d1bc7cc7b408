package policy

import (
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/lender-match/internal/model"
	"github.com/sells-group/lender-match/internal/scorer"
)

// Load validates a stored policy record and converts it into a Policy.
// Any malformed rule or scoring setting yields a *ConfigurationError; a
// policy with no rules is valid and matches every application.
func Load(rec model.PolicyRecord) (Policy, error) {
	p := Policy{
		ID:         rec.ID,
		LenderName: rec.LenderName,
		Name:       rec.Name,
		Version:    rec.Version,
		Active:     rec.Active,
	}

	fail := func(idx int, kind, format string, args ...any) (Policy, error) {
		return Policy{}, &ConfigurationError{
			Lender: rec.LenderName,
			Policy: rec.Name,
			Index:  idx,
			Kind:   kind,
			Reason: fmt.Sprintf(format, args...),
		}
	}

	if strings.TrimSpace(rec.LenderName) == "" {
		return fail(-1, "", "lender name is required")
	}
	if strings.TrimSpace(rec.Name) == "" {
		return fail(-1, "", "policy name is required")
	}

	p.Rules = make([]Rule, 0, len(rec.Rules))
	for i, def := range rec.Rules {
		r, err := buildRule(def)
		if err != nil {
			return fail(i, def.Kind, "%s", err.Error())
		}
		p.Rules = append(p.Rules, r)
	}

	p.Scoring = profile(rec.Scoring)
	if errs := scorer.ValidateProfile(p.Scoring); len(errs) > 0 {
		return fail(-1, "scoring", "%s", strings.Join(errs, "; "))
	}

	return p, nil
}

// LoadAll loads every record, failing on the first malformed one.
func LoadAll(recs []model.PolicyRecord) ([]Policy, error) {
	out := make([]Policy, 0, len(recs))
	for _, rec := range recs {
		p, err := Load(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ValidateRule checks a single rule definition without building a policy.
func ValidateRule(def model.RuleDefinition) error {
	_, err := buildRule(def)
	return err
}

type paramError string

func (e paramError) Error() string { return string(e) }

func buildRule(def model.RuleDefinition) (Rule, error) {
	kind := CanonicalKind(strings.ToLower(strings.TrimSpace(def.Kind)))

	switch kind {
	case KindMinFico:
		v, err := valueOnly(def)
		if err != nil {
			return nil, err
		}
		if !isInt(v) || v < scorer.FICOMin || v > scorer.FICOMax {
			return nil, paramError(fmt.Sprintf("value must be an integer in [%d, %d]", scorer.FICOMin, scorer.FICOMax))
		}
		return MinFico{Threshold: int(v)}, nil

	case KindMinYearsInBusiness:
		v, err := nonNegativeValue(def)
		if err != nil {
			return nil, err
		}
		return MinYearsInBusiness{Threshold: v}, nil

	case KindMinAnnualRevenue:
		v, err := nonNegativeValue(def)
		if err != nil {
			return nil, err
		}
		return MinAnnualRevenue{Threshold: v}, nil

	case KindMinAmount:
		v, err := nonNegativeValue(def)
		if err != nil {
			return nil, err
		}
		return AmountRange{Min: v}, nil

	case KindMaxAmount:
		v, err := valueOnly(def)
		if err != nil {
			return nil, err
		}
		if v <= 0 {
			return nil, paramError("value must be > 0")
		}
		return AmountRange{Max: &v}, nil

	case KindAmountRange:
		return buildAmountRange(def)

	case KindAllowedEquipmentTypes:
		types, err := equipmentValues(def)
		if err != nil {
			return nil, err
		}
		return AllowedEquipmentTypes{Types: types}, nil

	case KindExcludedEquipmentTypes:
		types, err := equipmentValues(def)
		if err != nil {
			return nil, err
		}
		return ExcludedEquipmentTypes{Types: types}, nil

	case KindExcludedStates:
		states, err := stateValues(def)
		if err != nil {
			return nil, err
		}
		return ExcludedStates{States: states}, nil

	case KindMinPaynetScore:
		v, err := valueOnly(def)
		if err != nil {
			return nil, err
		}
		if !isInt(v) || v < 0 || v > scorer.PaynetScoreMax {
			return nil, paramError(fmt.Sprintf("value must be an integer in [0, %d]", scorer.PaynetScoreMax))
		}
		return MinPaynetScore{Threshold: int(v)}, nil

	case "excluded_industries":
		return nil, paramError("applications carry no industry, rule cannot be evaluated")

	case "":
		return nil, paramError("rule kind is required")

	default:
		return nil, paramError(fmt.Sprintf("unknown rule kind %q", def.Kind))
	}
}

func buildAmountRange(def model.RuleDefinition) (Rule, error) {
	if def.Value != nil || len(def.Values) > 0 {
		return nil, paramError("amount_range takes only min and max")
	}
	if def.Min == nil && def.Max == nil {
		return nil, paramError("min or max is required")
	}

	r := AmountRange{}
	if def.Min != nil {
		if !finite(*def.Min) || *def.Min < 0 {
			return nil, paramError("min must be a finite number >= 0")
		}
		r.Min = *def.Min
	}
	if def.Max != nil {
		m := *def.Max
		if !finite(m) || m <= 0 {
			return nil, paramError("max must be a finite number > 0")
		}
		if m < r.Min {
			return nil, paramError("min must not exceed max")
		}
		r.Max = &m
	}
	return r, nil
}

// valueOnly returns the finite Value of a single-threshold rule.
func valueOnly(def model.RuleDefinition) (float64, error) {
	if def.Value == nil {
		return 0, paramError("value is required")
	}
	if def.Min != nil || def.Max != nil || len(def.Values) > 0 {
		return 0, paramError("only value may be set")
	}
	if !finite(*def.Value) {
		return 0, paramError("value must be finite")
	}
	return *def.Value, nil
}

func nonNegativeValue(def model.RuleDefinition) (float64, error) {
	v, err := valueOnly(def)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, paramError("value must be >= 0")
	}
	return v, nil
}

func equipmentValues(def model.RuleDefinition) ([]model.EquipmentType, error) {
	if err := valuesOnly(def); err != nil {
		return nil, err
	}
	seen := make(map[model.EquipmentType]bool, len(def.Values))
	out := make([]model.EquipmentType, 0, len(def.Values))
	for _, raw := range def.Values {
		t, err := model.ParseEquipmentType(raw)
		if err != nil {
			return nil, paramError(fmt.Sprintf("unknown equipment type %q", raw))
		}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out, nil
}

func stateValues(def model.RuleDefinition) ([]string, error) {
	if err := valuesOnly(def); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(def.Values))
	out := make([]string, 0, len(def.Values))
	for _, raw := range def.Values {
		code := model.NormalizeState(raw)
		if !model.IsValidState(code) {
			return nil, paramError(fmt.Sprintf("unknown state code %q", raw))
		}
		if !seen[code] {
			seen[code] = true
			out = append(out, code)
		}
	}
	return out, nil
}

func valuesOnly(def model.RuleDefinition) error {
	if len(def.Values) == 0 {
		return paramError("values must not be empty")
	}
	if def.Value != nil || def.Min != nil || def.Max != nil {
		return paramError("only values may be set")
	}
	return nil
}

func profile(def model.ScoringDefinition) scorer.Profile {
	p := scorer.Profile{PaynetNeutral: def.PaynetNeutral}
	if len(def.Weights) > 0 {
		p.Weights = make(map[string]float64, len(def.Weights))
		for k, v := range def.Weights {
			p.Weights[k] = v
		}
	}
	if def.RevenueRange != nil {
		p.Revenue = &scorer.Range{Min: def.RevenueRange.Min, Max: def.RevenueRange.Max}
	}
	if def.YearsRange != nil {
		p.Years = &scorer.Range{Min: def.YearsRange.Min, Max: def.YearsRange.Max}
	}
	return p
}

func isInt(v float64) bool {
	return v == math.Trunc(v)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
