// Package policy turns stored lender policy definitions into immutable,
// typed policies the match engine can evaluate.
package policy

import "github.com/sells-group/lender-match/internal/model"

// Rule kinds as stored in policy definitions.
const (
	KindMinFico                = "min_fico"
	KindMinYearsInBusiness     = "min_years_in_business"
	KindMinAnnualRevenue       = "min_annual_revenue"
	KindAmountRange            = "amount_range"
	KindMinAmount              = "min_amount"
	KindMaxAmount              = "max_amount"
	KindAllowedEquipmentTypes  = "allowed_equipment_types"
	KindExcludedEquipmentTypes = "excluded_equipment_types"
	KindExcludedStates         = "excluded_states"
	KindMinPaynetScore         = "min_paynet"
)

// kindAliases maps alternate kind names onto their canonical kind.
var kindAliases = map[string]string{
	"min_tib_years":    KindMinYearsInBusiness,
	"min_revenue":      KindMinAnnualRevenue,
	"min_paynet_score": KindMinPaynetScore,
}

// CanonicalKind resolves aliases. Unknown kinds are returned unchanged.
func CanonicalKind(kind string) string {
	if k, ok := kindAliases[kind]; ok {
		return k
	}
	return kind
}

// Rule is one typed eligibility predicate. The set of implementations is
// closed: only the variants in this package satisfy it.
type Rule interface {
	Kind() string
	sealed()
}

// MinFico fails when the FICO score is below Threshold.
type MinFico struct {
	Threshold int
}

// MinYearsInBusiness fails when time in business is below Threshold.
type MinYearsInBusiness struct {
	Threshold float64
}

// MinAnnualRevenue fails when annual revenue is below Threshold.
type MinAnnualRevenue struct {
	Threshold float64
}

// AmountRange fails when the requested amount is outside [Min, Max].
// A nil Max means no upper bound.
type AmountRange struct {
	Min float64
	Max *float64
}

// AllowedEquipmentTypes fails when the equipment type is not in Types.
type AllowedEquipmentTypes struct {
	Types []model.EquipmentType
}

// ExcludedEquipmentTypes fails when the equipment type is in Types.
type ExcludedEquipmentTypes struct {
	Types []model.EquipmentType
}

// ExcludedStates fails when the applicant's state is in States.
type ExcludedStates struct {
	States []string
}

// MinPaynetScore fails when the paynet score is unknown or below Threshold.
type MinPaynetScore struct {
	Threshold int
}

func (MinFico) Kind() string                { return KindMinFico }
func (MinYearsInBusiness) Kind() string     { return KindMinYearsInBusiness }
func (MinAnnualRevenue) Kind() string       { return KindMinAnnualRevenue }
func (AmountRange) Kind() string            { return KindAmountRange }
func (AllowedEquipmentTypes) Kind() string  { return KindAllowedEquipmentTypes }
func (ExcludedEquipmentTypes) Kind() string { return KindExcludedEquipmentTypes }
func (ExcludedStates) Kind() string         { return KindExcludedStates }
func (MinPaynetScore) Kind() string         { return KindMinPaynetScore }

func (MinFico) sealed()                {}
func (MinYearsInBusiness) sealed()     {}
func (MinAnnualRevenue) sealed()       {}
func (AmountRange) sealed()            {}
func (AllowedEquipmentTypes) sealed()  {}
func (ExcludedEquipmentTypes) sealed() {}
func (ExcludedStates) sealed()         {}
func (MinPaynetScore) sealed()         {}
