package matching

import (
	"fmt"
	"math"
	"strings"

	"github.com/sells-group/lender-match/internal/model"
	"github.com/sells-group/lender-match/internal/scorer"
)

// Snapshot is the immutable, normalized view of one application that a
// match run evaluates. Build it with NewSnapshot.
type Snapshot struct {
	id              string
	amountRequested float64
	ficoScore       int
	yearsInBusiness float64
	annualRevenue   float64
	equipmentType   model.EquipmentType
	state           string
	city            string
	paynetScore     int
	hasPaynet       bool
}

// NewSnapshot validates app and returns its snapshot. Every violated
// invariant is reported in a single *InvalidSnapshotError.
func NewSnapshot(app model.Application) (*Snapshot, error) {
	var errs []string

	if strings.TrimSpace(app.ID) == "" {
		errs = append(errs, "id is required")
	}
	if !finite(app.AmountRequested) || app.AmountRequested <= 0 {
		errs = append(errs, "amount_requested must be > 0")
	}
	if app.FICOScore < scorer.FICOMin || app.FICOScore > scorer.FICOMax {
		errs = append(errs, fmt.Sprintf("fico_score %d outside [%d, %d]", app.FICOScore, scorer.FICOMin, scorer.FICOMax))
	}
	if !finite(app.YearsInBusiness) || app.YearsInBusiness < 0 {
		errs = append(errs, "years_in_business must be >= 0")
	}
	if !finite(app.AnnualRevenue) || app.AnnualRevenue < 0 {
		errs = append(errs, "annual_revenue must be >= 0")
	}

	equipment, err := model.ParseEquipmentType(app.EquipmentType)
	if err != nil {
		errs = append(errs, fmt.Sprintf("equipment_type %q is not a known type", app.EquipmentType))
	}

	state := model.NormalizeState(app.State)
	if !model.IsValidState(state) {
		errs = append(errs, fmt.Sprintf("state %q is not a valid code", app.State))
	}

	city := strings.TrimSpace(app.City)
	if city == "" {
		errs = append(errs, "city is required")
	}

	s := &Snapshot{
		id:              app.ID,
		amountRequested: app.AmountRequested,
		ficoScore:       app.FICOScore,
		yearsInBusiness: app.YearsInBusiness,
		annualRevenue:   app.AnnualRevenue,
		equipmentType:   equipment,
		state:           state,
		city:            city,
	}
	if app.PaynetScore != nil {
		if *app.PaynetScore < 0 || *app.PaynetScore > scorer.PaynetScoreMax {
			errs = append(errs, fmt.Sprintf("paynet_score %d outside [0, %d]", *app.PaynetScore, scorer.PaynetScoreMax))
		}
		s.paynetScore = *app.PaynetScore
		s.hasPaynet = true
	}

	if len(errs) > 0 {
		return nil, &InvalidSnapshotError{ApplicationID: app.ID, Violations: errs}
	}
	return s, nil
}

func (s *Snapshot) ID() string                         { return s.id }
func (s *Snapshot) AmountRequested() float64           { return s.amountRequested }
func (s *Snapshot) FICOScore() int                     { return s.ficoScore }
func (s *Snapshot) YearsInBusiness() float64           { return s.yearsInBusiness }
func (s *Snapshot) AnnualRevenue() float64             { return s.annualRevenue }
func (s *Snapshot) EquipmentType() model.EquipmentType { return s.equipmentType }
func (s *Snapshot) State() string                      { return s.state }
func (s *Snapshot) City() string                       { return s.city }

// PaynetScore returns the paynet score and whether it is known.
func (s *Snapshot) PaynetScore() (int, bool) { return s.paynetScore, s.hasPaynet }

func (s *Snapshot) scorerInput() scorer.Input {
	in := scorer.Input{
		FICO:            s.ficoScore,
		YearsInBusiness: s.yearsInBusiness,
		AnnualRevenue:   s.annualRevenue,
	}
	if s.hasPaynet {
		v := s.paynetScore
		in.Paynet = &v
	}
	return in
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
