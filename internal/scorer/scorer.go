package scorer

import (
	"math"
	"sort"

	"github.com/sells-group/lender-match/internal/config"
)

// Scoring factor names accepted as keys of a policy's weights.
const (
	FactorFICO            = "fico"
	FactorAnnualRevenue   = "annual_revenue"
	FactorYearsInBusiness = "years_in_business"
	FactorPaynet          = "paynet"
)

// FICO score domain.
const (
	FICOMin = 300
	FICOMax = 850
)

// PaynetScoreMax is the top of the PayNet MasterScore scale.
const PaynetScoreMax = 999

// Factors lists the scoring factors in summation order.
var Factors = []string{FactorFICO, FactorAnnualRevenue, FactorYearsInBusiness, FactorPaynet}

// IsFactor reports whether name is a known scoring factor.
func IsFactor(name string) bool {
	for _, f := range Factors {
		if f == name {
			return true
		}
	}
	return false
}

// Range is a closed normalization interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Profile is a policy's scoring configuration. Nil overrides fall back to
// the scorer's global config.
type Profile struct {
	Weights       map[string]float64 `json:"weights,omitempty"`
	Revenue       *Range             `json:"revenue_range,omitempty"`
	Years         *Range             `json:"years_range,omitempty"`
	PaynetNeutral *float64           `json:"paynet_neutral,omitempty"`
}

// Input holds the applicant values the scorer reads. Paynet is nil when unknown.
type Input struct {
	FICO            int
	YearsInBusiness float64
	AnnualRevenue   float64
	Paynet          *int
}

// Breakdown is a computed score with its normalized components.
type Breakdown struct {
	Score      float64            `json:"score"`
	Components map[string]float64 `json:"components"`
}

// Scorer turns an Input and a Profile into a score. It holds no mutable
// state and is safe for concurrent use.
type Scorer struct {
	cfg config.ScorerConfig
}

// New creates a Scorer with the given global config.
func New(cfg config.ScorerConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Config returns the scorer's global config.
func (s *Scorer) Config() config.ScorerConfig {
	return s.cfg
}

// Score computes the weighted sum of normalized factors. Factors without a
// weight contribute zero. The result is clamped to [0, MaxScore] and rounded
// to 4 decimal places so that repeated runs are byte-identical.
func (s *Scorer) Score(in Input, p Profile) Breakdown {
	components := s.components(in, p)

	var total float64
	for _, f := range Factors {
		total += p.Weights[f] * components[f]
	}

	total = math.Max(0, total)
	if s.cfg.MaxScore > 0 {
		total = math.Min(total, s.cfg.MaxScore)
	}

	return Breakdown{
		Score:      math.Round(total*10000) / 10000,
		Components: components,
	}
}

func (s *Scorer) components(in Input, p Profile) map[string]float64 {
	revenue := Range{Min: s.cfg.RevenueMin, Max: s.cfg.RevenueMax}
	if p.Revenue != nil {
		revenue = *p.Revenue
	}
	years := Range{Min: s.cfg.YearsMin, Max: s.cfg.YearsMax}
	if p.Years != nil {
		years = *p.Years
	}

	return map[string]float64{
		FactorFICO:            normalize(float64(in.FICO), FICOMin, FICOMax),
		FactorAnnualRevenue:   normalize(in.AnnualRevenue, revenue.Min, revenue.Max),
		FactorYearsInBusiness: normalize(in.YearsInBusiness, years.Min, years.Max),
		FactorPaynet:          s.scorePaynet(in.Paynet, p.PaynetNeutral),
	}
}

// scorePaynet normalizes a known paynet score, or returns the neutral value
// when the score is unknown.
func (s *Scorer) scorePaynet(paynet *int, neutral *float64) float64 {
	if paynet == nil {
		if neutral != nil {
			return *neutral
		}
		return s.cfg.PaynetNeutral
	}
	return normalize(float64(*paynet), s.cfg.PaynetMin, s.cfg.PaynetMax)
}

// normalize maps v linearly from [lo, hi] onto [0, 1], clamping outside values.
func normalize(v, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	n := (v - lo) / (hi - lo)
	return math.Max(0, math.Min(1, n))
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
