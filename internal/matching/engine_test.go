package matching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lender-match/internal/policy"
	"github.com/sells-group/lender-match/internal/scorer"
)

func newTestEngine(workers int) *Engine {
	return NewEngine(scorer.New(scorer.DefaultScorerConfig()), workers)
}

func pol(id, lender, name string, rules ...policy.Rule) policy.Policy {
	return policy.Policy{ID: id, LenderName: lender, Name: name, Active: true, Rules: rules}
}

func withWeights(p policy.Policy, w map[string]float64) policy.Policy {
	p.Scoring = scorer.Profile{Weights: w}
	return p
}

func TestEvaluate_ScenarioA_UnknownPaynetFails(t *testing.T) {
	p := pol("p1", "Apex", "Tier A",
		policy.MinFico{Threshold: 650},
		policy.MinYearsInBusiness{Threshold: 2},
		policy.MinPaynetScore{Threshold: 80},
	)

	got, err := newTestEngine(4).Evaluate(context.Background(), snapshot(t), []policy.Policy{p})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.False(t, got[0].Eligible)
	assert.Equal(t, []string{"Paynet score unknown, minimum 80 required"}, got[0].Reasons)
	assert.Equal(t, IneligibleScore, got[0].Score)
}

func TestEvaluate_ScenarioB_FICOWeightOnly(t *testing.T) {
	p := withWeights(pol("p1", "Apex", "Tier A",
		policy.MinFico{Threshold: 650},
		policy.MinYearsInBusiness{Threshold: 2},
	), map[string]float64{scorer.FactorFICO: 1.0})

	got, err := newTestEngine(4).Evaluate(context.Background(), snapshot(t), []policy.Policy{p})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.True(t, got[0].Eligible)
	assert.Equal(t, []string{}, got[0].Reasons)
	assert.Equal(t, 0.7636, got[0].Score)
}

func TestEvaluate_ScenarioC_Ordering(t *testing.T) {
	// Revenue is 0.1 of the default range, so these weights score 0.81 and 0.74.
	high := withWeights(pol("p-high", "Zeta", "Gold"), map[string]float64{scorer.FactorAnnualRevenue: 8.1})
	low := withWeights(pol("p-low", "Alpha", "Silver"), map[string]float64{scorer.FactorAnnualRevenue: 7.4})
	inel := pol("p-inel", "Aardvark", "Strict", policy.MinFico{Threshold: 800})

	inputs := [][]policy.Policy{
		{inel, low, high},
		{high, inel, low},
		{low, high, inel},
	}
	for i, in := range inputs {
		t.Run(fmt.Sprintf("order %d", i), func(t *testing.T) {
			got, err := newTestEngine(2).Evaluate(context.Background(), snapshot(t), in)
			require.NoError(t, err)
			require.Len(t, got, 3)

			assert.Equal(t, "p-high", got[0].PolicyID)
			assert.Equal(t, 0.81, got[0].Score)
			assert.Equal(t, "p-low", got[1].PolicyID)
			assert.Equal(t, 0.74, got[1].Score)
			assert.Equal(t, "p-inel", got[2].PolicyID)
			assert.False(t, got[2].Eligible)
		})
	}
}

func TestEvaluate_InactiveExcluded(t *testing.T) {
	inactive := pol("p2", "Beta", "Off")
	inactive.Active = false

	got, err := newTestEngine(4).Evaluate(context.Background(), snapshot(t),
		[]policy.Policy{pol("p1", "Alpha", "On"), inactive})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].PolicyID)
}

func TestEvaluate_EmptyPolicySet(t *testing.T) {
	got, err := newTestEngine(4).Evaluate(context.Background(), snapshot(t), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEvaluate_TiesBrokenByLenderThenPolicy(t *testing.T) {
	ps := []policy.Policy{
		pol("3", "Beta", "B"),
		pol("2", "Alpha", "Z"),
		pol("1", "Alpha", "A"),
		pol("5", "Delta", "X", policy.MinFico{Threshold: 800}),
		pol("4", "Charlie", "X", policy.MinFico{Threshold: 800}),
	}

	got, err := newTestEngine(3).Evaluate(context.Background(), snapshot(t), ps)
	require.NoError(t, err)

	ids := make([]string, len(got))
	for i, r := range got {
		ids[i] = r.PolicyID
	}
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, ids)
}

func TestEvaluate_Invariants(t *testing.T) {
	var ps []policy.Policy
	for i := 0; i < 40; i++ {
		rules := []policy.Rule{policy.MinFico{Threshold: 600 + i*5}}
		if i%3 == 0 {
			rules = append(rules, policy.MinPaynetScore{Threshold: 10})
		}
		if i%4 == 0 {
			rules = append(rules, policy.ExcludedStates{States: []string{"CA"}})
		}
		p := withWeights(pol(fmt.Sprintf("p%02d", i), fmt.Sprintf("Lender %d", i%7), "Policy"),
			map[string]float64{scorer.FactorFICO: float64(i%5) + 0.5, scorer.FactorYearsInBusiness: 0.3})
		p.Rules = rules
		ps = append(ps, p)
	}

	got, err := newTestEngine(5).Evaluate(context.Background(), snapshot(t), ps)
	require.NoError(t, err)
	require.Len(t, got, len(ps))

	seenIneligible := false
	for i, r := range got {
		assert.Equal(t, r.Eligible, len(r.Reasons) == 0, r.PolicyID)
		if !r.Eligible {
			seenIneligible = true
			assert.Equal(t, IneligibleScore, r.Score)
			continue
		}
		assert.False(t, seenIneligible, "eligible result after ineligible one")
		if i > 0 && got[i-1].Eligible {
			assert.GreaterOrEqual(t, got[i-1].Score, r.Score)
		}
	}
}

func TestEvaluate_Idempotent(t *testing.T) {
	ps := []policy.Policy{
		withWeights(pol("a", "A", "1"), map[string]float64{scorer.FactorFICO: 0.7, scorer.FactorPaynet: 0.3}),
		withWeights(pol("b", "B", "1"), map[string]float64{scorer.FactorAnnualRevenue: 1}),
		pol("c", "C", "1", policy.MinFico{Threshold: 790}, policy.MinPaynetScore{Threshold: 1}),
	}
	e := newTestEngine(8)
	s := snapshot(t)

	first, err := e.Evaluate(context.Background(), s, ps)
	require.NoError(t, err)
	firstJSON, err := json.Marshal(MatchResults(first))
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		again, err := e.Evaluate(context.Background(), s, ps)
		require.NoError(t, err)
		againJSON, err := json.Marshal(MatchResults(again))
		require.NoError(t, err)
		require.Equal(t, string(firstJSON), string(againJSON))
	}
}

func TestEvaluate_UnsupportedRuleFailsRun(t *testing.T) {
	ps := []policy.Policy{
		pol("ok", "Alpha", "Fine"),
		pol("bad", "Beta", "Broken", unsupportedRule{}),
	}

	got, err := newTestEngine(2).Evaluate(context.Background(), snapshot(t), ps)
	assert.Nil(t, got)

	var evalErr *PolicyEvaluationError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, "bad", evalErr.PolicyID)
	assert.Equal(t, "Beta", evalErr.Lender)
	assert.Equal(t, "Broken", evalErr.Policy)
}

func TestEvaluate_PanicBecomesPolicyError(t *testing.T) {
	e := NewEngine(nil, 2) // nil scorer panics on the first eligible policy

	_, err := e.Evaluate(context.Background(), snapshot(t), []policy.Policy{pol("p1", "Alpha", "Open")})

	var evalErr *PolicyEvaluationError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, "p1", evalErr.PolicyID)
	assert.Contains(t, err.Error(), "panic")
}

func TestEvaluate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := newTestEngine(2).Evaluate(ctx, snapshot(t), []policy.Policy{pol("p1", "A", "1")})
	assert.Nil(t, got)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluate_NilSnapshot(t *testing.T) {
	_, err := newTestEngine(2).Evaluate(context.Background(), nil, nil)
	require.Error(t, err)
}

func TestNewEngine_DefaultWorkers(t *testing.T) {
	e := NewEngine(scorer.New(scorer.DefaultScorerConfig()), 0)
	assert.Equal(t, DefaultWorkers, e.workers)
}
