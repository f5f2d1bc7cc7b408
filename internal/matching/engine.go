// Package matching evaluates a loan application against lender policies and
// produces a ranked, explained set of match results.
package matching

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lender-match/internal/model"
	"github.com/sells-group/lender-match/internal/policy"
	"github.com/sells-group/lender-match/internal/scorer"
)

// IneligibleScore is the score carried by results that failed a rule.
// It is never used to rank eligible results.
const IneligibleScore = -1.0

// DefaultWorkers is used when NewEngine is given a non-positive worker count.
const DefaultWorkers = 8

// Result is the outcome of evaluating one policy.
type Result struct {
	PolicyID   string
	LenderName string
	PolicyName string
	Eligible   bool
	Reasons    []string
	Score      float64
	Components map[string]float64
}

// MatchResult converts r to its wire form.
func (r Result) MatchResult() model.MatchResult {
	return model.MatchResult{
		LenderName: r.LenderName,
		PolicyName: r.PolicyName,
		Eligible:   r.Eligible,
		Reasons:    r.Reasons,
		Score:      r.Score,
	}
}

// MatchResults converts results to their wire form, preserving order.
func MatchResults(results []Result) []model.MatchResult {
	out := make([]model.MatchResult, len(results))
	for i, r := range results {
		out[i] = r.MatchResult()
	}
	return out
}

// Engine evaluates a snapshot against a policy set. It holds no per-run
// state; one Engine serves concurrent runs.
type Engine struct {
	scorer     *scorer.Scorer
	workers    int
	scorerHash string
}

// NewEngine creates an Engine that evaluates at most workers policies of a
// run concurrently.
func NewEngine(sc *scorer.Scorer, workers int) *Engine {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Engine{scorer: sc, workers: workers, scorerHash: scorer.ConfigHash(sc.Config())}
}

// ScorerHash identifies the engine's global scorer config.
func (e *Engine) ScorerHash() string {
	return e.scorerHash
}

// Evaluate runs every active policy against s and returns one result per
// active policy, sorted: eligible results by descending score, then
// ineligible results by lender name. Inactive policies are skipped. The
// run either returns the full set or fails; a fault in any policy yields a
// *PolicyEvaluationError and no results.
func (e *Engine) Evaluate(ctx context.Context, s *Snapshot, policies []policy.Policy) ([]Result, error) {
	if s == nil {
		return nil, eris.New("matching: nil snapshot")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	active := policy.Active(policies)
	results := make([]Result, len(active))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, p := range active {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := e.evaluatePolicy(s, p)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sortResults(results)
	return results, nil
}

// evaluatePolicy applies one policy's rules and, when all pass, its scoring.
func (e *Engine) evaluatePolicy(s *Snapshot, p policy.Policy) (res Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res = Result{}
			err = &PolicyEvaluationError{
				PolicyID: p.ID,
				Lender:   p.LenderName,
				Policy:   p.Name,
				Err:      fmt.Errorf("panic: %v", rec),
			}
		}
	}()

	reasons, err := EvaluateRules(s, p.Rules)
	if err != nil {
		return Result{}, &PolicyEvaluationError{PolicyID: p.ID, Lender: p.LenderName, Policy: p.Name, Err: err}
	}

	res = Result{
		PolicyID:   p.ID,
		LenderName: p.LenderName,
		PolicyName: p.Name,
		Eligible:   len(reasons) == 0,
		Reasons:    reasons,
		Score:      IneligibleScore,
	}
	if res.Eligible {
		b := e.scorer.Score(s.scorerInput(), p.Scoring)
		res.Score = b.Score
		res.Components = b.Components
	}
	return res, nil
}
