package matching

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lender-match/internal/model"
	"github.com/sells-group/lender-match/internal/policy"
	"github.com/sells-group/lender-match/internal/resilience"
	"github.com/sells-group/lender-match/internal/scorer"
)

type notFoundErr struct{}

func (notFoundErr) Error() string  { return "not found" }
func (notFoundErr) NotFound() bool { return true }

type fakeApps struct {
	apps     map[string]model.Application
	failures int
	calls    int
}

func (f *fakeApps) GetApplication(_ context.Context, id string) (*model.Application, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, resilience.NewTransientError(errors.New("database is locked"))
	}
	app, ok := f.apps[id]
	if !ok {
		return nil, notFoundErr{}
	}
	return &app, nil
}

type fakePolicies struct {
	recs []model.PolicyRecord
	err  error
}

func (f *fakePolicies) ActivePolicies(context.Context) ([]model.PolicyRecord, error) {
	return f.recs, f.err
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]model.MatchResult
	sets int
}

func (c *memCache) Get(_ context.Context, key string) ([]model.MatchResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.data[key]
	return r, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, results []model.MatchResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = map[string][]model.MatchResult{}
	}
	c.data[key] = results
	c.sets++
	return nil
}

type recordingObserver struct {
	outcomes []string
	hits     []bool
}

func (o *recordingObserver) ObserveRun(outcome string, _ time.Duration, _ []model.MatchResult) {
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) ObserveCacheLookup(hit bool) {
	o.hits = append(o.hits, hit)
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func policyRecords() []model.PolicyRecord {
	return []model.PolicyRecord{
		{
			ID: "p1", LenderName: "Apex Commercial Capital", Name: "Tier A", Version: 1, Active: true,
			Rules: []model.RuleDefinition{
				{Kind: "min_fico", Value: model.Float(650)},
				{Kind: "min_paynet", Value: model.Float(80)},
			},
		},
		{
			ID: "p2", LenderName: "Stearns Bank", Name: "Tier 1", Version: 1, Active: true,
			Rules:   []model.RuleDefinition{{Kind: "min_fico", Value: model.Float(650)}},
			Scoring: model.ScoringDefinition{Weights: map[string]float64{"fico": 1}},
		},
	}
}

func newTestService(apps *fakeApps, pols *fakePolicies, opts ...ServiceOption) *Service {
	opts = append([]ServiceOption{WithRetry(fastRetry())}, opts...)
	return NewService(apps, pols, newTestEngine(4), opts...)
}

func TestServiceMatch(t *testing.T) {
	apps := &fakeApps{apps: map[string]model.Application{"app-1": validApp()}}
	obs := &recordingObserver{}
	svc := newTestService(apps, &fakePolicies{recs: policyRecords()}, WithObserver(obs))

	run, err := svc.Match(context.Background(), "app-1")
	require.NoError(t, err)

	assert.Equal(t, "app-1", run.ApplicationID)
	assert.Equal(t, PolicySetHash(policyRecords()), run.PolicyHash)
	require.Len(t, run.Results, 2)
	assert.Equal(t, "Stearns Bank", run.Results[0].LenderName)
	assert.True(t, run.Results[0].Eligible)
	assert.Equal(t, 0.7636, run.Results[0].Score)
	assert.Equal(t, "Apex Commercial Capital", run.Results[1].LenderName)
	assert.Equal(t, []string{"Paynet score unknown, minimum 80 required"}, run.Results[1].Reasons)
	assert.Equal(t, []string{OutcomeSuccess}, obs.outcomes)
}

func TestServiceMatch_RetriesTransientLoad(t *testing.T) {
	apps := &fakeApps{apps: map[string]model.Application{"app-1": validApp()}, failures: 2}
	svc := newTestService(apps, &fakePolicies{recs: policyRecords()})

	_, err := svc.Match(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, 3, apps.calls)
}

func TestServiceMatch_Errors(t *testing.T) {
	badSnapshot := validApp()
	badSnapshot.FICOScore = 900

	badPolicy := policyRecords()
	badPolicy[1].Rules = append(badPolicy[1].Rules, model.RuleDefinition{Kind: "max_debt_ratio", Value: model.Float(1)})

	tests := []struct {
		name    string
		app     model.Application
		id      string
		recs    []model.PolicyRecord
		polErr  error
		outcome string
	}{
		{"not found", validApp(), "missing", policyRecords(), nil, OutcomeNotFound},
		{"invalid snapshot", badSnapshot, "app-1", policyRecords(), nil, OutcomeInvalidSnapshot},
		{"bad policy", validApp(), "app-1", badPolicy, nil, OutcomeConfiguration},
		{"policy source down", validApp(), "app-1", nil, errors.New("boom"), OutcomeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apps := &fakeApps{apps: map[string]model.Application{"app-1": tt.app}}
			obs := &recordingObserver{}
			svc := newTestService(apps, &fakePolicies{recs: tt.recs, err: tt.polErr}, WithObserver(obs))

			run, err := svc.Match(context.Background(), tt.id)
			require.Error(t, err)
			assert.Nil(t, run)
			assert.Equal(t, tt.outcome, Outcome(err))
			assert.Equal(t, []string{tt.outcome}, obs.outcomes)
		})
	}
}

func TestServiceMatch_ConfigurationErrorIsTyped(t *testing.T) {
	recs := policyRecords()
	recs[0].Rules[0].Value = model.Float(10)
	svc := newTestService(&fakeApps{apps: map[string]model.Application{"app-1": validApp()}}, &fakePolicies{recs: recs})

	_, err := svc.Match(context.Background(), "app-1")
	var cfgErr *policy.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "Tier A", cfgErr.Policy)
	assert.Equal(t, 0, cfgErr.Index)
}

func TestServiceMatch_Cache(t *testing.T) {
	apps := &fakeApps{apps: map[string]model.Application{"app-1": validApp()}}
	pols := &fakePolicies{recs: policyRecords()}
	cache := &memCache{}
	obs := &recordingObserver{}
	svc := newTestService(apps, pols, WithCache(cache), WithObserver(obs))

	first, err := svc.Match(context.Background(), "app-1")
	require.NoError(t, err)
	second, err := svc.Match(context.Background(), "app-1")
	require.NoError(t, err)

	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, []bool{false, true}, obs.hits)

	// A policy change produces a new key.
	pols.recs[1].Version = 2
	_, err = svc.Match(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, 2, cache.sets)
}

func TestPolicySetHash(t *testing.T) {
	a := PolicySetHash(policyRecords())
	assert.Equal(t, a, PolicySetHash(policyRecords()))

	changed := policyRecords()
	changed[0].Rules[0].Value = model.Float(660)
	assert.NotEqual(t, a, PolicySetHash(changed))
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "match:app-1:abc:def", CacheKey("app-1", "abc", "def"))
}

func TestServiceMatch_CacheKeyedByScorerConfig(t *testing.T) {
	apps := &fakeApps{apps: map[string]model.Application{"app-1": validApp()}}
	pols := &fakePolicies{recs: policyRecords()}
	cache := &memCache{}

	base := NewService(apps, pols, newTestEngine(4), WithRetry(fastRetry()), WithCache(cache))
	first, err := base.Match(context.Background(), "app-1")
	require.NoError(t, err)

	cfg := scorer.DefaultScorerConfig()
	cfg.MaxScore = 50
	obs := &recordingObserver{}
	tuned := NewService(apps, pols, NewEngine(scorer.New(cfg), 4), WithRetry(fastRetry()), WithCache(cache), WithObserver(obs))
	second, err := tuned.Match(context.Background(), "app-1")
	require.NoError(t, err)

	assert.Equal(t, []bool{false}, obs.hits)
	assert.Equal(t, 2, cache.sets)
	assert.Equal(t, first.PolicyHash, second.PolicyHash)
	assert.NotEqual(t, first.Results, second.Results)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, Outcome(nil))
	assert.Equal(t, OutcomeEvaluation, Outcome(&PolicyEvaluationError{Err: errors.New("x")}))
	assert.Equal(t, OutcomeError, Outcome(errors.New("x")))
}
